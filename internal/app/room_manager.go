package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
)

type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager() core.RoomManager {
	return &RoomManagerImpl{rooms: make(map[domain.RoomID]core.RoomService)}
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(id)
}

func (f *RoomManagerImpl) getOrCreateLocked(id domain.RoomID) core.RoomService {
	if room, ok := f.rooms[id]; ok {
		return room
	}
	room := core.NewRoomService(&domain.Room{ID: id})
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) Join(roomID domain.RoomID, id domain.ParticipantID, ms core.MemberSession) []domain.ParticipantID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getOrCreateLocked(roomID).JoinAndList(id, ms)
}

func (f *RoomManagerImpl) Leave(roomID domain.RoomID, id domain.ParticipantID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return false
	}
	removed := room.RemoveMember(id)
	if room.MemberCount() == 0 {
		delete(f.rooms, roomID)
	}
	return removed
}

func (f *RoomManagerImpl) Get(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
