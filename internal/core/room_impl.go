package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    *domain.Room
	mu      sync.RWMutex
	members map[domain.ParticipantID]MemberSession
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:    room,
		members: make(map[domain.ParticipantID]MemberSession),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (r *roomImpl) Member(id domain.ParticipantID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ms, ok := r.members[id]
	return ms, ok
}

func (r *roomImpl) AddMember(id domain.ParticipantID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(id)).Msg("member added")
}

func (r *roomImpl) RemoveMember(id domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(id)).Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(from domain.ParticipantID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for id, m := range r.members {
		if id == from {
			continue
		}
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Others(except domain.ParticipantID) []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.othersLocked(except)
}

func (r *roomImpl) JoinAndList(id domain.ParticipantID, ms MemberSession) []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	others := r.othersLocked(id)
	r.members[id] = ms
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(id)).Int("others", len(others)).Msg("member joined")
	return others
}

func (r *roomImpl) othersLocked(except domain.ParticipantID) []domain.ParticipantID {
	metas := make([]*domain.Member, 0, len(r.members))
	for id, ms := range r.members {
		if id == except {
			continue
		}
		metas = append(metas, ms.Meta())
	}
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].JoinedAt.Equal(metas[j].JoinedAt) {
			return metas[i].ID < metas[j].ID
		}
		return metas[i].JoinedAt.Before(metas[j].JoinedAt)
	})
	out := make([]domain.ParticipantID, len(metas))
	for i, m := range metas {
		out[i] = m.ID
	}
	return out
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.members))
	for _, ms := range r.members {
		m := ms.Meta()
		out = append(out, MemberDTO{ID: m.ID, JoinedAt: m.JoinedAt.Unix()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
