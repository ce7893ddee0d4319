package core

import (
	"github.com/dkeye/Mesh/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.ParticipantID `json:"id"`
	JoinedAt int64                `json:"joined_at"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	// Others lists members except the given one, oldest first.
	Others(except domain.ParticipantID) []domain.ParticipantID
	Member(id domain.ParticipantID) (MemberSession, bool)

	AddMember(id domain.ParticipantID, ms MemberSession)
	// JoinAndList adds ms and returns the members that were already there,
	// oldest first, as one step.
	JoinAndList(id domain.ParticipantID, ms MemberSession) []domain.ParticipantID
	RemoveMember(id domain.ParticipantID) bool
	Broadcast(from domain.ParticipantID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

type RoomManager interface {
	GetOrCreate(id domain.RoomID) RoomService
	Get(id domain.RoomID) (RoomService, bool)
	List() []RoomInfo
	StopRoom(id domain.RoomID)
	// Join adds a member to the room, creating it if needed, and returns the
	// members already present. It cannot interleave with Leave dropping the room.
	Join(room domain.RoomID, id domain.ParticipantID, ms MemberSession) []domain.ParticipantID
	// Leave removes a member and drops the room once it is empty.
	Leave(room domain.RoomID, id domain.ParticipantID) bool
}
