package mesh

import (
	"sort"

	"github.com/dkeye/Mesh/internal/domain"
)

// Registry maps remote participants to their PeerSession. It holds at most one
// session per participant and is owned by the orchestrator loop, so it takes
// no locks.
type Registry struct {
	sessions map[domain.ParticipantID]*PeerSession
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ParticipantID]*PeerSession)}
}

func (r *Registry) Get(id domain.ParticipantID) (*PeerSession, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Add registers s unless a session for the same participant exists.
func (r *Registry) Add(s *PeerSession) bool {
	if _, ok := r.sessions[s.Remote()]; ok {
		return false
	}
	r.sessions[s.Remote()] = s
	return true
}

// Remove unregisters and returns the session for id, if any.
func (r *Registry) Remove(id domain.ParticipantID) (*PeerSession, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	return s, true
}

// Current reports whether s is still the registered session for its participant.
func (r *Registry) Current(s *PeerSession) bool {
	cur, ok := r.sessions[s.Remote()]
	return ok && cur == s && !s.Closed()
}

func (r *Registry) Len() int { return len(r.sessions) }

// IDs returns the registered participants in sorted order.
func (r *Registry) IDs() []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SessionInfo is a copy of a session's externally visible state.
type SessionInfo struct {
	Remote       domain.ParticipantID
	State        NegotiationState
	Connectivity domain.ConnectivityState
	Streams      int
}

func (r *Registry) Snapshot() []SessionInfo {
	out := make([]SessionInfo, 0, len(r.sessions))
	for _, id := range r.IDs() {
		s := r.sessions[id]
		out = append(out, SessionInfo{
			Remote:       id,
			State:        s.State(),
			Connectivity: s.Connectivity(),
			Streams:      len(s.streams),
		})
	}
	return out
}
