package mesh

import (
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// PeerList is the observable projection of the registry handed to presentation
// sinks. Mutations come from the orchestrator loop; Snapshot may be called
// from anywhere.
type PeerList struct {
	mu      sync.RWMutex
	entries []domain.PeerView
	sinks   []core.PresentationSink
}

func NewPeerList(sinks ...core.PresentationSink) *PeerList {
	return &PeerList{sinks: sinks}
}

// Subscribe registers a sink. It is rendered immediately with the current list.
func (l *PeerList) Subscribe(sink core.PresentationSink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, sink)
	view := l.copyLocked()
	l.mu.Unlock()
	sink.Render(view)
}

func (l *PeerList) Snapshot() []domain.PeerView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

func (l *PeerList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Add appends a placeholder entry for id; no-op if present.
func (l *PeerList) Add(id domain.ParticipantID) {
	l.mutate(func() bool {
		if l.indexLocked(id) >= 0 {
			return false
		}
		l.entries = append(l.entries, domain.PeerView{Participant: id, State: domain.ConnectivityNew})
		return true
	})
}

func (l *PeerList) SetStream(id domain.ParticipantID, stream *domain.RemoteStream) {
	l.mutate(func() bool {
		i := l.indexLocked(id)
		if i < 0 {
			return false
		}
		l.entries[i].Stream = stream
		return true
	})
}

func (l *PeerList) SetState(id domain.ParticipantID, st domain.ConnectivityState) {
	l.mutate(func() bool {
		i := l.indexLocked(id)
		if i < 0 || l.entries[i].State == st {
			return false
		}
		l.entries[i].State = st
		return true
	})
}

// Remove drops id and reports whether it was listed.
func (l *PeerList) Remove(id domain.ParticipantID) bool {
	removed := false
	l.mutate(func() bool {
		i := l.indexLocked(id)
		if i < 0 {
			return false
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		removed = true
		return true
	})
	return removed
}

// Refresh re-renders without changing anything.
func (l *PeerList) Refresh() {
	l.mutate(func() bool { return true })
}

func (l *PeerList) mutate(fn func() bool) {
	l.mu.Lock()
	if !fn() {
		l.mu.Unlock()
		return
	}
	view := l.copyLocked()
	sinks := append([]core.PresentationSink(nil), l.sinks...)
	l.mu.Unlock()
	for _, s := range sinks {
		s.Render(view)
	}
}

func (l *PeerList) indexLocked(id domain.ParticipantID) int {
	for i, e := range l.entries {
		if e.Participant == id {
			return i
		}
	}
	return -1
}

func (l *PeerList) copyLocked() []domain.PeerView {
	out := make([]domain.PeerView, len(l.entries))
	copy(out, l.entries)
	return out
}

// LogSink renders the list to the log, with a placeholder for peers whose
// stream has not arrived yet.
type LogSink struct{}

func (LogSink) Render(peers []domain.PeerView) {
	log.Info().Str("module", "mesh.sink").Int("peers", len(peers)).Msg("peer list changed")
	for _, p := range peers {
		ev := log.Info().Str("module", "mesh.sink").Str("peer", string(p.Participant)).Str("state", string(p.State))
		if p.Stream == nil {
			ev.Msg("waiting for stream")
			continue
		}
		ev.Str("stream", p.Stream.ID).Int("tracks", len(p.Stream.Tracks)).Msg("rendering stream")
	}
}
