package mesh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var errNoRemoteDescription = errors.New("remote description not set")

// fakeEngine behaves like a trickle-ICE peer connection: candidates are
// rejected before a remote description, local candidates are emitted after a
// local description, and it reports connected once both descriptions exist.
type fakeEngine struct {
	mu        sync.Mutex
	owner     domain.ParticipantID
	remote    domain.ParticipantID
	hooks     core.EngineHooks
	local     *domain.Description
	remoteSDP *domain.Description
	applied   []domain.Candidate
	connected bool
	closed    bool
	rollbacks int
	gate      chan struct{} // when set, CreateOffer waits on it
	offerErr  error
}

func (e *fakeEngine) CreateOffer() (domain.Description, error) {
	if e.gate != nil {
		<-e.gate
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.Description{}, errors.New("engine closed")
	}
	if e.offerErr != nil {
		return domain.Description{}, e.offerErr
	}
	d := domain.Description{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer %s>%s", e.owner, e.remote)}
	e.local = &d
	e.emitCandidatesLocked()
	return d, nil
}

func (e *fakeEngine) CreateAnswer() (domain.Description, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return domain.Description{}, errors.New("engine closed")
	}
	if e.remoteSDP == nil || e.remoteSDP.Type != webrtc.SDPTypeOffer {
		return domain.Description{}, errors.New("no remote offer")
	}
	d := domain.Description{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer %s>%s", e.owner, e.remote)}
	e.local = &d
	e.emitCandidatesLocked()
	e.maybeConnectLocked()
	return d, nil
}

func (e *fakeEngine) SetRemoteDescription(d domain.Description) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("engine closed")
	}
	if d.SDP == "" {
		return errors.New("malformed description")
	}
	e.remoteSDP = &d
	e.maybeConnectLocked()
	return nil
}

func (e *fakeEngine) AddICECandidate(c domain.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.remoteSDP == nil {
		return errNoRemoteDescription
	}
	e.applied = append(e.applied, c)
	return nil
}

func (e *fakeEngine) Rollback() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.local = nil
	e.rollbacks++
	return nil
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if h := e.hooks.OnConnectivityChange; h != nil {
		go h(domain.ConnectivityClosed)
	}
	return nil
}

func (e *fakeEngine) emitCandidatesLocked() {
	h := e.hooks.OnICECandidate
	if h == nil {
		return
	}
	owner := e.owner
	go func() {
		for i := 0; i < 2; i++ {
			h(domain.Candidate{Candidate: fmt.Sprintf("candidate:%s-%d", owner, i)})
		}
	}()
}

func (e *fakeEngine) maybeConnectLocked() {
	if e.connected || e.local == nil || e.remoteSDP == nil {
		return
	}
	e.connected = true
	h := e.hooks.OnConnectivityChange
	track := e.hooks.OnTrack
	owner := e.owner
	go func() {
		if h != nil {
			h(domain.ConnectivityChecking)
			h(domain.ConnectivityConnected)
		}
		if track != nil {
			track(domain.RemoteTrack{ID: "video", StreamID: "stream-" + string(owner), Kind: "video"})
		}
	}()
}

// fire delivers a connectivity change as the transport would.
func (e *fakeEngine) fire(st domain.ConnectivityState) {
	e.hooks.OnConnectivityChange(st)
}

func (e *fakeEngine) Applied() []domain.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Candidate(nil), e.applied...)
}

func (e *fakeEngine) rollbackCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rollbacks
}

func (e *fakeEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

type fakeFactory struct {
	mu       sync.Mutex
	owner    domain.ParticipantID
	engines  map[domain.ParticipantID][]*fakeEngine
	gate     chan struct{}
	offerErr error
}

func newFakeFactory(owner domain.ParticipantID) *fakeFactory {
	return &fakeFactory{owner: owner, engines: make(map[domain.ParticipantID][]*fakeEngine)}
}

func (f *fakeFactory) NewEngine(remote domain.ParticipantID, hooks core.EngineHooks) (core.NegotiationEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &fakeEngine{owner: f.owner, remote: remote, hooks: hooks, gate: f.gate, offerErr: f.offerErr}
	f.engines[remote] = append(f.engines[remote], e)
	return e, nil
}

func (f *fakeFactory) Engine(remote domain.ParticipantID) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.engines[remote]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func (f *fakeFactory) Count(remote domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines[remote])
}

type sent struct {
	Type string
	From domain.ParticipantID
	To   domain.ParticipantID
}

// memRelay is an in-process relay: per-room membership, needToOffer on join,
// peerLeft on leave, and routing of negotiation messages by recipient.
type memRelay struct {
	mu    sync.Mutex
	rooms map[domain.RoomID][]domain.ParticipantID
	nodes map[domain.ParticipantID]*node
	log   []sent
}

func newMemRelay() *memRelay {
	return &memRelay{
		rooms: make(map[domain.RoomID][]domain.ParticipantID),
		nodes: make(map[domain.ParticipantID]*node),
	}
}

func (r *memRelay) Members(room domain.RoomID) []domain.ParticipantID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ParticipantID(nil), r.rooms[room]...)
}

func (r *memRelay) Sent(typ string) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.log {
		if s.Type == typ {
			out = append(out, s)
		}
	}
	return out
}

func (r *memRelay) roomOfLocked(id domain.ParticipantID) (domain.RoomID, bool) {
	for room, ids := range r.rooms {
		for _, m := range ids {
			if m == id {
				return room, true
			}
		}
	}
	return "", false
}

func (r *memRelay) removeLocked(id domain.ParticipantID) []domain.ParticipantID {
	room, ok := r.roomOfLocked(id)
	if !ok {
		return nil
	}
	var rest []domain.ParticipantID
	for _, m := range r.rooms[room] {
		if m != id {
			rest = append(rest, m)
		}
	}
	r.rooms[room] = rest
	return rest
}

func (r *memRelay) join(id domain.ParticipantID, room domain.RoomID) {
	r.mu.Lock()
	r.removeLocked(id)
	others := append([]domain.ParticipantID(nil), r.rooms[room]...)
	r.rooms[room] = append(r.rooms[room], id)
	n := r.nodes[id]
	r.mu.Unlock()
	n.orch.OnMembershipSnapshot(others)
}

func (r *memRelay) leave(id domain.ParticipantID) {
	r.mu.Lock()
	rest := r.removeLocked(id)
	targets := make([]*node, 0, len(rest))
	for _, m := range rest {
		targets = append(targets, r.nodes[m])
	}
	r.mu.Unlock()
	for _, n := range targets {
		n.orch.OnParticipantLeft(id)
	}
}

// disconnect drops id's relay connection.
func (r *memRelay) disconnect(id domain.ParticipantID) {
	r.leave(id)
	r.mu.Lock()
	n := r.nodes[id]
	delete(r.nodes, id)
	r.mu.Unlock()
	n.orch.OnRelayLost(core.ErrRelayClosed)
}

func (r *memRelay) route(typ string, from, to domain.ParticipantID, deliver func(*Orchestrator)) error {
	r.mu.Lock()
	if _, ok := r.nodes[from]; !ok {
		r.mu.Unlock()
		return core.ErrRelayClosed
	}
	r.log = append(r.log, sent{Type: typ, From: from, To: to})
	fromRoom, _ := r.roomOfLocked(from)
	toRoom, ok := r.roomOfLocked(to)
	target := r.nodes[to]
	r.mu.Unlock()
	if !ok || fromRoom != toRoom || target == nil {
		return nil
	}
	deliver(target.orch)
	return nil
}

// node is one participant wired to the memRelay; it is that participant's Signaler.
type node struct {
	id      domain.ParticipantID
	relay   *memRelay
	engines *fakeFactory
	orch    *Orchestrator
	sink    *recordingSink
	done    chan error
}

func (n *node) JoinRoom(room domain.RoomID) error {
	n.relay.join(n.id, room)
	return nil
}

func (n *node) LeaveRoom() error {
	n.relay.leave(n.id)
	return nil
}

func (n *node) SendOffer(to domain.ParticipantID, desc domain.Description) error {
	return n.relay.route("offer", n.id, to, func(o *Orchestrator) {
		o.OnOffer(domain.NegotiationMessage{From: n.id, To: to, Description: &desc})
	})
}

func (n *node) SendAnswer(to domain.ParticipantID, desc domain.Description) error {
	return n.relay.route("answer", n.id, to, func(o *Orchestrator) {
		o.OnAnswer(domain.NegotiationMessage{From: n.id, To: to, Description: &desc})
	})
}

func (n *node) SendCandidate(to domain.ParticipantID, c domain.Candidate) error {
	return n.relay.route("ice", n.id, to, func(o *Orchestrator) {
		o.OnCandidate(domain.NegotiationMessage{From: n.id, To: to, Candidate: &c})
	})
}

// recordingSink keeps every render and counts removals per participant.
type recordingSink struct {
	mu       sync.Mutex
	last     []domain.PeerView
	removals map[domain.ParticipantID]int
	renders  int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{removals: make(map[domain.ParticipantID]int)}
}

func (s *recordingSink) Render(peers []domain.PeerView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	present := make(map[domain.ParticipantID]bool, len(peers))
	for _, p := range peers {
		present[p.Participant] = true
	}
	for _, p := range s.last {
		if !present[p.Participant] {
			s.removals[p.Participant]++
		}
	}
	s.last = peers
	s.renders++
}

func (s *recordingSink) Last() []domain.PeerView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *recordingSink) Removals(id domain.ParticipantID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removals[id]
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// startNode connects a participant to relay and waits until it is a room member.
func startNode(t *testing.T, relay *memRelay, id domain.ParticipantID) *node {
	t.Helper()
	n := &node{
		id:      id,
		relay:   relay,
		engines: newFakeFactory(id),
		sink:    newRecordingSink(),
		done:    make(chan error, 1),
	}
	n.orch = NewOrchestrator(n.engines, n, Options{Room: "main", QueueSize: 256})
	n.orch.Peers().Subscribe(n.sink)

	relay.mu.Lock()
	relay.nodes[id] = n
	relay.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() { n.done <- n.orch.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-n.done:
		case <-time.After(time.Second):
		}
	})

	n.orch.OnWelcome(id)
	require.Eventually(t, func() bool {
		for _, m := range relay.Members("main") {
			if m == id {
				return true
			}
		}
		return false
	}, waitFor, tick)
	return n
}

func sessionsOf(t *testing.T, n *node) map[domain.ParticipantID]SessionInfo {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	list, err := n.orch.Sessions(ctx)
	require.NoError(t, err)
	out := make(map[domain.ParticipantID]SessionInfo, len(list))
	for _, s := range list {
		out[s.Remote] = s
	}
	return out
}

// converged reports whether n holds exactly the given peers, all stable and connected.
func converged(t *testing.T, n *node, peers ...domain.ParticipantID) bool {
	got := sessionsOf(t, n)
	if len(got) != len(peers) {
		return false
	}
	for _, p := range peers {
		s, ok := got[p]
		if !ok || s.State != StateStable || s.Connectivity != domain.ConnectivityConnected {
			return false
		}
	}
	return true
}

// stubSignaler records outbound traffic for single-orchestrator tests.
type stubSignaler struct {
	mu      sync.Mutex
	joins   []domain.RoomID
	left    int
	out     []sent
	sendErr error // when set, offers and answers fail
}

func (s *stubSignaler) JoinRoom(room domain.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, room)
	return nil
}

func (s *stubSignaler) LeaveRoom() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.left++
	return nil
}

func (s *stubSignaler) record(typ string, to domain.ParticipantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{Type: typ, To: to})
	return nil
}

func (s *stubSignaler) SendOffer(to domain.ParticipantID, _ domain.Description) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.record("offer", to)
}

func (s *stubSignaler) SendAnswer(to domain.ParticipantID, _ domain.Description) error {
	if err := s.failure(); err != nil {
		return err
	}
	return s.record("answer", to)
}

func (s *stubSignaler) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendErr
}

func (s *stubSignaler) SendCandidate(to domain.ParticipantID, _ domain.Candidate) error {
	return s.record("ice", to)
}

func (s *stubSignaler) Count(typ string, to domain.ParticipantID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.out {
		if m.Type == typ && m.To == to {
			n++
		}
	}
	return n
}

// Sequence lists message types sent to one participant, in send order.
func (s *stubSignaler) Sequence(to domain.ParticipantID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.out {
		if m.To == to {
			out = append(out, m.Type)
		}
	}
	return out
}

func (s *stubSignaler) Left() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

func (s *stubSignaler) Joins() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RoomID(nil), s.joins...)
}

// startSolo runs one orchestrator against a stubSignaler with self already assigned.
func startSolo(t *testing.T, self domain.ParticipantID) (*Orchestrator, *fakeFactory, *stubSignaler, chan error) {
	t.Helper()
	engines := newFakeFactory(self)
	sig := &stubSignaler{}
	o := NewOrchestrator(engines, sig, Options{QueueSize: 256})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	})
	o.OnWelcome(self)
	require.Eventually(t, func() bool { return len(sig.Joins()) == 1 }, waitFor, tick)
	return o, engines, sig, done
}
