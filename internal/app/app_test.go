package app

import (
	"testing"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func session(id domain.ParticipantID) core.MemberSession {
	return core.NewMemberSession(domain.NewMember(id), nopConn{})
}

func TestRegistry_RoomAssociation(t *testing.T) {
	r := NewRegistry()
	r.Bind("a", session("a"), nil)
	r.Bind("b", session("b"), nil)
	assert.Equal(t, 2, r.Len())

	_, _, ok := r.RoomOf("a")
	assert.False(t, ok)
	assert.True(t, r.UpdateRoom("a", "main"))
	assert.True(t, r.UpdateRoom("b", "main"))
	assert.False(t, r.UpdateRoom("ghost", "main"))

	room, sess, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("main"), room)
	assert.Equal(t, domain.ParticipantID("a"), sess.Meta().ID)

	members := r.MembersOfRoom("main")
	require.Len(t, members, 2)
	assert.Equal(t, domain.ParticipantID("a"), members[0].ID)

	prev, ok := r.RemoveRoom("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("main"), prev)
	_, ok = r.RemoveRoom("a")
	assert.False(t, ok)

	r.Unbind("a")
	_, ok = r.GetSession("a")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Bind("a", session("a"), func() { calls++ })
	r.Bind("b", session("b"), nil)

	assert.True(t, r.Cancel("a"))
	assert.True(t, r.Cancel("b"))
	assert.False(t, r.Cancel("ghost"))
	assert.Equal(t, 1, calls)
}

func TestRoomManager(t *testing.T) {
	m := NewRoomManager()
	one := m.GetOrCreate("one")
	assert.Same(t, one, m.GetOrCreate("one"))
	m.GetOrCreate("two").AddMember("a", session("a"))

	list := m.List()
	require.Len(t, list, 2)
	assert.Equal(t, core.RoomInfo{ID: "one", MemberCount: 0}, list[0])
	assert.Equal(t, core.RoomInfo{ID: "two", MemberCount: 1}, list[1])

	m.StopRoom("one")
	_, ok := m.Get("one")
	assert.False(t, ok)
}

func TestPolicyByName(t *testing.T) {
	assert.Equal(t, DropFrame, PolicyByName("drop").OnBackPressure(nil, nil))
	assert.Equal(t, KickMember, PolicyByName("kick").OnBackPressure(nil, nil))
	assert.Equal(t, KickMember, PolicyByName("").OnBackPressure(nil, nil))
}

func TestRoomManager_JoinLeave(t *testing.T) {
	m := NewRoomManager()
	assert.Empty(t, m.Join("main", "a", session("a")))
	assert.Equal(t, []domain.ParticipantID{"a"}, m.Join("main", "b", session("b")))

	assert.True(t, m.Leave("main", "a"))
	_, ok := m.Get("main")
	assert.True(t, ok)

	assert.True(t, m.Leave("main", "b"))
	_, ok = m.Get("main")
	assert.False(t, ok)
	assert.False(t, m.Leave("main", "b"))
}
