package app

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
)

// TestSessionLifecycle walks a whole listening session: the host joins,
// a second member joins and handshakes, tracks get queued, playback
// advances, and the second member drops.
func TestSessionLifecycle(t *testing.T) {
	st := newMemStore()
	st.seed(&domain.Session{ID: testSession, Name: "friday", Host: alice(), Queue: []domain.Track{}})
	orch := NewOrchestrator(st)

	// Host connects and joins an empty session.
	hostConn := &fakeConn{}
	orch.Connect("m1", hostConn)
	require.NoError(t, orch.Join("m1", testSession, alice()))

	require.Equal(t, []string{protocol.TypePresenceSnapshot, protocol.TypeSessionState}, hostConn.types(t))
	var snap protocol.PresenceSnapshot
	hostConn.decodeAt(t, 0, &snap)
	assert.Equal(t, "m1", snap.Self)
	assert.Empty(t, snap.Members)

	// Second member joins: it sees the host, the host hears about it.
	peerConn := &fakeConn{}
	orch.Connect("m2", peerConn)
	require.NoError(t, orch.Join("m2", testSession, bob()))

	peerConn.decodeAt(t, 0, &snap)
	require.Len(t, snap.Members, 1)
	assert.Equal(t, core.ConnectionID("m1"), snap.Members[0].ConnectionID)
	assert.Equal(t, alice(), snap.Members[0].User)

	require.Equal(t, protocol.TypeMemberJoined, hostConn.types(t)[2])
	var joined protocol.MemberJoined
	hostConn.decodeAt(t, 2, &joined)
	assert.Equal(t, core.ConnectionID("m2"), joined.Member.ConnectionID)

	// Newcomer initiates the handshake toward the host.
	orch.Signal(protocol.TypeSignalOffer, "m2", "m1", json.RawMessage(`{"sdp":"v=0"}`))
	require.Equal(t, protocol.TypeSignalOffer, hostConn.types(t)[3])
	var sig protocol.Signal
	hostConn.decodeAt(t, 3, &sig)
	assert.Equal(t, "m2", sig.From)

	// Anyone may enqueue; only the host may advance.
	require.NoError(t, orch.Enqueue("m2", track("t1")))
	require.NoError(t, orch.Enqueue("m2", track("t2")))
	require.ErrorIs(t, orch.Advance("m2"), ErrNotHost)
	require.NoError(t, orch.Advance("m1"))

	for _, c := range []*fakeConn{hostConn, peerConn} {
		types := c.types(t)
		var adv protocol.TrackAdvanced
		c.decodeAt(t, len(types)-1, &adv)
		require.NotNil(t, adv.CurrentTrack)
		assert.Equal(t, "t1", adv.CurrentTrack.ID)
		assert.True(t, adv.IsPlaying)
		require.Len(t, adv.Queue, 1)
		assert.Equal(t, "t2", adv.Queue[0].ID)
	}

	// Member drops: host learns, and nothing further references m2.
	orch.Disconnect("m2")
	types := hostConn.types(t)
	require.Equal(t, protocol.TypeMemberLeft, types[len(types)-1])
	var left protocol.MemberLeft
	hostConn.decodeAt(t, len(types)-1, &left)
	assert.Equal(t, "m2", left.ConnectionID)

	before := hostConn.count()
	orch.Signal(protocol.TypeSignalAnswer, "m1", "m2", json.RawMessage(`{}`))
	orch.Disconnect("m2")
	assert.Equal(t, before, hostConn.count())
	assert.Len(t, orch.Registry.MembersOf(testSession), 1)
}

func TestJoiningAnotherSessionLeavesTheFirst(t *testing.T) {
	st := newMemStore()
	st.seed(&domain.Session{ID: testSession, Name: "first", Host: alice(), Queue: []domain.Track{}})
	st.seed(&domain.Session{ID: "s2", Name: "second", Host: carol(), Queue: []domain.Track{}})
	orch := NewOrchestrator(st)

	watcher := &fakeConn{}
	orch.Connect("w1", watcher)
	require.NoError(t, orch.Join("w1", testSession, alice()))

	roamer := &fakeConn{}
	orch.Connect("m1", roamer)
	require.NoError(t, orch.Join("m1", testSession, bob()))

	// Switching sessions on the same connection: the first session's
	// members hear member-left and the old membership is gone.
	require.NoError(t, orch.Join("m1", "s2", bob()))

	types := watcher.types(t)
	require.Equal(t, protocol.TypeMemberLeft, types[len(types)-1])
	var left protocol.MemberLeft
	watcher.decodeAt(t, len(types)-1, &left)
	assert.Equal(t, "m1", left.ConnectionID)

	require.Len(t, orch.Registry.MembersOf(testSession), 1)
	require.Len(t, orch.Registry.MembersOf("s2"), 1)

	// Disconnect now resolves to the second session only; the first one
	// must not retain a ghost member or receive further events.
	before := watcher.count()
	orch.Disconnect("m1")
	assert.Empty(t, orch.Registry.MembersOf("s2"))
	assert.Len(t, orch.Registry.MembersOf(testSession), 1)
	assert.Equal(t, before, watcher.count())
}

func TestJoinUnknownSessionRollsBack(t *testing.T) {
	orch := NewOrchestrator(newMemStore())
	conn := &fakeConn{}
	orch.Connect("m1", conn)

	err := orch.Join("m1", "nope", alice())
	require.Error(t, err)
	assert.Equal(t, 0, conn.count(), "a failed join must announce nothing")
	assert.Empty(t, orch.Registry.MembersOf("nope"))

	_, _, joined := orch.Registry.BindingOf("m1")
	assert.False(t, joined)
}

func TestMutationsRequireMembership(t *testing.T) {
	st := newMemStore()
	st.seed(&domain.Session{ID: testSession, Name: "friday", Host: alice()})
	orch := NewOrchestrator(st)
	orch.Connect("m1", &fakeConn{})

	require.ErrorIs(t, orch.Enqueue("m1", track("t1")), ErrNotConnected)
	require.ErrorIs(t, orch.Advance("m1"), ErrNotConnected)
	require.ErrorIs(t, orch.SetPlaying("m1", true), ErrNotConnected)
}

func TestChatReachesEveryoneIncludingSender(t *testing.T) {
	st := newMemStore()
	st.seed(&domain.Session{ID: testSession, Name: "friday", Host: alice(), Queue: []domain.Track{}})
	orch := NewOrchestrator(st)

	c1, c2 := &fakeConn{}, &fakeConn{}
	orch.Connect("m1", c1)
	orch.Connect("m2", c2)
	require.NoError(t, orch.Join("m1", testSession, alice()))
	require.NoError(t, orch.Join("m2", testSession, bob()))

	orch.Chat("m2", "hello")

	for _, c := range []*fakeConn{c1, c2} {
		types := c.types(t)
		require.Equal(t, protocol.TypeChatMessage, types[len(types)-1])
		var msg protocol.ChatMessage
		c.decodeAt(t, len(types)-1, &msg)
		assert.Equal(t, bob(), msg.User)
		assert.Equal(t, "hello", msg.Text)
	}
}
