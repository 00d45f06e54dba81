package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
)

func track(id string) domain.Track {
	return domain.Track{ID: id, Title: "t-" + id, SourceURL: "https://cdn.example/" + id + ".mp3"}
}

// playbackFixture seeds one session hosted by alice with two joined
// members so coordinator broadcasts have somewhere to land.
func playbackFixture(t *testing.T) (*Coordinator, *memStore, *fakeConn, *fakeConn) {
	t.Helper()
	st := newMemStore()
	st.seed(&domain.Session{ID: testSession, Name: "fri", Host: alice(), Queue: []domain.Track{}})

	reg := NewRegistry()
	c1 := bind(t, reg, "c1")
	c2 := bind(t, reg, "c2")
	_, err := reg.Join(testSession, "c1", alice())
	require.NoError(t, err)
	_, err = reg.Join(testSession, "c2", bob())
	require.NoError(t, err)

	return NewCoordinator(st, NewFanout(reg)), st, c1, c2
}

func TestEnqueueStampsCallerAndBroadcasts(t *testing.T) {
	coord, st, c1, c2 := playbackFixture(t)

	tr := track("t1")
	tr.AddedBy = carol() // client-supplied attribution is overwritten
	require.NoError(t, coord.Enqueue(testSession, bob(), tr))

	sess, err := st.GetSession(testSession)
	require.NoError(t, err)
	require.Len(t, sess.Queue, 1)
	assert.Equal(t, bob(), sess.Queue[0].AddedBy)

	for _, c := range []*fakeConn{c1, c2} {
		require.Equal(t, []string{protocol.TypeQueueUpdated}, c.types(t))
		var ev protocol.QueueUpdated
		c.decodeAt(t, 0, &ev)
		require.Len(t, ev.Queue, 1)
		assert.Equal(t, "t1", ev.Queue[0].ID)
	}
}

func TestEnqueueRejectsInvalidTrack(t *testing.T) {
	coord, _, c1, _ := playbackFixture(t)

	err := coord.Enqueue(testSession, bob(), domain.Track{Title: "no source"})
	require.ErrorIs(t, err, domain.ErrTrackInvalid)
	assert.Equal(t, 0, c1.count())
}

func TestConcurrentEnqueuesLoseNothing(t *testing.T) {
	coord, st, c1, _ := playbackFixture(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, coord.Enqueue(testSession, bob(), track(fmt.Sprintf("t%d", i))))
		}(i)
	}
	wg.Wait()

	sess, err := st.GetSession(testSession)
	require.NoError(t, err)
	assert.Len(t, sess.Queue, n)
	assert.Equal(t, n, c1.count())
}

func TestAdvancePopsHeadAndAnnounces(t *testing.T) {
	coord, _, c1, c2 := playbackFixture(t)
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t1")))
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t2")))

	sess, err := coord.Advance(testSession, alice())
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentTrack)
	assert.Equal(t, "t1", sess.CurrentTrack.ID)
	assert.True(t, sess.IsPlaying)
	require.Len(t, sess.Queue, 1)
	assert.Equal(t, "t2", sess.Queue[0].ID)

	for _, c := range []*fakeConn{c1, c2} {
		types := c.types(t)
		require.Equal(t, protocol.TypeTrackAdvanced, types[len(types)-1])
		var ev protocol.TrackAdvanced
		c.decodeAt(t, len(types)-1, &ev)
		require.NotNil(t, ev.CurrentTrack)
		assert.Equal(t, "t1", ev.CurrentTrack.ID)
		assert.True(t, ev.IsPlaying)
		require.Len(t, ev.Queue, 1)
	}
}

func TestAdvanceOnEmptyQueueStopsPlayback(t *testing.T) {
	coord, _, c1, _ := playbackFixture(t)
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t1")))
	_, err := coord.Advance(testSession, alice())
	require.NoError(t, err)

	sess, err := coord.Advance(testSession, alice())
	require.NoError(t, err)
	assert.Nil(t, sess.CurrentTrack)
	assert.False(t, sess.IsPlaying)

	var ev protocol.TrackAdvanced
	c1.decodeAt(t, c1.count()-1, &ev)
	assert.Nil(t, ev.CurrentTrack)
	assert.False(t, ev.IsPlaying)
	assert.Empty(t, ev.Queue)
}

func TestAdvanceRequiresHost(t *testing.T) {
	coord, _, c1, _ := playbackFixture(t)
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t1")))
	before := c1.count()

	_, err := coord.Advance(testSession, bob())
	require.ErrorIs(t, err, ErrNotHost)
	assert.Equal(t, before, c1.count())
}

func TestSetPlayingRequiresHostAndCurrentTrack(t *testing.T) {
	coord, st, c1, _ := playbackFixture(t)
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t1")))
	before := c1.count()

	// No current track yet: silently ignored.
	require.NoError(t, coord.SetPlaying(testSession, alice(), true))
	assert.Equal(t, before, c1.count())

	_, err := coord.Advance(testSession, alice())
	require.NoError(t, err)

	require.ErrorIs(t, coord.SetPlaying(testSession, bob(), false), ErrNotHost)

	require.NoError(t, coord.SetPlaying(testSession, alice(), false))
	sess, err := st.GetSession(testSession)
	require.NoError(t, err)
	assert.False(t, sess.IsPlaying)

	var ev protocol.PlayingChanged
	c1.decodeAt(t, c1.count()-1, &ev)
	assert.Equal(t, protocol.TypePlayingChanged, ev.Type)
	assert.False(t, ev.IsPlaying)
}

func TestStoreFailureAnnouncesNothing(t *testing.T) {
	coord, st, c1, c2 := playbackFixture(t)
	require.NoError(t, coord.Enqueue(testSession, bob(), track("t1")))
	_, err := coord.Advance(testSession, alice())
	require.NoError(t, err)
	before := c1.count()

	st.failWrites = true
	require.ErrorIs(t, coord.Enqueue(testSession, bob(), track("t2")), errStoreDown)
	require.ErrorIs(t, coord.SetPlaying(testSession, alice(), false), errStoreDown)
	_, err = coord.Advance(testSession, alice())
	require.ErrorIs(t, err, errStoreDown)

	assert.Equal(t, before, c1.count())
	assert.Equal(t, before, c2.count())
}
