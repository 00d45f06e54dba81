package app

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
)

var (
	ErrNotHost      = errors.New("only the host may control playback")
	ErrNotConnected = errors.New("connection not registered")
)

// Coordinator owns the authoritative mutation sequence for a session's
// queue, current track and play state. All mutations for one session
// run under that session's mutex, so concurrent appends can never
// compute from a stale read and lose a track. The store write is
// awaited before anything is broadcast (announce-after-commit); a
// failed write reports to the caller and announces nothing.
type Coordinator struct {
	store core.Store
	bus   *Fanout

	mu    sync.Mutex
	locks map[domain.SessionID]*sync.Mutex
}

func NewCoordinator(store core.Store, bus *Fanout) *Coordinator {
	return &Coordinator{
		store: store,
		bus:   bus,
		locks: make(map[domain.SessionID]*sync.Mutex),
	}
}

// lockFor returns the per-session mutex, creating it on first use.
// Sessions proceed fully in parallel; c.mu only guards the map.
func (c *Coordinator) lockFor(sid domain.SessionID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[sid]
	if !ok {
		l = &sync.Mutex{}
		c.locks[sid] = l
	}
	return l
}

// Enqueue appends the track to the session's queue tail. Valid in any
// playback state and open to any member; the play state is untouched.
func (c *Coordinator) Enqueue(sid domain.SessionID, caller domain.UserRef, t domain.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.AddedBy = caller

	l := c.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	queue, err := c.store.AppendTrack(sid, t)
	if err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	log.Info().Str("module", "app.playback").Str("session", string(sid)).
		Str("track", t.ID).Int("queue_len", len(queue)).Msg("track enqueued")
	c.bus.BroadcastToSession(sid, protocol.QueueUpdated{Type: protocol.TypeQueueUpdated, Queue: queue}, "")
	return nil
}

// Advance pops the queue head into the current track, or clears the
// current track when the queue is empty. Host only.
func (c *Coordinator) Advance(sid domain.SessionID, caller domain.UserRef) (*domain.Session, error) {
	l := c.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := c.store.GetSession(sid)
	if err != nil {
		return nil, fmt.Errorf("advance: %w", err)
	}
	if !sess.IsHost(caller) {
		return nil, ErrNotHost
	}

	sess, err = c.store.AdvanceTrack(sid)
	if err != nil {
		return nil, fmt.Errorf("advance: %w", err)
	}
	log.Info().Str("module", "app.playback").Str("session", string(sid)).
		Bool("playing", sess.IsPlaying).Msg("track advanced")
	c.bus.BroadcastToSession(sid, protocol.TrackAdvanced{
		Type:         protocol.TypeTrackAdvanced,
		CurrentTrack: sess.CurrentTrack,
		IsPlaying:    sess.IsPlaying,
		Queue:        sess.Queue,
	}, "")
	return sess, nil
}

// SetPlaying toggles the shared play/pause flag. Host only. Without a
// current track this is a no-op: nothing persisted, nothing announced.
func (c *Coordinator) SetPlaying(sid domain.SessionID, caller domain.UserRef, playing bool) error {
	l := c.lockFor(sid)
	l.Lock()
	defer l.Unlock()

	sess, err := c.store.GetSession(sid)
	if err != nil {
		return fmt.Errorf("set playing: %w", err)
	}
	if !sess.IsHost(caller) {
		return ErrNotHost
	}
	if sess.CurrentTrack == nil {
		log.Debug().Str("module", "app.playback").Str("session", string(sid)).Msg("set playing ignored: no current track")
		return nil
	}

	if err := c.store.SetPlaying(sid, playing); err != nil {
		return fmt.Errorf("set playing: %w", err)
	}
	c.bus.BroadcastToSession(sid, protocol.PlayingChanged{Type: protocol.TypePlayingChanged, IsPlaying: playing}, "")
	return nil
}
