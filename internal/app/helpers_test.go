package app

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
)

// fakeConn records every frame it would have written.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("backpressure")
	}
	cp := make([]byte, len(fr))
	copy(cp, fr)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// types decodes the "type" discriminator of every recorded frame.
func (f *fakeConn) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(fr, &env))
		out = append(out, env.Type)
	}
	return out
}

// decodeAt unmarshals the i-th recorded frame into v.
func (f *fakeConn) decodeAt(t *testing.T, i int, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Less(t, i, len(f.frames))
	require.NoError(t, json.Unmarshal(f.frames[i], v))
}

// memStore is an in-memory core.Store. AppendTrack deliberately widens
// the read-modify-write window so a coordinator that stopped
// serializing per-session mutations would lose tracks (and trip the
// race detector).
type memStore struct {
	mu         sync.Mutex
	sessions   map[domain.SessionID]*domain.Session
	failWrites bool
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[domain.SessionID]*domain.Session)}
}

func (s *memStore) seed(sess *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

var errStoreDown = errors.New("store unavailable")

func (s *memStore) CreateSession(name domain.SessionName, host domain.UserRef) (*domain.Session, error) {
	sess := &domain.Session{ID: domain.SessionID("s-" + string(name)), Name: name, Host: host, Queue: []domain.Track{}}
	s.seed(sess)
	return sess, nil
}

func (s *memStore) GetSession(id domain.SessionID) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	cp := *sess
	cp.Queue = append([]domain.Track(nil), sess.Queue...)
	return &cp, nil
}

func (s *memStore) ListSessions() ([]*domain.Session, error) { return nil, nil }

func (s *memStore) AppendTrack(id domain.SessionID, t domain.Track) ([]domain.Track, error) {
	if s.failWrites {
		return nil, errStoreDown
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("session not found")
	}
	queue := sess.Queue
	time.Sleep(200 * time.Microsecond) // stale-read window
	sess.Queue = append(queue, t)
	return append([]domain.Track(nil), sess.Queue...), nil
}

func (s *memStore) AdvanceTrack(id domain.SessionID) (*domain.Session, error) {
	if s.failWrites {
		return nil, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	if len(sess.Queue) > 0 {
		head := sess.Queue[0]
		sess.Queue = sess.Queue[1:]
		sess.CurrentTrack = &head
		sess.IsPlaying = true
	} else {
		sess.CurrentTrack = nil
		sess.IsPlaying = false
	}
	cp := *sess
	cp.Queue = append([]domain.Track(nil), sess.Queue...)
	return &cp, nil
}

func (s *memStore) SetPlaying(id domain.SessionID, playing bool) error {
	if s.failWrites {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return errors.New("session not found")
	}
	sess.IsPlaying = playing
	return nil
}

func alice() domain.UserRef { return domain.UserRef{ID: "u-alice", Name: "alice"} }
func bob() domain.UserRef   { return domain.UserRef{ID: "u-bob", Name: "bob"} }
func carol() domain.UserRef { return domain.UserRef{ID: "u-carol", Name: "carol"} }
