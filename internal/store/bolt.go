// Package store persists session documents in bbolt: one bucket, one
// JSON document per session id. Each exported operation runs inside a
// single transaction, so it is atomic at the store level; cross-call
// read-modify-write serialization is the playback coordinator's job.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"

	"github.com/syncsound/syncsound/internal/domain"
)

var (
	ErrNotFound = errors.New("session not found")

	bucketSessions = []byte("sessions")
)

type Bolt struct {
	db *bolt.DB
}

func Open(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}
	log.Info().Str("module", "store").Str("path", path).Msg("store opened")
	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error { return s.db.Close() }

func (s *Bolt) CreateSession(name domain.SessionName, host domain.UserRef) (*domain.Session, error) {
	sess := &domain.Session{
		ID:        domain.SessionID(xid.New().String()),
		Name:      name,
		Host:      host,
		Queue:     []domain.Track{},
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putSession(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "store").Str("session", string(sess.ID)).Str("host", host.ID).Msg("session created")
	return sess, nil
}

func (s *Bolt) GetSession(id domain.SessionID) (*domain.Session, error) {
	var sess *domain.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		sess, err = getSession(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Bolt) ListSessions() ([]*domain.Session, error) {
	var out []*domain.Session
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEach(func(_, v []byte) error {
			var sess domain.Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return err
			}
			out = append(out, &sess)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Bolt) AppendTrack(id domain.SessionID, t domain.Track) ([]domain.Track, error) {
	if t.ID == "" {
		t.ID = xid.New().String()
	}
	var queue []domain.Track
	err := s.db.Update(func(tx *bolt.Tx) error {
		sess, err := getSession(tx, id)
		if err != nil {
			return err
		}
		sess.Queue = append(sess.Queue, t)
		queue = sess.Queue
		return putSession(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *Bolt) AdvanceTrack(id domain.SessionID) (*domain.Session, error) {
	var out *domain.Session
	err := s.db.Update(func(tx *bolt.Tx) error {
		sess, err := getSession(tx, id)
		if err != nil {
			return err
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
		out = sess
		return putSession(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Bolt) SetPlaying(id domain.SessionID, playing bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sess, err := getSession(tx, id)
		if err != nil {
			return err
		}
		sess.IsPlaying = playing
		return putSession(tx, sess)
	})
}

func getSession(tx *bolt.Tx, id domain.SessionID) (*domain.Session, error) {
	raw := tx.Bucket(bucketSessions).Get([]byte(id))
	if raw == nil {
		return nil, ErrNotFound
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func putSession(tx *bolt.Tx, sess *domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSessions).Put([]byte(sess.ID), raw)
}
