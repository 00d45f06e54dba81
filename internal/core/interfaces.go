package core

import "github.com/syncsound/syncsound/internal/domain"

// Frame is a raw wire payload.
type Frame []byte

// ConnectionID identifies one live duplex connection. It is minted by
// the transport adapter on upgrade and dies with the connection.
type ConnectionID string

// Conn abstracts a duplex transport endpoint.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// MemberInfo is a read-only view of a present member (no transport fields).
type MemberInfo struct {
	ConnectionID ConnectionID   `json:"connectionId"`
	User         domain.UserRef `json:"user"`
}

// PublishResult reports fanout delivery stats to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
}

// Store is the session persistence contract. Every operation is atomic
// at the store level; callers serialize read-modify-write sequences
// themselves (see the playback coordinator).
type Store interface {
	CreateSession(name domain.SessionName, host domain.UserRef) (*domain.Session, error)
	GetSession(id domain.SessionID) (*domain.Session, error)
	ListSessions() ([]*domain.Session, error)
	// AppendTrack appends t to the queue tail and returns the new queue.
	AppendTrack(id domain.SessionID, t domain.Track) ([]domain.Track, error)
	// AdvanceTrack pops the queue head into the current track (clearing
	// it when the queue is empty) and returns the updated session.
	AdvanceTrack(id domain.SessionID) (*domain.Session, error)
	SetPlaying(id domain.SessionID, playing bool) error
}
