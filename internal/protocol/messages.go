// Package protocol defines the wire format spoken over the duplex
// channel. Both the server adapters and the headless client share
// these structs; payloads stay flat JSON with a "type" discriminator.
package protocol

import (
	"encoding/json"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
)

// Client -> server event types.
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeSignalOffer  = "signal-offer"
	TypeSignalAnswer = "signal-answer"
	TypeICECandidate = "ice-candidate"
	TypeEnqueueTrack = "enqueue-track"
	TypeAdvanceTrack = "advance-track"
	TypeSetPlaying   = "set-playing"
	TypeChatMessage  = "chat-message"
	TypePing         = "ping"
)

// Server -> client event types.
const (
	TypePresenceSnapshot = "presence-snapshot"
	TypeMemberJoined     = "member-joined"
	TypeMemberLeft       = "member-left"
	TypeSessionState     = "session-state"
	TypeQueueUpdated     = "queue-updated"
	TypeTrackAdvanced    = "track-advanced"
	TypePlayingChanged   = "playing-changed"
	TypePong             = "pong"
	TypeError            = "error"
)

// Envelope carries just the discriminator; handlers re-unmarshal the
// full payload once they know the type.
type Envelope struct {
	Type string `json:"type"`
}

// PeekType reads the discriminator out of a raw frame.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}

type Join struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	User      domain.UserRef `json:"user"`
}

// Signal is one handshake envelope. Payload is opaque to the relay;
// the server only rewrites the addressing fields.
type Signal struct {
	Type    string          `json:"type"`
	From    string          `json:"fromConnectionId,omitempty"`
	To      string          `json:"toConnectionId,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// IsSignalType reports whether t names a relayed handshake event.
func IsSignalType(t string) bool {
	return t == TypeSignalOffer || t == TypeSignalAnswer || t == TypeICECandidate
}

type EnqueueTrack struct {
	Type  string       `json:"type"`
	Track domain.Track `json:"track"`
}

type SetPlaying struct {
	Type      string `json:"type"`
	IsPlaying bool   `json:"isPlaying"`
}

type ChatMessage struct {
	Type string         `json:"type"`
	User domain.UserRef `json:"user,omitempty"`
	Text string         `json:"text"`
}

type PresenceSnapshot struct {
	Type string `json:"type"`
	// Self tells the joiner its own connection id so it can address
	// relayed signals.
	Self    string            `json:"self"`
	Members []core.MemberInfo `json:"members"`
}

type MemberJoined struct {
	Type   string          `json:"type"`
	Member core.MemberInfo `json:"member"`
}

type MemberLeft struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type SessionState struct {
	Type         string         `json:"type"`
	SessionID    string         `json:"sessionId"`
	Host         domain.UserRef `json:"host"`
	Queue        []domain.Track `json:"queue"`
	CurrentTrack *domain.Track  `json:"currentTrack,omitempty"`
	IsPlaying    bool           `json:"isPlaying"`
}

type QueueUpdated struct {
	Type  string         `json:"type"`
	Queue []domain.Track `json:"queue"`
}

type TrackAdvanced struct {
	Type         string         `json:"type"`
	CurrentTrack *domain.Track  `json:"currentTrack,omitempty"`
	IsPlaying    bool           `json:"isPlaying"`
	Queue        []domain.Track `json:"queue"`
}

type PlayingChanged struct {
	Type      string `json:"type"`
	IsPlaying bool   `json:"isPlaying"`
}

type Pong struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
