package domain

import "time"

type (
	SessionID   string
	SessionName string
)

// Session is one listening room: its queue, the track being played and
// the shared play/pause flag. Queue order is insertion order; the
// current track, when set, is never also in the queue.
type Session struct {
	ID           SessionID   `json:"id"`
	Name         SessionName `json:"name"`
	Host         UserRef     `json:"host"`
	Queue        []Track     `json:"queue"`
	CurrentTrack *Track      `json:"currentTrack,omitempty"`
	IsPlaying    bool        `json:"isPlaying"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// IsHost reports whether u holds playback authority for the session.
func (s *Session) IsHost(u UserRef) bool {
	return s.Host.ID != "" && s.Host.ID == u.ID
}
