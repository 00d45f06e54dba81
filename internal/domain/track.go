package domain

import "errors"

var ErrTrackInvalid = errors.New("track missing id or source")

// Track is a playable item. Immutable once enqueued; the only way a
// track leaves the queue is promotion to the session's current track.
type Track struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	ArtworkURL string  `json:"artworkUrl,omitempty"`
	DurationMs int64   `json:"durationMs"`
	SourceURL  string  `json:"sourceUrl"`
	AddedBy    UserRef `json:"addedBy"`
}

func (t Track) Validate() error {
	if t.ID == "" || t.SourceURL == "" {
		return ErrTrackInvalid
	}
	return nil
}
