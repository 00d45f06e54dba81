package mesh

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	trackStateOk int32 = iota
	trackStateDelete
)

// Source yields the local outgoing RTP stream (microphone capture or a
// test feed).
type Source interface {
	ReadRTP() (*rtp.Packet, error)
}

// outTrack is one outgoing leg to a single peer.
type outTrack struct {
	track *webrtc.TrackLocalStaticRTP
	state int32 // accessed atomically
}

// AudioFanout pumps one local RTP source into a per-peer local track.
// Muting flips an atomic flag that gates writing; the tracks and peer
// connections are untouched, so unmuting is instant and renegotiation
// never happens.
type AudioFanout struct {
	src   Source
	muted int32

	mu   sync.RWMutex
	outs map[string]*outTrack
}

func NewAudioFanout(src Source) *AudioFanout {
	return &AudioFanout{
		src:  src,
		outs: make(map[string]*outTrack),
	}
}

// Attach creates the outgoing track for a peer and returns it for
// link.AddLocalTrack.
func (f *AudioFanout) Attach(peerID string) (*webrtc.TrackLocalStaticRTP, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "syncsound-"+peerID,
	)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.outs[peerID] = &outTrack{track: track}
	f.mu.Unlock()
	return track, nil
}

// Detach marks the peer's leg for removal; the pump loop reaps it.
func (f *AudioFanout) Detach(peerID string) {
	f.mu.RLock()
	ot, ok := f.outs[peerID]
	f.mu.RUnlock()
	if ok {
		atomic.StoreInt32(&ot.state, trackStateDelete)
	}
}

func (f *AudioFanout) SetMuted(muted bool) {
	var v int32
	if muted {
		v = 1
	}
	atomic.StoreInt32(&f.muted, v)
	log.Info().Str("module", "mesh.audio").Bool("muted", muted).Msg("mute toggled")
}

func (f *AudioFanout) Muted() bool {
	return atomic.LoadInt32(&f.muted) == 1
}

// Run reads packets from the source and forwards them to every live
// leg until the context ends or the source fails.
func (f *AudioFanout) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "mesh.audio").Msg("audio fanout stopped")
			return
		default:
		}
		pkt, err := f.src.ReadRTP()
		if err != nil {
			log.Error().Err(err).Str("module", "mesh.audio").Msg("source read error, stopping")
			return
		}
		f.forward(pkt)
	}
}

func (f *AudioFanout) forward(pkt *rtp.Packet) {
	if f.Muted() {
		return
	}
	f.mu.RLock()
	dirty := false
	for peerID, ot := range f.outs {
		if atomic.LoadInt32(&ot.state) == trackStateDelete {
			dirty = true
			continue
		}
		if err := ot.track.WriteRTP(pkt); err != nil {
			log.Debug().Err(err).Str("module", "mesh.audio").Str("peer", peerID).Msg("write error, dropping leg")
			atomic.StoreInt32(&ot.state, trackStateDelete)
			dirty = true
		}
	}
	f.mu.RUnlock()

	// Reap outside the read lock.
	if dirty {
		f.cleanupDeleted()
	}
}

func (f *AudioFanout) cleanupDeleted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for peerID, ot := range f.outs {
		if atomic.LoadInt32(&ot.state) == trackStateDelete {
			delete(f.outs, peerID)
		}
	}
}
