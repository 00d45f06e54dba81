package mesh

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Role states the deterministic pairing rule: whoever receives the
// presence snapshot initiates to every listed member; whoever receives
// a join notification only responds. Both sides can never race to
// initiate the same pair.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// PeerLink abstracts one peer connection so the coordination logic can
// be exercised without a media stack.
type PeerLink interface {
	CreateAndSetOffer() (webrtc.SessionDescription, error)
	ApplyAnswer(webrtc.SessionDescription) error
	ApplyOfferAndCreateAnswer(webrtc.SessionDescription) (webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	AddLocalTrack(*webrtc.TrackLocalStaticRTP) error
	Close()
}

// LinkFactory builds a link with its callbacks already attached. The
// remote-track callback MUST be registered before the factory returns:
// a stream may arrive immediately, and a handler attached later would
// permanently miss it.
type LinkFactory func(onICE func(webrtc.ICECandidateInit), onTrack func(*webrtc.TrackRemote)) (PeerLink, error)

// Peer is the one connection object a client holds per remote member.
type Peer struct {
	id   string
	role Role
	link PeerLink
	slot streamSlot
}

// OnRemoteStream registers a consumer for the peer's remote audio. The
// slot is checked first, so a stream that arrived before the consumer
// is delivered instead of lost.
func (p *Peer) OnRemoteStream(fn func(*webrtc.TrackRemote)) {
	p.slot.subscribe(fn)
}

// streamSlot is the per-peer two-state cell {pending, available} that
// removes the created-vs-stream-arrived race instead of patching it.
type streamSlot struct {
	mu    sync.Mutex
	track *webrtc.TrackRemote
	subs  []func(*webrtc.TrackRemote)
}

func (s *streamSlot) deliver(t *webrtc.TrackRemote) {
	s.mu.Lock()
	if s.track != nil {
		s.mu.Unlock()
		return
	}
	s.track = t
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, fn := range subs {
		fn(t)
	}
}

func (s *streamSlot) subscribe(fn func(*webrtc.TrackRemote)) {
	s.mu.Lock()
	if t := s.track; t != nil {
		s.mu.Unlock()
		fn(t)
		return
	}
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// NewWebRTCLink is the production LinkFactory over pion.
func NewWebRTCLink(cfg webrtc.Configuration) LinkFactory {
	return func(onICE func(webrtc.ICECandidateInit), onTrack func(*webrtc.TrackRemote)) (PeerLink, error) {
		pc, err := webrtc.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
			if cand != nil && onICE != nil {
				onICE(cand.ToJSON())
			}
		})
		pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
			log.Debug().Str("module", "mesh.link").Str("track_id", track.ID()).
				Str("kind", track.Kind().String()).Msg("remote track arrived")
			if onTrack != nil {
				onTrack(track)
			}
		})
		return &webrtcLink{pc: pc}, nil
	}
}

// DefaultRTCConfig builds a webrtc.Configuration from STUN URLs.
func DefaultRTCConfig(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunServers}},
	}
}

type webrtcLink struct {
	pc *webrtc.PeerConnection
}

func (l *webrtcLink) CreateAndSetOffer() (webrtc.SessionDescription, error) {
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (l *webrtcLink) ApplyAnswer(answer webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(answer)
}

func (l *webrtcLink) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (l *webrtcLink) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(ci)
}

func (l *webrtcLink) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) error {
	_, err := l.pc.AddTrack(track)
	return err
}

func (l *webrtcLink) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "mesh.link").Msg("peer connection close")
	}
}
