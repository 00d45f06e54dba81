// Package mesh holds the client-side coordination logic that turns
// presence and signaling events into a full-mesh audio topology: one
// peer connection per remote member, N members, N*(N-1)/2 links.
package mesh

import (
	"encoding/json"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/protocol"
)

// Signaler sends handshake envelopes to the server for relaying.
type Signaler interface {
	SendSignal(kind, to string, payload json.RawMessage) error
}

// Client maintains exactly one Peer per remote member. It decides
// initiator/responder purely from the event that revealed the peer,
// never from message arrival order.
type Client struct {
	signaler Signaler
	newLink  LinkFactory
	audio    *AudioFanout // nil for a listen-only client
	onStream func(peerID string, track *webrtc.TrackRemote)

	mu    sync.Mutex
	self  string
	peers map[string]*Peer
}

func NewClient(signaler Signaler, newLink LinkFactory, audio *AudioFanout) *Client {
	return &Client{
		signaler: signaler,
		newLink:  newLink,
		audio:    audio,
		peers:    make(map[string]*Peer),
	}
}

// OnRemoteStream sets the consumer for every peer's remote audio.
// Set it before joining; peers created later inherit it.
func (c *Client) OnRemoteStream(fn func(peerID string, track *webrtc.TrackRemote)) {
	c.onStream = fn
}

// Self returns our own connection id once the snapshot delivered it.
func (c *Client) Self() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// HandlePresenceSnapshot runs at join time: one initiator attempt per
// member already present, local media supplied to each, no per-peer
// round trip awaited in between.
func (c *Client) HandlePresenceSnapshot(snap protocol.PresenceSnapshot) {
	c.mu.Lock()
	c.self = snap.Self
	c.mu.Unlock()

	for _, m := range snap.Members {
		p, created := c.addPeer(string(m.ConnectionID), RoleInitiator)
		if !created {
			continue
		}
		offer, err := p.link.CreateAndSetOffer()
		if err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", p.id).Msg("create offer")
			c.HandleMemberLeft(p.id)
			continue
		}
		c.sendDescription(protocol.TypeSignalOffer, p.id, offer)
	}
}

// HandleMemberJoined creates the responder side for a new peer. Never
// an initiator attempt: the newcomer offers, we answer.
func (c *Client) HandleMemberJoined(m protocol.MemberJoined) {
	c.addPeer(string(m.Member.ConnectionID), RoleResponder)
}

// HandleMemberLeft synchronously tears the peer down and discards the
// reference; later signals naming this peer are ignored as unknown.
func (c *Client) HandleMemberLeft(peerID string) {
	c.mu.Lock()
	p, ok := c.peers[peerID]
	delete(c.peers, peerID)
	c.mu.Unlock()
	if !ok {
		return
	}
	if c.audio != nil {
		c.audio.Detach(peerID)
	}
	p.link.Close()
	log.Info().Str("module", "mesh").Str("peer", peerID).Msg("peer torn down")
}

// HandleSignal routes a relayed envelope to the peer it came from.
func (c *Client) HandleSignal(kind, from string, payload json.RawMessage) {
	c.mu.Lock()
	p, ok := c.peers[from]
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "mesh").Str("kind", kind).Str("from", from).Msg("signal for unknown peer ignored")
		return
	}

	switch kind {
	case protocol.TypeSignalOffer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(payload, &sd); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("from", from).Msg("bad offer payload")
			return
		}
		answer, err := p.link.ApplyOfferAndCreateAnswer(sd)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", from).Msg("apply offer")
			return
		}
		c.sendDescription(protocol.TypeSignalAnswer, from, answer)
	case protocol.TypeSignalAnswer:
		var sd webrtc.SessionDescription
		if err := json.Unmarshal(payload, &sd); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("from", from).Msg("bad answer payload")
			return
		}
		if err := p.link.ApplyAnswer(sd); err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", from).Msg("apply answer")
		}
	case protocol.TypeICECandidate:
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(payload, &ci); err != nil {
			log.Warn().Err(err).Str("module", "mesh").Str("from", from).Msg("bad candidate payload")
			return
		}
		if err := p.link.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", from).Msg("add ice candidate")
		}
	}
}

// SetMuted gates the outgoing audio only. The peer connections stay up
// and nothing renegotiates.
func (c *Client) SetMuted(muted bool) {
	if c.audio != nil {
		c.audio.SetMuted(muted)
	}
}

// PeerCount reports the current mesh size (excluding self).
func (c *Client) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

// Close tears down every peer.
func (c *Client) Close() {
	c.mu.Lock()
	peers := c.peers
	c.peers = make(map[string]*Peer)
	c.mu.Unlock()
	for id, p := range peers {
		if c.audio != nil {
			c.audio.Detach(id)
		}
		p.link.Close()
	}
}

// addPeer creates the single connection object for peerID. A repeated
// snapshot entry or join notification for a known peer is ignored, not
// acted on again.
func (c *Client) addPeer(peerID string, role Role) (*Peer, bool) {
	if peerID == "" {
		return nil, false
	}
	c.mu.Lock()
	if p, dup := c.peers[peerID]; dup {
		c.mu.Unlock()
		log.Debug().Str("module", "mesh").Str("peer", peerID).Msg("duplicate peer event ignored")
		return p, false
	}
	c.mu.Unlock()

	p := &Peer{id: peerID, role: role}
	link, err := c.newLink(
		func(ci webrtc.ICECandidateInit) { c.sendCandidate(peerID, ci) },
		p.slot.deliver,
	)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("peer", peerID).Msg("create link")
		return nil, false
	}
	p.link = link

	if c.audio != nil {
		out, err := c.audio.Attach(peerID)
		if err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", peerID).Msg("attach local audio")
		} else if err := link.AddLocalTrack(out); err != nil {
			log.Error().Err(err).Str("module", "mesh").Str("peer", peerID).Msg("add local track")
		}
	}
	if c.onStream != nil {
		fn := c.onStream
		p.OnRemoteStream(func(t *webrtc.TrackRemote) { fn(peerID, t) })
	}

	c.mu.Lock()
	if existing, dup := c.peers[peerID]; dup {
		// Lost a race with another event for the same peer; exactly one
		// connection object may exist, so drop ours.
		c.mu.Unlock()
		if c.audio != nil {
			c.audio.Detach(peerID)
		}
		link.Close()
		return existing, false
	}
	c.peers[peerID] = p
	c.mu.Unlock()

	log.Info().Str("module", "mesh").Str("peer", peerID).Str("role", role.String()).Msg("peer created")
	return p, true
}

func (c *Client) sendDescription(kind, to string, sd webrtc.SessionDescription) {
	payload, err := json.Marshal(sd)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("marshal description")
		return
	}
	if err := c.signaler.SendSignal(kind, to, payload); err != nil {
		log.Error().Err(err).Str("module", "mesh").Str("to", to).Msg("send description")
	}
}

func (c *Client) sendCandidate(to string, ci webrtc.ICECandidateInit) {
	payload, err := json.Marshal(ci)
	if err != nil {
		log.Error().Err(err).Str("module", "mesh").Msg("marshal candidate")
		return
	}
	if err := c.signaler.SendSignal(protocol.TypeICECandidate, to, payload); err != nil {
		log.Debug().Err(err).Str("module", "mesh").Str("to", to).Msg("send candidate")
	}
}
