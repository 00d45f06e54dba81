package app

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
)

// Orchestrator ties the registry, relay, fanout and coordinator into
// the join/leave/mutate flows the transport adapter drives. Handlers
// pass only the connection id; the orchestrator resolves session and
// user from the registry, so no shared socket state leaks between
// handlers.
type Orchestrator struct {
	Registry *Registry
	Relay    *Relay
	Bus      *Fanout
	Playback *Coordinator
	Store    core.Store
}

func NewOrchestrator(store core.Store) *Orchestrator {
	reg := NewRegistry()
	bus := NewFanout(reg)
	return &Orchestrator{
		Registry: reg,
		Relay:    NewRelay(reg),
		Bus:      bus,
		Playback: NewCoordinator(store, bus),
		Store:    store,
	}
}

// Connect binds a fresh duplex connection before any join.
func (o *Orchestrator) Connect(cid core.ConnectionID, conn core.Conn) {
	o.Registry.Bind(cid, conn)
}

// Join admits the connection into a session: register membership, reply
// with the presence snapshot, push the persisted playback state, then
// tell everyone else. Registry mutation and notification stay two
// separate steps on purpose.
//
// A connection holds at most one membership. Joining while already in
// another session runs the full leave flow first, so the old session's
// members get their member-left and the binding never dangles.
func (o *Orchestrator) Join(cid core.ConnectionID, sid domain.SessionID, user domain.UserRef) error {
	if prev, _, ok := o.Registry.BindingOf(cid); ok && prev != sid {
		o.Leave(cid)
	}

	snapshot, err := o.Registry.Join(sid, cid, user)
	if err != nil {
		return err
	}

	sess, err := o.Store.GetSession(sid)
	if err != nil {
		// Unknown session: roll the membership back, nobody was told.
		o.Registry.Leave(sid, cid)
		return fmt.Errorf("join %s: %w", sid, err)
	}

	o.Bus.SendTo(cid, protocol.PresenceSnapshot{
		Type:    protocol.TypePresenceSnapshot,
		Self:    string(cid),
		Members: snapshot,
	})
	o.Bus.SendTo(cid, protocol.SessionState{
		Type:         protocol.TypeSessionState,
		SessionID:    string(sess.ID),
		Host:         sess.Host,
		Queue:        sess.Queue,
		CurrentTrack: sess.CurrentTrack,
		IsPlaying:    sess.IsPlaying,
	})
	o.Bus.BroadcastToSession(sid, protocol.MemberJoined{
		Type:   protocol.TypeMemberJoined,
		Member: core.MemberInfo{ConnectionID: cid, User: user},
	}, cid)
	return nil
}

// Leave removes the member and tells the remaining members to tear down
// their side of the mesh. Safe to call for a connection that never
// joined or already left.
func (o *Orchestrator) Leave(cid core.ConnectionID) {
	sid, _, ok := o.Registry.BindingOf(cid)
	if !ok {
		return
	}
	found, _ := o.Registry.Leave(sid, cid)
	if !found {
		return
	}
	o.Bus.BroadcastToSession(sid, protocol.MemberLeft{
		Type:         protocol.TypeMemberLeft,
		ConnectionID: string(cid),
	}, cid)
}

// Disconnect is the only cancellation signal the system recognizes:
// the duplex channel closed, so presence ends deterministically here.
func (o *Orchestrator) Disconnect(cid core.ConnectionID) {
	o.Leave(cid)
	o.Registry.Unbind(cid)
}

// Signal ferries one handshake envelope from cid to its target.
func (o *Orchestrator) Signal(kind string, cid core.ConnectionID, to string, payload json.RawMessage) {
	o.Relay.Forward(kind, cid, core.ConnectionID(to), payload)
}

// Enqueue adds a track on behalf of the connection's user.
func (o *Orchestrator) Enqueue(cid core.ConnectionID, t domain.Track) error {
	sid, user, ok := o.Registry.BindingOf(cid)
	if !ok {
		return ErrNotConnected
	}
	return o.Playback.Enqueue(sid, user, t)
}

// Advance moves playback to the next queued track. Host only.
func (o *Orchestrator) Advance(cid core.ConnectionID) error {
	sid, user, ok := o.Registry.BindingOf(cid)
	if !ok {
		return ErrNotConnected
	}
	_, err := o.Playback.Advance(sid, user)
	return err
}

// SetPlaying toggles the shared play state. Host only.
func (o *Orchestrator) SetPlaying(cid core.ConnectionID, playing bool) error {
	sid, user, ok := o.Registry.BindingOf(cid)
	if !ok {
		return ErrNotConnected
	}
	return o.Playback.SetPlaying(sid, user, playing)
}

// Chat fans the message out verbatim, sender included, with the
// sender's user ref attached.
func (o *Orchestrator) Chat(cid core.ConnectionID, text string) {
	sid, user, ok := o.Registry.BindingOf(cid)
	if !ok || text == "" {
		log.Debug().Str("module", "app").Str("cid", string(cid)).Msg("chat from unjoined connection dropped")
		return
	}
	o.Bus.BroadcastToSession(sid, protocol.ChatMessage{
		Type: protocol.TypeChatMessage,
		User: user,
		Text: text,
	}, "")
}
