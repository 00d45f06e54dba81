package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/protocol"
)

// Relay forwards connection-handshake envelopes between two named
// endpoints. It is topology-agnostic: each client decides whom to
// signal, the relay only looks up the target in the local routing
// table. O(1) per message, no per-session peer-graph bookkeeping.
//
// FIFO per ordered pair holds structurally: a sender's frames are
// accepted by its single read loop in order, and a recipient's frames
// leave through its single buffered send channel in order.
type Relay struct {
	reg *Registry
}

func NewRelay(reg *Registry) *Relay {
	return &Relay{reg: reg}
}

// Forward delivers the payload unmodified to the target connection, or
// drops it when the target is gone. Self-targeted envelopes are always
// an upstream bug and are ignored.
func (r *Relay) Forward(kind string, from, to core.ConnectionID, payload json.RawMessage) {
	if from == "" || to == "" || from == to {
		log.Warn().Str("module", "app.relay").Str("kind", kind).
			Str("from", string(from)).Str("to", string(to)).Msg("invalid signal addressing, dropped")
		return
	}
	conn, ok := r.reg.Lookup(to)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("kind", kind).
			Str("to", string(to)).Msg("signal target departed, dropped")
		return
	}
	out, err := json.Marshal(protocol.Signal{Type: kind, From: string(from), Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("signal marshal")
		return
	}
	if err := conn.TrySend(out); err != nil {
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Err(err).Msg("signal send drop")
	}
}
