package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/protocol"
)

// handleSignal relays one handshake envelope. The payload stays opaque;
// the relay only swaps the addressing (the sender never chooses its own
// "from", the server stamps the connection id it read the frame from).
func (ctl *Controller) handleSignal(kind string, cid core.ConnectionID, data []byte) {
	var p protocol.Signal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad signal payload")
		return
	}
	ctl.Orch.Signal(kind, cid, p.To, p.Payload)
}
