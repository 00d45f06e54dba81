package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
	"github.com/syncsound/syncsound/internal/store"
)

func (ctl *Controller) handleJoin(cid core.ConnectionID, c *WsConn, data []byte) {
	var p protocol.Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad join payload")
		return
	}

	err := ctl.Orch.Join(cid, domain.SessionID(p.SessionID), p.User)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUserMissing):
		// Malformed input: rejected silently, the connection stays open.
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Msg("join without user ref")
	case errors.Is(err, store.ErrNotFound):
		ctl.sendError(c, "session_not_found", "session does not exist")
	default:
		log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("join failed")
		ctl.sendError(c, "join_failed", "could not join session")
	}
}

func (ctl *Controller) handleLeave(cid core.ConnectionID) {
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("leave")
	ctl.Orch.Leave(cid)
}
