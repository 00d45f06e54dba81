package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/app"
	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/protocol"
)

// Playback mutations report failure only to the requesting client; the
// resulting state is broadcast by the coordinator, and only after the
// store write committed.

func (ctl *Controller) handleEnqueue(cid core.ConnectionID, c *WsConn, data []byte) {
	var p protocol.EnqueueTrack
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad enqueue payload")
		return
	}
	if err := ctl.Orch.Enqueue(cid, p.Track); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("enqueue failed")
		ctl.sendError(c, "enqueue_failed", err.Error())
	}
}

func (ctl *Controller) handleAdvance(cid core.ConnectionID, c *WsConn) {
	if err := ctl.Orch.Advance(cid); err != nil {
		ctl.reportPlaybackErr(c, cid, "advance", err)
	}
}

func (ctl *Controller) handleSetPlaying(cid core.ConnectionID, c *WsConn, data []byte) {
	var p protocol.SetPlaying
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad set-playing payload")
		return
	}
	if err := ctl.Orch.SetPlaying(cid, p.IsPlaying); err != nil {
		ctl.reportPlaybackErr(c, cid, "set-playing", err)
	}
}

func (ctl *Controller) handleChat(cid core.ConnectionID, data []byte) {
	var p protocol.ChatMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad chat payload")
		return
	}
	ctl.Orch.Chat(cid, p.Text)
}

func (ctl *Controller) reportPlaybackErr(c *WsConn, cid core.ConnectionID, op string, err error) {
	if errors.Is(err, app.ErrNotHost) {
		log.Warn().Str("module", "signal").Str("cid", string(cid)).Str("op", op).Msg("non-host playback control rejected")
		ctl.sendError(c, "not_host", "only the host may control playback")
		return
	}
	log.Error().Err(err).Str("module", "signal").Str("cid", string(cid)).Str("op", op).Msg("playback mutation failed")
	ctl.sendError(c, op+"_failed", err.Error())
}
