package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/core"
	"github.com/syncsound/syncsound/internal/protocol"
)

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	pingPeriod := 54 * time.Second
	if ctl.Cfg != nil && ctl.Cfg.PingPeriod > 0 {
		pingPeriod = ctl.Cfg.PingPeriod
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, cid core.ConnectionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("readPump read error")
				return
			}
			ctl.dispatch(cid, c, data)
		}
	}
}

func (ctl *Controller) dispatch(cid core.ConnectionID, c *WsConn, data []byte) {
	t, err := protocol.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("cid", string(cid)).Msg("bad json frame")
		return
	}

	switch {
	case t == protocol.TypeJoin:
		ctl.handleJoin(cid, c, data)
	case t == protocol.TypeLeave:
		ctl.handleLeave(cid)
	case protocol.IsSignalType(t):
		ctl.handleSignal(t, cid, data)
	case t == protocol.TypeEnqueueTrack:
		ctl.handleEnqueue(cid, c, data)
	case t == protocol.TypeAdvanceTrack:
		ctl.handleAdvance(cid, c)
	case t == protocol.TypeSetPlaying:
		ctl.handleSetPlaying(cid, c, data)
	case t == protocol.TypeChatMessage:
		ctl.handleChat(cid, data)
	case t == protocol.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", t).Msg("unknown event type")
	}
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, code, msg string) {
	ctl.sendJSON(c, protocol.ErrorEvent{Type: protocol.TypeError, Code: code, Message: msg})
}
