package signal

import "github.com/syncsound/syncsound/internal/protocol"

func (ctl *Controller) handlePing(c *WsConn) {
	ctl.sendJSON(c, protocol.Pong{Type: protocol.TypePong})
}
