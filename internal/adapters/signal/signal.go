// Package signal is the WebSocket adapter: it owns the duplex
// connections and translates wire events into orchestrator calls.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/app"
	"github.com/syncsound/syncsound/internal/config"
	"github.com/syncsound/syncsound/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Controller struct {
	Orch *app.Orchestrator
	Cfg  *config.Config
}

func NewController(orch *app.Orchestrator, cfg *config.Config) *Controller {
	return &Controller{Orch: orch, Cfg: cfg}
}

// WsConn implements core.Conn over a websocket. The buffered send
// channel keeps TrySend non-blocking; a full buffer is a drop, never a
// stall for other members.
type WsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and runs the connection until it dies.
// Each connection gets a fresh id; nothing is shared between handlers
// except through the orchestrator.
func (ctl *Controller) Handle(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.Cfg != nil && ctl.Cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.Cfg.ReadLimit)
	}

	cid := core.ConnectionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("cid", string(cid)).Msg("new WS connection")

	conn := &WsConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	ctl.Orch.Connect(cid, conn)

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, cid, conn)
}
