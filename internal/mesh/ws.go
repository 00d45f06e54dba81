package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/domain"
	"github.com/syncsound/syncsound/internal/protocol"
)

// Handlers are the optional callbacks a headless client cares about
// beyond mesh maintenance.
type Handlers struct {
	OnSessionState   func(protocol.SessionState)
	OnQueueUpdated   func(protocol.QueueUpdated)
	OnTrackAdvanced  func(protocol.TrackAdvanced)
	OnPlayingChanged func(protocol.PlayingChanged)
	OnChat           func(protocol.ChatMessage)
	OnMemberJoined   func(protocol.MemberJoined)
	OnMemberLeft     func(protocol.MemberLeft)
	OnError          func(protocol.ErrorEvent)
}

// Conn is the client end of the duplex channel. Writes are serialized
// by a mutex; reads happen on the single Run loop.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to a server's /api/ws endpoint.
func Dial(ctx context.Context, serverURL string) (*Conn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/ws"
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &Conn{ws: ws}, nil
}

func (c *Conn) Close() {
	_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
	_ = c.ws.Close()
}

func (c *Conn) send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteJSON(v)
}

func (c *Conn) Join(sessionID string, user domain.UserRef) error {
	return c.send(protocol.Join{Type: protocol.TypeJoin, SessionID: sessionID, User: user})
}

func (c *Conn) Leave() error {
	return c.send(protocol.Envelope{Type: protocol.TypeLeave})
}

func (c *Conn) Enqueue(t domain.Track) error {
	return c.send(protocol.EnqueueTrack{Type: protocol.TypeEnqueueTrack, Track: t})
}

func (c *Conn) Advance() error {
	return c.send(protocol.Envelope{Type: protocol.TypeAdvanceTrack})
}

func (c *Conn) SetPlaying(playing bool) error {
	return c.send(protocol.SetPlaying{Type: protocol.TypeSetPlaying, IsPlaying: playing})
}

func (c *Conn) Chat(text string) error {
	return c.send(protocol.ChatMessage{Type: protocol.TypeChatMessage, Text: text})
}

// SendSignal implements Signaler: handshake payloads ride to the server
// which relays them to the addressed peer.
func (c *Conn) SendSignal(kind, to string, payload json.RawMessage) error {
	return c.send(protocol.Signal{Type: kind, To: to, Payload: payload})
}

// Run reads server events until the connection dies, feeding presence
// and signaling into the mesh client and everything else into h.
func (c *Conn) Run(ctx context.Context, m *Client, h Handlers) error {
	defer m.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.dispatch(m, h, data)
	}
}

func (c *Conn) dispatch(m *Client, h Handlers, data []byte) {
	t, err := protocol.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "mesh.ws").Msg("bad frame from server")
		return
	}
	switch {
	case t == protocol.TypePresenceSnapshot:
		var p protocol.PresenceSnapshot
		if unmarshalOr(data, &p) {
			m.HandlePresenceSnapshot(p)
		}
	case t == protocol.TypeMemberJoined:
		var p protocol.MemberJoined
		if unmarshalOr(data, &p) {
			m.HandleMemberJoined(p)
			if h.OnMemberJoined != nil {
				h.OnMemberJoined(p)
			}
		}
	case t == protocol.TypeMemberLeft:
		var p protocol.MemberLeft
		if unmarshalOr(data, &p) {
			m.HandleMemberLeft(p.ConnectionID)
			if h.OnMemberLeft != nil {
				h.OnMemberLeft(p)
			}
		}
	case protocol.IsSignalType(t):
		var p protocol.Signal
		if unmarshalOr(data, &p) {
			m.HandleSignal(t, p.From, p.Payload)
		}
	case t == protocol.TypeSessionState:
		var p protocol.SessionState
		if unmarshalOr(data, &p) && h.OnSessionState != nil {
			h.OnSessionState(p)
		}
	case t == protocol.TypeQueueUpdated:
		var p protocol.QueueUpdated
		if unmarshalOr(data, &p) && h.OnQueueUpdated != nil {
			h.OnQueueUpdated(p)
		}
	case t == protocol.TypeTrackAdvanced:
		var p protocol.TrackAdvanced
		if unmarshalOr(data, &p) && h.OnTrackAdvanced != nil {
			h.OnTrackAdvanced(p)
		}
	case t == protocol.TypePlayingChanged:
		var p protocol.PlayingChanged
		if unmarshalOr(data, &p) && h.OnPlayingChanged != nil {
			h.OnPlayingChanged(p)
		}
	case t == protocol.TypeChatMessage:
		var p protocol.ChatMessage
		if unmarshalOr(data, &p) && h.OnChat != nil {
			h.OnChat(p)
		}
	case t == protocol.TypeError:
		var p protocol.ErrorEvent
		if unmarshalOr(data, &p) && h.OnError != nil {
			h.OnError(p)
		}
	case t == protocol.TypePong:
	default:
		log.Debug().Str("module", "mesh.ws").Str("type", t).Msg("unhandled server event")
	}
}

func unmarshalOr(data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("module", "mesh.ws").Msg("bad payload")
		return false
	}
	return true
}
