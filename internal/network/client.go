package network

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/bugshift/internal/domain/workitem"
	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Time a command may wait for the frame loop.
	commandTimeout = 5 * time.Second
)

// Message kinds sent to clients.
const (
	KindEvent  = "event"
	KindResult = "result"
	KindError  = "error"
)

// Error codes sent to clients.
const (
	CodeBadRequest        = "bad_request"
	CodeRateLimited       = "rate_limited"
	CodeInvalidTransition = "invalid_transition"
	CodeUnknownDecision   = "unknown_decision"
	CodeUnknownCommand    = "unknown_command"
	CodeNotFound          = "not_found"
	CodeUnavailable       = "unavailable"
)

// ClientMessage is an operator command from the frontend.
type ClientMessage struct {
	RequestID      string             `json:"request_id,omitempty"`
	Type           engine.CommandType `json:"type"`
	Decision       workitem.Decision  `json:"decision,omitempty"`
	NotificationID string             `json:"notification_id,omitempty"`
}

// ServerMessage is everything the hub writes to a client.
type ServerMessage struct {
	Kind      string            `json:"kind"`
	RequestID string            `json:"request_id,omitempty"`
	Event     *events.GameEvent `json:"event,omitempty"`
	Result    *engine.Result    `json:"result,omitempty"`
	Code      string            `json:"code,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Client is an active WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	remote  string
	limiter *rate.Limiter
}

// NewClient creates a new WebSocket client and returns it.
func NewClient(hub *Hub, conn *websocket.Conn, remote string) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, hub.cfg.SendBuffer),
		remote:  remote,
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.CommandRate), hub.cfg.CommandBurst),
	}
}

// Register adds the client to the hub. It reports false when the hub has
// stopped.
func (c *Client) Register() bool {
	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.done:
		return false
	}
}

// ReadPump pumps commands from the websocket connection to the engine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.metrics.RecordWSError()
				c.hub.logger.Warn("websocket read failed", "remote", c.remote, "error", err)
			}
			break
		}
		c.hub.metrics.RecordWSMessage(true)

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.reply(ServerMessage{Kind: KindError, Code: CodeBadRequest, Error: "malformed command"})
			continue
		}
		c.handleCommand(msg)
	}
}

func (c *Client) handleCommand(msg ClientMessage) {
	if !c.limiter.Allow() {
		c.hub.metrics.RecordRateLimited()
		c.hub.logger.Warn("rate limit exceeded for client command", "remote", c.remote, "type", string(msg.Type))
		c.reply(ServerMessage{Kind: KindError, RequestID: msg.RequestID, Code: CodeRateLimited, Error: "too many commands"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	res, err := c.hub.engine.Submit(ctx, msg.command())
	if err != nil {
		c.reply(ServerMessage{Kind: KindError, RequestID: msg.RequestID, Code: errorCode(err), Error: err.Error()})
		return
	}
	c.reply(ServerMessage{Kind: KindResult, RequestID: msg.RequestID, Result: &res})
}

func (m ClientMessage) command() engine.Command {
	return engine.Command{
		Type:           m.Type,
		Decision:       m.Decision,
		NotificationID: m.NotificationID,
	}
}

func (c *Client) reply(msg ServerMessage) {
	c.hub.sendTo(c, msg)
}

// errorCode maps engine errors onto stable client codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrInvalidStateTransition):
		return CodeInvalidTransition
	case errors.Is(err, engine.ErrUnknownDecision):
		return CodeUnknownDecision
	case errors.Is(err, engine.ErrUnknownCommand):
		return CodeUnknownCommand
	case errors.Is(err, engine.ErrNotificationNotFound):
		return CodeNotFound
	default:
		return CodeUnavailable
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
