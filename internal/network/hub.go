package network

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/bugshift/internal/engine"
	"github.com/MRamiBalles/bugshift/internal/events"
	"github.com/MRamiBalles/bugshift/internal/platform/logger"
	"github.com/MRamiBalles/bugshift/internal/platform/metrics"
)

// Submitter queues an operator command on the simulation.
type Submitter interface {
	Submit(ctx context.Context, cmd engine.Command) (engine.Result, error)
}

// HubConfig tunes buffering and per-client limits.
type HubConfig struct {
	SendBuffer      int
	BroadcastBuffer int
	CommandRate     float64
	CommandBurst    int
	BroadcastTicks  bool
}

// DefaultHubConfig returns the stock limits.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		SendBuffer:      256,
		BroadcastBuffer: 1024,
		CommandRate:     10,
		CommandBurst:    20,
		BroadcastTicks:  true,
	}
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	cfg        HubConfig
	engine     Submitter
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
	metrics    *metrics.Collector
	upgrader   websocket.Upgrader
}

// NewHub initializes a new WebSocket Hub. m may be nil.
func NewHub(cfg HubConfig, submitter Submitter, log *logger.Logger, m *metrics.Collector) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = 1024
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Hub{
		cfg:        cfg,
		engine:     submitter,
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     log,
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run starts the Hub's main loop to handle client connections and broadcasts.
// Once it returns, registration and unregistration no longer wait on it.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket hub shutting down")
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.metrics.RecordWSConnection(1)
			h.logger.Info("websocket client connected", "remote", client.remote)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.metrics.RecordWSConnection(-1)
				h.logger.Info("websocket client disconnected", "remote", client.remote)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
					h.metrics.RecordWSMessage(false)
				default:
					close(client.send)
					delete(h.clients, client)
					h.metrics.RecordWSConnection(-1)
					h.logger.Warn("dropping slow websocket client", "remote", client.remote)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Observe is an event-log subscriber. It runs on the frame goroutine, so it
// never blocks: when the broadcast buffer is full the event is dropped.
func (h *Hub) Observe(event events.GameEvent) {
	if event.Type == events.EventTypeTimeTick && !h.cfg.BroadcastTicks {
		return
	}
	payload, err := json.Marshal(ServerMessage{Kind: KindEvent, Event: &event})
	if err != nil {
		h.logger.Error("failed to serialize event for broadcast", "type", string(event.Type), "error", err)
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.metrics.RecordWSError()
		h.logger.Warn("broadcast buffer full, event dropped", "type", string(event.Type))
	}
}

// Done is closed when Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// ClientCount reports the connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// sendTo queues a direct reply. It is a no-op for clients the hub already
// dropped, whose send channel is closed.
func (h *Hub) sendTo(c *Client, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to serialize reply", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- payload:
		h.metrics.RecordWSMessage(false)
	default:
		h.metrics.RecordWSError()
	}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordWSError()
		h.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}

	client := NewClient(h, conn, r.RemoteAddr)
	if !client.Register() {
		h.logger.Warn("websocket hub stopped, rejecting client", "remote", r.RemoteAddr)
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
