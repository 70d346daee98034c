package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event names pushed on /playback/events.
const (
	EventTime     = "time"
	EventEnded    = "ended"
	EventState    = "state"
	EventTimeline = "timeline"
)

// timeEventInterval caps how often per-frame time updates reach clients.
const timeEventInterval = 100 * time.Millisecond

type EventMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans playback events out to websocket clients. Slow clients drop
// messages rather than stall the frame loop.
type EventHub struct {
	mu        sync.RWMutex
	clients   map[*eventClient]bool
	lastState []byte

	timeMu   sync.Mutex
	lastTime time.Time

	logger *slog.Logger
}

func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*eventClient]bool),
		logger:  logger,
	}
}

func (h *EventHub) Broadcast(event string, data any) {
	msg, err := json.Marshal(EventMessage{Event: event, Data: data})
	if err != nil {
		h.logger.Warn("failed to encode event", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	if event == EventState {
		h.lastState = msg
	}
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
		}
	}
	h.mu.Unlock()
}

// BroadcastTime forwards a playhead update unless one went out recently.
func (h *EventHub) BroadcastTime(t float64) {
	h.timeMu.Lock()
	now := time.Now()
	if now.Sub(h.lastTime) < timeEventInterval {
		h.timeMu.Unlock()
		return
	}
	h.lastTime = now
	h.timeMu.Unlock()

	h.Broadcast(EventTime, map[string]float64{"time": t})
}

func (h *EventHub) addClient(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	// New clients start from the last known state.
	if h.lastState != nil {
		select {
		case c.send <- h.lastState:
		default:
		}
	}
}

func (h *EventHub) removeClient(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// eventsHandler upgrades to a websocket. Browsers cannot set headers on the
// upgrade request, so the token may also come in the query string.
func eventsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if err := checkToken(r.Context(), cfg.Repository, token); err != nil {
			WriteError(w, http.StatusUnauthorized, err.Error(), "UNAUTHORIZED")
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
		})
		if err != nil {
			cfg.Logger.Warn("websocket accept failed", "error", err)
			return
		}

		client := &eventClient{conn: conn, send: make(chan []byte, 64)}
		cfg.Events.addClient(client)
		cfg.Logger.Debug("event client connected", "clients", cfg.Events.ClientCount())

		ctx := r.Context()
		go func() {
			defer conn.Close(websocket.StatusNormalClosure, "")
			for msg := range client.send {
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := conn.Read(ctx); err != nil {
				break
			}
		}

		cfg.Events.removeClient(client)
		cfg.Logger.Debug("event client disconnected")
	}
}
