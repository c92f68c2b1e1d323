package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/senas-lab/senas/internal/app"
)

const (
	// DefaultStreamFPS caps messages per second per client.
	DefaultStreamFPS = 15
	clientBuffer     = 16
	writeWait        = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PredictionMessage is the JSON sent to websocket clients.
type PredictionMessage struct {
	Timestamp  int64          `json:"timestamp"`
	Hand       bool           `json:"hand"`
	Label      string         `json:"label"`
	Raw        string         `json:"raw,omitempty"`
	Distance   float64        `json:"distance,omitempty"`
	Votes      map[string]int `json:"votes,omitempty"`
	Handedness string         `json:"handedness,omitempty"`
	FPS        float64        `json:"fps"`
}

func newPredictionMessage(ev app.Event) PredictionMessage {
	msg := PredictionMessage{
		Timestamp: ev.Time.UnixMilli(),
		Hand:      ev.Hand,
		Label:     ev.Smoothed,
		FPS:       ev.FPS,
	}
	if ev.Hand {
		msg.Raw = ev.Prediction.Label
		msg.Distance = ev.Prediction.MeanDistance
		msg.Votes = ev.Prediction.Votes
		msg.Handedness = ev.Handedness
	}
	return msg
}

type wsClient struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	label   string
	sent    bool
}

// PredictionsHandler streams recognizer events to websocket clients.
// Each client is rate limited; a change of the smoothed label is always
// delivered. Slow clients drop messages instead of stalling the capture loop.
type PredictionsHandler struct {
	fps     int
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewPredictionsHandler creates a handler sending at most fps messages per
// second to each client.
func NewPredictionsHandler(fps int) *PredictionsHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &PredictionsHandler{
		fps:     fps,
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *PredictionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{
		conn:    conn,
		send:    make(chan []byte, clientBuffer),
		limiter: rate.NewLimiter(rate.Limit(h.fps), 1),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *PredictionsHandler) writeLoop(c *wsClient) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// Publish queues ev for every client. It never blocks.
func (h *PredictionsHandler) Publish(ev app.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(newPredictionMessage(ev))
	if err != nil {
		return
	}

	for c := range h.clients {
		allowed := c.limiter.Allow()
		changed := !c.sent || c.label != ev.Smoothed
		if !changed && !allowed {
			continue
		}
		select {
		case c.send <- msg:
			c.label, c.sent = ev.Smoothed, true
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (h *PredictionsHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *PredictionsHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
