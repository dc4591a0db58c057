package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// EventRequestPriceUpdate is the inbound message asking for a fresh price
const EventRequestPriceUpdate = "requestPriceUpdate"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 16
	refreshTimeout = 15 * time.Second
)

// Envelope is the frame written to every observer
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RefreshFunc asks the broadcaster to push the current price to all observers
type RefreshFunc func(ctx context.Context) error

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the set of websocket observers and fans price events out to them
type Hub struct {
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
	refresh RefreshFunc
}

// NewHub creates an empty hub
func NewHub(logger logrus.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.WithField("component", "ws_hub"),
		clients: make(map[string]*client),
	}
}

// OnRefresh sets the callback used for new connections and requestPriceUpdate messages
func (h *Hub) OnRefresh(fn RefreshFunc) {
	h.mu.Lock()
	h.refresh = fn
	h.mu.Unlock()
}

// Clients returns the number of connected observers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection as an observer
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	cl := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.logger.WithField("client_id", cl.id).Info("Observer connected")

	go h.writePump(cl)
	go h.readPump(cl)
	go h.requestRefresh(cl.id)
}

// Publish implements broadcast.Publisher. Observers whose buffer is full are dropped.
func (h *Hub) Publish(_ context.Context, topic string, payload any) error {
	frame, err := json.Marshal(Envelope{Event: topic, Data: payload})
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*client
	for _, cl := range h.clients {
		select {
		case cl.send <- frame:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.logger.WithField("client_id", cl.id).Warn("Dropping slow observer")
		h.remove(cl)
	}
	return nil
}

// Close disconnects every observer
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, cl := range h.clients {
		all = append(all, cl)
	}
	h.mu.RUnlock()
	for _, cl := range all {
		h.remove(cl)
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, cl.id)
	close(cl.send)
	h.mu.Unlock()
	h.logger.WithField("client_id", cl.id).Info("Observer disconnected")
}

func (h *Hub) requestRefresh(clientID string) {
	h.mu.RLock()
	fn := h.refresh
	h.mu.RUnlock()
	if fn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		h.logger.WithError(err).WithField("client_id", clientID).Warn("Price refresh failed")
	}
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("client_id", cl.id).Warn("Observer read failed")
			}
			return
		}
		var in Envelope
		if err := json.Unmarshal(msg, &in); err != nil || in.Event != EventRequestPriceUpdate {
			continue
		}
		go h.requestRefresh(cl.id)
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
