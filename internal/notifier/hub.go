package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsimoes215/AI-Content-Automation-sub005/pkg/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Replayable events kept per schedule
	defaultHistorySize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub maintains the set of active clients and fans schedule events out to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	seq        *sequencer
	remote     RemotePublisher
	logger     logging.Logger
	mutex      sync.RWMutex
}

// RemotePublisher forwards locally originated events to other instances.
// Optional; a nil publisher keeps the hub single-instance.
type RemotePublisher interface {
	PublishRemote(event Event) error
}

// Client represents a WebSocket subscriber connection
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	scheduleIDs map[string]bool // subscribed schedules; empty means none
	all         bool            // firehose subscription
	logger      logging.Logger
	mu          sync.Mutex
}

// SubscriptionMessage represents a subscription request from a client
type SubscriptionMessage struct {
	Action      string  `json:"action"` // "subscribe" or "unsubscribe"
	ScheduleID  string  `json:"schedule_id,omitempty"`
	All         bool    `json:"all,omitempty"`
	LastSeenSeq *uint64 `json:"last_seen_seq,omitempty"`
}

// NewHub creates a new notification hub
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		seq:        newSequencer(defaultHistorySize),
		logger:     logger,
	}
}

// SetRemote attaches a cross-instance publisher. Must be called before Run.
func (h *Hub) SetRemote(remote RemotePublisher) {
	h.remote = remote
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithFields(logging.Fields{
				"client_count": count,
			}).Info("Client disconnected")

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Publish stamps a locally originated event with its per-schedule sequence,
// delivers it to local subscribers, and forwards it to other instances.
func (h *Hub) Publish(event Event) {
	h.seq.stamp(&event)

	if h.remote != nil {
		if err := h.remote.PublishRemote(event); err != nil {
			h.logger.WithError(err).Warn("Failed to forward event to remote instances")
		}
	}

	select {
	case h.broadcast <- event:
	default:
		h.logger.WithFields(logging.Fields{
			"event_type":  event.Type,
			"schedule_id": event.ScheduleID,
		}).Warn("Broadcast channel full, dropping event")
	}
}

// DeliverRemote hands an event received from another instance to local
// subscribers. The origin already stamped the sequence.
func (h *Hub) DeliverRemote(event Event) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("Broadcast channel full, dropping remote event")
	}
}

// deliver sends an event to every subscribed client
func (h *Hub) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal event")
		return
	}

	h.mutex.RLock()
	var slow []*Client
	for client := range h.clients {
		if !client.wants(event.ScheduleID) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			// Slow consumer, drop the connection rather than block the hub
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mutex.Lock()
	for _, client := range slow {
		if _, ok := h.clients[client]; ok {
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.mutex.Unlock()
}

// GetStats returns hub statistics
func (h *Hub) GetStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	subscriptions := 0
	for client := range h.clients {
		client.mu.Lock()
		subscriptions += len(client.scheduleIDs)
		client.mu.Unlock()
	}

	return map[string]interface{}{
		"total_clients":          len(h.clients),
		"schedule_subscriptions": subscriptions,
	}
}

// ServeWS handles WebSocket requests from clients
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := &Client{
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 256),
		scheduleIDs: make(map[string]bool),
		logger:      h.logger,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) wants(scheduleID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.all {
		return true
	}
	if scheduleID == "" {
		return false
	}
	return c.scheduleIDs[scheduleID]
}

// readPump pumps subscription messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				c.logger.WithError(err).Error("WebSocket connection error")
			}
			break
		}

		var subMsg SubscriptionMessage
		if err := json.Unmarshal(message, &subMsg); err != nil {
			c.logger.WithError(err).Warn("Invalid subscription message")
			continue
		}

		c.handleSubscription(&subMsg)
	}
}

// writePump pumps events from the hub to the WebSocket connection
func (c *Client) writePump() {
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any queued events into the same frame
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

// handleSubscription processes subscription/unsubscription requests
func (c *Client) handleSubscription(msg *SubscriptionMessage) {
	switch msg.Action {
	case "subscribe":
		c.mu.Lock()
		if msg.All {
			c.all = true
		}
		if msg.ScheduleID != "" {
			c.scheduleIDs[msg.ScheduleID] = true
		}
		c.mu.Unlock()

		c.logger.WithFields(logging.Fields{
			"schedule_id": msg.ScheduleID,
			"all":         msg.All,
		}).Info("Client subscribed")

		response := map[string]interface{}{
			"type":        "subscription_confirmed",
			"schedule_id": msg.ScheduleID,
		}

		// Replay missed events when the client tells us where it left off
		if msg.ScheduleID != "" && msg.LastSeenSeq != nil {
			missed, ok := c.hub.seq.replay(msg.ScheduleID, *msg.LastSeenSeq)
			if !ok {
				// History no longer reaches back that far; the client must
				// refetch the schedule to resync.
				response["resync_required"] = true
			}
			c.sendMessage(response)
			for _, event := range missed {
				payload, err := json.Marshal(event)
				if err != nil {
					continue
				}
				c.enqueue(payload)
			}
			return
		}

		c.sendMessage(response)

	case "unsubscribe":
		c.mu.Lock()
		if msg.All {
			c.all = false
		}
		if msg.ScheduleID != "" {
			delete(c.scheduleIDs, msg.ScheduleID)
		}
		c.mu.Unlock()

		c.logger.WithFields(logging.Fields{
			"schedule_id": msg.ScheduleID,
		}).Info("Client unsubscribed")

		c.sendMessage(map[string]interface{}{
			"type":        "unsubscription_confirmed",
			"schedule_id": msg.ScheduleID,
		})
	}
}

// sendMessage sends an ad-hoc message to the client
func (c *Client) sendMessage(data map[string]interface{}) {
	message, err := json.Marshal(data)
	if err != nil {
		c.logger.WithError(err).Error("Failed to marshal client message")
		return
	}
	c.enqueue(message)
}

func (c *Client) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
		// Channel full, the read pump will reap the connection
	}
}
