package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"dnicheck/internal/models"

	"github.com/gorilla/websocket"
)

// Hub fans job snapshots out to websocket subscribers. A subscriber either
// follows every task or a single one.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound events
	events chan event

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

// event is an encoded message and the task it concerns
type event struct {
	taskID string
	data   []byte
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		events:     make(chan event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers events until ctx is cancelled, then disconnects everyone
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Subscriber connected (task %q). Total subscribers: %d", client.taskID, n)

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.drop(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			log.Printf("Subscriber disconnected. Total subscribers: %d", n)

		case ev := <-h.events:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(ev.taskID) {
					continue
				}
				select {
				case client.send <- ev.data:
				default:
					// Slow consumer, it can still poll /progress
					h.drop(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop removes a client; h.mu must be held
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// Publish queues a job snapshot for its subscribers. It never blocks the
// processor: when the queue is full the snapshot is dropped.
func (h *Hub) Publish(job models.Job) {
	data := job.Snapshot()
	data["task_id"] = job.ID

	encoded, err := json.Marshal(NewMessage("job_progress", data))
	if err != nil {
		log.Printf("Error marshaling message: %v", err)
		return
	}

	select {
	case h.events <- event{taskID: job.ID, data: encoded}:
	default:
		log.Println("Event queue full, dropping message")
	}
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second
	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
	// Subscribers only send control frames
	maxMessageSize = 4 * 1024
)

// Client is one websocket subscriber
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	taskID string
}

// NewClient creates a subscriber. An empty taskID follows every task.
func NewClient(hub *Hub, conn *websocket.Conn, taskID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		taskID: taskID,
	}
}

func (c *Client) wants(taskID string) bool {
	return c.taskID == "" || c.taskID == taskID
}

// ReadPump drains the connection so pongs and close frames are processed
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// WritePump forwards queued events and keeps the connection alive with pings
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
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// Message is the envelope of every event sent to subscribers
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewMessage creates a new message
func NewMessage(messageType string, data interface{}) *Message {
	return &Message{
		Type: messageType,
		Data: data,
	}
}
