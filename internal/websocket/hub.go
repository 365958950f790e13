package websocket

import (
	"encoding/json"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"orgdirectory/internal/models"
	"orgdirectory/pkg/logger"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one WebSocket subscriber.
type Client struct {
	Conn Conn
	Mu   sync.Mutex
}

// Hub fans task events out to every connected client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
}

// NewHub returns an idle Hub. buffer bounds how many events may wait
// for delivery before Publish starts dropping them.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register, unregister and broadcast until Stop.
// It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
		case client := <-h.unregister:
			h.drop(client)
		case message := <-h.broadcast:
			for client := range h.clients {
				client.Mu.Lock()
				err := client.Conn.WriteMessage(websocket.TextMessage, message)
				client.Mu.Unlock()
				if err != nil {
					logger.ErrorLogger.Warn("Dropping websocket client", zap.Error(err))
					h.drop(client)
				}
			}
		case <-h.done:
			for client := range h.clients {
				h.drop(client)
			}
			return
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.Conn.Close()
	}
}

// Register adds a client. It blocks until Run picks it up.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish never blocks the caller: when the buffer is full the event is
// dropped and logged.
func (h *Hub) Publish(event models.TaskEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorLogger.Error("Error encoding task event", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		logger.SystemLogger.Warn("Task event dropped, hub buffer full",
			zap.String("type", string(event.Type)), zap.Int("task_id", event.Task.ID))
	}
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}
