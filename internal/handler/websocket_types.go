// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"glider-device-service/internal/model"
)

// Client is one websocket connection and the events it asked for
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	Type        string          `json:"type"` // events, device, operations
	DeviceIndex *int            `json:"device_index,omitempty"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	subscription *Subscription
	done         chan struct{}
	closeOnce    sync.Once

	mu     sync.RWMutex
	topics map[model.EventType]bool
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Subscribe limits the client to the given event types, adding to the
// ones already subscribed
func (c *Client) Subscribe(eventType model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics == nil {
		c.topics = make(map[model.EventType]bool)
	}
	c.topics[eventType] = true
}

func (c *Client) Unsubscribe(eventType model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, eventType)
}

// Topics returns the subscribed event types; empty means all
func (c *Client) Topics() []model.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]model.EventType, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	return topics
}

// Accepts reports whether event should be sent to the client
func (c *Client) Accepts(event model.DeviceEvent) bool {
	if c.DeviceIndex != nil && event.DeviceIndex != *c.DeviceIndex {
		return false
	}

	switch c.Type {
	case "operations":
		switch event.EventType {
		case model.EventOperationStarted, model.EventOperationProgress,
			model.EventOperationCompleted, model.EventOperationFailed:
		default:
			return false
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.topics) == 0 || c.topics[event.EventType]
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager tracks the connected clients
type ConnectionManager struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{clients: make(map[string]*Client)}
}

func (cm *ConnectionManager) Register(client *Client) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.clients[client.ID] = client
}

// Unregister forgets client and reports whether it was registered
func (cm *ConnectionManager) Unregister(client *Client) bool {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if _, ok := cm.clients[client.ID]; !ok {
		return false
	}
	delete(cm.clients, client.ID)
	return true
}

// All returns every connected client
func (cm *ConnectionManager) All() []*Client {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	clients := make([]*Client, 0, len(cm.clients))
	for _, client := range cm.clients {
		clients = append(clients, client)
	}
	return clients
}

func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByType:           make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		stats.ByType[client.Type]++
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByType           map[string]int `json:"by_type"`
	Clients          []*Client      `json:"clients"`
}
