package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// Hub tracks the WebSocket clients watching the poll and pushes events to them.
// With a Redis bridge, events go through Redis so every instance delivers each event once.
type Hub struct {
	pollID   string
	clients  map[string]*Client
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
	unsub    func()
}

// RedisPublisher publishes poll events for cross-instance broadcast.
type RedisPublisher interface {
	PublishPollEvent(pollID, event string, payload []byte) error
}

// RedisSubscriber subscribes to the poll channel and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribePoll(pollID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a hub for pollID. redisPub and redisSub may both be nil for a single instance.
func NewHub(pollID string, logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		pollID:   pollID,
		clients:  make(map[string]*Client),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Start subscribes to the Redis channel when a subscriber is configured.
func (h *Hub) Start() error {
	if h.redisSub == nil {
		return nil
	}
	cancel, err := h.redisSub.SubscribePoll(h.pollID, func(event string, payload []byte) {
		h.Broadcast(event, json.RawMessage(payload))
	})
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.unsub = cancel
	h.mu.Unlock()
	return nil
}

// Close drops the Redis subscription and disconnects all clients.
func (h *Hub) Close() {
	h.mu.Lock()
	unsub := h.unsub
	h.unsub = nil
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	for _, c := range clients {
		c.closeSend()
	}
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("client joined", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	delete(h.clients, c.ID)
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		c.closeSend()
	}
	h.logger.Debug("client left", zap.String("client_id", c.ID), zap.Int("clients", count))
}

// Broadcast sends a message to all local clients.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.trySend(msg)
	}
}

// BroadcastAndPublish delivers an event to every watcher. With Redis the local delivery
// happens through the subscription, so local clients are not sent the event twice. If
// the publish fails the event is still delivered locally.
func (h *Hub) BroadcastAndPublish(event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(event, payload)
		return
	}
	data, err := encode(payload)
	if err != nil {
		h.logger.Warn("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.redis.PublishPollEvent(h.pollID, event, data); err != nil {
		h.logger.Warn("redis publish failed, broadcasting locally", zap.String("event", event), zap.Error(err))
		h.Broadcast(event, json.RawMessage(data))
	}
}

// SendToClient sends a message to a single client.
func (h *Hub) SendToClient(clientID, event string, payload interface{}) {
	data, err := encode(payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[clientID]; ok {
		c.trySend(WSMessage{Event: event, Data: data})
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func encode(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
