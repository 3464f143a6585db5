package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
)

// HubConfig is the configuration for the client hub.
type HubConfig struct {
	Logger log.Logger
	// ClientBuffer is the per-client event buffer. A client that falls this
	// far behind starts dropping events (delivery is fire-and-forget).
	ClientBuffer int
}

func (c *HubConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hub.Hub"})
	if c.ClientBuffer == 0 {
		c.ClientBuffer = 16
	}
	return nil
}

// Hub is the registry of connected client views. Events broadcast through
// it reach every connected view; there is no targeted delivery.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan model.Event]struct{}
	buffer  int
	logger  log.Logger
}

// NewHub creates a new hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Hub{
		clients: make(map[chan model.Event]struct{}),
		buffer:  cfg.ClientBuffer,
		logger:  cfg.Logger,
	}, nil
}

// Subscribe registers a new client view and returns its event channel plus
// an unsubscribe function. The channel is closed on unsubscribe.
func (h *Hub) Subscribe() (<-chan model.Event, func()) {
	ch := make(chan model.Event, h.buffer)

	h.mu.Lock()
	h.clients[ch] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debugf("client connected (%d total)", count)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.clients, ch)
			count := len(h.clients)
			h.mu.Unlock()
			close(ch)
			h.logger.Debugf("client disconnected (%d total)", count)
		})
	}

	return ch, cancel
}

// Broadcast sends an event to every connected client. Slow clients drop
// events rather than block the sender.
func (h *Hub) Broadcast(e model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- e:
		default:
			h.logger.Warningf("dropping %s event for slow client", e.Type)
		}
	}
}

// ShowNotification broadcasts an immediate notification display request to
// all connected clients. Clients collapse duplicates by tag.
func (h *Hub) ShowNotification(ctx context.Context, opts model.NotificationOptions) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid notification options: %w", err)
	}

	h.Broadcast(model.Event{Type: model.MessageTypeShowNotification, Options: &opts})
	return nil
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
