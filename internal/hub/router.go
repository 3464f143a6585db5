package hub

import (
	"context"
	"fmt"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
)

// HandlerFunc handles one command message type.
type HandlerFunc func(ctx context.Context, cmd model.Command) error

// Router dispatches command messages to the subsystem that owns each message
// type. The dispatch table is closed: unknown types are dropped with a debug
// log instead of falling through string checks.
type Router struct {
	handlers map[model.MessageType]HandlerFunc
	logger   log.Logger
}

// NewRouter creates a new message router.
func NewRouter(logger log.Logger) *Router {
	if logger == nil {
		logger = log.Noop
	}

	return &Router{
		handlers: make(map[model.MessageType]HandlerFunc),
		logger:   logger.WithValues(log.Kv{"svc": "hub.Router"}),
	}
}

// Register binds a message type to a handler. Registering the same type
// twice is a programming error.
func (r *Router) Register(t model.MessageType, h HandlerFunc) error {
	if _, ok := r.handlers[t]; ok {
		return fmt.Errorf("handler for %s already registered: %w", t, model.ErrAlreadyExists)
	}

	r.handlers[t] = h
	return nil
}

// Dispatch validates the command at the boundary and routes it. Unknown
// message types are ignored silently (the channel is shared with unrelated
// message traffic).
func (r *Router) Dispatch(ctx context.Context, cmd model.Command) error {
	handler, ok := r.handlers[cmd.Type]
	if !ok {
		r.logger.Debugf("ignoring unknown message type %q", cmd.Type)
		return nil
	}

	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("malformed %s command: %w", cmd.Type, err)
	}

	return handler(ctx, cmd)
}
