package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"

	"github.com/taskly/trackd/internal/log"
	"github.com/taskly/trackd/internal/model"
)

// Dispatcher routes decoded command messages to their owning subsystem.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd model.Command) error
}

// ServerConfig is the configuration for the hub HTTP server.
type ServerConfig struct {
	ListenAddr string
	Hub        *Hub
	Dispatcher Dispatcher
	Logger     log.Logger
	// KeepAliveInterval is the SSE comment ping period.
	KeepAliveInterval time.Duration
}

func (c *ServerConfig) defaults() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":7321"
	}
	if c.Hub == nil {
		return fmt.Errorf("hub is required")
	}
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "hub.Server"})
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = 25 * time.Second
	}
	return nil
}

// Server is the HTTP surface client views talk to: commands in via POST,
// broadcasts out via a server-sent event stream.
type Server struct {
	server     *http.Server
	hub        *Hub
	dispatcher Dispatcher
	logger     log.Logger
	keepAlive  time.Duration
}

// NewServer creates a new hub server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	s := &Server{
		hub:        cfg.Hub,
		dispatcher: cfg.Dispatcher,
		logger:     cfg.Logger,
		keepAlive:  cfg.KeepAliveInterval,
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/messages", s.handleMessage)
	r.Get("/v1/events", s.handleEvents)

	s.server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	return s, nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run starts the server and blocks until ctx is cancelled. It performs a
// graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("hub listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("hub server error: %w", err)
	case <-ctx.Done():
		s.logger.Infof("shutting down hub")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("hub shutdown error: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var cmd model.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	if err := s.dispatcher.Dispatch(r.Context(), cmd); err != nil {
		if errors.Is(err, model.ErrNotValid) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Errorf("could not handle %s message: %s", cmd.Type, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "message handling failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := s.hub.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}

			payload, err := json.Marshal(e)
			if err != nil {
				s.logger.Errorf("could not marshal %s event: %s", e.Type, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
