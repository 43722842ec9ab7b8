package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dbehnke/dmr-nexus/pkg/bootconfig"
	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// Server is the dashboard's HTTP listener: a health/status API plus
// the websocket upgrade endpoint the Hub serves.
type Server struct {
	config bootconfig.DashboardConfig
	log    *logger.Logger
	hub    *Hub
	server *http.Server
	mu     sync.RWMutex
	addr   string
}

// NewServer creates a dashboard HTTP server around hub.
func NewServer(cfg bootconfig.DashboardConfig, hub *Hub, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &Server{config: cfg, hub: hub, log: log.WithComponent("dashboard")}
}

// Start runs the dashboard server until ctx is cancelled. A disabled
// config is a no-op.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("dashboard disabled")
		return nil
	}

	go s.hub.Run(ctx)
	go s.heartbeatLoop(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/dashboard/ws", s.hub.Handler())

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dashboard: listening on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("starting dashboard server", logger.String("address", s.addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down dashboard server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard: shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Addr returns the address the server actually bound to, useful when
// Port is 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Broadcast(Event{Type: "heartbeat", Data: map[string]interface{}{"clients": s.hub.ClientCount()}})
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "ok",
		"clients": s.hub.ClientCount(),
		"time":   time.Now().Unix(),
	})
}
