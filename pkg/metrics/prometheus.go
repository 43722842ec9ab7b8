package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dbehnke/dmr-nexus/pkg/logger"
)

// ServerConfig holds the metrics HTTP server's listen settings.
type ServerConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// Server serves a Collector's metrics over HTTP in the Prometheus
// text exposition format.
type Server struct {
	config    ServerConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
}

// NewServer creates a metrics HTTP server for collector.
func NewServer(config ServerConfig, collector *Collector, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New(logger.Config{Level: "info", Format: "text"})
	}
	return &Server{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
	}
}

// Start runs the metrics server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.log.Info("metrics server disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(s.config.Path, promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{}))

	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics: listening on %s: %w", addr, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{Handler: mux}

	s.log.Info("starting metrics server",
		logger.Int("port", actualPort),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// Stop shuts the server down immediately, outside of ctx lifecycle.
func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctx)
	}
}
