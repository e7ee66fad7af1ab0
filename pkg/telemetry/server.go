// Package telemetry serves the Prometheus text exposition endpoint for the
// rack and dc controllers.
package telemetry

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jihwankim/netwatch/pkg/reporting"
)

// shutdownTimeout bounds how long the scrape server drains on stop.
const shutdownTimeout = 1 * time.Second

// Server exposes /metrics on a configured port.
type Server struct {
	port   int
	logger *reporting.Logger
	ln     net.Listener
	srv    *http.Server
}

// NewServer creates a metrics server for the given gatherer.
func NewServer(port int, gatherer prometheus.Gatherer, logger *reporting.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		port:   port,
		logger: logger.WithComponent("metrics"),
		srv:    &http.Server{Handler: mux},
	}
}

// Listen binds the scrape port. A bind failure is unrecoverable.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind metrics port %d: %w", s.port, err)
	}
	s.ln = ln
	s.logger.Info("metrics endpoint up", "port", s.port, "path", "/metrics")
	return nil
}

// Addr returns the bound listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Serve blocks until the context is cancelled, then drains briefly.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("server is not listening")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
