// Package server exposes the status board over a read-only HTTP API and a
// Prometheus text endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kylerisse/icmpmonitor/pkg/status"
)

const (
	// DefaultRate is the sustained request rate allowed across all clients.
	DefaultRate = 200

	// DefaultBurst is the request burst allowed above DefaultRate.
	DefaultBurst = 500
)

// Server serves host status read from a status.Board.
type Server struct {
	board   *status.Board
	listen  string
	logger  *logrus.Logger
	limiter *rate.Limiter

	srv *http.Server
	ln  net.Listener
}

// NewServer creates a Server that will listen on addr.
func NewServer(board *status.Board, addr string, logger *logrus.Logger) *Server {
	return &Server{
		board:   board,
		listen:  addr,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), DefaultBurst),
	}
}

// Start binds the listen address and serves in the background. Errors
// binding the address are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.listen, err)
	}
	s.ln = ln

	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		s.logger.Infof("Starting API server on %v...", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("API server stopped: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.listen
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
