package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server represents an HTTP server
type Server struct {
	srv   *http.Server
	errCh chan error
}

// New creates a new server instance
func New(handler http.Handler, port string) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		errCh: make(chan error, 1),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start binds the listener and serves in the background. Bind errors are
// returned directly; later serve errors arrive on Errors.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(ln net.Listener) error {
	go func() {
		err := s.srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
		close(s.errCh)
	}()
	return nil
}

// Errors reports a fatal serve error. It is closed when serving stops.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
