package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/yegors/memorec/pkg/logger"
)

// shutdownTimeout bounds how long open viewer requests may delay exit
const shutdownTimeout = 5 * time.Second

// Server serves the viewer until its context is cancelled
type Server struct {
	server *http.Server
	logger *logger.Logger
}

// NewServer creates a viewer server listening on addr
func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: log.Named("api-server"),
	}
}

// Run listens and serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.logger.Info("Viewer listening", logger.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("Viewer stopped")
	return nil
}
