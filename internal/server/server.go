// Package server exposes the signaling hub over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/peerdrop/peerdrop/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

// Server is the signaling rendezvous server.
type Server struct {
	addr string
	hub  *signaling.Hub
}

// New returns a server that will listen on addr.
func New(addr string, hub *signaling.Hub) *Server {
	return &Server{addr: addr, hub: hub}
}

// Handler returns the HTTP routes: /ws and / for WebSocket clients, /health
// for probes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthCheckHandler)
	mux.HandleFunc("/ws", ServeWs(s.hub))
	mux.HandleFunc("/", serveRoot(s.hub))
	return mux
}

// Run starts the hub and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logrus.WithField("addr", ln.Addr().String()).Info("signaling server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logrus.Info("signaling server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
