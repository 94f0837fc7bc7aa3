package server

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"oauth-bridge/internal/common/logging"
)

// Server wraps http.Server with the proxy's timeouts and optional TLS.
type Server struct {
	srv     *http.Server
	tlsCert string
	tlsKey  string
}

// New creates a new server instance. The write timeout leaves headroom
// over the upstream timeout so a slow provider never truncates a
// response mid-stream.
func New(handler http.Handler, port, tlsCert, tlsKey string, upstreamTimeout time.Duration) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         ":" + port,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: upstreamTimeout + 30*time.Second,
			IdleTimeout:  120 * time.Second,
		},
		tlsCert: tlsCert,
		tlsKey:  tlsKey,
	}
}

// Start begins serving in a background goroutine. A listen failure is
// reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)

	serve := s.srv.ListenAndServe
	if s.tlsCert != "" && s.tlsKey != "" {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		serve = func() error {
			return s.srv.ListenAndServeTLS(s.tlsCert, s.tlsKey)
		}
	}

	go func() {
		if err := serve(); err != nil && err != http.ErrServerClosed {
			logging.Error("server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
