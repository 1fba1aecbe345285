package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
)

// Server 在 TCP 上提供 HTTP 服务，ctx 取消后优雅关闭
// Server serves HTTP on a TCP listener. Serve blocks until ctx is cancelled
// and in-flight requests drain.
type Server struct {
	address         string
	handler         http.Handler
	logger          *log.Logger
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration

	ready chan struct{}
	addr  net.Addr
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Address         string
	Handler         http.Handler
	Logger          *log.Logger
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Address == "" {
		panic("transport.Server: Address is required")
	}
	if cfg.Handler == nil {
		panic("transport.Server: Handler is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		address:         cfg.Address,
		handler:         cfg.Handler,
		logger:          logger,
		readTimeout:     cfg.ReadTimeout,
		writeTimeout:    cfg.WriteTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		ready:           make(chan struct{}),
	}
	if s.readTimeout <= 0 {
		s.readTimeout = 30 * time.Second
	}
	if s.writeTimeout <= 0 {
		s.writeTimeout = 120 * time.Second
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}
	return s
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the resolved listen address; valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.address)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("http server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "http server shutdown")
	}
	s.logger.Info("http server stopped")
	return nil
}
