package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps the stdlib HTTP server with the middleware chain.
type Server struct {
	server *http.Server
	config ServerConfig
	log    *zap.Logger
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

func NewServer(config ServerConfig, handlers *Handlers, log *zap.Logger) *Server {
	mux := http.NewServeMux()
	handlers.Register(mux)

	chain := Chain(
		Recovery(log),
		RequestLogger(log),
		SecurityHeaders,
		CORS(config.AllowedOrigins),
		RequestSize(config.MaxBodyBytes),
	)

	return &Server{
		server: &http.Server{
			Addr: fmt.Sprintf(":%d", config.Port),
			// WriteTimeout is deliberately unset: it would cut off the
			// stats websocket. Per-request deadlines belong to callers.
			Handler:           chain(mux),
			ReadHeaderTimeout: config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		log:    log,
	}
}

func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.log.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
