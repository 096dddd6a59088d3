// Package http exposes the classifier stores over JSON.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server is the HTTP front of the service.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig mirrors the http section of config.yaml.
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// Rate is a limiter rate such as "100-S"; empty disables rate limiting.
	Rate        string `yaml:"rate"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodySize:    1 << 20,
	}
}

// NewServer builds the routed and wrapped handler for h.
func NewServer(config ServerConfig, h *Handlers, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler, err := NewHandler(config, h, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      handler,
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		logger: logger,
	}, nil
}

// NewHandler registers h on a fresh mux and wraps it in the middleware chain.
func NewHandler(config ServerConfig, h *Handlers, logger *zap.Logger) (http.Handler, error) {
	mux := http.NewServeMux()
	h.Register(mux)

	rateLimit, err := RateLimitMiddleware(config.Rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", config.Rate, err)
	}
	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger),
		CORSMiddleware(config.AllowedOrigins),
		rateLimit,
		RequestSizeMiddleware(maxBody),
	)
	return chain(mux), nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests for up to five seconds.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
