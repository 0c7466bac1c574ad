package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/versesync/versesync/internal/logger"
	"github.com/versesync/versesync/pkg/sync/api/auth"
)

// EnvJWTSecret is the environment variable holding the JWT signing secret.
// It takes precedence over the configured value.
const EnvJWTSecret = "VERSESYNC_JWT_SECRET"

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Host is the listen address. Empty means all interfaces.
	Host string

	// Port is the TCP port to listen on. Defaults to 8080.
	Port int

	// JWTSecret signs API tokens. Must be at least 32 characters. The
	// VERSESYNC_JWT_SECRET environment variable takes precedence.
	JWTSecret string

	// AccessTokenDuration is the JWT access token lifetime, normally
	// derived from the jwt_expiration_hours setting.
	AccessTokenDuration time.Duration

	// ReadHeaderTimeout bounds header parsing. Body reads are unbounded
	// because uploads stream arbitrarily large files.
	ReadHeaderTimeout time.Duration

	// IdleTimeout closes idle keep-alive connections.
	IdleTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// jwtSecret returns the signing secret, preferring the environment.
func (c *ServerConfig) jwtSecret() string {
	if secret := os.Getenv(EnvJWTSecret); secret != "" {
		return secret
	}
	return c.JWTSecret
}

// Server is the sync HTTP server. It is created stopped; Start blocks until
// the context is cancelled, then shuts down gracefully.
type Server struct {
	server       *http.Server
	jwtService   *auth.JWTService
	config       ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the HTTP server and its router. The JWT service is
// created internally from the config secret.
func NewServer(config ServerConfig, deps RouterConfig) (*Server, error) {
	config.applyDefaults()

	secret := config.jwtSecret()
	if len(secret) < 32 {
		return nil, fmt.Errorf("JWT secret must be at least 32 characters; set via %s env var or config", EnvJWTSecret)
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:              secret,
		AccessTokenDuration: config.AccessTokenDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}
	deps.JWTService = jwtService

	router := NewRouter(deps)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           router,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		server:     server,
		jwtService: jwtService,
		config:     config,
	}, nil
}

// JWTService returns the server's JWT service.
func (s *Server) JWTService() *auth.JWTService {
	return s.jwtService
}

// Port returns the TCP port the server is configured to listen on.
func (s *Server) Port() int {
	return s.config.Port
}

// Start runs the server and blocks until the context is cancelled or the
// listener fails. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("sync server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("sync server shutdown signal received")
		// A fresh context: the cancelled one would abort the drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("sync server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("sync server shutdown error: %w", err)
			logger.Error("sync server shutdown error", "error", err)
		} else {
			logger.Info("sync server stopped gracefully")
		}
	})
	return shutdownErr
}
