package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rocketDuck/folivora/internal/logger"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// ServerConfig holds admin server settings.
type ServerConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
}

// Server wraps the admin HTTP server.
type Server struct {
	srv *http.Server
	log logger.Logger
}

// NewServer creates the admin server.
func NewServer(cfg ServerConfig, router *gin.Engine, log logger.Logger) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		log: log,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("Admin server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
