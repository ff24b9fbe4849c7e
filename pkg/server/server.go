// Package server provides the HTTP server core for medassistd.
//
// The server wires an Echo router with recovery, request id and
// request logging middleware, serves the liveness route, and shuts
// down gracefully when its context is cancelled. API routes are
// mounted by the caller through the Echo accessor.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/medassistd/internal/config"
	"github.com/fyrsmithlabs/medassistd/internal/logging"
)

// Server is the HTTP listener.
type Server struct {
	cfg     config.ServerConfig
	service string
	echo    *echo.Echo
	logger  *logging.Logger
}

// HealthResponse is the JSON body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// NewServer creates the HTTP server core. Routes beyond the health
// check are mounted by the caller via Echo().
func NewServer(cfg config.ServerConfig, service string, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout.Duration()
	e.Server.WriteTimeout = cfg.WriteTimeout.Duration()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		cfg:     cfg,
		service: service,
		echo:    e,
		logger:  logger,
	}
	e.GET("/health", s.handleHealth)

	return s
}

// requestLogger logs one line per request, tagged with the request id.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Service: s.service})
}

// Start runs the listener until ctx is cancelled, then shuts down
// gracefully within the configured timeout. Returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info(ctx, "http server started", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.cfg.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		s.logger.Info(context.Background(), "http server stopped")
		return http.ErrServerClosed
	}
}

// Echo returns the router for mounting API routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
