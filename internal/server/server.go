// Package server exposes the relay over HTTP/JSON for the watch-side client.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	apperrors "github.com/pokemonrocks9/thinking-of-you-backend/internal/errors"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/platform/config"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/platform/correlation"
	"github.com/pokemonrocks9/thinking-of-you-backend/internal/relay"
)

// relayService is the application surface the handlers need. Narrowed to an
// interface so handler tests can run against a mock.
type relayService interface {
	Register(ctx context.Context, linkCode, name, externalChannel string) (relay.RegisterResult, error)
	Ping(ctx context.Context, linkCode, senderName string, payload json.RawMessage) (relay.PingResult, error)
	Check(ctx context.Context, linkCode, recipientName string) (relay.CheckResult, error)
	WriteAux(ctx context.Context, linkCode string, blob json.RawMessage) error
	ReadAux(ctx context.Context, linkCode string) (json.RawMessage, error)
	RegisteredNames(ctx context.Context, linkCode string) ([]string, bool, error)
	SessionCount(ctx context.Context) (int, error)
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	relay     relayService
	startTime time.Time
}

func NewServer(cfg *config.Config, svc relayService, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(correlationMiddleware())
	e.Use(requestLoggerMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		relay:     svc,
		startTime: clock.Now(),
	}
	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLoggerMiddleware logs every completed request via slog. Health and
// metrics scrapes are skipped to keep the log readable.
func requestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return p == "/health" || p == "/health/live" || p == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.InfoContext(c.Request().Context(), "Request handled",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	})
}

// correlationMiddleware tags every request context with a correlation ID so
// all logs for one request can be tied together. An incoming
// X-Correlation-ID header wins over a generated one.
func correlationMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get("X-Correlation-ID")
			if id == "" {
				id = correlation.NewID()
			}
			ctx := correlation.WithID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
