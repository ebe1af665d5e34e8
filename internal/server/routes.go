package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	limiter := newIPRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// The PebbleKit client calls these under /api; the documented surface
	// is at the root. Both prefixes serve the same handlers.
	for _, g := range []*echo.Group{s.echo.Group(""), s.echo.Group("/api")} {
		g.POST("/register", s.handleRegister, limiter.middleware())
		g.POST("/ping", s.handlePing, limiter.middleware())
		g.GET("/check", s.handleCheck)
		g.POST("/distance", s.handleWriteDistance, limiter.middleware())
		g.GET("/distance", s.handleReadDistance)
		g.GET("/whoIsRegistered", s.handleWhoIsRegistered)
	}
}
