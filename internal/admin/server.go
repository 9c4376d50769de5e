// Package admin exposes the search endpoint and the operator controls of the
// search cache over HTTP.
package admin

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gosearchcache "github.com/dgduncan/go-search-cache"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	AdminToken      string // Optional: bearer token required on /admin routes
	MetricsEnabled  bool
	MetricsEndpoint string              // default: /metrics
	MetricsGatherer prometheus.Gatherer // default: prometheus.DefaultGatherer
	Logger          *slog.Logger        // receives search failures
}

// New creates the HTTP server. exec answers /search requests through the cache.
func New(sc *gosearchcache.SearchCache, exec gosearchcache.Executor, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	handler := NewHandler(sc, exec, cfg.Logger)

	e.GET("/health", handler.Health)
	e.GET("/search", handler.Search)

	if cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean("/" + cfg.MetricsEndpoint)
		}
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	g := e.Group("/admin")
	if cfg.AdminToken != "" {
		g.Use(tokenAuth(cfg.AdminToken))
	}
	g.GET("/search-cache/stats", handler.Stats)
	g.POST("/search-cache/flush", handler.Flush)
	g.POST("/content-events", handler.ContentEvent)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

func tokenAuth(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			got, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			}
			return next(c)
		}
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
