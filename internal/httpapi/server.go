// Package httpapi exposes the directory and the board registry over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/arloliu/go-packedserial/board"
	"github.com/arloliu/go-packedserial/directory"
	"github.com/arloliu/go-packedserial/internal/config"
	"github.com/arloliu/go-packedserial/internal/metrics"
	"github.com/arloliu/go-packedserial/logger"
	"github.com/arloliu/go-packedserial/registry"
)

// Gateway is the board side of the API.
type Gateway interface {
	Boards() []board.Snapshot
	StartPairing(ctx context.Context, timeout time.Duration) error
	CancelPairing()
	SetProperty(ctx context.Context, thingID string, propertyName string, value any) error
	GetProperty(ctx context.Context, thingID string, propertyName string) error
}

// Directory is the read side of the API.
type Directory interface {
	Things() []board.ThingSnapshot
	Thing(thingID string) (board.ThingSnapshot, bool)
	Property(thingID string, propertyName string) (board.PropertyDescriptor, error)
	Subscribe(buffer int) (<-chan directory.Change, func())
}

// Deps are the collaborators of the API.
type Deps struct {
	Gateway        Gateway
	Directory      Directory
	MetricsPath    string
	MetricsHandler http.Handler
	// Metrics counts requests when set.
	Metrics *metrics.HTTPMetrics
	Logger  logger.Logger
	// DefaultPairingTimeout applies when POST /pairing carries no timeout.
	DefaultPairingTimeout time.Duration
}

// Server wraps the HTTP listener.
type Server struct {
	srv *http.Server
}

// New builds the API server.
func New(cfg config.HTTPConfig, deps Deps) *Server {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewRouter(cfg, deps),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{srv: srv}
}

// Start serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NewRouter registers the API routes.
func NewRouter(cfg config.HTTPConfig, deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.GetLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger), requestCounter(deps.Metrics))

	h := &handler{
		gw:             deps.Gateway,
		dir:            deps.Directory,
		logger:         deps.Logger,
		pairingTimeout: deps.DefaultPairingTimeout,
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", h.ready)

	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.MetricsHandler))
	}

	limit := rateLimiter(cfg.CommandRate, cfg.CommandBurst, deps.Metrics)

	r.GET("/things", h.listThings)
	r.GET("/things/:id", h.getThing)
	r.GET("/things/:id/properties/:name", h.getProperty)
	r.PUT("/things/:id/properties/:name", limit, h.setProperty)
	r.POST("/things/:id/properties/:name/refresh", limit, h.refreshProperty)
	r.GET("/changes", h.streamChanges)

	r.GET("/boards", h.listBoards)
	r.POST("/pairing", h.startPairing)
	r.DELETE("/pairing", h.cancelPairing)

	return r
}

func requestLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		l.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

func requestCounter(m *metrics.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if m == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// rateLimiter rejects commands beyond perSec with 429. A non-positive rate disables it.
func rateLimiter(perSec float64, burst int, m *metrics.HTTPMetrics) gin.HandlerFunc {
	if perSec <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(perSec), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			if m != nil {
				m.Limited.Inc()
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many commands"})

			return
		}
		c.Next()
	}
}

// statusOf maps command errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownThing),
		errors.Is(err, board.ErrUnknownThing),
		errors.Is(err, board.ErrUnknownProperty),
		errors.Is(err, directory.ErrUnknownThing),
		errors.Is(err, directory.ErrUnknownProperty):
		return http.StatusNotFound
	case errors.Is(err, board.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, board.ErrNotReady),
		errors.Is(err, board.ErrEnumerationInProgress),
		errors.Is(err, board.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
