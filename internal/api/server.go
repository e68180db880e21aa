// Package api exposes the read path, manual refresh, realtime endpoint and
// health/metrics over HTTP using gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"token-aggregator/internal/cache"
	"token-aggregator/internal/domain"
	"token-aggregator/internal/logger"
	"token-aggregator/internal/observability"
	"token-aggregator/internal/query"
	"token-aggregator/internal/refresh"
)

// Reader answers token queries.
type Reader interface {
	List(ctx context.Context, p query.ListParams) query.ListResult
	Get(ctx context.Context, address string) (*query.TokenDetail, error)
	Search(ctx context.Context, q string) ([]domain.AggregatedRecord, error)
}

// Refresher triggers and reports refresh cycles.
type Refresher interface {
	Refresh(ctx context.Context) bool
	Status() refresh.Status
}

// SnapshotReader exposes the current snapshot for /status.
type SnapshotReader interface {
	Current() *domain.Snapshot
}

// ClientCounter reports connected realtime clients.
type ClientCounter interface {
	ClientCount() int
}

// RateLimit configures the per-IP request limiter on /api routes.
type RateLimit struct {
	Enabled  bool
	Requests int
	Window   time.Duration
}

// Options configures a Server. Snapshots, Clients, Realtime and Cache are
// optional; rate limiting is skipped without a Cache.
type Options struct {
	Addr            string
	ShutdownTimeout time.Duration

	Reader    Reader
	Refresher Refresher
	Snapshots SnapshotReader
	Clients   ClientCounter
	Realtime  http.Handler
	Cache     cache.Cache

	RateLimit      RateLimit
	MetricsEnabled bool
	MetricsPath    string

	Logger logrus.FieldLogger
}

// Server hosts the HTTP API.
type Server struct {
	opts       Options
	router     *gin.Engine
	httpServer *http.Server
	started    time.Time

	// baseCtx carries values for refreshes triggered over HTTP.
	baseCtx context.Context
	log     logrus.FieldLogger
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":3000"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		opts:    opts,
		started: time.Now(),
		baseCtx: context.Background(),
		log:     logger.Component(opts.Logger, "api"),
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the router, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	s.httpServer = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("http server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.observe())

	router.GET("/health", s.health)
	router.GET("/status", s.status)
	if s.opts.MetricsEnabled {
		router.GET(s.opts.MetricsPath, gin.WrapH(observability.Handler()))
	}
	if s.opts.Realtime != nil {
		router.GET("/ws", gin.WrapH(s.opts.Realtime))
	}

	api := router.Group("/api")
	if s.opts.RateLimit.Enabled && s.opts.Cache != nil {
		api.Use(s.rateLimit())
	}
	api.GET("/tokens", s.listTokens)
	api.GET("/tokens/search", s.searchTokens)
	api.GET("/tokens/:address", s.getToken)
	api.POST("/refresh", s.triggerRefresh)

	return router
}
