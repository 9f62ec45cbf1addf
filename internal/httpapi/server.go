// Package httpapi exposes the pipeline over HTTP with gin.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roach88/narrator/internal/domain"
	"github.com/roach88/narrator/internal/pipeline"
)

// Service is the pipeline surface the handlers call.
type Service interface {
	Enqueue(ctx context.Context, lobbyID string, t domain.EventType, key string, payload json.RawMessage) (pipeline.EnqueueResult, error)
	ProcessQueue(ctx context.Context, opts pipeline.Options) (pipeline.Stats, error)
	ProcessQueueAsync(ctx context.Context, opts pipeline.Options) <-chan pipeline.AsyncResult
	ListEvents(ctx context.Context, f domain.ListFilter) ([]domain.Event, error)
	Inspect(ctx context.Context, eventID string) (pipeline.Inspection, error)
	Requeue(ctx context.Context, eventID string) error
	Healthy(ctx context.Context) error
}

// Config configures a Server.
type Config struct {
	// Token is the bearer token for operator endpoints. Empty disables them.
	Token        string
	ProcessRPS   float64
	ProcessBurst int
	Logger       *zap.Logger
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc     Service
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	engine  *gin.Engine
}

// New builds the router.
func New(svc Service, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.ProcessRPS <= 0 {
		cfg.ProcessRPS = 5
	}
	if cfg.ProcessBurst <= 0 {
		cfg.ProcessBurst = 10
	}

	s := &Server{
		svc:     svc,
		cfg:     cfg,
		logger:  cfg.Logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.ProcessRPS), cfg.ProcessBurst),
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/lobbies/:lobbyId/events", s.enqueue)

	ops := v1.Group("", bearerAuth(s.cfg.Token))
	ops.POST("/queue/process", rateLimit(s.limiter), s.process)
	ops.GET("/events", s.listEvents)
	ops.GET("/events/:id", s.inspect)
	ops.POST("/events/:id/requeue", s.requeue)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http server stopped")
		return nil
	}
}
