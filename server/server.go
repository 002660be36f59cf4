// Package server exposes an Exchange over HTTP.
//
// Routes:
//
//	GET  /                                     service banner
//	GET  /health                               liveness and registry counts
//	GET  /metrics                              Prometheus exposition
//	POST /chat                                 synchronous exchange
//	POST /chat/stream                          streaming exchange as server-sent events
//	POST /session/:session_id/bind             bind a conversation to a session
//	POST /session/:session_id/clear            drop a session
//	GET  /session/:session_id/info             session record
//	GET  /conversation/:conversation_id/session  reverse lookup
//	GET  /sessions?limit=&offset=              paginated session listing
//
// Additional handlers, such as the Connect session service, are mounted
// with WithHandler.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tailored-agentic-units/relay/exchange"
	"github.com/tailored-agentic-units/relay/session"
)

// Version is reported by the banner route.
var Version = "1.1.0"

const serviceName = "relay"

type mount struct {
	prefix  string
	handler http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for request and lifecycle logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithHandler mounts h for every path under prefix. prefix must end in "/".
func WithHandler(prefix string, h http.Handler) Option {
	return func(s *Server) { s.mounts = append(s.mounts, mount{prefix: prefix, handler: h}) }
}

// Server serves one Exchange.
type Server struct {
	cfg      Config
	exchange *exchange.Exchange
	sweeper  *session.Sweeper
	logger   *slog.Logger
	metrics  http.Handler
	mounts   []mount
	engine   *gin.Engine
	started  time.Time
}

// New creates a Server for x.
func New(cfg *Config, x *exchange.Exchange, opts ...Option) *Server {
	merged := DefaultConfig()
	if cfg != nil {
		merged.Merge(cfg)
	}

	s := &Server{
		cfg:      merged,
		exchange: x,
		logger:   slog.Default(),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sweeper = session.NewSweeper(x.Registry(), x.Observer())

	registerValidations()
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Config returns the merged server configuration.
func (s *Server) Config() Config {
	return s.cfg
}

func (s *Server) routes() *gin.Engine {
	if s.cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))
	r.Use(requestLogger(s.logger))
	r.Use(cors(s.cfg.AllowedOrigins))
	r.Use(limitBody(s.cfg.MaxRequestSize))

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	r.POST("/chat", s.handleChat)
	r.POST("/chat/stream", s.handleChatStream)

	sessions := r.Group("/session/:session_id")
	{
		sessions.POST("/bind", s.handleBind)
		sessions.POST("/clear", s.handleClear)
		sessions.GET("/info", s.handleInfo)
	}
	r.GET("/conversation/:conversation_id/session", s.handleConversation)
	r.GET("/sessions", s.handleList)

	for _, m := range s.mounts {
		r.Any(strings.TrimSuffix(m.prefix, "/")+"/*method", gin.WrapH(m.handler))
	}

	r.NoRoute(func(c *gin.Context) {
		s.writeError(c, notFound(c.Request.URL.Path))
	})
	return r
}

// Run serves HTTP and sweeps idle sessions until ctx ends, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.sweeper.Start(ctx)
	defer s.sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
