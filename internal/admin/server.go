// Package admin serves the operator HTTP surface: liveness, readiness,
// Prometheus metrics and views of live sessions and the tenant route cache.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/avlgate/internal/auth"
	"github.com/danmuck/avlgate/internal/gateway"
	"github.com/danmuck/avlgate/internal/observability"
	"github.com/danmuck/avlgate/internal/protocol/avl"
	"github.com/danmuck/avlgate/internal/tenant"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const Version = "0.1.0"

// Sessions is the gateway view the admin surface reads.
type Sessions interface {
	Sessions() []gateway.SessionInfo
	Listening() bool
	ActiveConnections() int64
	AcceptedConnections() uint64
}

// RouteCache is the tenant cache view the admin surface reads and evicts from.
type RouteCache interface {
	Snapshot() []tenant.CacheEntryInfo
	Delete(id avl.Identity) bool
	TTL() time.Duration
}

type Config struct {
	Name        string
	Addr        string
	CorsOrigins []string
	// Tokens guards the session and cache routes with a bearer token when
	// non-empty. Health, readiness and metrics stay open.
	Tokens auth.StaticTokens
}

type Server struct {
	cfg      Config
	started  time.Time
	router   *gin.Engine
	sessions Sessions
	cache    RouteCache
	logger   zerolog.Logger
}

// New builds the operator HTTP server over the gateway and route cache.
func New(cfg Config, sessions Sessions, cache RouteCache, logger zerolog.Logger) *Server {
	observability.RegisterMetrics()
	if cfg.Name == "" {
		cfg.Name = "avlgate"
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		cfg:      cfg,
		started:  time.Now(),
		router:   r,
		sessions: sessions,
		cache:    cache,
		logger:   logger,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the gin engine for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.sessions != nil && s.sessions.Listening()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.started).String(),
			"service": s.cfg.Name,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ops := s.router.Group("/")
	if len(s.cfg.Tokens) > 0 {
		ops.Use(requireToken(s.cfg.Tokens))
	}

	ops.GET("/sessions", func(c *gin.Context) {
		if s.sessions == nil {
			c.JSON(http.StatusOK, gin.H{"sessions": []gateway.SessionInfo{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"active":   s.sessions.ActiveConnections(),
			"accepted": s.sessions.AcceptedConnections(),
			"sessions": s.sessions.Sessions(),
		})
	})

	ops.GET("/cache", func(c *gin.Context) {
		if s.cache == nil {
			c.JSON(http.StatusOK, gin.H{"entries": []tenant.CacheEntryInfo{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ttl":     s.cache.TTL().String(),
			"entries": s.cache.Snapshot(),
		})
	})

	ops.DELETE("/cache/:imei", func(c *gin.Context) {
		id, err := avl.ParseIdentity(c.Param("imei"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if s.cache == nil || !s.cache.Delete(id) {
			c.JSON(http.StatusNotFound, gin.H{"error": "route not cached"})
			return
		}
		s.logger.Info().Str("imei", id.String()).Msg("cached route evicted")
		c.JSON(http.StatusOK, gin.H{"status": "evicted", "imei": id.String()})
	})
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func requireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok || v.Validate(token) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
