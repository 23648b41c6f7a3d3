// Package httpapi exposes the curation workflow as a small JSON control API.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"CaseCurator/internal/config"
	"CaseCurator/internal/interchange"
	"CaseCurator/internal/scoring"
	"CaseCurator/internal/taxonomy"
	"CaseCurator/internal/usecase"
)

// Deps are the use cases and stores served by the API. Generator may be nil when
// no completion credentials are configured; generation routes then answer 503.
type Deps struct {
	Registry  *taxonomy.Registry
	Cases     scoring.Repository
	Engine    *scoring.Engine
	Generator *usecase.Generator
	Exporter  *interchange.Exporter
	Importer  *interchange.Importer
	Dataset   string
	// Concurrency bounds POST /validate when the request does not set it.
	Concurrency int
	Logger      *slog.Logger
}

// Server owns the gin router and the listening http.Server.
type Server struct {
	deps   Deps
	cfg    config.HTTPConfig
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the router. Call Handler for tests or Run to listen.
func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger.With("component", "httpapi")}
	s.router = s.routes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/quota", s.getQuota)

		v1.GET("/cases", s.listCases)
		v1.GET("/cases/:id", s.getCase)
		v1.DELETE("/cases/:id", s.deleteCase)
		v1.GET("/cases/:id/evaluations", s.listEvaluations)
		v1.POST("/cases/:id/review", s.reviewCase)

		v1.POST("/generate", s.generate)
		v1.POST("/bulk", s.submitBulk)
		v1.GET("/bulk/:id", s.pollBulk)
		v1.POST("/bulk/:id/collect", s.collectBulk)

		v1.POST("/validate", s.validate)

		v1.GET("/export", s.export)
		v1.POST("/import", s.importCases)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// Run listens on cfg.Addr until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
