// Package httpapi exposes the two search endpoints over HTTP.  The
// authentication provider is external: requests arrive with identity headers
// already verified upstream, and this layer only translates them into a
// Principal.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nbdc/humandbs-pipeline/internal/config"
	"github.com/nbdc/humandbs-pipeline/internal/domain/auth"
	"github.com/nbdc/humandbs-pipeline/internal/monitoring/logging"
	"github.com/nbdc/humandbs-pipeline/internal/search/es"
	"github.com/nbdc/humandbs-pipeline/pkg/errors"
)

// Searcher is the query surface the handlers depend on.
type Searcher interface {
	SearchDatasets(ctx context.Context, p es.DatasetSearchParams, principal auth.Principal) (*es.DatasetPage, error)
	SearchResearches(ctx context.Context, p es.ResearchSearchParams, principal auth.Principal) (*es.ResearchPage, error)
}

// Server is the search API server.
type Server struct {
	engine    *gin.Engine
	http      *http.Server
	searcher  Searcher
	adminUIDs map[string]bool
	logger    logging.Logger
	shutdown  time.Duration
}

// New builds the server and its route tree.  gatherer feeds /metrics; pass
// nil to disable the endpoint.
func New(cfg config.ServerConfig, searcher Searcher, adminUIDs map[string]bool, gatherer pclient.Gatherer, logger logging.Logger) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:    engine,
		searcher:  searcher,
		adminUIDs: adminUIDs,
		logger:    logger,
		shutdown:  cfg.ShutdownTimeout,
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/api/v1")
	v1.GET("/datasets/search", s.searchDatasets)
	v1.GET("/researches/search", s.searchResearches)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the route tree; tests drive it directly.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("search API listening", logging.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.shutdown
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// principal derives the caller from the identity headers.  The admin flag is
// honored only for uids listed in the admin file; anyone else asking for the
// admin view is silently downgraded.
func (s *Server) principal(c *gin.Context) auth.Principal {
	p := auth.Principal{UserID: c.GetHeader("X-User-Id")}
	if c.GetHeader("X-Admin") == "true" && s.adminUIDs[p.UserID] {
		p.Admin = true
	}
	return p
}

func (s *Server) searchDatasets(c *gin.Context) {
	params, err := parseDatasetParams(c, "")
	if err != nil {
		badRequest(c, err)
		return
	}

	page, err := s.searcher.SearchDatasets(c.Request.Context(), *params, s.principal(c))
	if err != nil {
		s.internalError(c, "dataset search failed", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) searchResearches(c *gin.Context) {
	params, err := parseResearchParams(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	page, err := s.searcher.SearchResearches(c.Request.Context(), *params, s.principal(c))
	if err != nil {
		s.internalError(c, "research search failed", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    string(errors.ErrCodeValidation),
			"message": err.Error(),
		},
	})
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Error(msg, logging.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    string(errors.GetCode(err)),
			"message": msg,
		},
	})
}
