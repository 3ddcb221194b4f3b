package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/internal/indexing"
	"github.com/conky/docsearch/internal/metrics"
	"github.com/conky/docsearch/internal/navigation"
	"github.com/conky/docsearch/internal/search"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"github.com/zeebo/blake3"
	"golang.org/x/time/rate"
)

// ArtifactRoute is where the serialized index is published
const ArtifactRoute = "/static/search-index.json"

const (
	maxLimit        = 100
	shutdownTimeout = 5 * time.Second
	requestIDHeader = "X-Request-ID"
)

type artifact struct {
	data []byte
	etag string
}

// Server publishes the search index and a JSON search API
type Server struct {
	cfg      *config.Config
	loader   *search.Loader
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	artifact atomic.Pointer[artifact]
}

// New creates a server around loader. The artifact becomes available once
// Fetch has run.
func New(cfg *config.Config, loader *search.Loader, m *metrics.Metrics) *Server {
	s := &Server{cfg: cfg, loader: loader, metrics: m}
	if cfg.Server.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.Server.RateLimit), cfg.Server.Burst)
	}
	return s
}

// Fetch returns a loader fetch function that reads the artifact from read,
// keeps the raw bytes for publishing and decodes them for searching
func (s *Server) Fetch(read func(ctx context.Context) ([]byte, error)) search.FetchFunc {
	return func(ctx context.Context) (*indexing.SearchIndex, error) {
		data, err := read(ctx)
		if err != nil {
			return nil, err
		}
		idx, err := indexing.DecodeArtifact(data)
		if err != nil {
			return nil, err
		}
		s.SetArtifact(data)
		if s.metrics != nil {
			s.metrics.ObserveIndex(idx)
		}
		return idx, nil
	}
}

// SetArtifact publishes data at ArtifactRoute
func (s *Server) SetArtifact(data []byte) {
	sum := blake3.Sum256(data)
	s.artifact.Store(&artifact{
		data: data,
		etag: `"` + hex.EncodeToString(sum[:16]) + `"`,
	})
}

// SetupRouter builds the gin engine with all routes
func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET(ArtifactRoute, s.Artifact)
	r.GET("/healthz", s.Health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	api := r.Group("/api", s.rateLimit())
	api.GET("/search", s.Search)
	api.GET("/navigate", s.Navigate)

	return r
}

// Handler returns the router with gzip compression applied
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.SetupRouter())
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("✓ HTTP server listening on %s", s.cfg.Server.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Printf("✓ HTTP server stopped")
	return nil
}

// Artifact serves the serialized index with an ETag
func (s *Server) Artifact(c *gin.Context) {
	a := s.artifact.Load()
	if a == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": s.loader.State().String()})
		return
	}

	c.Header("ETag", a.etag)
	c.Header("Cache-Control", "public, max-age=300")
	if c.GetHeader("If-None-Match") == a.etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json", a.data)
}

// Health reports the index load state
func (s *Server) Health(c *gin.Context) {
	resp := gin.H{"index": s.loader.State().String()}
	if e, ok := s.loader.Engine(); ok {
		resp["records"] = e.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// SearchHit is one search result as returned by the API
type SearchHit struct {
	Kind     indexing.Kind `json:"kind"`
	Name     string        `json:"name"`
	Desc     string        `json:"desc"`
	Excerpt  string        `json:"excerpt"`
	Score    float64       `json:"score"`
	RefIndex int           `json:"ref_index"`
	Path     string        `json:"path"`
}

// SearchResponse is the body of /api/search
type SearchResponse struct {
	Query   string      `json:"query"`
	Loading bool        `json:"loading"`
	Total   int         `json:"total"`
	Results []SearchHit `json:"results"`
}

// Search answers /api/search?q=...&limit=N
func (s *Server) Search(c *gin.Context) {
	query := c.Query("q")
	limit := s.cfg.Search.MaxResults
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLimit)
	}

	start := time.Now()
	results, err := s.loader.Search(query)
	if err != nil {
		if errors.Is(err, search.ErrIndexLoading) {
			s.observeSearch(metrics.OutcomeLoading, 0, start)
			c.JSON(http.StatusOK, SearchResponse{Query: query, Loading: true, Results: []SearchHit{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	outcome := metrics.OutcomeHit
	switch {
	case query == "":
		outcome = metrics.OutcomeEmpty
	case len(results) == 0:
		outcome = metrics.OutcomeMiss
	}
	s.observeSearch(outcome, len(results), start)

	resp := SearchResponse{Query: query, Total: len(results), Results: make([]SearchHit, 0, min(len(results), limit))}
	for _, r := range results {
		if len(resp.Results) == limit {
			break
		}
		hit := SearchHit{
			Kind:     r.Record.Kind,
			Name:     r.Record.Name,
			Desc:     r.Record.Desc,
			Excerpt:  indexing.Excerpt(r.Record.Desc, indexing.ExcerptChars),
			Score:    r.Score,
			RefIndex: r.RefIndex,
		}
		if req, err := navigation.Resolve(*r.Record); err == nil {
			hit.Path = req.Path()
		}
		resp.Results = append(resp.Results, hit)
	}
	c.JSON(http.StatusOK, resp)
}

// NavigateResponse is the body of /api/navigate
type NavigateResponse struct {
	navigation.Request
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Navigate resolves /api/navigate?kind=var&name=cpu to its page and anchor
func (s *Server) Navigate(c *gin.Context) {
	rec := indexing.DocRecord{Kind: indexing.Kind(c.Query("kind")), Name: c.Query("name")}
	if rec.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	req, err := navigation.Resolve(rec)
	if err != nil {
		log.Printf("Error: navigation rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if e, ok := s.loader.Engine(); ok && !contains(e.Index(), rec) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no %s entry named %q", rec.Kind, rec.Name)})
		return
	}

	url, err := req.URL(s.cfg.Docs.BaseURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.metrics != nil {
		s.metrics.NavigationsTotal.WithLabelValues(string(req.Page)).Inc()
	}
	c.JSON(http.StatusOK, NavigateResponse{Request: req, Path: req.Path(), URL: url})
}

func contains(idx *indexing.SearchIndex, rec indexing.DocRecord) bool {
	for _, r := range idx.List {
		if r.Kind == rec.Kind && r.Name == rec.Name {
			return true
		}
	}
	return false
}

func (s *Server) observeSearch(outcome string, n int, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(outcome).Inc()
	if outcome != metrics.OutcomeLoading {
		s.metrics.SearchDurationSeconds.Observe(time.Since(start).Seconds())
		s.metrics.SearchResults.Observe(float64(n))
	}
}

// requestLogger tags each request with an ID and logs it once it completes
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		}
		log.Printf("%s %s %d %v [%s]", c.Request.Method, c.Request.URL.Path, status,
			time.Since(start).Round(time.Microsecond), id)
	}
}

// rateLimit rejects API requests above the configured rate
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter != nil && !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
