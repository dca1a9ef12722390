package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/tinytelemetry/queryview/internal/duckdb"
	"github.com/tinytelemetry/queryview/internal/jobs"
	"github.com/tinytelemetry/queryview/internal/model"
	"github.com/tinytelemetry/queryview/internal/runner"
	"github.com/tinytelemetry/queryview/internal/service"
)

// API is the service contract required by the HTTP server.
type API interface {
	model.QueryService
	Embedded(ctx context.Context, token string, queryID, visualizationID int64) (model.Query, model.Visualization, error)
}

// Server provides the REST API and the public embed endpoint.
type Server struct {
	addr      string
	api       API
	metrics   prometheus.Gatherer
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server. metrics may be nil.
func NewServer(addr string, api API, metrics prometheus.Gatherer) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		api:       api,
		metrics:   metrics,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/queries", s.handleListQueries)
	api.GET("/queries/:id", s.handleGetQuery)
	api.POST("/queries/:id", s.handleUpdateQuery)
	api.GET("/queries/:id/embed", s.handleEmbedURL)
	api.GET("/data_sources/:id", s.handleGetDataSource)
	api.POST("/query_results", s.handleExecute)
	api.GET("/jobs/:id", s.handlePollJob)
	api.DELETE("/jobs/:id", s.handleCancelJob)
	api.POST("/visualizations", s.handleSaveVisualization)
	api.POST("/visualizations/:id", s.handleSaveVisualization)
	api.DELETE("/visualizations/:id", s.handleDeleteVisualization)
	api.POST("/dashboards/:slug/widgets", s.handleAddWidget)

	r.GET("/embed/query/:id/visualization/:vid", s.handleEmbed)

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	log.Printf("httpserver: listening on %s", listener.Addr())

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, duckdb.ErrNotFound), errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidEmbedToken):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrDataSourcePaused):
		return http.StatusConflict
	case errors.Is(err, runner.ErrInvalidParameter), errors.Is(err, runner.ErrNotReadOnly):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("httpserver: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
