// Package httpserver exposes the setwatch collections and the update job over
// a JSON REST API.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/setwatch/setwatch/internal/model"
	"github.com/sirupsen/logrus"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = "127.0.0.1:5000"

// Server provides the HTTP API.
type Server struct {
	addr      string
	store     model.TrackQuerier
	jobs      model.JobController
	log       *logrus.Entry
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, store model.TrackQuerier, jobs model.JobController, log *logrus.Entry) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		store:     store,
		jobs:      jobs,
		log:       log.WithField("component", "httpserver"),
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler returns the gin engine with every API route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/songs/:collection", s.handleSongs)
	api.GET("/search/:collection", s.handleSearch)
	api.GET("/stats", s.handleStats)
	api.POST("/update", s.handleUpdate)
	api.GET("/update-status", s.handleUpdateStatus)
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
	s.addr = listener.Addr().String()
	s.log.WithField("addr", s.addr).Info("http api listening")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()
	return nil
}

// Addr returns the listen address. After Start it is the bound address, so a
// ":0" port is resolved.
func (s *Server) Addr() string { return s.addr }

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

func (s *Server) handleHealth(c *gin.Context) {
	stats, err := s.store.CollectionStats(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("health check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
		"tracks": stats.All,
	})
}

func (s *Server) handleSongs(c *gin.Context) {
	s.servePage(c, c.Query("search"))
}

func (s *Server) handleSearch(c *gin.Context) {
	s.servePage(c, c.Query("q"))
}

func (s *Server) servePage(c *gin.Context, search string) {
	collection, ok := model.ParseCollection(c.Param("collection"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid collection"})
		return
	}
	page, err := intQuery(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	perPage, err := intQuery(c, "per_page", model.DefaultPerPage)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.store.TracksPage(c.Request.Context(), model.PageQuery{
		Collection: collection,
		Page:       page,
		PerPage:    perPage,
		Search:     strings.TrimSpace(search),
	})
	if errors.Is(err, model.ErrUnknownCollection) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid collection"})
		return
	}
	if err != nil {
		s.log.WithError(err).WithField("collection", collection).Error("page query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load tracks"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// intQuery parses an optional positive integer query parameter.
func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid " + name)
	}
	return n, nil
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.store.CollectionStats(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("stats query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleUpdate(c *gin.Context) {
	err := s.jobs.Trigger()
	switch {
	case errors.Is(err, model.ErrJobInProgress):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": model.JobInProgressMessage})
	case err != nil:
		s.log.WithError(err).Error("trigger failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "update unavailable"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": model.TriggerAcceptedMessage})
	}
}

func (s *Server) handleUpdateStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.jobs.Status())
}
