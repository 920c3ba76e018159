// Package server exposes the roster processor over HTTP: upload a roster,
// get back the distribution report and download tokens for the processed
// workbook and CSV.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bpo-assigner/config"
	customerrors "bpo-assigner/errors"
	"bpo-assigner/formatter"
	"bpo-assigner/logging"
	"bpo-assigner/metrics"
	"bpo-assigner/processor"
)

const dateLayout = "2006-01-02"

// Server is the HTTP front end.
type Server struct {
	router    *gin.Engine
	processor *processor.Processor
	downloads *downloadStore
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time

	// runs are processed one at a time
	mu sync.Mutex
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now for the default run date and token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a server for cfg.
func New(cfg *config.AppConfig, logger *zap.Logger, opts ...Option) (*Server, error) {
	ttl, err := cfg.DownloadTTL()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    gin.New(),
		processor: processor.New(cfg, logger),
		ttl:       ttl,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.downloads = newDownloadStore(s.now)

	s.router.Use(gin.Recovery(), s.accessLog())
	s.setupRoutes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.POST("/process", s.Process)
		api.GET("/download/:token", s.Download)
		api.GET("/health", s.Health)
	}
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// DownloadLink points at one rendered artifact.
type DownloadLink struct {
	Name   string `json:"name"`
	Token  string `json:"token"`
	URL    string `json:"url"`
	Digest string `json:"digest"`
}

// ProcessResponse is the body of a successful POST /api/process.
type ProcessResponse struct {
	Report    *formatter.Report `json:"report"`
	Downloads []DownloadLink    `json:"downloads"`
}

// Process runs the pipeline on an uploaded roster.
// POST /api/process
func (s *Server) Process(c *gin.Context) {
	input, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing upload field \"file\""})
		return
	}

	runDate, err := s.runDate(c.PostForm("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "date"})
		return
	}

	in, err := input.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("cannot read %s", input.Filename)})
		return
	}
	defer in.Close()

	req := processor.Request{
		Input:      in,
		InputName:  input.Filename,
		Sheet:      strings.TrimSpace(c.PostForm("sheet")),
		Absent:     strings.TrimSpace(c.PostForm("absent")),
		Substitute: c.PostForm("substitute"),
		RunDate:    runDate,
	}

	if list, err := c.FormFile("unreachable"); err == nil {
		f, err := list.Open()
		if err == nil {
			defer f.Close()
			req.Sentinels, req.SentinelsName = f, list.Filename
		} else {
			req.Sentinels, req.SentinelsName = failingReader{err}, list.Filename
		}
	}

	s.mu.Lock()
	out, err := s.processor.Process(req)
	s.mu.Unlock()
	if err != nil {
		s.fail(c, err)
		return
	}

	resp := ProcessResponse{Report: out.Report}
	for _, a := range out.Artifacts {
		token := s.downloads.put(a, s.ttl)
		resp.Downloads = append(resp.Downloads, DownloadLink{
			Name:   a.Name,
			Token:  token,
			URL:    "/api/download/" + token,
			Digest: a.Digest,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Download streams a rendered artifact until its token expires.
// GET /api/download/:token
func (s *Server) Download(c *gin.Context) {
	a, ok := s.downloads.get(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download link expired or unknown"})
		return
	}

	etag := `"` + a.Digest + `"`
	c.Header("ETag", etag)
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	c.Data(http.StatusOK, a.ContentType, a.Data)
}

// Health reports liveness.
// GET /api/health
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "downloads": s.downloads.size()})
}

func (s *Server) runDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		now := s.now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-mm-dd", raw)
	}
	return t, nil
}

// fail maps pipeline errors to responses. Everything but an invariant
// violation is a problem with the upload.
func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, customerrors.ErrInvariant) {
		s.logger.Error("process failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"error": err.Error()}
	var cfgErr *customerrors.ConfigError
	if errors.As(err, &cfgErr) {
		body["field"] = cfgErr.Field
	}
	c.JSON(http.StatusBadRequest, body)
}

// failingReader surfaces an upload that could not be opened as a read
// error, so the sentinel list is reported like any other unreadable list.
type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }
