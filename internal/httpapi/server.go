// Package httpapi exposes the library over HTTP for the web UI: browsing,
// search, upload-then-ingest, duplicate sweeps, unlock batches, and plain
// file serving for thumbnails and audio playback. None of it is part of the
// core decryption/ingestion model — every handler is a thin adapter over
// internal/catalog, internal/ingest, and internal/unlock.
package httpapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mayi-music/core/internal/artwork"
	"github.com/mayi-music/core/internal/catalog"
	"github.com/mayi-music/core/internal/ingest"
	"github.com/mayi-music/core/internal/unlock"
)

// Dirs collects every filesystem-layout path the handlers need, relative to
// or under the service root: New/, Library/, Duplicate/, Trash/, Unlocked/,
// and the thumbnails directory.
type Dirs struct {
	New       string
	Library   string
	Duplicate string
	Trash     string
	Unlocked  string
	Thumbnail string
}

// Server wires the catalog, ingestion router, and unlock pool behind a gin
// engine. It holds no state of its own beyond what those three already
// guard internally.
type Server struct {
	dirs     Dirs
	cat      *catalog.Catalog
	router   *ingest.Router
	fetcher  *artwork.Fetcher
	logger   *zap.Logger
	origins  []string
	unlockWk int

	mmkvPath string
	mmkvKey  string
}

// WithMMKV configures the optional Tencent MMKV vault forwarded to every
// unlock batch's QMC decoders. Returns s for chaining.
func (s *Server) WithMMKV(path, key string) *Server {
	s.mmkvPath = path
	s.mmkvKey = key
	return s
}

// New builds a Server against an already-loaded catalog. origins is the
// list of UI origins gin-contrib/cors is configured to allow; a nil or
// empty list falls back to the common local dev ports, mirroring the
// Nerggg example's getAllowedOrigins default.
func New(dirs Dirs, cat *catalog.Catalog, logger *zap.Logger, origins []string, unlockWorkers int) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(origins) == 0 {
		origins = defaultOrigins()
	}
	return &Server{
		dirs:     dirs,
		cat:      cat,
		router:   ingest.NewRouter(dirs.Library, dirs.Duplicate, dirs.Trash, dirs.Thumbnail, cat, logger),
		fetcher:  artwork.NewFetcher(logger),
		logger:   logger,
		origins:  origins,
		unlockWk: unlockWorkers,
	}
}

func defaultOrigins() []string {
	if raw := os.Getenv("MAYI_MUSIC_CORS_ORIGINS"); raw != "" {
		return strings.Split(raw, ",")
	}
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}

// Engine builds the gin router: recovery, zap-backed access logging, CORS,
// a request-ID header, and the route table itself.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.accessLogMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "X-Trace-Id"},
		ExposeHeaders:    []string{"Content-Disposition", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(requestIDMiddleware())

	api := r.Group("/api")
	{
		api.GET("/library", s.handleLibrary)
		api.GET("/library/stats", s.handleLibraryStats)
		api.GET("/songs", s.handleSongs)
		api.GET("/search", s.handleSearch)
		api.POST("/upload", s.handleUpload)
		api.GET("/library/add", s.handleLibraryAdd)
		api.POST("/scan", s.handleScan)
		api.GET("/library/scan", s.handleScan)
		api.POST("/check-duplicates", s.handleCheckDuplicates)
		api.POST("/unlock-music", s.handleUnlockMusic)
		api.GET("/thumbnail/:name", s.handleServeThumbnail)
		api.GET("/play/:name", s.handleServeAudio)
		api.GET("/serve/:name", s.handleServeAudio)
		api.POST("/export-backup", s.handleExportBackup)
	}
	return r
}

// accessLogMiddleware logs one structured line per request through the
// same zap logger every other package uses, rather than gin's own
// stdout-formatted default logger.
func (s *Server) accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Trace-Id")
		if id == "" {
			id = randomRequestID()
		}
		c.Header("X-Trace-Id", id)
		c.Set("trace_id", id)
		c.Next()
	}
}

// Run starts the server on addr and blocks until ctx is cancelled or a
// SIGINT/SIGTERM arrives, then shuts down gracefully with a 10 second
// deadline, mirroring the Nerggg example's bootstrap shape.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:           addr,
		Handler:        s.Engine(),
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
