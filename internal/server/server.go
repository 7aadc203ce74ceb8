// Package server exposes the console's command and status boundary as
// an HTTP API: gesture and view commands, overlay toggles, auto-range
// control, snapshot capture and bookmark management.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hamgrid/groundscope/internal/metrics"
	"github.com/hamgrid/groundscope/internal/overlay"
	"github.com/hamgrid/groundscope/internal/render"
	"github.com/hamgrid/groundscope/internal/snapshot"
	"github.com/hamgrid/groundscope/internal/store"
	"github.com/hamgrid/groundscope/internal/view"
)

const shutdownTimeout = 5 * time.Second

// overlayRasterHeight is the pixel height of the live overlay strip
// served to the UI.
const overlayRasterHeight = 20

// Deps are the pipeline components the API commands.
type Deps struct {
	Engine     *render.Engine
	Transform  *view.Transform
	Gestures   *view.Gestures
	Overlays   *overlay.Manager
	Bookmarks  *overlay.Bookmarks
	VFO        *overlay.VFOMarkers
	Collector  *metrics.Collector
	Compositor *snapshot.Compositor
	Store      *store.Store

	// SnapshotDir receives captured PNG files.
	SnapshotDir string

	// CenterFrequency reports the currently tuned center frequency for
	// snapshot file naming.
	CenterFrequency func() float64

	// Span reports the frequency interval currently visible in the
	// viewport. ok is false until the first frame arrives.
	Span func() (span overlay.Span, ok bool)
}

// Server is the HTTP command/status API.
type Server struct {
	deps   Deps
	addr   string
	logger *slog.Logger
	router *gin.Engine
}

// New creates the API server listening on addr.
func New(addr string, deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		deps:   deps,
		addr:   addr,
		logger: logger.With(slog.String("component", "server")),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/metrics", s.handleMetrics)

		api.POST("/gesture", s.handleGesture)
		api.POST("/view/zoom", s.handleZoom)
		api.POST("/view/pan", s.handlePan)
		api.POST("/view/reset", s.handleReset)

		api.POST("/overlay/:name/toggle", s.handleOverlayToggle)
		api.GET("/overlays/raster", s.handleOverlayRaster)
		api.POST("/vfo", s.handleVFOSet)
		api.POST("/vfo/tune", s.handleVFOTune)
		api.POST("/autorange/toggle", s.handleAutoRangeToggle)
		api.POST("/autorange/preset", s.handleAutoRangePreset)

		api.POST("/snapshot", s.handleSnapshot)
		api.GET("/snapshots", s.handleSnapshotsList)

		api.GET("/bookmarks", s.handleBookmarksList)
		api.POST("/bookmarks", s.handleBookmarkAdd)
		api.DELETE("/bookmarks/:id", s.handleBookmarkDelete)
	}

	s.router = router
	return s
}

// ServeHTTP makes the server mountable as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down api server: %w", err)
	}
	return nil
}

func (s *Server) handleStatus(c *gin.Context) {
	overlays := make(map[string]bool)
	for _, name := range s.deps.Overlays.Names() {
		overlays[name] = s.deps.Overlays.Enabled(name)
	}

	c.JSON(http.StatusOK, gin.H{
		"engineState": s.deps.Engine.State().String(),
		"view":        s.deps.Transform.State(),
		"overlays":    overlays,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Collector.Snapshot())
}

type gestureRequest struct {
	Type  string             `json:"type" binding:"required"`
	Wheel *view.WheelEvent   `json:"wheel"`
	Drag  *view.DragEvent    `json:"drag"`
	Pinch *view.PinchEvent   `json:"pinch"`
}

func (s *Server) handleGesture(c *gin.Context) {
	var req gestureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var consumed bool
	switch req.Type {
	case "wheel":
		if req.Wheel == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing wheel payload"})
			return
		}
		consumed = s.deps.Gestures.Wheel(*req.Wheel)
	case "drag":
		if req.Drag == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing drag payload"})
			return
		}
		consumed = s.deps.Gestures.Drag(*req.Drag)
	case "pinch":
		if req.Pinch == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing pinch payload"})
			return
		}
		consumed = s.deps.Gestures.Pinch(*req.Pinch)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown gesture type: " + req.Type})
		return
	}

	c.JSON(http.StatusOK, gin.H{"consumed": consumed, "view": s.deps.Transform.State()})
}

type zoomRequest struct {
	Delta float64 `json:"delta"`
	Focus float64 `json:"focus"`
}

func (s *Server) handleZoom(c *gin.Context) {
	var req zoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.Transform.Zoom(req.Delta, req.Focus)
	c.JSON(http.StatusOK, gin.H{"view": s.deps.Transform.State()})
}

type panRequest struct {
	Delta float64 `json:"delta"`
}

func (s *Server) handlePan(c *gin.Context) {
	var req panRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.Transform.Pan(req.Delta)
	c.JSON(http.StatusOK, gin.H{"view": s.deps.Transform.State()})
}

func (s *Server) handleReset(c *gin.Context) {
	s.deps.Transform.Reset()
	c.JSON(http.StatusOK, gin.H{"view": s.deps.Transform.State()})
}

func (s *Server) handleOverlayToggle(c *gin.Context) {
	enabled, err := s.deps.Overlays.Toggle(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": c.Param("name"), "enabled": enabled})
}

// handleOverlayRaster serves the enabled overlay layers drawn over the
// visible span as one strip, for the UI to composite above the waterfall.
func (s *Server) handleOverlayRaster(c *gin.Context) {
	if s.deps.Span == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no span source"})
		return
	}
	span, ok := s.deps.Span()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frames received yet"})
		return
	}

	img := image.NewRGBA(image.Rect(0, 0, int(s.deps.Transform.ViewportWidth()), overlayRasterHeight))
	s.deps.Overlays.Render(img, span)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type vfoSetRequest struct {
	VFOs []overlay.VFO `json:"vfos" binding:"required"`
}

func (s *Server) handleVFOSet(c *gin.Context) {
	var req vfoSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.VFO.Set(req.VFOs)
	c.JSON(http.StatusOK, gin.H{"vfos": s.deps.VFO.Markers()})
}

type vfoTuneRequest struct {
	Name      string  `json:"name" binding:"required"`
	Frequency float64 `json:"frequency" binding:"required,gt=0"`
}

func (s *Server) handleVFOTune(c *gin.Context) {
	var req vfoTuneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.VFO.Tune(req.Name, req.Frequency)
	c.JSON(http.StatusOK, gin.H{"vfos": s.deps.VFO.Markers()})
}

type autoRangeToggleRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleAutoRangeToggle(c *gin.Context) {
	var req autoRangeToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.Engine.SetAutoRange(req.Enabled)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled})
}

type autoRangePresetRequest struct {
	Alpha float64 `json:"alpha" binding:"required,gt=0,lte=1"`
}

func (s *Server) handleAutoRangePreset(c *gin.Context) {
	var req autoRangePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.deps.Engine.SetAutoRangeAlpha(req.Alpha)
	c.JSON(http.StatusOK, gin.H{"alpha": req.Alpha})
}

type snapshotRequest struct {
	Target string `json:"target"`
	Width  int    `json:"width"`
}

func (s *Server) handleSnapshot(c *gin.Context) {
	var req snapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	data, err := s.deps.Compositor.Capture(c.Request.Context(), req.Width)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, snapshot.ErrMissingSurface) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	centerFreq := 0.0
	if s.deps.CenterFrequency != nil {
		centerFreq = s.deps.CenterFrequency()
	}

	id := uuid.NewString()
	name := snapshot.Filename(req.Target, centerFreq)
	path := filepath.Join(s.deps.SnapshotDir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("writing snapshot: %v", err)})
		return
	}

	width, height := pngSize(data)
	rec := store.SnapshotRecord{
		ID:              id,
		Filename:        name,
		Target:          req.Target,
		CenterFrequency: centerFreq,
		Width:           width,
		Height:          height,
	}
	if err := s.deps.Store.RecordSnapshot(c.Request.Context(), rec); err != nil {
		s.logger.Warn("snapshot record failed", slog.String("error", err.Error()))
	}

	c.JSON(http.StatusOK, gin.H{"filename": name, "width": width, "height": height})
}

func pngSize(data []byte) (int, int) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

const defaultSnapshotListLimit = 50

func (s *Server) handleSnapshotsList(c *gin.Context) {
	limit := defaultSnapshotListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.deps.Store.Snapshots(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleBookmarksList(c *gin.Context) {
	bookmarks, err := s.deps.Store.Bookmarks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, bookmarks)
}

type bookmarkRequest struct {
	Label     string  `json:"label" binding:"required"`
	Frequency float64 `json:"frequency" binding:"required,gt=0"`
}

func (s *Server) handleBookmarkAdd(c *gin.Context) {
	var req bookmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := s.deps.Store.AddBookmark(c.Request.Context(), req.Label, req.Frequency)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.refreshBookmarkLayer(c.Request.Context())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleBookmarkDelete(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bookmark id"})
		return
	}

	if err := s.deps.Store.DeleteBookmark(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.refreshBookmarkLayer(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// refreshBookmarkLayer reloads the overlay layer after a store change.
func (s *Server) refreshBookmarkLayer(ctx context.Context) {
	bookmarks, err := s.deps.Store.Bookmarks(ctx)
	if err != nil {
		s.logger.Warn("bookmark reload failed", slog.String("error", err.Error()))
		return
	}
	s.deps.Bookmarks.Set(bookmarks)
}
