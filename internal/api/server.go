// Package api serves the status and job-control HTTP surface.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/job"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/manager"
)

// Registry is the job collection the API serves.
type Registry interface {
	Get(id string) *job.Job
	All() []*job.Job
	VisibleJobs(now time.Time) []*job.Job
	CreateJob(params engine.Params) *job.Job
}

// Server wires the HTTP routes.
type Server struct {
	registry    Registry
	broadcaster *manager.Broadcaster
	resolver    engine.MetadataResolver
	gatherer    prometheus.Gatherer
	log         logger.Interface

	router *gin.Engine
}

// AddJobRequest is the payload for scheduling a download by hand.
type AddJobRequest struct {
	URL              string `json:"url" binding:"required"`
	OutputDirectory  string `json:"output_directory"`
	WriteDescription bool   `json:"write_description"`
	WriteThumbnail   bool   `json:"write_thumbnail"`
}

// NewServer builds the router. gatherer may be nil to disable /metrics.
func NewServer(
	registry Registry,
	broadcaster *manager.Broadcaster,
	resolver engine.MetadataResolver,
	gatherer prometheus.Gatherer,
	log logger.Interface,
) *Server {
	s := &Server{
		registry:    registry,
		broadcaster: broadcaster,
		resolver:    resolver,
		gatherer:    gatherer,
		log:         log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	r.GET("/jobs", s.handleListJobs)
	r.POST("/jobs", s.handleAddJob)
	r.GET("/jobs/:id", s.handleGetJob)
	r.POST("/jobs/:id/cancel", s.handleCancelJob)
	r.DELETE("/jobs/:id/tempfiles", s.handleDeleteTempFiles)
	r.GET("/events", s.handleEvents)
	r.GET("/jobs/:id/events", s.handleJobEvents)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.router = r
	return s
}

// Handler exposes the router for serving and for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("API server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	jobs := s.registry.All()
	out := make([]domain.StatusSummary, 0, len(jobs))
	for _, j := range jobs {
		snap := j.Snapshot()
		out = append(out, snap.Summary())
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleListJobs(c *gin.Context) {
	jobs := s.registry.VisibleJobs(time.Now().UTC())
	out := make([]domain.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Snapshot())
	}
	c.JSON(http.StatusOK, out)
}

// jobDetailResponse is a snapshot plus per-manifest derived timing.
type jobDetailResponse struct {
	domain.Snapshot
	EstimatedRemainingSec map[string]float64 `json:"estimated_remaining_sec,omitempty"`
}

func (s *Server) handleGetJob(c *gin.Context) {
	j := s.registry.Get(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	snap := j.Snapshot()
	resp := jobDetailResponse{Snapshot: snap}
	for id, progress := range snap.Manifests {
		if remaining, ok := progress.EstimatedRemaining(); ok {
			if resp.EstimatedRemainingSec == nil {
				resp.EstimatedRemainingSec = make(map[string]float64)
			}
			resp.EstimatedRemainingSec[id] = remaining.Seconds()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAddJob(c *gin.Context) {
	var req AddJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	j := s.registry.CreateJob(engine.Params{
		URL:              req.URL,
		OutputDirectory:  req.OutputDirectory,
		WriteDescription: req.WriteDescription,
		WriteThumbnail:   req.WriteThumbnail,
	})

	// Seed descriptive fields when the URL carries a recognizable id;
	// the job still runs without them.
	if videoID := engine.ExtractVideoID(req.URL); videoID != "" && s.resolver != nil {
		resp, err := s.resolver.Resolve(c.Request.Context(), videoID, true)
		if err != nil {
			s.log.Warn("Metadata fetch failed for added job", "video_id", videoID, "error", err)
		} else {
			j.SeedFromPlayerResponse(resp)
		}
	}

	go j.Run(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusCreated, j.Snapshot())
}

func (s *Server) handleCancelJob(c *gin.Context) {
	j := s.registry.Get(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	j.Cancel()
	c.JSON(http.StatusAccepted, j.Snapshot())
}

func (s *Server) handleDeleteTempFiles(c *gin.Context) {
	j := s.registry.Get(c.Param("id"))
	if j == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if !j.CanDeleteTempFiles() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete temporary files on an unfinished job"})
		return
	}

	staging := j.Params().StagingDirectory
	videoID := j.VideoID()
	if staging != "" {
		if err := removeStagedFiles(staging, videoID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, j.Snapshot())
}

// removeStagedFiles deletes the job's fragment files from the staging
// directory. Only files named after the video id are touched.
func removeStagedFiles(staging, videoID string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), videoID) {
			continue
		}
		if err := os.Remove(filepath.Join(staging, entry.Name())); err != nil {
			return err
		}
	}
	// Removal fails while unrelated files remain; leave those in place.
	_ = os.Remove(staging)
	return nil
}

func (s *Server) handleEvents(c *gin.Context) {
	sub := s.broadcaster.Subscribe()
	defer sub.Close()
	s.streamUpdates(c, sub)
}

func (s *Server) handleJobEvents(c *gin.Context) {
	id := c.Param("id")
	if s.registry.Get(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	sub := s.broadcaster.SubscribeJob(id)
	defer sub.Close()
	s.streamUpdates(c, sub)
}

func (s *Server) streamUpdates(c *gin.Context, sub *manager.Subscription) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-sub.Updates():
			if !ok {
				return false
			}
			c.SSEvent("update", snap)
			return true
		case <-done:
			return false
		}
	})
}
