// Package manager owns the canonical job map and the snapshot fan-out
// to live observers.
package manager

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/job"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/metrics"
	"github.com/lunarchive/lunarchive/internal/store"
)

const jobIDLength = 8

// JobLoader enumerates persisted job snapshots for rehydration.
type JobLoader interface {
	AllJobs(ctx context.Context) ([]store.StoredJob, error)
}

// Registry owns the job-id to job map. It is the only structure in the
// system with multiple writers; everything else is single-writer.
type Registry struct {
	mu    sync.RWMutex
	jobs  map[string]*job.Job
	order []*job.Job

	factory engine.Factory
	deps    job.Deps
	cfg     func() *config.Config
	metrics *metrics.Metrics
	log     logger.Interface
}

// New creates a registry. deps is the template wired into every job
// this registry creates; cfg supplies the current configuration for
// parameter defaulting and display retention.
func New(factory engine.Factory, deps job.Deps, cfg func() *config.Config, m *metrics.Metrics, log logger.Interface) *Registry {
	return &Registry{
		jobs:    make(map[string]*job.Job),
		factory: factory,
		deps:    deps,
		cfg:     cfg,
		metrics: m,
		log:     log,
	}
}

func (r *Registry) newJobID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:jobIDLength]
	for r.jobs[id] != nil {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")[:jobIDLength]
	}
	return id
}

// CreateJob allocates a collision-free id, merges configuration
// defaults into params where the caller left them unset, and registers
// the new job.
func (r *Registry) CreateJob(params engine.Params) *job.Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newJobID()
	params = r.mergeDefaults(id, params)

	j := job.New(id, r.factory.New(params), r.deps)
	r.jobs[id] = j
	r.order = append(r.order, j)

	r.log.Info("Created download job", "job_id", id, "url", params.URL)
	if r.metrics != nil {
		r.metrics.JobsScheduled.Inc()
	}
	return j
}

// mergeDefaults fills unset engine parameters from the current
// configuration. Caller-specified values always win. Each job stages
// into its own subdirectory of the configured staging root so partial
// downloads never collide.
func (r *Registry) mergeDefaults(id string, params engine.Params) engine.Params {
	cfg := r.cfg()
	if params.StagingDirectory == "" {
		root := "staging"
		if cfg != nil && cfg.Downloader.StagingDirectory != "" {
			root = cfg.Downloader.StagingDirectory
		}
		params.StagingDirectory = filepath.Join(root, id)
	}
	if cfg == nil {
		return params
	}
	if params.FFmpegPath == "" {
		params.FFmpegPath = cfg.Downloader.FFmpegPath
	}
	if params.POToken == "" {
		params.POToken = cfg.Downloader.POToken
	}
	if params.OutputDirectory == "" {
		params.OutputDirectory = cfg.Downloader.OutputDirectory
	}
	if params.OutputTemplate == "" {
		params.OutputTemplate = cfg.Downloader.OutputTemplate
	}
	if params.CookieFile == "" {
		params.CookieFile = cfg.Downloader.CookieFile
	}
	if params.MaxVideoResolution == 0 {
		params.MaxVideoResolution = cfg.Downloader.MaxVideoResolution
	}
	return params
}

// Get returns the job with the given id, or nil.
func (r *Registry) Get(id string) *job.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs[id]
}

// All returns every tracked job in insertion order.
func (r *Registry) All() []*job.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*job.Job, len(r.order))
	copy(out, r.order)
	return out
}

// HasBlockingJob reports whether an existing job already covers the
// given source id. Unavailable jobs do not block: the source may have
// become downloadable again.
func (r *Registry) HasBlockingJob(videoID string) bool {
	for _, j := range r.All() {
		if j.VideoID() == videoID && j.Status() != domain.StatusUnavailable {
			return true
		}
	}
	return false
}

// VisibleJobs returns the display job list: finished jobs older than
// the configured retention age are hidden, and the rest are ordered by
// status priority and reference time.
func (r *Registry) VisibleJobs(now time.Time) []*job.Job {
	var retention time.Duration
	var hasRetention bool
	if cfg := r.cfg(); cfg != nil {
		retention, hasRetention = cfg.Tasklist.HideFinishedAge()
	}

	visible := make([]*job.Job, 0)
	for _, j := range r.All() {
		if hasRetention && j.Status() == domain.StatusFinished {
			if snap := j.Snapshot(); snap.FinishedAt != nil && now.Sub(*snap.FinishedAt) > retention {
				continue
			}
		}
		visible = append(visible, j)
	}

	sort.SliceStable(visible, func(i, k int) bool {
		return job.Less(visible[i], visible[k])
	})
	return visible
}

// Rehydrate loads persisted jobs at startup. Rows that fail to decode
// are logged and skipped; they stay in the store untouched.
func (r *Registry) Rehydrate(ctx context.Context, loader JobLoader) error {
	rows, err := loader.AllJobs(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range rows {
		var snap domain.Snapshot
		if err := json.Unmarshal(row.Payload, &snap); err != nil {
			r.log.Warn("Skipping undecodable cached job", "job_id", row.ID, "error", err)
			continue
		}
		if snap.ID == "" {
			snap.ID = row.ID
		}
		j := job.FromSnapshot(snap, r.deps)
		r.jobs[row.ID] = j
		r.order = append(r.order, j)
		r.log.Info("Loaded job from cache", "job_id", row.ID)

		// Finished jobs restarted inside the health-check window pick up
		// their remaining checks; the delay is elapsed-based, so a
		// restart does not reset the schedule.
		if j.Status() == domain.StatusFinished && r.deps.ScheduleHealth != nil {
			if _, ok := j.NextHealthCheckDelay(r.now()); ok {
				r.deps.ScheduleHealth(j)
			}
		}
	}
	return nil
}

func (r *Registry) now() time.Time {
	if r.deps.Clock != nil {
		return r.deps.Clock()
	}
	return time.Now()
}

// SyncMetrics republishes the per-status job gauge.
func (r *Registry) SyncMetrics() {
	if r.metrics == nil {
		return
	}
	counts := make(map[domain.DownloadStatus]int)
	for _, j := range r.All() {
		counts[j.Status()]++
	}
	r.metrics.JobStatus.Reset()
	for status, n := range counts {
		r.metrics.JobStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}
