// Package job implements the per-download state machine. A Job consumes
// the engine's event stream, derives status and progress, and pushes
// snapshots to the store, the broadcaster, and the notifier.
package job

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/logger"
)

// Persister stores job snapshots.
type Persister interface {
	UpsertJob(ctx context.Context, id string, snap domain.Snapshot) error
}

// Notifier publishes a tagged notification, fire-and-forget.
type Notifier interface {
	Notify(title, body, tag string)
}

// Broadcaster fans a snapshot out to subscribed observers.
type Broadcaster interface {
	Publish(snap domain.Snapshot)
}

// Deps are the collaborators a job pushes state to. Any of them may be
// nil, in which case that side effect is skipped.
type Deps struct {
	Store     Persister
	Notifier  Notifier
	Broadcast Broadcaster
	Resolver  engine.MetadataResolver

	// HealthEnabled gates scheduled health checks against the current
	// configuration; nil means always enabled.
	HealthEnabled func() bool
	// ScheduleHealth starts the post-completion health check loop for a
	// job that just finished.
	ScheduleHealth func(*Job)

	Log logger.Interface
	// Clock is overridable in tests; nil means time.Now.
	Clock func() time.Time
}

// Job owns one download's mutable state. All mutation happens through
// HandleEvent, Run, and RunHealthCheck; readers get point-in-time
// copies via Snapshot.
type Job struct {
	mu         sync.Mutex
	snap       domain.Snapshot
	downloader engine.Downloader
	cancel     context.CancelFunc

	deps Deps
}

// New creates a job in the Unknown state.
func New(id string, downloader engine.Downloader, deps Deps) *Job {
	if deps.Log == nil {
		deps.Log = logger.NewNoOp()
	}
	return &Job{
		snap: domain.Snapshot{
			ID:        id,
			Status:    domain.StatusUnknown,
			Manifests: make(map[string]domain.ManifestProgress),
		},
		downloader: downloader,
		deps:       deps,
	}
}

// FromSnapshot rebuilds a job from a persisted snapshot. Rehydrated
// jobs carry no downloader; they exist for display and health checks.
func FromSnapshot(snap domain.Snapshot, deps Deps) *Job {
	if deps.Log == nil {
		deps.Log = logger.NewNoOp()
	}
	if snap.Manifests == nil {
		snap.Manifests = make(map[string]domain.ManifestProgress)
	}
	return &Job{snap: snap, deps: deps}
}

// ID returns the job's identifier.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.ID
}

// Status returns the current lifecycle status.
func (j *Job) Status() domain.DownloadStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.Status
}

// VideoID returns the source id derived from fragment manifests, or "".
func (j *Job) VideoID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.VideoID
}

// Snapshot returns a deep copy of the job's state.
func (j *Job) Snapshot() domain.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.Clone()
}

// Params returns the engine parameters, or zero values for a
// rehydrated job without a downloader.
func (j *Job) Params() engine.Params {
	if j.downloader == nil {
		return engine.Params{}
	}
	return j.downloader.Params()
}

func (j *Job) now() time.Time {
	if j.deps.Clock != nil {
		return j.deps.Clock()
	}
	return time.Now().UTC()
}

// SeedFromPlayerResponse fills the descriptive fields from resolved
// upstream metadata, used when the monitor schedules a job before the
// engine has produced any events.
func (j *Job) SeedFromPlayerResponse(resp *engine.PlayerResponse) {
	if resp == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if d := resp.VideoDetails; d != nil {
		j.snap.VideoID = d.VideoID
		j.snap.Author = d.Author
		j.snap.ChannelID = d.ChannelID
		j.snap.Title = d.Title
		j.snap.ThumbnailURL = d.BestThumbnail()
	}
	if p := resp.PlayabilityStatus; p != nil {
		j.snap.ScheduledStart = p.ScheduledStart()
	}
}

// AppendMessage adds a timestamped entry to the job's message log.
func (j *Job) AppendMessage(message string) {
	j.mu.Lock()
	j.appendMessageLocked(message)
	j.mu.Unlock()
}

func (j *Job) appendMessageLocked(message string) {
	j.snap.MessageLog = append(j.snap.MessageLog, domain.LogMessage{
		EventTime: j.now(),
		Message:   message,
	})
}

// setStatusLocked applies a status transition. Terminal statuses are
// absorbing: a different status never replaces one, though re-applying
// the same terminal status is permitted.
func (j *Job) setStatusLocked(status domain.DownloadStatus) bool {
	if j.snap.Status.IsTerminal() && status != j.snap.Status {
		return false
	}
	changed := j.snap.Status != status
	j.snap.Status = status
	return changed
}

func (j *Job) persistLocked(ctx context.Context) {
	if j.deps.Store == nil {
		return
	}
	if err := j.deps.Store.UpsertJob(ctx, j.snap.ID, j.snap.Clone()); err != nil {
		j.deps.Log.Error("Failed to persist job snapshot", "job_id", j.snap.ID, "error", err)
	}
}

// HandleEvent consumes one engine event, updating status and progress.
// Unrecognized events are ignored. A status change triggers a
// notification; every call triggers a broadcast.
func (j *Job) HandleEvent(ctx context.Context, ev engine.Event) {
	j.mu.Lock()
	prev := j.snap.Status
	finishedNow := false

	switch ev := ev.(type) {
	case engine.StreamInfo:
		j.snap.Title = ev.Title
		if ev.ScheduledStart != nil {
			t := *ev.ScheduledStart
			j.snap.ScheduledStart = &t
		}
		j.setStatusLocked(domain.StatusWaiting)

	case engine.Fragment:
		j.setStatusLocked(domain.StatusDownloading)
		j.applyFragmentLocked(ev)

	case engine.DownloadJobFinished:
		if j.setStatusLocked(domain.StatusFinished) {
			j.appendMessageLocked("Finished downloading")
			now := j.now()
			j.snap.FinishedAt = &now
			finishedNow = true
		}
		j.snap.OutputPaths = append([]string(nil), ev.OutputPaths...)
		j.persistLocked(ctx)

	case engine.DownloadJobFailedOutputMove:
		j.setStatusLocked(domain.StatusError)

	case engine.StreamMux:
		j.setStatusLocked(domain.StatusMuxing)
		j.appendMessageLocked("Started remux process")

	case engine.StreamMuxProgress:
		progress := j.snap.Manifests[ev.ManifestID]
		progress.MuxOutTime = ev.OutTime
		size := ev.TotalSize
		progress.MuxTotalSize = &size
		j.snap.Manifests[ev.ManifestID] = progress

	case engine.StreamUnavailable:
		j.setStatusLocked(domain.StatusUnavailable)

	case engine.FormatSelection:
		j.appendMessageLocked(formatSelectionMessage(ev))

	case engine.FreeText:
		j.appendMessageLocked(ev.Text)

	default:
		// Unknown event kinds are an explicit no-op.
	}

	changed := j.snap.Status != prev
	snap := j.snap.Clone()
	j.mu.Unlock()

	if changed {
		j.notifyStatus(snap)
	}
	j.publish(snap)
	if finishedNow && j.deps.ScheduleHealth != nil {
		j.deps.ScheduleHealth(j)
	}
}

func (j *Job) applyFragmentLocked(ev engine.Fragment) {
	now := j.now()
	progress, ok := j.snap.Manifests[ev.ManifestID]
	if !ok {
		progress.FirstUpdate = now
	}
	if ev.MaxFragments > progress.MaxSeq {
		progress.MaxSeq = ev.MaxFragments
	}
	switch ev.MediaType {
	case engine.MediaAudio:
		progress.AudioSeq = ev.CurrentFragment
	case engine.MediaVideo:
		progress.VideoSeq = ev.CurrentFragment
	}
	progress.TotalDownloaded += ev.FragmentSize
	progress.LastUpdate = now
	j.snap.Manifests[ev.ManifestID] = progress

	j.snap.CurrentManifest = ev.ManifestID
	// Manifest ids are "<video id>.<period>"; the leading segment is
	// the plain source id.
	j.snap.VideoID = strings.SplitN(ev.ManifestID, ".", 2)[0]
}

// formatSelectionMessage renders the human-readable description of a
// chosen format. The avc1 fourCC is displayed under its common name.
func formatSelectionMessage(ev engine.FormatSelection) string {
	majorType := capitalize(string(ev.MajorType))
	codec := ev.Format.Codec
	if codec == "" {
		codec = "unknown codec"
	}
	switch {
	case ev.MajorType == engine.MediaVideo:
		if strings.HasPrefix(codec, "avc1") {
			codec = "h264"
		}
		return fmt.Sprintf("%s format: %s %s (itag %d, manifest %s, duration %g)",
			majorType, ev.Format.QualityLabel, codec, ev.Format.Itag, ev.ManifestID, ev.Format.TargetDurationSec)
	case ev.Format.Bitrate > 0:
		return fmt.Sprintf("%s format: %dk %s (itag %d, manifest %s, duration %g)",
			majorType, ev.Format.Bitrate/1000, codec, ev.Format.Itag, ev.ManifestID, ev.Format.TargetDurationSec)
	default:
		return fmt.Sprintf("%s format selected (manifest %s, duration %g)",
			majorType, ev.ManifestID, ev.Format.TargetDurationSec)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func (j *Job) notifyStatus(snap domain.Snapshot) {
	if j.deps.Notifier == nil {
		return
	}
	j.deps.Notifier.Notify(
		fmt.Sprintf("Archive status: %s", snap.Status),
		fmt.Sprintf("%s from %s @ https://youtu.be/%s", snap.Title, snap.Author, snap.VideoID),
		fmt.Sprintf("status:%s", strings.ToLower(string(snap.Status))),
	)
}

func (j *Job) publish(snap domain.Snapshot) {
	if j.deps.Broadcast == nil {
		return
	}
	j.deps.Broadcast.Publish(snap)
}

// Run drives the job's downloader to completion, capturing every
// failure mode into job state. It never returns an error to the
// caller: cancellation becomes Cancelled, anything else becomes Error.
func (j *Job) Run(ctx context.Context) {
	if j.downloader == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	j.mu.Lock()
	j.cancel = cancel
	j.appendMessageLocked("Started download task")
	j.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			j.failRun(ctx, fmt.Sprintf("Download task panicked: %v", r), string(debug.Stack()))
		}
	}()

	err := j.downloader.Run(ctx, j)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		j.mu.Lock()
		j.setStatusLocked(domain.StatusCancelled)
		j.appendMessageLocked("Download task cancelled")
		snap := j.snap.Clone()
		j.mu.Unlock()
		j.notifyStatus(snap)
		j.publish(snap)
	default:
		j.failRun(ctx, fmt.Sprintf("Download task failed: %v", err), errorTrace(err))
	}
}

// errorTrace renders the wrapped causes below err, one per line, so the
// message log records the failure's full chain and not just its
// outermost summary. Returns "" for errors with no wrapped cause.
func errorTrace(err error) string {
	var lines []string
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		lines = append(lines, fmt.Sprintf("caused by: %v", cause))
	}
	return strings.Join(lines, "\n")
}

func (j *Job) failRun(ctx context.Context, message, trace string) {
	j.mu.Lock()
	j.setStatusLocked(domain.StatusError)
	j.appendMessageLocked(message)
	if trace != "" {
		j.appendMessageLocked(trace)
	}
	j.persistLocked(ctx)
	snap := j.snap.Clone()
	j.mu.Unlock()
	j.notifyStatus(snap)
	j.publish(snap)
}

// Cancel aborts the running download task, if any.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CanDeleteTempFiles reports whether the job's staging files are safe
// to remove. A Finished job with an unknown mux output size on any
// manifest may still hold an incomplete mux, which blocks cleanup.
func (j *Job) CanDeleteTempFiles() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.VideoID == "" {
		return false
	}
	switch j.snap.Status {
	case domain.StatusCancelled, domain.StatusError:
		return true
	case domain.StatusFinished:
		for _, p := range j.snap.Manifests {
			if p.MuxTotalSize == nil {
				return false
			}
		}
		return true
	default:
		return false
	}
}
