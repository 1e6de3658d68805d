package job

import (
	"context"
	"time"

	"github.com/lunarchive/lunarchive/internal/domain"
)

// loginRequired is the playability status reported for privated or
// members-only content.
const loginRequired = "LOGIN_REQUIRED"

// healthDelaySchedule maps elapsed-time-since-finish thresholds to the
// wait before the next check. Checks stop past the last threshold.
var healthDelaySchedule = []struct {
	within time.Duration
	delay  time.Duration
}{
	{time.Hour, 5 * time.Minute},
	{6 * time.Hour, 30 * time.Minute},
	{24 * time.Hour, time.Hour},
	{3 * 24 * time.Hour, 4 * time.Hour},
}

// NextHealthCheckDelay returns the wait before the next health check,
// based on how long ago the job finished. ok is false when the job has
// no finish time or checks have aged out.
func (j *Job) NextHealthCheckDelay(now time.Time) (time.Duration, bool) {
	j.mu.Lock()
	finishedAt := j.snap.FinishedAt
	j.mu.Unlock()

	if finishedAt == nil {
		return 0, false
	}
	elapsed := now.Sub(*finishedAt)
	for _, tier := range healthDelaySchedule {
		if elapsed < tier.within {
			return tier.delay, true
		}
	}
	return 0, false
}

// RunHealthCheck verifies the archived content still matches the live
// source, records the result, re-persists Finished jobs, and
// broadcasts the updated snapshot.
func (j *Job) RunHealthCheck(ctx context.Context) {
	result := j.healthResult(ctx)

	j.mu.Lock()
	j.snap.Health = &domain.HealthCheckStatus{
		LastResult: result,
		LastCheck:  j.now(),
	}
	if j.snap.Status == domain.StatusFinished {
		j.persistLocked(ctx)
	}
	snap := j.snap.Clone()
	j.mu.Unlock()

	j.deps.Log.Debug("Health check completed", "job_id", snap.ID, "result", string(result))
	j.publish(snap)
}

func (j *Job) healthResult(ctx context.Context) domain.HealthResult {
	j.mu.Lock()
	videoID := j.snap.VideoID
	manifestCount := len(j.snap.Manifests)
	var archived time.Duration
	for _, p := range j.snap.Manifests {
		archived = p.MuxOutTime
	}
	j.mu.Unlock()

	if videoID == "" {
		return domain.HealthCheckFailure
	}
	// Jobs spanning multiple manifests have overlapping segments, so no
	// single archived duration exists to compare against.
	if manifestCount != 1 {
		return domain.HealthStreamLengthIndeterminate
	}
	if j.deps.Resolver == nil {
		return domain.HealthCheckFailure
	}

	resp, err := j.deps.Resolver.Resolve(ctx, videoID, false)
	if err != nil {
		j.deps.Log.Warn("Health check metadata fetch failed", "job_id", j.ID(), "error", err)
		return domain.HealthCheckFailure
	}
	if resp == nil || resp.PlayabilityStatus == nil {
		return domain.HealthCheckFailure
	}
	if resp.PlayabilityStatus.Status == loginRequired {
		return domain.HealthVideoUnavailable
	}

	if resp.VideoDetails != nil && resp.VideoDetails.LiveContent() {
		reported := resp.VideoDetails.Duration()
		diff := archived - reported
		if diff < 0 {
			diff = -diff
		}
		if diff > time.Second {
			// A broadcast still being finalized upstream reports an
			// estimated duration ahead of the advertised one; that is
			// not a defect in the archive.
			if bd := resp.Microformat.BroadcastDetails(); bd != nil {
				if est, ok := bd.EstimatedDuration(); ok && est > reported {
					return domain.HealthOK
				}
			}
			return domain.HealthStreamLengthDiffers
		}
	}
	return domain.HealthOK
}

// HealthLoop re-checks a finished job on the escalating schedule until
// the schedule ages out or ctx is cancelled. Checks are skipped, but
// the schedule keeps advancing, while scheduled checks are disabled in
// configuration.
func (j *Job) HealthLoop(ctx context.Context) {
	for {
		delay, ok := j.NextHealthCheckDelay(j.now())
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if j.deps.HealthEnabled == nil || j.deps.HealthEnabled() {
			j.RunHealthCheck(ctx)
		}
	}
}
