package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/job"
)

type stubResolver struct {
	resp *engine.PlayerResponse
	err  error
}

func (r *stubResolver) Resolve(context.Context, string, bool) (*engine.PlayerResponse, error) {
	return r.resp, r.err
}

func finishedJob(finishedAt time.Time, deps job.Deps) *job.Job {
	return job.FromSnapshot(domain.Snapshot{
		ID:         "abc123",
		VideoID:    "dQw4w9WgXcQ",
		Status:     domain.StatusFinished,
		FinishedAt: &finishedAt,
		Manifests: map[string]domain.ManifestProgress{
			"dQw4w9WgXcQ.0": {MuxOutTime: time.Hour},
		},
	}, deps)
}

func TestNextHealthCheckDelay(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		elapsed time.Duration
		want    time.Duration
		ok      bool
	}{
		{"30 minutes after finish", 30 * time.Minute, 5 * time.Minute, true},
		{"2 hours after finish", 2 * time.Hour, 30 * time.Minute, true},
		{"12 hours after finish", 12 * time.Hour, time.Hour, true},
		{"2 days after finish", 48 * time.Hour, 4 * time.Hour, true},
		{"4 days after finish", 96 * time.Hour, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := finishedJob(now.Add(-tt.elapsed), job.Deps{})
			delay, ok := j.NextHealthCheckDelay(now)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, delay)
		})
	}
}

func TestNextHealthCheckDelayWithoutFinishTime(t *testing.T) {
	j := job.New("abc123", nil, job.Deps{})
	_, ok := j.NextHealthCheckDelay(time.Now())
	assert.False(t, ok)
}

func TestRunHealthCheckNoVideoID(t *testing.T) {
	finishedAt := time.Now().UTC()
	j := job.FromSnapshot(domain.Snapshot{
		ID: "abc123", Status: domain.StatusFinished, FinishedAt: &finishedAt,
	}, job.Deps{})

	j.RunHealthCheck(context.Background())

	health := j.Snapshot().Health
	require.NotNil(t, health)
	assert.Equal(t, domain.HealthCheckFailure, health.LastResult)
	assert.False(t, health.LastCheck.IsZero())
}

func TestRunHealthCheckMultipleManifests(t *testing.T) {
	finishedAt := time.Now().UTC()
	j := job.FromSnapshot(domain.Snapshot{
		ID: "abc123", VideoID: "dQw4w9WgXcQ",
		Status: domain.StatusFinished, FinishedAt: &finishedAt,
		Manifests: map[string]domain.ManifestProgress{
			"dQw4w9WgXcQ.0": {MuxOutTime: time.Hour},
			"dQw4w9WgXcQ.1": {MuxOutTime: 30 * time.Minute},
		},
	}, job.Deps{Resolver: &stubResolver{}})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthStreamLengthIndeterminate, j.Snapshot().Health.LastResult)
}

func TestRunHealthCheckFetchFailure(t *testing.T) {
	j := finishedJob(time.Now().UTC(), job.Deps{
		Resolver: &stubResolver{err: errors.New("connection refused")},
	})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthCheckFailure, j.Snapshot().Health.LastResult)
}

func TestRunHealthCheckLoginRequired(t *testing.T) {
	j := finishedJob(time.Now().UTC(), job.Deps{
		Resolver: &stubResolver{resp: &engine.PlayerResponse{
			PlayabilityStatus: &engine.PlayabilityStatus{Status: "LOGIN_REQUIRED"},
		}},
	})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthVideoUnavailable, j.Snapshot().Health.LastResult)
}

func playerResponse(lengthSeconds string) *engine.PlayerResponse {
	return &engine.PlayerResponse{
		VideoDetails: &engine.VideoDetails{
			VideoID:       "dQw4w9WgXcQ",
			LengthSeconds: lengthSeconds,
		},
		PlayabilityStatus: &engine.PlayabilityStatus{Status: "OK"},
	}
}

func TestRunHealthCheckStreamLengthDiffers(t *testing.T) {
	// Archived one hour; upstream reports two.
	j := finishedJob(time.Now().UTC(), job.Deps{
		Resolver: &stubResolver{resp: playerResponse("7200")},
	})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthStreamLengthDiffers, j.Snapshot().Health.LastResult)
}

func TestRunHealthCheckLengthMatchWithinTolerance(t *testing.T) {
	// 3601 seconds upstream vs one hour archived.
	j := finishedJob(time.Now().UTC(), job.Deps{
		Resolver: &stubResolver{resp: playerResponse("3601")},
	})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthOK, j.Snapshot().Health.LastResult)
}

func TestRunHealthCheckBroadcastStillFinalizing(t *testing.T) {
	resp := playerResponse("7200")
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	resp.Microformat = &engine.Microformat{}
	resp.Microformat.PlayerMicroformatRenderer = &struct {
		LiveBroadcastDetails *engine.BroadcastDetails `json:"liveBroadcastDetails"`
	}{
		LiveBroadcastDetails: &engine.BroadcastDetails{
			StartTimestamp: &start,
			EndTimestamp:   &end,
		},
	}

	// The broadcast span exceeds the advertised duration, so upstream is
	// still finalizing and the mismatch is not flagged.
	j := finishedJob(time.Now().UTC(), job.Deps{Resolver: &stubResolver{resp: resp}})
	j.RunHealthCheck(context.Background())

	assert.Equal(t, domain.HealthOK, j.Snapshot().Health.LastResult)
}

func TestRunHealthCheckPersistsFinishedJobs(t *testing.T) {
	store := &stubStore{}
	j := finishedJob(time.Now().UTC(), job.Deps{
		Store:    store,
		Resolver: &stubResolver{resp: playerResponse("3600")},
	})

	j.RunHealthCheck(context.Background())

	assert.Equal(t, 1, store.count())
	assert.Equal(t, domain.HealthOK, j.Snapshot().Health.LastResult)
}

func TestHealthLoopStopsWhenScheduleAgesOut(t *testing.T) {
	j := finishedJob(time.Now().UTC().Add(-96*time.Hour), job.Deps{})

	done := make(chan struct{})
	go func() {
		j.HealthLoop(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("health loop did not terminate")
	}
}
