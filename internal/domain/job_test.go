package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarchive/lunarchive/internal/domain"
)

func TestIsTerminal(t *testing.T) {
	terminal := []domain.DownloadStatus{
		domain.StatusFinished, domain.StatusError,
		domain.StatusCancelled, domain.StatusUnavailable,
	}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	active := []domain.DownloadStatus{
		domain.StatusUnknown, domain.StatusWaiting,
		domain.StatusDownloading, domain.StatusMuxing,
	}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestSortPriority(t *testing.T) {
	assert.Equal(t, 3, domain.StatusUnknown.SortPriority())
	assert.Equal(t, 2, domain.StatusDownloading.SortPriority())
	assert.Equal(t, 1, domain.StatusWaiting.SortPriority())
	assert.Equal(t, 0, domain.StatusMuxing.SortPriority())
	assert.Equal(t, 0, domain.StatusFinished.SortPriority())
}

func TestEstimatedRemaining(t *testing.T) {
	start := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	p := domain.ManifestProgress{
		VideoSeq:    100,
		MaxSeq:      300,
		FirstUpdate: start,
		LastUpdate:  start.Add(50 * time.Second),
	}
	// 100 fragments in 50s, 200 remaining.
	remaining, ok := p.EstimatedRemaining()
	require.True(t, ok)
	assert.Equal(t, 100*time.Second, remaining)
}

func TestEstimatedRemainingUndefinedBeforeUpdates(t *testing.T) {
	var p domain.ManifestProgress
	_, ok := p.EstimatedRemaining()
	assert.False(t, ok)
}

func TestSnapshotAggregates(t *testing.T) {
	snap := domain.Snapshot{
		Manifests: map[string]domain.ManifestProgress{
			"vid.0": {VideoSeq: 10, AudioSeq: 9, MaxSeq: 20, TotalDownloaded: 1024},
			"vid.1": {VideoSeq: 5, AudioSeq: 5, MaxSeq: 10, TotalDownloaded: 512},
		},
	}

	summary := snap.Summary()
	assert.Equal(t, int64(15), summary.VideoSeq)
	assert.Equal(t, int64(14), summary.AudioSeq)
	assert.Equal(t, int64(30), summary.MaxSeq)
	assert.Equal(t, int64(1536), summary.TotalDownloaded)
}

func TestCloneIsDeep(t *testing.T) {
	size := int64(100)
	finished := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	snap := domain.Snapshot{
		ID:         "abc123",
		FinishedAt: &finished,
		MessageLog: []domain.LogMessage{{Message: "one"}},
		Manifests: map[string]domain.ManifestProgress{
			"vid.0": {MuxTotalSize: &size},
		},
		OutputPaths: []string{"out/a.mkv"},
	}

	clone := snap.Clone()
	clone.MessageLog[0].Message = "changed"
	*clone.FinishedAt = finished.Add(time.Hour)
	*clone.Manifests["vid.0"].MuxTotalSize = 999
	clone.OutputPaths[0] = "changed"

	assert.Equal(t, "one", snap.MessageLog[0].Message)
	assert.Equal(t, finished, *snap.FinishedAt)
	assert.Equal(t, int64(100), *snap.Manifests["vid.0"].MuxTotalSize)
	assert.Equal(t, "out/a.mkv", snap.OutputPaths[0])
}
