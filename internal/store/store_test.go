package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lunarchive.db3"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertJobReplacesPayload(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := domain.Snapshot{ID: "abc123", Title: "first", Status: domain.StatusFinished}
	require.NoError(t, s.UpsertJob(ctx, snap.ID, snap))

	snap.Title = "second"
	require.NoError(t, s.UpsertJob(ctx, snap.ID, snap))

	jobs, err := s.AllJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "abc123", jobs[0].ID)
	assert.Contains(t, string(jobs[0].Payload), "second")
}

func TestAllJobsReturnsEveryRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"one", "two", "three"} {
		require.NoError(t, s.UpsertJob(ctx, id, domain.Snapshot{
			ID:         id,
			Status:     domain.StatusFinished,
			FinishedAt: &now,
		}))
	}

	jobs, err := s.AllJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestContainsOrInsertVideo(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen, err := s.ContainsOrInsertVideo(ctx, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.False(t, seen, "first insert should report not seen")

	seen, err = s.ContainsOrInsertVideo(ctx, "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.True(t, seen, "second insert should report already seen")

	seen, err = s.ContainsOrInsertVideo(ctx, "other")
	require.NoError(t, err)
	assert.False(t, seen)
}
