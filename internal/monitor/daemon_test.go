package monitor_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/domain"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/feed"
	"github.com/lunarchive/lunarchive/internal/job"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/manager"
	"github.com/lunarchive/lunarchive/internal/monitor"
	"github.com/lunarchive/lunarchive/internal/store"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemDedup() *memDedup { return &memDedup{seen: make(map[string]bool)} }

func (d *memDedup) ContainsOrInsertVideo(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return true, nil
	}
	d.seen[id] = true
	return false, nil
}

type stubPoller struct {
	matches map[string][]feed.Match
	err     error
}

func (p *stubPoller) ChannelMatches(_ context.Context, ch config.Channel) ([]feed.Match, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.matches[ch.ID], nil
}

type stubResolver struct {
	responses map[string]*engine.PlayerResponse
}

func (r *stubResolver) Resolve(_ context.Context, videoID string, _ bool) (*engine.PlayerResponse, error) {
	return r.responses[videoID], nil
}

type idleDownloader struct{}

func (idleDownloader) Run(ctx context.Context, _ engine.EventSink) error { return nil }
func (idleDownloader) Params() engine.Params                             { return engine.Params{} }

var idleFactory = engine.FactoryFunc(func(engine.Params) engine.Downloader {
	return idleDownloader{}
})

type notification struct {
	title, body, tag string
}

type stubNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *stubNotifier) Notify(title, body, tag string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{title, body, tag})
}

func upcomingStream(videoID string) *engine.PlayerResponse {
	return &engine.PlayerResponse{
		VideoDetails: &engine.VideoDetails{
			VideoID:    videoID,
			Title:      "Unarchived Karaoke",
			Author:     "Some Streamer",
			ChannelID:  "UCtestchannel0000000000",
			IsUpcoming: true,
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Channels: []config.Channel{{
			ID:         "UCtestchannel0000000000",
			Name:       "Test Channel",
			Lookbehind: 2,
		}},
	}
}

func karaokeMatch(videoID string) feed.Match {
	return feed.Match{
		Channel: config.Channel{ID: "UCtestchannel0000000000", Name: "Test Channel"},
		URL:     "https://www.youtube.com/watch?v=" + videoID,
		VideoID: videoID,
		Author:  "Some Streamer",
		Terms:   []string{"karaoke"},
	}
}

func newDaemon(
	poller monitor.Poller,
	registry *manager.Registry,
	dedup monitor.DedupStore,
	resolver engine.MetadataResolver,
	notifier monitor.Notifier,
	cfg *config.Config,
) *monitor.Daemon {
	return monitor.New(
		poller, registry, dedup, resolver, notifier,
		func() *config.Config { return cfg },
		make(chan struct{}),
		nil,
		logger.NewNoOp(),
	)
}

func newTestRegistry() *manager.Registry {
	return manager.New(idleFactory, job.Deps{}, func() *config.Config { return nil }, nil, logger.NewNoOp())
}

func TestPollOnceSchedulesEligibleMatch(t *testing.T) {
	registry := newTestRegistry()
	notifier := &stubNotifier{}
	poller := &stubPoller{matches: map[string][]feed.Match{
		"UCtestchannel0000000000": {karaokeMatch("dQw4w9WgXcQ")},
	}}
	resolver := &stubResolver{responses: map[string]*engine.PlayerResponse{
		"dQw4w9WgXcQ": upcomingStream("dQw4w9WgXcQ"),
	}}
	d := newDaemon(poller, registry, newMemDedup(), resolver, notifier, testConfig())

	d.PollOnce(context.Background(), testConfig())

	jobs := registry.All()
	require.Len(t, jobs, 1)
	snap := jobs[0].Snapshot()
	assert.Equal(t, "dQw4w9WgXcQ", snap.VideoID)
	assert.Equal(t, "Some Streamer", snap.Author)
	require.NotEmpty(t, snap.MessageLog)
	assert.Equal(t, "Found stream with matching terms: karaoke", snap.MessageLog[0].Message)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "monitor-feed:found", notifier.calls[0].tag)
	assert.Equal(t,
		"Test Channel is doing a stream matching: karaoke @ https://youtu.be/dQw4w9WgXcQ",
		notifier.calls[0].body)
}

func TestPollOnceSecondPassSchedulesNothing(t *testing.T) {
	registry := newTestRegistry()
	poller := &stubPoller{matches: map[string][]feed.Match{
		"UCtestchannel0000000000": {karaokeMatch("dQw4w9WgXcQ")},
	}}
	resolver := &stubResolver{responses: map[string]*engine.PlayerResponse{
		"dQw4w9WgXcQ": upcomingStream("dQw4w9WgXcQ"),
	}}
	d := newDaemon(poller, registry, newMemDedup(), resolver, &stubNotifier{}, testConfig())

	d.PollOnce(context.Background(), testConfig())
	require.Len(t, registry.All(), 1)

	// An unchanged feed on the next cycle produces zero new jobs.
	d.PollOnce(context.Background(), testConfig())
	assert.Len(t, registry.All(), 1)
}

func TestPollOnceRecordsIneligibleWithoutScheduling(t *testing.T) {
	registry := newTestRegistry()
	dedup := newMemDedup()
	poller := &stubPoller{matches: map[string][]feed.Match{
		"UCtestchannel0000000000": {karaokeMatch("dQw4w9WgXcQ")},
	}}
	// A finished, non-DVR video can no longer be downloaded.
	resolver := &stubResolver{responses: map[string]*engine.PlayerResponse{
		"dQw4w9WgXcQ": {VideoDetails: &engine.VideoDetails{VideoID: "dQw4w9WgXcQ"}},
	}}
	d := newDaemon(poller, registry, dedup, resolver, &stubNotifier{}, testConfig())

	d.PollOnce(context.Background(), testConfig())

	assert.Empty(t, registry.All())
	assert.True(t, dedup.seen["dQw4w9WgXcQ"], "ineligible ids stay recorded to avoid rechecks")
}

func TestPollOnceSkipsActiveJobs(t *testing.T) {
	registry := newTestRegistry()
	existing := registry.CreateJob(engine.Params{URL: "https://youtu.be/dQw4w9WgXcQ"})
	existing.HandleEvent(context.Background(), engine.Fragment{
		ManifestID: "dQw4w9WgXcQ.0", MediaType: engine.MediaVideo, CurrentFragment: 1,
	})
	require.Equal(t, domain.StatusDownloading, existing.Status())

	poller := &stubPoller{matches: map[string][]feed.Match{
		"UCtestchannel0000000000": {karaokeMatch("dQw4w9WgXcQ")},
	}}
	resolver := &stubResolver{responses: map[string]*engine.PlayerResponse{
		"dQw4w9WgXcQ": upcomingStream("dQw4w9WgXcQ"),
	}}
	dedup := newMemDedup()
	d := newDaemon(poller, registry, dedup, resolver, &stubNotifier{}, testConfig())

	d.PollOnce(context.Background(), testConfig())

	assert.Len(t, registry.All(), 1)
}

func TestPollOnceChannelErrorIsIsolated(t *testing.T) {
	registry := newTestRegistry()
	d := newDaemon(&stubPoller{err: assert.AnError}, registry, newMemDedup(),
		&stubResolver{}, &stubNotifier{}, testConfig())

	// Must not panic or schedule anything; the cycle simply moves on.
	d.PollOnce(context.Background(), testConfig())
	assert.Empty(t, registry.All())
}

var _ monitor.DedupStore = (*store.Store)(nil)
