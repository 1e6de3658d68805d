// Package monitor runs the feed-ingestion loop: it polls configured
// channels, filters already-seen videos, and schedules download jobs
// for matching content.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/feed"
	"github.com/lunarchive/lunarchive/internal/job"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/metrics"
)

// DedupStore is the durable seen-video set.
type DedupStore interface {
	ContainsOrInsertVideo(ctx context.Context, videoID string) (bool, error)
}

// Registry schedules new download jobs.
type Registry interface {
	CreateJob(params engine.Params) *job.Job
	HasBlockingJob(videoID string) bool
	SyncMetrics()
}

// Poller finds matching entries in one channel's feed.
type Poller interface {
	ChannelMatches(ctx context.Context, channel config.Channel) ([]feed.Match, error)
}

// Notifier publishes a tagged notification, fire-and-forget.
type Notifier interface {
	Notify(title, body, tag string)
}

// Daemon orchestrates the poll cycle.
type Daemon struct {
	poller   Poller
	registry Registry
	dedup    DedupStore
	resolver engine.MetadataResolver
	notifier Notifier
	cfg      func() *config.Config
	changes  <-chan struct{}
	metrics  *metrics.Metrics
	log      logger.Interface
}

// New creates the ingestion daemon. changes must signal whenever the
// configuration reloads; the daemon waits on it while no channels are
// configured.
func New(
	poller Poller,
	registry Registry,
	dedup DedupStore,
	resolver engine.MetadataResolver,
	notifier Notifier,
	cfg func() *config.Config,
	changes <-chan struct{},
	m *metrics.Metrics,
	log logger.Interface,
) *Daemon {
	return &Daemon{
		poller:   poller,
		registry: registry,
		dedup:    dedup,
		resolver: resolver,
		notifier: notifier,
		cfg:      cfg,
		changes:  changes,
		metrics:  m,
		log:      log,
	}
}

// Run polls until ctx is cancelled. One channel's fetch failure never
// aborts the cycle for the others; nothing here terminates the process.
func (d *Daemon) Run(ctx context.Context) {
	d.log.Info("Monitoring task started")
	for {
		cfg := d.cfg()
		if cfg == nil || len(cfg.Channels) == 0 {
			d.log.Warn("No channels configured for monitoring; feed polling suspended")
			select {
			case <-ctx.Done():
				return
			case <-d.changes:
				continue
			}
		}

		d.PollOnce(ctx, cfg)
		if d.metrics != nil {
			d.metrics.PollCycles.Inc()
		}
		d.registry.SyncMetrics()

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.Monitor.PollInterval):
		}
	}
}

// PollOnce runs a single poll cycle over every configured channel.
func (d *Daemon) PollOnce(ctx context.Context, cfg *config.Config) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matches []feed.Match
	)
	for _, channel := range cfg.Channels {
		wg.Add(1)
		go func(channel config.Channel) {
			defer wg.Done()
			found, err := d.poller.ChannelMatches(ctx, channel)
			if err != nil {
				// Retried on the next cycle.
				d.log.Warn("Feed poll failed", "channel_id", channel.ID, "error", err)
				return
			}
			mu.Lock()
			matches = append(matches, found...)
			mu.Unlock()
		}(channel)
	}
	wg.Wait()

	for _, match := range matches {
		d.scheduleMatch(ctx, match)
	}
}

// scheduleMatch turns one feed match into a running job unless the
// video is already tracked, already seen, or no longer downloadable.
func (d *Daemon) scheduleMatch(ctx context.Context, match feed.Match) {
	if match.VideoID == "" {
		return
	}
	// Catches active downloads that were never recorded as seen, such
	// as jobs added by hand.
	if d.registry.HasBlockingJob(match.VideoID) {
		return
	}

	seen, err := d.dedup.ContainsOrInsertVideo(ctx, match.VideoID)
	if err != nil {
		d.log.Error("Failed to record seen video", "video_id", match.VideoID, "error", err)
		return
	}
	if seen {
		return
	}

	resp, err := d.resolver.Resolve(ctx, match.VideoID, true)
	if err != nil {
		d.log.Warn("Metadata fetch failed for feed match", "video_id", match.VideoID, "error", err)
		return
	}
	if resp == nil || resp.VideoDetails == nil {
		d.log.Warn("No usable metadata for feed match", "video_id", match.VideoID)
		return
	}
	if !eligible(resp.VideoDetails, match.Channel) {
		d.log.Debug("Feed match not eligible for download", "video_id", match.VideoID)
		return
	}

	j := d.registry.CreateJob(engine.Params{
		URL:              match.URL,
		OutputDirectory:  match.Channel.OutputDirectory,
		WriteDescription: true,
		WriteThumbnail:   true,
	})
	j.SeedFromPlayerResponse(resp)
	j.AppendMessage("Found stream with matching terms: " + strings.Join(match.Terms, ", "))
	go j.Run(ctx)

	d.log.Info("Scheduled download for feed match",
		"job_id", j.ID(),
		"video_id", match.VideoID,
		"terms", strings.Join(match.Terms, ", "),
	)
	if d.notifier != nil {
		d.notifier.Notify(
			"",
			fmt.Sprintf("%s is doing a stream matching: %s @ https://youtu.be/%s",
				match.DisplayAuthor(), strings.Join(match.Terms, ", "), match.VideoID),
			"monitor-feed:found",
		)
	}
}

// eligible reports whether the resolved content can still be archived:
// it must be live, upcoming, or in the post-live DVR window, and must
// be live content unless the channel admits uploads too.
func eligible(details *engine.VideoDetails, channel config.Channel) bool {
	if !details.IsPostLiveDVR && !details.IsUpcoming && !details.IsLive {
		return false
	}
	return details.LiveContent() || channel.IncludeNonLiveContent
}
