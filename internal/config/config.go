// Package config loads and validates application configuration and
// exposes a change signal for components that react to reloads.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lunarchive/lunarchive/internal/logger"
)

// validResolutions are the accepted vertical resolution caps.
var validResolutions = map[int]bool{
	144: true, 240: true, 360: true, 480: true,
	720: true, 1080: true, 1440: true, 2160: true, 4320: true,
}

// Default values applied where the file leaves settings unset.
const (
	DefaultLookbehind      = 2
	DefaultPollInterval    = 10 * time.Minute
	DefaultFeedConcurrency = 3
	DefaultResolution      = 4320
	DefaultStorePath       = "lunarchive.db3"
	DefaultServerAddress   = ":8080"
	// DefaultCommand is the archiver executable invoked per job.
	DefaultCommand = "yta-engine"
)

// Notification configures one outbound notification target.
type Notification struct {
	URL  string   `mapstructure:"url"`
	Tags []string `mapstructure:"tags"`
}

// Channel configures monitoring for one feed source.
type Channel struct {
	// ID is the upstream channel id; always "UC"-prefixed.
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	// Lookbehind is the number of older feed entries each entry is
	// compared against when suppressing template description lines.
	Lookbehind int `mapstructure:"lookbehind"`
	// Terms maps rule names to match patterns.
	Terms                 map[string]*regexp.Regexp `mapstructure:"terms"`
	OutputDirectory       string                    `mapstructure:"output_directory"`
	IncludeNonLiveContent bool                      `mapstructure:"include_non_live_content"`
}

// Tasklist configures job display retention.
type Tasklist struct {
	HideFinishedAgeDays int `mapstructure:"hide_finished_age_days"`
}

// HideFinishedAge returns the retention age; ok is false when finished
// jobs are never hidden.
func (t Tasklist) HideFinishedAge() (time.Duration, bool) {
	if t.HideFinishedAgeDays <= 0 {
		return 0, false
	}
	return time.Duration(t.HideFinishedAgeDays) * 24 * time.Hour, true
}

// Healthchecks configures post-completion verification.
type Healthchecks struct {
	EnableScheduled bool `mapstructure:"enable_scheduled"`
}

// Downloader carries engine defaults merged into new jobs.
type Downloader struct {
	Command            string `mapstructure:"command"`
	MaxVideoResolution int    `mapstructure:"max_video_resolution"`
	FFmpegPath         string `mapstructure:"ffmpeg_path"`
	OutputDirectory    string `mapstructure:"output_directory"`
	OutputTemplate     string `mapstructure:"output_template"`
	StagingDirectory   string `mapstructure:"staging_directory"`
	POToken            string `mapstructure:"po_token"`
	CookieFile         string `mapstructure:"cookie_file"`
}

// Monitor configures the ingestion daemon.
type Monitor struct {
	// PollInterval is the wait between full poll cycles.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// FeedConcurrency caps simultaneous feed fetches.
	FeedConcurrency int64 `mapstructure:"feed_concurrency"`
}

// Server configures the status API listener.
type Server struct {
	Address string `mapstructure:"address"`
}

// Store configures the sqlite database location.
type Store struct {
	Path string `mapstructure:"path"`
}

// Config is the root application configuration.
type Config struct {
	Logger        logger.Config  `mapstructure:"logger"`
	Tasklist      Tasklist       `mapstructure:"tasklist"`
	Healthchecks  Healthchecks   `mapstructure:"healthchecks"`
	Downloader    Downloader     `mapstructure:"downloader"`
	Monitor       Monitor        `mapstructure:"monitor"`
	Server        Server         `mapstructure:"server"`
	Store         Store          `mapstructure:"store"`
	Notifications []Notification `mapstructure:"notifications"`
	Channels      []Channel      `mapstructure:"channels"`
}

// applyDefaults fills zero values after decode.
func (c *Config) applyDefaults() {
	if c.Monitor.PollInterval <= 0 {
		c.Monitor.PollInterval = DefaultPollInterval
	}
	if c.Monitor.FeedConcurrency <= 0 {
		c.Monitor.FeedConcurrency = DefaultFeedConcurrency
	}
	if c.Downloader.MaxVideoResolution == 0 {
		c.Downloader.MaxVideoResolution = DefaultResolution
	}
	if c.Downloader.Command == "" {
		c.Downloader.Command = DefaultCommand
	}
	if c.Store.Path == "" {
		c.Store.Path = DefaultStorePath
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
	for i := range c.Channels {
		if c.Channels[i].Lookbehind <= 0 {
			c.Channels[i].Lookbehind = DefaultLookbehind
		}
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Downloader.MaxVideoResolution != 0 && !validResolutions[c.Downloader.MaxVideoResolution] {
		return fmt.Errorf("invalid resolution preset %d", c.Downloader.MaxVideoResolution)
	}

	seen := make(map[string]bool, len(c.Channels))
	var dupes []string
	for _, ch := range c.Channels {
		if !strings.HasPrefix(ch.ID, "UC") {
			return fmt.Errorf("expected 'UC' prefix for channel id %q", ch.ID)
		}
		if seen[ch.ID] {
			dupes = append(dupes, ch.ID)
		}
		seen[ch.ID] = true
	}
	if len(dupes) > 0 {
		return fmt.Errorf("duplicate channels in config: %s", strings.Join(dupes, ", "))
	}

	for _, n := range c.Notifications {
		if n.URL == "" {
			return errors.New("notification target missing url")
		}
	}
	return nil
}
