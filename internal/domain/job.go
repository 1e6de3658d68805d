// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// LogMessage is one timestamped entry in a job's append-only message log.
type LogMessage struct {
	EventTime time.Time `json:"event_datetime"`
	Message   string    `json:"message"`
}

// ManifestProgress tracks per-manifest download and mux counters.
// A job may carry several manifests for multi-period broadcasts.
type ManifestProgress struct {
	// Highest video fragment index delivered for this manifest.
	VideoSeq int64 `json:"video_seq"`
	// Highest audio fragment index delivered for this manifest.
	AudioSeq int64 `json:"audio_seq"`
	// Maximum known fragment count; only ever grows.
	MaxSeq int64 `json:"max_seq"`
	// Total bytes transferred across both media types.
	TotalDownloaded int64 `json:"total_downloaded"`
	// Elapsed output time reported by the muxer.
	MuxOutTime time.Duration `json:"mux_out_time"`
	// Total muxed output size in bytes; nil until the muxer reports one.
	MuxTotalSize *int64 `json:"mux_total_size"`
	// FirstUpdate and LastUpdate bracket the fragment updates observed.
	FirstUpdate time.Time `json:"first_update"`
	LastUpdate  time.Time `json:"last_update"`
}

// EstimatedRemaining derives the time left from the observed fragment
// rate. The second return is false until at least one fragment update
// spanning a measurable interval has occurred.
func (p *ManifestProgress) EstimatedRemaining() (time.Duration, bool) {
	elapsed := p.LastUpdate.Sub(p.FirstUpdate)
	if p.FirstUpdate.IsZero() || elapsed <= 0 {
		return 0, false
	}
	observed := p.VideoSeq
	if p.AudioSeq > observed {
		observed = p.AudioSeq
	}
	if observed <= 0 {
		return 0, false
	}
	remaining := p.MaxSeq - observed
	if remaining < 0 {
		remaining = 0
	}
	perFragment := elapsed / time.Duration(observed)
	return time.Duration(remaining) * perFragment, true
}

// HealthCheckStatus records the most recent health check outcome.
type HealthCheckStatus struct {
	LastResult HealthResult `json:"last_result"`
	LastCheck  time.Time    `json:"last_check"`
}

// Snapshot is a point-in-time structural copy of a job's fields, used
// for persistence, broadcast, and display. It never carries the live
// engine handle.
type Snapshot struct {
	ID              string                      `json:"id"`
	Author          string                      `json:"author,omitempty"`
	ChannelID       string                      `json:"channel_id,omitempty"`
	VideoID         string                      `json:"video_id,omitempty"`
	ScheduledStart  *time.Time                  `json:"scheduled_start_datetime,omitempty"`
	ThumbnailURL    string                      `json:"thumbnail_url,omitempty"`
	CurrentManifest string                      `json:"current_manifest,omitempty"`
	Title           string                      `json:"title,omitempty"`
	Status          DownloadStatus              `json:"status"`
	FinishedAt      *time.Time                  `json:"finished_at,omitempty"`
	MessageLog      []LogMessage                `json:"message_log"`
	Manifests       map[string]ManifestProgress `json:"manifest_progress"`
	Health          *HealthCheckStatus          `json:"healthcheck,omitempty"`
	OutputPaths     []string                    `json:"output_paths,omitempty"`
}

// VideoSeq sums the video fragment indices across all manifests.
func (s *Snapshot) VideoSeq() int64 { return s.sumManifests(func(p ManifestProgress) int64 { return p.VideoSeq }) }

// AudioSeq sums the audio fragment indices across all manifests.
func (s *Snapshot) AudioSeq() int64 { return s.sumManifests(func(p ManifestProgress) int64 { return p.AudioSeq }) }

// MaxSeq sums the known fragment counts across all manifests.
func (s *Snapshot) MaxSeq() int64 { return s.sumManifests(func(p ManifestProgress) int64 { return p.MaxSeq }) }

// TotalDownloaded sums the bytes transferred across all manifests.
func (s *Snapshot) TotalDownloaded() int64 {
	return s.sumManifests(func(p ManifestProgress) int64 { return p.TotalDownloaded })
}

func (s *Snapshot) sumManifests(f func(ManifestProgress) int64) int64 {
	var total int64
	for _, p := range s.Manifests {
		total += f(p)
	}
	return total
}

// StatusSummary is the compact per-job dump served by the status API.
type StatusSummary struct {
	ID              string         `json:"id"`
	Title           string         `json:"title,omitempty"`
	Status          DownloadStatus `json:"status"`
	VideoSeq        int64          `json:"video_seq"`
	AudioSeq        int64          `json:"audio_seq"`
	MaxSeq          int64          `json:"max_seq"`
	TotalDownloaded int64          `json:"total_downloaded"`
}

// Summary derives the compact status dump from a snapshot.
func (s *Snapshot) Summary() StatusSummary {
	return StatusSummary{
		ID:              s.ID,
		Title:           s.Title,
		Status:          s.Status,
		VideoSeq:        s.VideoSeq(),
		AudioSeq:        s.AudioSeq(),
		MaxSeq:          s.MaxSeq(),
		TotalDownloaded: s.TotalDownloaded(),
	}
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Snapshot) Clone() Snapshot {
	out := *s
	if s.ScheduledStart != nil {
		t := *s.ScheduledStart
		out.ScheduledStart = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		out.FinishedAt = &t
	}
	if s.Health != nil {
		h := *s.Health
		out.Health = &h
	}
	if s.MessageLog != nil {
		out.MessageLog = make([]LogMessage, len(s.MessageLog))
		copy(out.MessageLog, s.MessageLog)
	}
	if s.OutputPaths != nil {
		out.OutputPaths = make([]string, len(s.OutputPaths))
		copy(out.OutputPaths, s.OutputPaths)
	}
	if s.Manifests != nil {
		out.Manifests = make(map[string]ManifestProgress, len(s.Manifests))
		for id, p := range s.Manifests {
			if p.MuxTotalSize != nil {
				size := *p.MuxTotalSize
				p.MuxTotalSize = &size
			}
			out.Manifests[id] = p
		}
	}
	return out
}
