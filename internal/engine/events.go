// Package engine defines the boundary to the external download engine:
// the typed event stream it emits, the downloader handle it exposes, and
// the upstream metadata resolver used to qualify and verify content.
package engine

import (
	"context"
	"time"
)

// MediaType identifies the media track an event refers to.
type MediaType string

const (
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
)

// Event is the closed union of messages produced by the download engine.
// Consumers switch over the concrete types; unknown kinds must be ignored
// without error.
type Event interface {
	isEvent()
}

// StreamInfo announces stream metadata, possibly repeatedly when
// scheduling data changes upstream.
type StreamInfo struct {
	Title          string     `json:"title"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
}

// Fragment reports one delivered media fragment.
type Fragment struct {
	ManifestID      string    `json:"manifest_id"`
	MediaType       MediaType `json:"media_type"`
	CurrentFragment int64     `json:"current_fragment"`
	MaxFragments    int64     `json:"max_fragments"`
	FragmentSize    int64     `json:"fragment_size"`
}

// FormatInfo describes the selected upstream format for a manifest.
type FormatInfo struct {
	QualityLabel      string  `json:"quality_label,omitempty"`
	Bitrate           int64   `json:"bitrate,omitempty"`
	Codec             string  `json:"codec,omitempty"`
	Itag              int     `json:"itag"`
	TargetDurationSec float64 `json:"target_duration_sec"`
}

// FormatSelection reports the format chosen for one media track.
type FormatSelection struct {
	ManifestID string     `json:"manifest_id"`
	MajorType  MediaType  `json:"major_type"`
	Format     FormatInfo `json:"format"`
}

// StreamMux signals the start of the remux process.
type StreamMux struct{}

// StreamMuxProgress reports incremental mux output progress.
type StreamMuxProgress struct {
	ManifestID string        `json:"manifest_id"`
	OutTime    time.Duration `json:"out_time"`
	TotalSize  int64         `json:"total_size"`
}

// StreamUnavailable signals the source can no longer be downloaded.
type StreamUnavailable struct{}

// DownloadJobFinished signals successful completion with the final
// output file paths.
type DownloadJobFinished struct {
	OutputPaths []string `json:"output_paths"`
}

// DownloadJobFailedOutputMove signals the finished media could not be
// moved into its output location.
type DownloadJobFailedOutputMove struct{}

// FreeText carries an arbitrary engine log line.
type FreeText struct {
	Text string `json:"text"`
}

func (StreamInfo) isEvent()                  {}
func (Fragment) isEvent()                    {}
func (FormatSelection) isEvent()             {}
func (StreamMux) isEvent()                   {}
func (StreamMuxProgress) isEvent()           {}
func (StreamUnavailable) isEvent()           {}
func (DownloadJobFinished) isEvent()         {}
func (DownloadJobFailedOutputMove) isEvent() {}
func (FreeText) isEvent()                    {}

// EventSink consumes engine events. The download engine calls it
// sequentially in production order.
type EventSink interface {
	HandleEvent(ctx context.Context, ev Event)
}
