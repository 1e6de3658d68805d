package engine

import (
	"sort"
	"strconv"
	"time"
)

// Thumbnail is one upstream thumbnail variant.
type Thumbnail struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

// VideoDetails carries the upstream description of a video.
type VideoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	ChannelID     string `json:"channelId"`
	LengthSeconds string `json:"lengthSeconds"`
	Thumbnail     struct {
		Thumbnails []Thumbnail `json:"thumbnails"`
	} `json:"thumbnail"`
	// IsLive reports whether content is being shown in real time.
	IsLive bool `json:"isLive"`
	// IsLiveContent defaults true upstream; the field is omitted for
	// plain uploads on some clients, so absence must not read as false
	// negatives. The resolver normalizes that.
	IsLiveContent *bool `json:"isLiveContent"`
	IsUpcoming    bool  `json:"isUpcoming"`
	// IsPostLiveDVR is set while fragments of a recently finished
	// broadcast remain downloadable.
	IsPostLiveDVR bool `json:"isPostLiveDvr"`
}

// Duration returns the reported length.
func (d *VideoDetails) Duration() time.Duration {
	secs, err := strconv.ParseInt(d.LengthSeconds, 10, 64)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// LiveContent resolves the optional isLiveContent field.
func (d *VideoDetails) LiveContent() bool {
	if d.IsLiveContent == nil {
		return true
	}
	return *d.IsLiveContent
}

// BestThumbnail returns the URL of the largest thumbnail, or "".
func (d *VideoDetails) BestThumbnail() string {
	if len(d.Thumbnail.Thumbnails) == 0 {
		return ""
	}
	thumbs := make([]Thumbnail, len(d.Thumbnail.Thumbnails))
	copy(thumbs, d.Thumbnail.Thumbnails)
	sort.Slice(thumbs, func(i, j int) bool {
		if thumbs[i].Width != thumbs[j].Width {
			return thumbs[i].Width > thumbs[j].Width
		}
		return thumbs[i].Height > thumbs[j].Height
	})
	return thumbs[0].URL
}

// PlayabilityStatus carries the upstream playability block.
type PlayabilityStatus struct {
	Status            string `json:"status"`
	LiveStreamability *struct {
		LiveStreamabilityRenderer *struct {
			OfflineSlate *struct {
				LiveStreamOfflineSlateRenderer *struct {
					ScheduledStartTime string `json:"scheduledStartTime"`
				} `json:"liveStreamOfflineSlateRenderer"`
			} `json:"offlineSlate"`
		} `json:"liveStreamabilityRenderer"`
	} `json:"liveStreamability"`
}

// ScheduledStart returns the scheduled start time of an upcoming
// broadcast, or nil when none is advertised.
func (p *PlayabilityStatus) ScheduledStart() *time.Time {
	if p.LiveStreamability == nil ||
		p.LiveStreamability.LiveStreamabilityRenderer == nil ||
		p.LiveStreamability.LiveStreamabilityRenderer.OfflineSlate == nil ||
		p.LiveStreamability.LiveStreamabilityRenderer.OfflineSlate.LiveStreamOfflineSlateRenderer == nil {
		return nil
	}
	raw := p.LiveStreamability.LiveStreamabilityRenderer.OfflineSlate.LiveStreamOfflineSlateRenderer.ScheduledStartTime
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}

// BroadcastDetails carries live broadcast timing from the microformat.
type BroadcastDetails struct {
	StartTimestamp *time.Time `json:"startTimestamp"`
	EndTimestamp   *time.Time `json:"endTimestamp"`
	IsLiveNow      bool       `json:"isLiveNow"`
}

// EstimatedDuration returns the broadcast span when both timestamps are
// known. A broadcast still being finalized upstream reports an end
// timestamp ahead of the advertised video duration.
func (b *BroadcastDetails) EstimatedDuration() (time.Duration, bool) {
	if b.StartTimestamp == nil || b.EndTimestamp == nil {
		return 0, false
	}
	return b.EndTimestamp.Sub(*b.StartTimestamp), true
}

// Microformat wraps the player microformat renderer.
type Microformat struct {
	PlayerMicroformatRenderer *struct {
		LiveBroadcastDetails *BroadcastDetails `json:"liveBroadcastDetails"`
	} `json:"playerMicroformatRenderer"`
}

// BroadcastDetails returns the live broadcast details block, if present.
func (m *Microformat) BroadcastDetails() *BroadcastDetails {
	if m == nil || m.PlayerMicroformatRenderer == nil {
		return nil
	}
	return m.PlayerMicroformatRenderer.LiveBroadcastDetails
}

// PlayerResponse is the subset of the upstream player response this
// system consumes.
type PlayerResponse struct {
	VideoDetails      *VideoDetails      `json:"videoDetails"`
	PlayabilityStatus *PlayabilityStatus `json:"playabilityStatus"`
	Microformat       *Microformat       `json:"microformat"`
}
