package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/lunarchive/lunarchive/internal/logger"
)

const (
	playerEndpoint = "https://www.youtube.com/youtubei/v1/player"

	// Player responses occasionally come back null or for the wrong
	// video; the original tolerated that with bounded retries.
	resolveAttempts  = 10
	resolveRetryWait = 10 * time.Second

	webClientName    = "WEB"
	webClientVersion = "2.20241121.01.00"
)

// MetadataResolver looks up the current upstream metadata for a video.
// When validate is false, responses for privated or removed videos are
// returned rather than discarded, so health checks can still inspect
// their playability status.
type MetadataResolver interface {
	Resolve(ctx context.Context, videoID string, validate bool) (*PlayerResponse, error)
}

// InnertubeResolver implements MetadataResolver against the public
// player endpoint. All requests pass through the shared limiter so
// callers cannot exceed the polite request cadence.
type InnertubeResolver struct {
	client  *http.Client
	limiter *rate.Limiter
	log     logger.Interface
	// retryWait is overridable in tests.
	retryWait time.Duration
}

// NewInnertubeResolver creates a resolver sharing the given request
// limiter.
func NewInnertubeResolver(client *http.Client, limiter *rate.Limiter, log logger.Interface) *InnertubeResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &InnertubeResolver{
		client:    client,
		limiter:   limiter,
		log:       log,
		retryWait: resolveRetryWait,
	}
}

// Resolve fetches the player response for videoID. It retries a bounded
// number of times on null or mismatched responses and returns nil (no
// error) when every attempt comes back unusable.
func (r *InnertubeResolver) Resolve(ctx context.Context, videoID string, validate bool) (*PlayerResponse, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("resolve metadata: %w", err)
		}
	}

	for attempt := 0; attempt < resolveAttempts; attempt++ {
		resp, err := r.fetchOnce(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("resolve metadata: %w", err)
		}

		if !validate {
			// Callers bypassing validation want the response even for
			// private videos, where videoDetails is absent.
			return resp, nil
		}
		if resp != nil && resp.VideoDetails != nil && resp.VideoDetails.VideoID == videoID {
			return resp, nil
		}

		r.log.Warn("unusable player response, retrying",
			"video_id", videoID,
			"attempt", attempt+1,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("resolve metadata: %w", ctx.Err())
		case <-time.After(r.retryWait):
		}
	}
	return nil, nil
}

func (r *InnertubeResolver) fetchOnce(ctx context.Context, videoID string) (*PlayerResponse, error) {
	payload := map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    webClientName,
				"clientVersion": webClientVersion,
				"hl":            "en",
			},
		},
		"videoId": videoID,
		"playbackContext": map[string]any{
			"contentPlaybackContext": map[string]any{
				"html5Preference": "HTML5_PREF_WANTS",
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://www.youtube.com")
	req.Header.Set("X-YouTube-Client-Name", "1")
	req.Header.Set("X-YouTube-Client-Version", webClientVersion)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var player PlayerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return &player, nil
}
