// Package feed polls channel upload feeds and finds entries matching a
// channel's monitoring rules.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/semaphore"

	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/engine"
	"github.com/lunarchive/lunarchive/internal/logger"
	"github.com/lunarchive/lunarchive/internal/pattern"
)

// Fetcher retrieves the raw body of a feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher implements Fetcher over an HTTP client.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher; a nil client uses the default.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch retrieves url and returns the response body.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// Match is one feed entry that matched a channel's rules. It lives for
// a single poll cycle; only the job it produces is persisted.
type Match struct {
	Channel config.Channel
	URL     string
	VideoID string
	Author  string
	Terms   []string
}

// DisplayAuthor prefers the configured channel name over the feed's
// author field.
func (m Match) DisplayAuthor() string {
	if m.Channel.Name != "" {
		return m.Channel.Name
	}
	return m.Author
}

// FeedURL returns the upload feed address for a channel id.
func FeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + channelID
}

// Poller fetches channel feeds under a shared concurrency gate and
// evaluates entries against the channel's rules.
type Poller struct {
	fetcher Fetcher
	gate    *semaphore.Weighted
	log     logger.Interface
}

// NewPoller creates a poller allowing at most concurrency simultaneous
// feed fetches.
func NewPoller(fetcher Fetcher, concurrency int64, log logger.Interface) *Poller {
	if concurrency <= 0 {
		concurrency = config.DefaultFeedConcurrency
	}
	return &Poller{
		fetcher: fetcher,
		gate:    semaphore.NewWeighted(concurrency),
		log:     log,
	}
}

// ChannelMatches polls one channel's feed and returns the entries whose
// title or deduplicated description matches any of the channel's rules.
func (p *Poller) ChannelMatches(ctx context.Context, channel config.Channel) ([]Match, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("poll %s: %w", channel.ID, err)
	}
	body, err := p.fetcher.Fetch(ctx, FeedURL(channel.ID))
	p.gate.Release(1)
	if err != nil {
		return nil, fmt.Errorf("poll %s: %w", channel.ID, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", channel.ID, err)
	}

	var matches []Match
	for i, item := range parsed.Items {
		// The feed is newest-first; each entry is compared against the
		// lookbehind next (older) entries to strip template description
		// lines shared across a channel's videos.
		end := i + 1 + channel.Lookbehind
		if end > len(parsed.Items) {
			end = len(parsed.Items)
		}
		description := uniqueLines(itemDescription(item), parsed.Items[i+1:end])

		terms := make(map[string]bool)
		for _, haystack := range []string{item.Title, description} {
			for _, term := range pattern.Matches(pattern.RuleSet(channel.Terms), haystack) {
				terms[term] = true
			}
		}
		if len(terms) == 0 {
			// Not an error: the entry is naturally reconsidered on the
			// next poll.
			continue
		}

		matches = append(matches, Match{
			Channel: channel,
			URL:     item.Link,
			VideoID: itemVideoID(item),
			Author:  itemAuthor(item),
			Terms:   sortedKeys(terms),
		})
	}
	return matches, nil
}

// uniqueLines strips from description any line that, after trailing
// whitespace trim, also appears in one of the older entries'
// descriptions. Line order is preserved.
func uniqueLines(description string, older []*gofeed.Item) string {
	olderLines := make(map[string]bool)
	for _, item := range older {
		for _, line := range strings.Split(itemDescription(item), "\n") {
			olderLines[strings.TrimRight(line, " \t\r")] = true
		}
	}

	var kept []string
	for _, line := range strings.Split(description, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if !olderLines[line] {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// itemDescription reads the entry description, falling back to the
// media:group description used by channel upload feeds.
func itemDescription(item *gofeed.Item) string {
	if item.Description != "" {
		return item.Description
	}
	if media, ok := item.Extensions["media"]; ok {
		for _, group := range media["group"] {
			if descs, ok := group.Children["description"]; ok && len(descs) > 0 {
				return descs[0].Value
			}
		}
	}
	return ""
}

func itemVideoID(item *gofeed.Item) string {
	if yt, ok := item.Extensions["yt"]; ok {
		if ids, ok := yt["videoId"]; ok && len(ids) > 0 {
			return ids[0].Value
		}
	}
	return engine.ExtractVideoID(item.Link)
}

func itemAuthor(item *gofeed.Item) string {
	if len(item.Authors) > 0 {
		return item.Authors[0].Name
	}
	return ""
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
