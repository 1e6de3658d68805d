// Package notify delivers job and monitor announcements to external
// services over shoutrrr URLs.
package notify

import (
	"sync"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"

	"github.com/lunarchive/lunarchive/internal/config"
	"github.com/lunarchive/lunarchive/internal/logger"
)

// Notifier publishes a tagged notification. Delivery is best-effort and
// must not block the caller.
type Notifier interface {
	Notify(title, body, tag string)
}

// target is one configured destination with its tag filter.
type target struct {
	sender *router.ServiceRouter
	tags   map[string]bool
}

func (t target) wants(tag string) bool {
	// No tag filter means the target receives everything.
	return len(t.tags) == 0 || t.tags[tag]
}

// Service fans notifications out to every configured target whose tag
// filter admits the message.
type Service struct {
	log logger.Interface

	mu      sync.RWMutex
	targets []target
}

// NewService builds a notification service from the configured targets.
// Targets with unparseable URLs are logged and skipped.
func NewService(configs []config.Notification, log logger.Interface) *Service {
	s := &Service{log: log}
	s.Reload(configs)
	return s
}

// Reload replaces the target set, used when the configuration changes.
func (s *Service) Reload(configs []config.Notification) {
	targets := make([]target, 0, len(configs))
	for _, nc := range configs {
		sender, err := shoutrrr.CreateSender(nc.URL)
		if err != nil {
			s.log.Error("Skipping unusable notification target", "error", err)
			continue
		}
		tags := make(map[string]bool, len(nc.Tags))
		for _, tag := range nc.Tags {
			tags[tag] = true
		}
		targets = append(targets, target{sender: sender, tags: tags})
	}

	s.mu.Lock()
	s.targets = targets
	s.mu.Unlock()
}

// Notify sends the message to all matching targets in the background.
func (s *Service) Notify(title, body, tag string) {
	s.mu.RLock()
	targets := s.targets
	s.mu.RUnlock()

	for _, t := range targets {
		if !t.wants(tag) {
			continue
		}
		go func(t target) {
			params := types.Params{"title": title}
			for _, err := range t.sender.Send(body, &params) {
				if err != nil {
					s.log.Error("Notification delivery failed", "tag", tag, "error", err)
				}
			}
		}(t)
	}
}

// Noop is a Notifier that discards everything.
type Noop struct{}

func (Noop) Notify(string, string, string) {}
