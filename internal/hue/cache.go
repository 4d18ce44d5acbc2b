package hue

import (
	"sync"
	"time"

	"github.com/dokzlo13/daylightd/internal/schedule"
)

type sentEntry struct {
	setting schedule.LightSetting
	sentAt  time.Time
}

// SentCache remembers the last setting successfully pushed to each light so
// identical settings are not re-sent more often than the TTL.
// A zero TTL disables it: every push goes to the bridge.
type SentCache struct {
	mu      sync.Mutex
	entries map[string]sentEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewSentCache creates a cache with the given resend interval.
func NewSentCache(ttl time.Duration) *SentCache {
	return &SentCache{
		entries: make(map[string]sentEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Fresh reports whether s was already sent to id within the TTL.
func (c *SentCache) Fresh(id string, s schedule.LightSetting) bool {
	if c == nil || c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	return ok && e.setting == s && c.now().Sub(e.sentAt) < c.ttl
}

// Set records a successful push.
func (c *SentCache) Set(id string, s schedule.LightSetting) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = sentEntry{setting: s, sentAt: c.now()}
}

// Invalidate forgets a light so its next push always reaches the bridge.
func (c *SentCache) Invalidate(id string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
}
