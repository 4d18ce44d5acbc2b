// Package presence reports whether anyone is around to see the lights.
package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Static always reports the same value.
type Static bool

// Present implements control.Presence.
func (s Static) Present(ctx context.Context) bool { return bool(s) }

// Switch holds the latest presence reading pushed by an external source.
// With a non-zero expireAfter a "present" reading decays to absent when no
// update arrives in time.
type Switch struct {
	mu          sync.RWMutex
	present     bool
	updatedAt   time.Time
	expireAfter time.Duration
	now         func() time.Time
}

// NewSwitch creates a switch starting at initial.
func NewSwitch(initial bool, expireAfter time.Duration) *Switch {
	return &Switch{
		present:     initial,
		updatedAt:   time.Now(),
		expireAfter: expireAfter,
		now:         time.Now,
	}
}

// Set records a new reading.
func (s *Switch) Set(present bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = present
	s.updatedAt = s.now()
}

// Present implements control.Presence.
func (s *Switch) Present(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return false
	}
	if s.expireAfter > 0 && s.now().Sub(s.updatedAt) > s.expireAfter {
		return false
	}
	return true
}

// UpdatedAt returns the time of the last reading.
func (s *Switch) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

type statePayload struct {
	Present  *bool  `json:"present"`
	Occupied *bool  `json:"occupied"`
	State    string `json:"state"`
}

// ParsePayload decodes a presence reading. Plain words (true/false, 1/0,
// on/off, occupied/empty, present/away) and JSON objects carrying
// "present", "occupied" or "state" are accepted.
func ParsePayload(payload []byte) (bool, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return false, fmt.Errorf("empty presence payload")
	}

	if trimmed[0] == '{' {
		var p statePayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return false, fmt.Errorf("invalid presence json: %w", err)
		}
		switch {
		case p.Present != nil:
			return *p.Present, nil
		case p.Occupied != nil:
			return *p.Occupied, nil
		case p.State != "":
			return parseWord(p.State)
		}
		return false, fmt.Errorf("presence json has no present, occupied or state field")
	}

	return parseWord(string(trimmed))
}

func parseWord(word string) (bool, error) {
	switch strings.ToLower(strings.Trim(word, `"`)) {
	case "true", "1", "on", "occupied", "present", "home", "yes":
		return true, nil
	case "false", "0", "off", "empty", "unoccupied", "absent", "away", "no":
		return false, nil
	}
	return false, fmt.Errorf("unknown presence value %q", word)
}
