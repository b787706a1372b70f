package entity

import (
	"sync"

	"github.com/rs/zerolog/log"

	"scened/internal/attr"
)

// Tracker holds the last known live state of one device and tells
// externally caused changes apart from the echoes of this system's own
// writes. It has its own mutex because internally caused writes land
// from the updater goroutine, outside the Entity lock.
type Tracker struct {
	mu       sync.Mutex
	deviceID string
	last     map[attr.Kind]attr.Attr
	internal bool
}

// NewTracker seeds the tracker with the state observed at registration.
func NewTracker(deviceID string, initial map[attr.Kind]attr.Attr) *Tracker {
	t := &Tracker{deviceID: deviceID, last: make(map[attr.Kind]attr.Attr, len(initial))}
	for k, a := range initial {
		t.last[k] = a
	}
	return t
}

// Last returns a copy of the last known live state.
func (t *Tracker) Last() map[attr.Kind]attr.Attr {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[attr.Kind]attr.Attr, len(t.last))
	for k, a := range t.last {
		out[k] = a
	}
	return out
}

// HasChanged reports whether candidate differs from the last known
// state: any differing value or missing kind counts as a change.
func (t *Tracker) HasChanged(candidate map[attr.Kind]attr.Attr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.differsLocked(candidate)
}

func (t *Tracker) differsLocked(candidate map[attr.Kind]attr.Attr) bool {
	for kind, a := range candidate {
		have, ok := t.last[kind]
		if !ok || !have.Equal(a) {
			return true
		}
	}
	return false
}

// Record stores a live-state notification and reports whether it was
// an externally caused change. Echoes of internal writes and no-op
// notifications report false.
func (t *Tracker) Record(state map[attr.Kind]attr.Attr) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	changed := t.differsLocked(state)
	for k, a := range state {
		t.last[k] = a
	}

	if t.internal {
		log.Debug().Str("device", t.deviceID).Msg("Internal state change recorded")
		return false
	}
	return changed
}

// WithInternalChange marks state changes happening during fn as
// internally caused. The flag is cleared on every exit path; an error
// from fn is logged rather than propagated, since a device-state
// disagreement must not crash the monitoring loop.
func (t *Tracker) WithInternalChange(fn func() error) {
	t.mu.Lock()
	t.internal = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.internal = false
		t.mu.Unlock()
	}()

	if err := fn(); err != nil {
		log.Error().Err(err).Str("device", t.deviceID).Msg("Device write failed")
	}
}
