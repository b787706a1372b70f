// Package entity composes the per-device abilities: the scene stack,
// the time offset, the live-state tracker and the debounced updater.
// Every external trigger funnels through one Entity, which recomputes
// the wanted state and schedules a write when it drifts from reality.
package entity

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"scened/internal/attr"
	"scened/internal/scene"
)

// Clock yields the current time as seconds since midnight. Injected so
// tests can pin the time of day.
type Clock func() int

// WallClock is the production clock, local time.
func WallClock() int {
	now := time.Now()
	return now.Hour()*3600 + now.Minute()*60 + now.Second()
}

// Entity coordinates one controlled device. All composite state lives
// behind a single per-device mutex; only the actual device write and
// the scheduler delay happen outside it.
type Entity struct {
	id string

	mu          sync.Mutex
	stack       *Stack
	shift       Timeshift
	tracker     *Tracker
	updater     *Updater
	clock       Clock
	delay       time.Duration
	invalidated bool
}

// New builds an entity from its loaded scenes, the supported attribute
// kinds of its device profile, and the live state observed at
// registration.
func New(
	id string,
	scenes []*scene.EntityScene,
	supported []attr.Kind,
	initial map[attr.Kind]attr.Attr,
	apply ApplyFunc,
	limiter *rate.Limiter,
	clock Clock,
	delay time.Duration,
) (*Entity, error) {
	stack, err := NewStack(scenes, supported)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = WallClock
	}

	e := &Entity{
		id:    id,
		stack: stack,
		clock: clock,
		delay: delay,
	}
	e.tracker = NewTracker(id, initial)
	e.updater = NewUpdater(id, e.tracker, apply, limiter)
	return e, nil
}

// ID returns the device identifier.
func (e *Entity) ID() string { return e.id }

// SetSceneActive asserts a named scene. A new winner triggers a
// recompute.
func (e *Entity) SetSceneActive(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	changed, err := e.stack.Activate(name)
	if err != nil {
		return err
	}
	if changed {
		log.Debug().Str("device", e.id).Str("scene", name).Msg("Scene became the winner")
		e.recomputeLocked()
	}
	return nil
}

// SetSceneInactive retracts a named scene. Losing the winner triggers
// a recompute against the new highest-priority member.
func (e *Entity) SetSceneInactive(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	changed, err := e.stack.Deactivate(name)
	if err != nil {
		return err
	}
	if changed {
		log.Debug().Str("device", e.id).Str("scene", name).Msg("Winner retracted, recomputing")
		e.recomputeLocked()
	}
	return nil
}

// SetCustomActive freezes the device at its last observed live state
// by activating the custom scene. No recompute follows: the value
// already reflects reality.
func (e *Entity) SetCustomActive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	snapshot := e.tracker.Last()
	if len(snapshot) == 0 {
		return ErrNoLiveState
	}
	return e.stack.ActivateCustom(snapshot)
}

// SetCustomInactive releases the custom override and recomputes
// against the restored ordinary winner.
func (e *Entity) SetCustomInactive() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	if e.stack.DeactivateCustom() {
		e.recomputeLocked()
	}
	return nil
}

// SetTimeshift replaces the offset and recomputes unconditionally:
// callers rely on recompute idempotence rather than skip-on-equal.
func (e *Entity) SetTimeshift(seconds int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	normalized := e.shift.Set(seconds)
	log.Debug().Str("device", e.id).Int("offset", normalized).Msg("Timeshift set")
	e.recomputeLocked()
	return nil
}

// ShiftTimeshift adjusts the offset by delta seconds and recomputes.
func (e *Entity) ShiftTimeshift(delta int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return ErrInvalidated
	}
	normalized := e.shift.Shift(delta)
	log.Debug().Str("device", e.id).Int("offset", normalized).Msg("Timeshift shifted")
	e.recomputeLocked()
	return nil
}

// Timeshift returns the current offset in seconds.
func (e *Entity) Timeshift() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shift.Offset()
}

// CurrentScene returns the name of the winning scene.
func (e *Entity) CurrentScene() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stack.Current().Name()
}

// ActiveScenes returns the asserted ordinary scene names.
func (e *Entity) ActiveScenes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stack.ActiveNames()
}

// Recompute re-derives the wanted state from the winning scene at the
// offset-adjusted time and schedules a write if it drifts from the
// last known live state. Driven by the periodic tick.
func (e *Entity) Recompute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recomputeLocked()
}

// OnStateChange ingests a live-state notification. Externally caused
// changes route into the custom-scene override; echoes of our own
// writes only refresh the tracker.
func (e *Entity) OnStateChange(state map[attr.Kind]attr.Attr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return
	}
	if !e.tracker.Record(state) {
		return
	}

	log.Info().Str("device", e.id).Msg("External state change, activating custom scene")
	if err := e.stack.ActivateCustom(state); err != nil {
		log.Error().Err(err).Str("device", e.id).Msg("Failed to activate custom scene")
	}
}

// Invalidate permanently stops the entity: pending work is cancelled
// and every further trigger is rejected or ignored.
func (e *Entity) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.invalidated {
		return
	}
	e.invalidated = true
	e.updater.Cancel()
	log.Debug().Str("device", e.id).Msg("Entity invalidated")
}

func (e *Entity) recomputeLocked() {
	if e.invalidated {
		return
	}

	t := floorMod(e.clock()+e.shift.Offset(), attr.SecondsPerDay)
	wanted, err := e.stack.Current().AttrsAt(t)
	if err != nil {
		log.Error().Err(err).Str("device", e.id).Msg("Failed to resolve wanted state")
		return
	}

	if e.tracker.HasChanged(wanted) {
		e.updater.Schedule(wanted, e.delay)
	}
}
