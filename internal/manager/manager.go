// Package manager owns the device registry. It registers devices
// against their profiles, fans batch commands out to entities, persists
// preferences, and routes live-state changes from the platform into the
// right entity.
package manager

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"scened/internal/attr"
	"scened/internal/entity"
	"scened/internal/ledger"
	"scened/internal/platform"
	"scened/internal/scene"
	"scened/internal/store"
)

// Device pairs an entity with the profile it was registered under.
type Device struct {
	Entity  *entity.Entity
	Profile platform.Profile
}

// DeviceResult is the per-device outcome of a batch operation.
type DeviceResult struct {
	DeviceID string `json:"device_id"`
	Error    string `json:"error,omitempty"`
}

// Manager coordinates all registered devices.
type Manager struct {
	prefs   *store.PrefsStore
	ledger  *ledger.Ledger
	limiter *rate.Limiter
	clock   entity.Clock
	delay   time.Duration

	mu       sync.RWMutex
	platform platform.Platform
	devices  map[string]*Device
}

// New creates a Manager. The rate limiter is shared across all devices
// so write bursts never exceed what the platform tolerates. The ledger
// may be nil to disable write auditing.
func New(
	pl platform.Platform,
	prefs *store.PrefsStore,
	led *ledger.Ledger,
	limiter *rate.Limiter,
	clock entity.Clock,
	delay time.Duration,
) *Manager {
	return &Manager{
		platform: pl,
		prefs:    prefs,
		ledger:   led,
		limiter:  limiter,
		clock:    clock,
		delay:    delay,
		devices:  make(map[string]*Device),
	}
}

// SetPlatform attaches the platform adapter. Must be called before any
// device is registered when the manager was built without one.
func (m *Manager) SetPlatform(pl platform.Platform) {
	m.mu.Lock()
	m.platform = pl
	m.mu.Unlock()
}

func (m *Manager) getPlatform() platform.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.platform
}

// Register builds an entity for a device from its loaded scenes and the
// live state observed right now, then restores any persisted
// preferences. Failures are contained to the device: the error is
// returned and no entity is registered.
func (m *Manager) Register(ctx context.Context, deviceID string, scenes []*scene.EntityScene) error {
	raw, err := m.getPlatform().LiveState(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to query live state: %w", err)
	}

	profile, err := platform.Detect(raw)
	if err != nil {
		return err
	}

	initial, err := profile.Translate(raw)
	if err != nil {
		return fmt.Errorf("failed to translate initial state: %w", err)
	}

	apply := m.applyFunc(deviceID, profile)

	ent, err := entity.New(deviceID, scenes, profile.Kinds, initial, apply, m.limiter, m.clock, m.delay)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if old, ok := m.devices[deviceID]; ok {
		old.Entity.Invalidate()
	}
	m.devices[deviceID] = &Device{Entity: ent, Profile: profile}
	m.mu.Unlock()

	log.Info().
		Str("device", deviceID).
		Str("profile", profile.Name).
		Int("scenes", len(scenes)).
		Msg("Device registered")

	m.restorePrefs(ent)
	return nil
}

// applyFunc builds the device write closure handed to the entity's
// updater: translate the target to a raw payload, send it, and audit
// the successful write.
func (m *Manager) applyFunc(deviceID string, profile platform.Profile) entity.ApplyFunc {
	return func(ctx context.Context, target map[attr.Kind]attr.Attr) error {
		payload := profile.Payload(target)
		if err := m.getPlatform().Apply(ctx, deviceID, payload); err != nil {
			return err
		}
		if m.ledger != nil {
			if err := m.ledger.Record(deviceID, payload); err != nil {
				log.Warn().Err(err).Str("device", deviceID).Msg("Failed to audit device write")
			}
		}
		return nil
	}
}

// restorePrefs replays persisted timeshift and scene assertions onto a
// freshly registered entity.
func (m *Manager) restorePrefs(ent *entity.Entity) {
	if m.prefs == nil {
		return
	}
	prefs, err := m.prefs.Get(ent.ID())
	if err != nil {
		log.Warn().Err(err).Str("device", ent.ID()).Msg("Failed to load device prefs")
		return
	}
	if prefs.Timeshift != 0 {
		if err := ent.SetTimeshift(prefs.Timeshift); err != nil {
			log.Warn().Err(err).Str("device", ent.ID()).Msg("Failed to restore timeshift")
		}
	}
	for _, name := range prefs.ActiveScenes {
		if err := ent.SetSceneActive(name); err != nil {
			log.Warn().Err(err).Str("device", ent.ID()).Str("scene", name).Msg("Failed to restore scene")
		}
	}
}

// persistPrefs snapshots the entity's current timeshift and scene
// assertions. Persistence failures are logged, never propagated: the
// live state machine stays authoritative.
func (m *Manager) persistPrefs(ent *entity.Entity) {
	if m.prefs == nil {
		return
	}
	if err := m.prefs.Set(ent.ID(), ent.Timeshift(), ent.ActiveScenes()); err != nil {
		log.Warn().Err(err).Str("device", ent.ID()).Msg("Failed to persist device prefs")
	}
}

// Device returns the registered device, if any.
func (m *Manager) Device(deviceID string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	return d, ok
}

// DeviceIDs returns all registered device IDs, sorted.
func (m *Manager) DeviceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.devices))
	for id := range m.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// forEach applies op to every named device and collects per-device
// results. Unknown devices and per-device failures are recorded in the
// result list; the batch itself always completes.
func (m *Manager) forEach(deviceIDs []string, persist bool, op func(*entity.Entity) error) []DeviceResult {
	if len(deviceIDs) == 0 {
		deviceIDs = m.DeviceIDs()
	}

	results := make([]DeviceResult, 0, len(deviceIDs))
	for _, id := range deviceIDs {
		res := DeviceResult{DeviceID: id}

		m.mu.RLock()
		dev, ok := m.devices[id]
		m.mu.RUnlock()

		if !ok {
			res.Error = "unknown device"
			log.Warn().Str("device", id).Msg("Command addressed to unknown device")
			results = append(results, res)
			continue
		}

		if err := op(dev.Entity); err != nil {
			res.Error = err.Error()
			log.Warn().Err(err).Str("device", id).Msg("Device command failed")
		} else if persist {
			m.persistPrefs(dev.Entity)
		}
		results = append(results, res)
	}
	return results
}

// SetSceneActive asserts a named scene on the given devices (all
// devices when the list is empty).
func (m *Manager) SetSceneActive(deviceIDs []string, sceneName string) []DeviceResult {
	return m.forEach(deviceIDs, true, func(e *entity.Entity) error {
		return e.SetSceneActive(sceneName)
	})
}

// SetSceneInactive retracts a named scene on the given devices.
func (m *Manager) SetSceneInactive(deviceIDs []string, sceneName string) []DeviceResult {
	return m.forEach(deviceIDs, true, func(e *entity.Entity) error {
		return e.SetSceneInactive(sceneName)
	})
}

// SetCustomActive freezes the given devices at their observed state.
func (m *Manager) SetCustomActive(deviceIDs []string) []DeviceResult {
	return m.forEach(deviceIDs, false, func(e *entity.Entity) error {
		return e.SetCustomActive()
	})
}

// SetCustomInactive releases the override on the given devices.
func (m *Manager) SetCustomInactive(deviceIDs []string) []DeviceResult {
	return m.forEach(deviceIDs, false, func(e *entity.Entity) error {
		return e.SetCustomInactive()
	})
}

// SetTimeshift sets the absolute timeshift on the given devices.
func (m *Manager) SetTimeshift(deviceIDs []string, seconds int) []DeviceResult {
	return m.forEach(deviceIDs, true, func(e *entity.Entity) error {
		return e.SetTimeshift(seconds)
	})
}

// ShiftTimeshift adjusts the timeshift by delta on the given devices.
func (m *Manager) ShiftTimeshift(deviceIDs []string, delta int) []DeviceResult {
	return m.forEach(deviceIDs, true, func(e *entity.Entity) error {
		return e.ShiftTimeshift(delta)
	})
}

// RecomputeAll re-evaluates every device against the current time.
// Driven by the periodic tick.
func (m *Manager) RecomputeAll() {
	m.mu.RLock()
	devices := make([]*Device, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	m.mu.RUnlock()

	for _, d := range devices {
		d.Entity.Recompute()
	}
}

// HandleStateChange routes a platform state change to its entity.
// Changes for unregistered devices are ignored.
func (m *Manager) HandleStateChange(change platform.StateChange) {
	m.mu.RLock()
	dev, ok := m.devices[change.DeviceID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	state, err := dev.Profile.Translate(change.New)
	if err != nil {
		log.Warn().Err(err).Str("device", change.DeviceID).Msg("Failed to translate state change")
		return
	}
	dev.Entity.OnStateChange(state)
}

// Close invalidates every registered entity, cancelling their pending
// writes.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		d.Entity.Invalidate()
	}
}
