package entity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"scened/internal/attr"
)

// ApplyFunc issues the actual device command. May block; the context
// is the scheduling context and is not cancelled once the write has
// begun.
type ApplyFunc func(ctx context.Context, target map[attr.Kind]attr.Attr) error

// Updater debounces and schedules the eventual device write for one
// device. At most one update is pending at a time; scheduling a new
// one cancels the previous not-yet-executed request, so rapid
// successive changes coalesce into a single applied write.
type Updater struct {
	deviceID string
	tracker  *Tracker
	apply    ApplyFunc
	limiter  *rate.Limiter

	mu         sync.Mutex
	pending    *pendingUpdate
	lastTarget map[attr.Kind]attr.Attr
}

type pendingUpdate struct {
	id     string
	target map[attr.Kind]attr.Attr
	timer  *time.Timer
	ctx    context.Context
	cancel context.CancelFunc
}

// NewUpdater builds an updater. The limiter paces device writes and
// may be shared across devices; nil disables pacing.
func NewUpdater(deviceID string, tracker *Tracker, apply ApplyFunc, limiter *rate.Limiter) *Updater {
	return &Updater{
		deviceID: deviceID,
		tracker:  tracker,
		apply:    apply,
		limiter:  limiter,
	}
}

// Schedule requests that target be applied after delay. Scheduling the
// same target as the previous request is a no-op; anything else
// cancels the pending write and replaces it.
func (u *Updater) Schedule(target map[attr.Kind]attr.Attr, delay time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.lastTarget != nil && statesEqual(target, u.lastTarget) {
		log.Debug().Str("device", u.deviceID).Msg("Target unchanged since last schedule, skipping")
		return
	}
	u.cancelPendingLocked()

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingUpdate{
		id:     uuid.NewString(),
		target: cloneState(target),
		ctx:    ctx,
		cancel: cancel,
	}
	u.lastTarget = p.target
	u.pending = p

	log.Debug().
		Str("device", u.deviceID).
		Str("update", p.id).
		Dur("delay", delay).
		Msg("Scheduling device update")

	p.timer = time.AfterFunc(delay, func() { u.execute(p) })
}

// Cancel drops the pending update, if any, and forgets the last
// scheduled target. Used on device invalidation.
func (u *Updater) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cancelPendingLocked()
	u.lastTarget = nil
}

func (u *Updater) cancelPendingLocked() {
	if u.pending == nil {
		return
	}
	log.Debug().Str("device", u.deviceID).Str("update", u.pending.id).Msg("Cancelling pending update")
	u.pending.timer.Stop()
	u.pending.cancel()
	u.pending = nil
}

// execute runs a fired update unless it was superseded or cancelled.
// The write happens inside the tracker's internal-change scope so the
// resulting live-state notification is not mistaken for an external
// change. Cancellation is cooperative: once the write starts it is not
// interrupted.
func (u *Updater) execute(p *pendingUpdate) {
	u.mu.Lock()
	if u.pending != p {
		u.mu.Unlock()
		return
	}
	u.pending = nil
	u.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	u.tracker.WithInternalChange(func() error {
		if u.limiter != nil {
			if err := u.limiter.Wait(p.ctx); err != nil {
				// Cancelled while queued; no write is issued.
				return nil
			}
		}
		if p.ctx.Err() != nil {
			return nil
		}

		log.Debug().Str("device", u.deviceID).Str("update", p.id).Msg("Applying device update")
		if err := u.apply(context.Background(), p.target); err != nil {
			// Last known state stays untouched; forgetting the target
			// lets the next periodic tick reschedule the same write,
			// so drift is retried naturally.
			u.mu.Lock()
			if u.lastTarget != nil && statesEqual(u.lastTarget, p.target) {
				u.lastTarget = nil
			}
			u.mu.Unlock()
			return err
		}

		// Remember what we wrote so the echoed notification does not
		// re-trigger the custom-scene override.
		u.tracker.Record(p.target)
		return nil
	})
}

func statesEqual(a, b map[attr.Kind]attr.Attr) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

func cloneState(state map[attr.Kind]attr.Attr) map[attr.Kind]attr.Attr {
	out := make(map[attr.Kind]attr.Attr, len(state))
	for k, a := range state {
		out[k] = a
	}
	return out
}
