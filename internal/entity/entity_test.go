package entity

import (
	"errors"
	"testing"
	"time"

	"scened/internal/attr"
	"scened/internal/scene"
)

// fixedClock pins the time of day for deterministic recomputes.
func fixedClock(seconds int) Clock {
	return func() int { return seconds }
}

// daytimeScene ramps brightness 0 -> 240 between midnight and noon.
func daytimeScene(t *testing.T) *scene.EntityScene {
	t.Helper()
	tl, err := scene.NewTimeline([]attr.Attr{
		mustAttr(t, attr.KindBrightness, 0, 0),
		mustAttr(t, attr.KindBrightness, 240, 12*3600),
	})
	if err != nil {
		t.Fatal(err)
	}
	sc, err := scene.New("daytime", 50, []*scene.Timeline{tl})
	if err != nil {
		t.Fatal(err)
	}
	return sc
}

func initialState(t *testing.T) map[attr.Kind]attr.Attr {
	t.Helper()
	return map[attr.Kind]attr.Attr{
		attr.KindLightState: mustAttr(t, attr.KindLightState, "on", 0),
		attr.KindBrightness: mustAttr(t, attr.KindBrightness, 50, 0),
	}
}

func newTestEntity(t *testing.T, clock Clock, applied chan map[attr.Kind]attr.Attr) *Entity {
	t.Helper()
	e, err := New(
		"lamp",
		[]*scene.EntityScene{daytimeScene(t)},
		[]attr.Kind{attr.KindLightState, attr.KindBrightness},
		initialState(t),
		captureApply(applied),
		nil,
		clock,
		0,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEntitySceneActivationWrites(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	if err := e.SetSceneActive("daytime"); err != nil {
		t.Fatalf("SetSceneActive: %v", err)
	}

	target := waitApplied(t, applied)
	if got := target[attr.KindBrightness].Value(); got != 120 {
		t.Fatalf("brightness at 06:00 = %v, want 120", got)
	}
	if got := e.CurrentScene(); got != "daytime" {
		t.Fatalf("current scene = %s, want daytime", got)
	}
}

func TestEntityDeactivationRevertsToOff(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	if err := e.SetSceneActive("daytime"); err != nil {
		t.Fatal(err)
	}
	waitApplied(t, applied)

	if err := e.SetSceneInactive("daytime"); err != nil {
		t.Fatalf("SetSceneInactive: %v", err)
	}

	target := waitApplied(t, applied)
	if got := target[attr.KindLightState].Value(); got != "off" {
		t.Fatalf("light_state = %v, want off", got)
	}
	if got := target[attr.KindBrightness].Value(); got != 0 {
		t.Fatalf("brightness = %v, want 0", got)
	}
	if got := e.CurrentScene(); got != scene.OffName {
		t.Fatalf("current scene = %s, want off", got)
	}
}

func TestEntityTimeshiftMovesLookupTime(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	if err := e.SetSceneActive("daytime"); err != nil {
		t.Fatal(err)
	}
	waitApplied(t, applied)

	// Shifting +6h makes 06:00 look like noon.
	if err := e.SetTimeshift(6 * 3600); err != nil {
		t.Fatalf("SetTimeshift: %v", err)
	}

	target := waitApplied(t, applied)
	if got := target[attr.KindBrightness].Value(); got != 240 {
		t.Fatalf("brightness with +6h shift = %v, want 240", got)
	}
	if got := e.Timeshift(); got != 6*3600 {
		t.Fatalf("Timeshift() = %d, want %d", got, 6*3600)
	}
}

func TestEntityExternalChangeActivatesCustom(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	e.OnStateChange(map[attr.Kind]attr.Attr{
		attr.KindBrightness: mustAttr(t, attr.KindBrightness, 200, 0),
	})

	if got := e.CurrentScene(); got != scene.CustomName {
		t.Fatalf("current scene = %s, want custom", got)
	}
	// The override freezes reality: no write may follow.
	assertNoApply(t, applied, 200*time.Millisecond)

	// Releasing the override recomputes against the ordinary winner.
	if err := e.SetCustomInactive(); err != nil {
		t.Fatalf("SetCustomInactive: %v", err)
	}
	target := waitApplied(t, applied)
	if got := target[attr.KindLightState].Value(); got != "off" {
		t.Fatalf("light_state after release = %v, want off", got)
	}
}

func TestEntityNoOpStateChangeIgnored(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	e.OnStateChange(initialState(t))

	if got := e.CurrentScene(); got != scene.OffName {
		t.Fatalf("no-op notification activated %s", got)
	}
}

func TestEntitySetCustomActiveSnapshotsLiveState(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	if err := e.SetCustomActive(); err != nil {
		t.Fatalf("SetCustomActive: %v", err)
	}
	if got := e.CurrentScene(); got != scene.CustomName {
		t.Fatalf("current scene = %s, want custom", got)
	}
	assertNoApply(t, applied, 200*time.Millisecond)
}

func TestEntityRecomputeIsIdempotent(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	if err := e.SetSceneActive("daytime"); err != nil {
		t.Fatal(err)
	}
	waitApplied(t, applied)

	// Subsequent ticks with an unchanged winner schedule nothing new.
	e.Recompute()
	e.Recompute()
	assertNoApply(t, applied, 200*time.Millisecond)
}

func TestEntityInvalidate(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 4)
	e := newTestEntity(t, fixedClock(6*3600), applied)

	e.Invalidate()

	if err := e.SetSceneActive("daytime"); !errors.Is(err, ErrInvalidated) {
		t.Errorf("SetSceneActive: got %v, want ErrInvalidated", err)
	}
	if err := e.SetTimeshift(3600); !errors.Is(err, ErrInvalidated) {
		t.Errorf("SetTimeshift: got %v, want ErrInvalidated", err)
	}
	if err := e.SetCustomActive(); !errors.Is(err, ErrInvalidated) {
		t.Errorf("SetCustomActive: got %v, want ErrInvalidated", err)
	}

	e.OnStateChange(map[attr.Kind]attr.Attr{
		attr.KindBrightness: mustAttr(t, attr.KindBrightness, 1, 0),
	})
	assertNoApply(t, applied, 200*time.Millisecond)
}

func TestEntityNoLiveState(t *testing.T) {
	applied := make(chan map[attr.Kind]attr.Attr, 1)
	e, err := New(
		"lamp",
		nil,
		[]attr.Kind{attr.KindLightState, attr.KindBrightness},
		nil, // never observed
		captureApply(applied),
		nil,
		fixedClock(0),
		0,
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.SetCustomActive(); !errors.Is(err, ErrNoLiveState) {
		t.Fatalf("got %v, want ErrNoLiveState", err)
	}
}
