package entity

import (
	"errors"
	"testing"

	"scened/internal/attr"
)

func TestTrackerHasChanged(t *testing.T) {
	tr := NewTracker("lamp", snapshot(t, 100))

	if tr.HasChanged(snapshot(t, 100)) {
		t.Error("identical state should not count as changed")
	}
	if !tr.HasChanged(snapshot(t, 101)) {
		t.Error("different value should count as changed")
	}

	// A kind never seen before counts as changed.
	candidate := map[attr.Kind]attr.Attr{
		attr.KindLightState: mustAttr(t, attr.KindLightState, "on", 0),
	}
	if !tr.HasChanged(candidate) {
		t.Error("unseen kind should count as changed")
	}
}

func TestTrackerRecordDetectsExternalChange(t *testing.T) {
	tr := NewTracker("lamp", snapshot(t, 100))

	if tr.Record(snapshot(t, 100)) {
		t.Error("no-op notification should not report a change")
	}
	if !tr.Record(snapshot(t, 150)) {
		t.Error("external change should be reported")
	}

	last := tr.Last()
	if got := last[attr.KindBrightness].Value(); got != 150 {
		t.Fatalf("last brightness = %v, want 150", got)
	}
}

func TestTrackerInternalChangeSuppressed(t *testing.T) {
	tr := NewTracker("lamp", snapshot(t, 100))

	tr.WithInternalChange(func() error {
		if tr.Record(snapshot(t, 200)) {
			t.Error("change during internal scope must not be reported")
		}
		return nil
	})

	// Scope over: the same notification counts as external again.
	if !tr.Record(snapshot(t, 255)) {
		t.Error("change after internal scope should be reported")
	}
}

func TestTrackerInternalScopeClearedOnError(t *testing.T) {
	tr := NewTracker("lamp", snapshot(t, 100))

	tr.WithInternalChange(func() error {
		return errors.New("device write failed")
	})

	if !tr.Record(snapshot(t, 200)) {
		t.Error("internal flag must be cleared even when fn fails")
	}
}

func TestTrackerLastReturnsCopy(t *testing.T) {
	tr := NewTracker("lamp", snapshot(t, 100))

	last := tr.Last()
	last[attr.KindBrightness] = mustAttr(t, attr.KindBrightness, 1, 0)

	if got := tr.Last()[attr.KindBrightness].Value(); got != 100 {
		t.Fatalf("mutating the copy leaked into the tracker: %v", got)
	}
}
