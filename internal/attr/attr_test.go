package attr

import (
	"errors"
	"testing"
)

// Helper to build an attribute or fail the test
func mustAttr(t *testing.T, kind Kind, value any, time int) Attr {
	t.Helper()
	a, err := New(kind, value, time)
	if err != nil {
		t.Fatalf("New(%s, %v, %d): %v", kind, value, time, err)
	}
	return a
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		value   any
		time    int
		wantErr error
	}{
		{name: "brightness/valid", kind: KindBrightness, value: 128, time: 3600},
		{name: "brightness/min", kind: KindBrightness, value: 0, time: 0},
		{name: "brightness/max", kind: KindBrightness, value: 255, time: SecondsPerDay - 1},
		{name: "brightness/too_high", kind: KindBrightness, value: 256, time: 0, wantErr: ErrInvalid},
		{name: "brightness/negative", kind: KindBrightness, value: -1, time: 0, wantErr: ErrInvalid},
		{name: "brightness/not_a_number", kind: KindBrightness, value: "bright", time: 0, wantErr: ErrInvalid},
		{name: "brightness/fractional_float", kind: KindBrightness, value: 1.5, time: 0, wantErr: ErrInvalid},
		{name: "brightness/whole_float", kind: KindBrightness, value: 200.0, time: 0},
		{name: "color_temp/valid", kind: KindColorTemp, value: 400, time: 0},
		{name: "color_temp/below_range", kind: KindColorTemp, value: 100, time: 0, wantErr: ErrInvalid},
		{name: "color_temp/above_range", kind: KindColorTemp, value: 501, time: 0, wantErr: ErrInvalid},
		{name: "light_state/on", kind: KindLightState, value: "on", time: 0},
		{name: "light_state/off", kind: KindLightState, value: "off", time: 0},
		{name: "light_state/bogus", kind: KindLightState, value: "dim", time: 0, wantErr: ErrInvalid},
		{name: "time/negative", kind: KindBrightness, value: 10, time: -1, wantErr: ErrInvalid},
		{name: "time/full_day", kind: KindBrightness, value: 10, time: SecondsPerDay, wantErr: ErrInvalid},
		{name: "unknown_kind", kind: Kind("humidity"), value: 10, time: 0, wantErr: ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.kind, tt.value, tt.time)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got error %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaultValue(t *testing.T) {
	a := mustAttr(t, KindColorTemp, nil, 0)
	if a.Value() != 400 {
		t.Fatalf("default color_temp = %v, want 400", a.Value())
	}

	s := mustAttr(t, KindLightState, nil, 0)
	if s.Value() != "off" {
		t.Fatalf("default light_state = %v, want off", s.Value())
	}
}

func TestEqualIgnoresTime(t *testing.T) {
	a := mustAttr(t, KindBrightness, 100, 0)
	b := mustAttr(t, KindBrightness, 100, 7200)
	c := mustAttr(t, KindBrightness, 101, 0)

	if !a.Equal(b) {
		t.Error("same kind and value should be equal regardless of time")
	}
	if a.Equal(c) {
		t.Error("different values should not be equal")
	}
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name      string
		prevVal   any
		prevTime  int
		nextVal   any
		nextTime  int
		t         int
		wantVal   any
		wantTime  int
	}{
		{
			name:    "midpoint",
			prevVal: 100, prevTime: 0,
			nextVal: 200, nextTime: 100,
			t:       50,
			wantVal: 150, wantTime: 50,
		},
		{
			name:    "truncates_toward_prev",
			prevVal: 0, prevTime: 0,
			nextVal: 255, nextTime: 86300,
			t:       43150,
			wantVal: 127, wantTime: 43150,
		},
		{
			name:    "at_prev_boundary",
			prevVal: 10, prevTime: 3600,
			nextVal: 90, nextTime: 7200,
			t:       3600,
			wantVal: 10, wantTime: 7200,
		},
		{
			name:    "wrap_after_prev",
			prevVal: 100, prevTime: 23 * 3600, // 23:00
			nextVal: 200, nextTime: 1 * 3600, // 01:00
			t:       0, // midnight, halfway through the wrapped span
			// result time folds the shifted prev time back into the day
			wantVal: 150, wantTime: 23 * 3600,
		},
		{
			name:    "wrap_before_midnight",
			prevVal: 100, prevTime: 23 * 3600,
			nextVal: 200, nextTime: 1 * 3600,
			t:       23*3600 + 1800, // 23:30, a quarter in
			wantVal: 125, wantTime: (23*3600 + 23*3600 + 1800) % SecondsPerDay,
		},
		{
			name:    "identical_times_ratio_zero",
			prevVal: 40, prevTime: 3600,
			nextVal: 80, nextTime: 3600,
			t:       3600,
			wantVal: 40, wantTime: 7200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := mustAttr(t, KindBrightness, tt.prevVal, tt.prevTime)
			next := mustAttr(t, KindBrightness, tt.nextVal, tt.nextTime)

			got, err := prev.Interpolate(next, tt.t)
			if err != nil {
				t.Fatalf("Interpolate: %v", err)
			}
			if got.Value() != tt.wantVal {
				t.Errorf("value = %v, want %v", got.Value(), tt.wantVal)
			}
			if got.Time() != tt.wantTime {
				t.Errorf("time = %d, want %d", got.Time(), tt.wantTime)
			}
			if got.Kind() != KindBrightness {
				t.Errorf("kind = %s, want %s", got.Kind(), KindBrightness)
			}
		})
	}
}

func TestInterpolateKindMismatch(t *testing.T) {
	bri := mustAttr(t, KindBrightness, 100, 0)
	ct := mustAttr(t, KindColorTemp, 400, 3600)

	if _, err := bri.Interpolate(ct, 1800); !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("got %v, want ErrKindMismatch", err)
	}
}

func TestInterpolateStepKind(t *testing.T) {
	on := mustAttr(t, KindLightState, "on", 0)
	off := mustAttr(t, KindLightState, "off", 7200)

	got, err := on.Interpolate(off, 3600)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	if got.Value() != "on" {
		t.Fatalf("step kind should hold prev value, got %v", got.Value())
	}
}

func TestKindByName(t *testing.T) {
	if _, ok := KindByName("brightness"); !ok {
		t.Error("brightness should resolve")
	}
	if _, ok := KindByName("humidity"); ok {
		t.Error("humidity should not resolve")
	}
}

func TestSpecOffValues(t *testing.T) {
	// color_temp has no meaningful off value and must be omitted from
	// the off scene; the others carry one.
	ct, _ := SpecOf(KindColorTemp)
	if ct.Off != nil {
		t.Errorf("color_temp off = %v, want nil", ct.Off)
	}
	bri, _ := SpecOf(KindBrightness)
	if bri.Off != 0 {
		t.Errorf("brightness off = %v, want 0", bri.Off)
	}
	st, _ := SpecOf(KindLightState)
	if st.Off != "off" {
		t.Errorf("light_state off = %v, want off", st.Off)
	}
}
