// Package attr defines the attribute kinds a device can carry and the
// time-tagged values that scenes interpolate between.
package attr

import (
	"errors"
	"fmt"
)

// SecondsPerDay is the length of the 24h scene cycle.
const SecondsPerDay = 24 * 3600

// Sentinel errors for attribute construction and interpolation.
var (
	ErrInvalid      = errors.New("invalid attribute")
	ErrKindMismatch = errors.New("attribute kind mismatch")
	ErrUnknownKind  = errors.New("unknown attribute kind")
)

// Kind identifies a controllable device property.
type Kind string

const (
	KindBrightness   Kind = "brightness"
	KindColorTemp    Kind = "color_temp"
	KindXYBrightness Kind = "xy_brightness"
	KindLightState   Kind = "light_state"
)

// Spec describes the validation and interpolation rules for one kind.
// The kind set is closed: all specs live in the table below.
type Spec struct {
	// RawName is the attribute name in host platform payloads.
	RawName string

	// Off is the value the kind takes in the always-active off scene.
	// nil means the kind has no off value and is omitted from it.
	Off any

	// Default is used when a value is not supplied at construction.
	Default any

	// Normalize coerces a raw value (YAML int, JSON float64, string)
	// into the canonical representation and validates it.
	Normalize func(v any) (any, error)

	// Lerp interpolates between two canonical values. Step kinds
	// ignore ratio and return prev.
	Lerp func(prev, next any, ratio float64) any
}

var specs = map[Kind]Spec{
	KindBrightness: {
		RawName:   "brightness",
		Off:       0,
		Default:   0,
		Normalize: intInRange(0, 255),
		Lerp:      lerpInt,
	},
	KindXYBrightness: {
		RawName:   "brightness",
		Off:       0,
		Default:   0,
		Normalize: intInRange(0, 255),
		Lerp:      lerpInt,
	},
	KindColorTemp: {
		RawName:   "color_temp",
		Off:       nil,
		Default:   400,
		Normalize: intInRange(153, 500),
		Lerp:      lerpInt,
	},
	KindLightState: {
		RawName:   "state",
		Off:       "off",
		Default:   "off",
		Normalize: oneOf("on", "off"),
		Lerp:      stepPrev,
	},
}

// kindOrder fixes iteration order for Kinds().
var kindOrder = []Kind{KindBrightness, KindColorTemp, KindXYBrightness, KindLightState}

// Kinds returns all known attribute kinds in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(kindOrder))
	copy(out, kindOrder)
	return out
}

// KindByName resolves a config/raw name into a Kind.
func KindByName(name string) (Kind, bool) {
	k := Kind(name)
	_, ok := specs[k]
	return k, ok
}

// SpecOf returns the spec for a kind.
func SpecOf(k Kind) (Spec, bool) {
	s, ok := specs[k]
	return s, ok
}

// Attr is an immutable, time-tagged attribute value. The value is
// validated against the kind's spec at construction; interpolation
// produces a new instance and never mutates in place.
type Attr struct {
	kind  Kind
	value any
	time  int
}

// New builds a validated attribute. time is seconds since midnight.
func New(kind Kind, value any, time int) (Attr, error) {
	spec, ok := specs[kind]
	if !ok {
		return Attr{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if time < 0 || time >= SecondsPerDay {
		return Attr{}, fmt.Errorf("%w: %s: time %d not in range 0-23:59:59", ErrInvalid, kind, time)
	}
	if value == nil {
		value = spec.Default
	}
	canonical, err := spec.Normalize(value)
	if err != nil {
		return Attr{}, fmt.Errorf("%w: %s(t=%d): %v", ErrInvalid, kind, time, err)
	}
	return Attr{kind: kind, value: canonical, time: time}, nil
}

// Kind returns the attribute kind.
func (a Attr) Kind() Kind { return a.kind }

// Value returns the canonical attribute value.
func (a Attr) Value() any { return a.value }

// Time returns the attribute's time tag in seconds since midnight.
func (a Attr) Time() int { return a.time }

// Equal reports whether two attributes share kind and value.
// Time tags are not compared.
func (a Attr) Equal(other Attr) bool {
	return a.kind == other.kind && a.value == other.value
}

// Interpolate computes the value at time t between this attribute and
// next, handling the midnight wraparound. Interpolating across kinds
// is an invariant violation and returns ErrKindMismatch.
func (a Attr) Interpolate(next Attr, t int) (Attr, error) {
	if a.kind != next.kind {
		return Attr{}, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, a.kind, next.kind)
	}

	prevTime, nextTime := normalizeTimes(t, a.time, next.time)

	var ratio float64
	if prevTime != nextTime {
		ratio = float64(t-prevTime) / float64(nextTime-prevTime)
	}

	spec := specs[a.kind]
	value := spec.Lerp(a.value, next.value, ratio)
	return Attr{
		kind:  a.kind,
		value: value,
		time:  floorMod(prevTime+t, SecondsPerDay),
	}, nil
}

func (a Attr) String() string {
	h := a.time / 3600
	m := (a.time % 3600) / 60
	s := a.time % 60
	return fmt.Sprintf("%s(t=%02d:%02d:%02d, v=%v)", a.kind, h, m, s, a.value)
}

// normalizeTimes shifts one of the bounding keyframe times by a day so
// that t lies numerically between them when the pair wraps midnight.
func normalizeTimes(t, prevTime, nextTime int) (int, int) {
	if prevTime > nextTime {
		if t >= prevTime {
			nextTime += SecondsPerDay
		} else {
			prevTime -= SecondsPerDay
		}
	}
	return prevTime, nextTime
}

func floorMod(x, m int) int {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}

// intInRange returns a normalizer accepting int-like values in [lo, hi].
func intInRange(lo, hi int) func(any) (any, error) {
	return func(v any) (any, error) {
		n, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("value %v (%T) is not an integer", v, v)
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("value %d not in range %d-%d", n, lo, hi)
		}
		return n, nil
	}
}

// oneOf returns a normalizer accepting only the listed strings.
func oneOf(allowed ...string) func(any) (any, error) {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("value %v (%T) is not a string", v, v)
		}
		for _, a := range allowed {
			if s == a {
				return s, nil
			}
		}
		return nil, fmt.Errorf("value %q not one of %v", s, allowed)
	}
}

// asInt coerces the integer shapes produced by YAML and JSON decoding.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// lerpInt interpolates linearly, truncating toward the previous value.
func lerpInt(prev, next any, ratio float64) any {
	p := prev.(int)
	n := next.(int)
	return int(float64(p) + float64(n-p)*ratio)
}

// stepPrev keeps enumerated kinds as step functions: no blending.
func stepPrev(prev, _ any, _ float64) any {
	return prev
}
