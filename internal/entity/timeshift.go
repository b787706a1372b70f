package entity

import "scened/internal/attr"

const halfDay = attr.SecondsPerDay / 2

// Timeshift is a bounded signed offset applied to wall-clock time
// before timeline lookup. Always normalized into [-12h, +12h), so
// repeated shifts never drift out of bounds. Access is serialized by
// the owning Entity's mutex.
type Timeshift struct {
	offset int
}

// Offset returns the current offset in seconds.
func (ts *Timeshift) Offset() int { return ts.offset }

// Set replaces the offset and returns the normalized value.
func (ts *Timeshift) Set(seconds int) int {
	ts.offset = normalizeOffset(seconds)
	return ts.offset
}

// Shift adjusts the offset by delta seconds and returns the normalized
// result.
func (ts *Timeshift) Shift(delta int) int {
	ts.offset = normalizeOffset(ts.offset + delta)
	return ts.offset
}

// normalizeOffset wraps into [-12h, +12h): +12h and -12h coincide.
func normalizeOffset(v int) int {
	return floorMod(v+halfDay, attr.SecondsPerDay) - halfDay
}

func floorMod(x, m int) int {
	r := x % m
	if r < 0 {
		r += m
	}
	return r
}
