// Package scene models named, prioritized, time-indexed target states:
// per-attribute keyframe timelines bundled into device scenes.
package scene

import (
	"errors"
	"fmt"
	"sort"

	"scened/internal/attr"
)

// ErrInvalid marks scene and timeline validation failures. These are
// raised at load time and prevent the affected device from registering.
var ErrInvalid = errors.New("invalid scene")

// Timeline is an ordered, circular sequence of same-kind keyframes for
// one attribute of one device. Immutable after construction.
type Timeline struct {
	frames []attr.Attr
	times  []int
}

// NewTimeline validates and builds a timeline. Keyframes must share one
// kind and have strictly increasing times; at least one is required.
func NewTimeline(frames []attr.Attr) (*Timeline, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: timeline must have at least one keyframe", ErrInvalid)
	}
	kind := frames[0].Kind()
	times := make([]int, len(frames))
	for i, f := range frames {
		if f.Kind() != kind {
			return nil, fmt.Errorf("%w: keyframe %s is not of kind %s", ErrInvalid, f, kind)
		}
		if i != 0 && frames[i-1].Time() >= f.Time() {
			return nil, fmt.Errorf("%w: keyframe %s time is not after previous", ErrInvalid, f)
		}
		times[i] = f.Time()
	}

	tl := &Timeline{frames: make([]attr.Attr, len(frames)), times: times}
	copy(tl.frames, frames)
	return tl, nil
}

// Kind returns the attribute kind all keyframes share.
func (tl *Timeline) Kind() attr.Kind {
	return tl.frames[0].Kind()
}

// ValueAt interpolates the attribute value at time t (seconds since
// midnight), treating the timeline as circular across midnight.
func (tl *Timeline) ValueAt(t int) (attr.Attr, error) {
	// First keyframe strictly after t.
	idx := sort.Search(len(tl.times), func(i int) bool { return tl.times[i] > t })

	var prev, next attr.Attr
	if idx == 0 || idx == len(tl.frames) {
		// t is between the last keyframe and the first one tomorrow.
		prev = tl.frames[len(tl.frames)-1]
		next = tl.frames[0]
	} else {
		prev = tl.frames[idx-1]
		next = tl.frames[idx]
	}

	return prev.Interpolate(next, t)
}

func (tl *Timeline) String() string {
	return fmt.Sprintf("Timeline(%s, %d keyframes)", tl.Kind(), len(tl.frames))
}
