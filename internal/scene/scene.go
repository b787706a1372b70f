package scene

import (
	"fmt"

	"scened/internal/attr"
)

// Reserved scene names and the priority ceiling.
const (
	OffName    = "off"    // always-active zero-priority fallback
	CustomName = "custom" // live-state override, always priority MaxPriority
	// MaxPriority is reserved for the custom scene; ordinary scenes
	// use 0 to MaxPriority-1.
	MaxPriority = 100
)

// EntityScene is a named, prioritized bundle of one timeline per
// attribute kind for one device.
type EntityScene struct {
	name      string
	priority  int
	timelines map[attr.Kind]*Timeline
}

// New validates and builds a scene. Priority MaxPriority is reserved
// for the custom scene; every kind may appear at most once and at
// least one timeline is required.
func New(name string, priority int, timelines []*Timeline) (*EntityScene, error) {
	if name == CustomName && priority != MaxPriority {
		return nil, fmt.Errorf("%w: custom scene must have priority %d, not %d", ErrInvalid, MaxPriority, priority)
	}
	if name != CustomName && (priority < 0 || priority >= MaxPriority) {
		return nil, fmt.Errorf("%w: scene %q priority %d not in range 0-%d", ErrInvalid, name, priority, MaxPriority-1)
	}
	if len(timelines) == 0 {
		return nil, fmt.Errorf("%w: scene %q has no timelines", ErrInvalid, name)
	}

	byKind := make(map[attr.Kind]*Timeline, len(timelines))
	for _, tl := range timelines {
		if _, dup := byKind[tl.Kind()]; dup {
			return nil, fmt.Errorf("%w: scene %q has duplicate timeline for %s", ErrInvalid, name, tl.Kind())
		}
		byKind[tl.Kind()] = tl
	}

	return &EntityScene{name: name, priority: priority, timelines: byKind}, nil
}

// NewOff builds the fixed priority-0 off scene for the supported kind
// set, using each kind's off value at midnight. Kinds without an off
// value are omitted.
func NewOff(kinds []attr.Kind) (*EntityScene, error) {
	var timelines []*Timeline
	for _, k := range kinds {
		spec, ok := attr.SpecOf(k)
		if !ok || spec.Off == nil {
			continue
		}
		a, err := attr.New(k, spec.Off, 0)
		if err != nil {
			return nil, err
		}
		tl, err := NewTimeline([]attr.Attr{a})
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	return New(OffName, 0, timelines)
}

// NewCustom builds the ephemeral highest-priority scene from an
// observed live-state snapshot: one single-keyframe timeline per
// attribute. Replaced wholesale on every external change.
func NewCustom(snapshot map[attr.Kind]attr.Attr) (*EntityScene, error) {
	timelines := make([]*Timeline, 0, len(snapshot))
	for _, a := range snapshot {
		tl, err := NewTimeline([]attr.Attr{a})
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	return New(CustomName, MaxPriority, timelines)
}

// Name returns the scene name.
func (s *EntityScene) Name() string { return s.name }

// Priority returns the scene priority.
func (s *EntityScene) Priority() int { return s.priority }

// Kinds returns the attribute kinds this scene drives.
func (s *EntityScene) Kinds() []attr.Kind {
	kinds := make([]attr.Kind, 0, len(s.timelines))
	for k := range s.timelines {
		kinds = append(kinds, k)
	}
	return kinds
}

// AttrsAt resolves every timeline at time t.
func (s *EntityScene) AttrsAt(t int) (map[attr.Kind]attr.Attr, error) {
	attrs := make(map[attr.Kind]attr.Attr, len(s.timelines))
	for kind, tl := range s.timelines {
		a, err := tl.ValueAt(t)
		if err != nil {
			return nil, fmt.Errorf("scene %q: %w", s.name, err)
		}
		attrs[kind] = a
	}
	return attrs, nil
}

func (s *EntityScene) String() string {
	return fmt.Sprintf("EntityScene(%s, p=%d, %d timelines)", s.name, s.priority, len(s.timelines))
}
