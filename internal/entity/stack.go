package entity

import (
	"fmt"

	"scened/internal/attr"
	"scened/internal/scene"
)

// Stack tracks which named scenes are asserted active for one device
// and resolves the single winning scene. The off scene is always a
// member; the custom scene, when present, unconditionally wins.
//
// Stack carries no lock of its own: the owning Entity serializes all
// access under its per-device mutex.
type Stack struct {
	scenes map[string]*scene.EntityScene // ordinary scenes by name

	// active holds asserted scenes in activation order; the off scene
	// is always first. Activation order breaks priority ties.
	active  []*scene.EntityScene
	current *scene.EntityScene

	off    *scene.EntityScene
	custom *scene.EntityScene
}

// NewStack validates the ordinary scenes against the device's
// supported kinds and builds the stack with the off scene active.
func NewStack(scenes []*scene.EntityScene, supported []attr.Kind) (*Stack, error) {
	supportedSet := make(map[attr.Kind]bool, len(supported))
	for _, k := range supported {
		supportedSet[k] = true
	}

	byName := make(map[string]*scene.EntityScene, len(scenes))
	for _, sc := range scenes {
		if sc.Name() == scene.OffName || sc.Name() == scene.CustomName {
			return nil, fmt.Errorf("%w: %q", ErrReservedScene, sc.Name())
		}
		if _, dup := byName[sc.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate scene %q", scene.ErrInvalid, sc.Name())
		}
		for _, k := range sc.Kinds() {
			if !supportedSet[k] {
				return nil, fmt.Errorf("%w: scene %q drives unsupported kind %s", scene.ErrInvalid, sc.Name(), k)
			}
		}
		byName[sc.Name()] = sc
	}

	off, err := scene.NewOff(supported)
	if err != nil {
		return nil, err
	}

	return &Stack{
		scenes:  byName,
		active:  []*scene.EntityScene{off},
		current: off,
		off:     off,
	}, nil
}

// Current returns the winning scene. Never nil: the off scene
// guarantees a non-empty active set.
func (st *Stack) Current() *scene.EntityScene {
	return st.current
}

// ActiveNames returns the asserted ordinary scene names in activation
// order, excluding the built-in off and custom scenes.
func (st *Stack) ActiveNames() []string {
	var names []string
	for _, sc := range st.active {
		if sc.Name() == scene.OffName || sc.Name() == scene.CustomName {
			continue
		}
		names = append(names, sc.Name())
	}
	return names
}

// Activate asserts a named scene. It reports whether the winner
// changed, in which case the caller must recompute the wanted state.
func (st *Stack) Activate(name string) (bool, error) {
	if name == scene.OffName || name == scene.CustomName {
		return false, fmt.Errorf("%w: %q has a dedicated entry point", ErrReservedScene, name)
	}
	sc, ok := st.scenes[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	if st.isActive(name) {
		return false, nil
	}

	st.active = append(st.active, sc)
	if sc.Priority() > st.current.Priority() {
		st.current = sc
		return true, nil
	}
	return false, nil
}

// Deactivate retracts a named scene. If it was the winner, the new
// winner is the highest-priority remaining member (the off scene is
// the fallback) and true is reported.
func (st *Stack) Deactivate(name string) (bool, error) {
	if name == scene.OffName || name == scene.CustomName {
		return false, fmt.Errorf("%w: %q has a dedicated entry point", ErrReservedScene, name)
	}
	sc, ok := st.scenes[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownScene, name)
	}
	if !st.isActive(name) {
		return false, nil
	}

	st.remove(name)
	if sc == st.current {
		st.current = st.winner()
		return true, nil
	}
	return false, nil
}

// ActivateCustom builds the priority-ceiling custom scene from an
// observed live-state snapshot and sets it as the winner. This path
// deliberately reports no winner change: the snapshot already reflects
// the device's real state, so re-issuing it as a command would be a
// redundant write-back.
func (st *Stack) ActivateCustom(snapshot map[attr.Kind]attr.Attr) error {
	custom, err := scene.NewCustom(snapshot)
	if err != nil {
		return err
	}
	if st.custom != nil {
		st.remove(scene.CustomName)
	}
	st.custom = custom
	st.active = append(st.active, custom)
	st.current = custom
	return nil
}

// DeactivateCustom removes the custom scene if present and reports
// whether the winner changed.
func (st *Stack) DeactivateCustom() bool {
	if st.custom == nil {
		return false
	}
	st.remove(scene.CustomName)
	st.custom = nil
	st.current = st.winner()
	return true
}

func (st *Stack) isActive(name string) bool {
	for _, sc := range st.active {
		if sc.Name() == name {
			return true
		}
	}
	return false
}

func (st *Stack) remove(name string) {
	for i, sc := range st.active {
		if sc.Name() == name {
			st.active = append(st.active[:i], st.active[i+1:]...)
			return
		}
	}
}

// winner scans the active set in activation order so that equal
// priorities resolve to the first-activated scene.
func (st *Stack) winner() *scene.EntityScene {
	best := st.off
	for _, sc := range st.active {
		if sc.Priority() > best.Priority() {
			best = sc
		}
	}
	return best
}
