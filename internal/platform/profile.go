package platform

import (
	"fmt"
	"strings"

	"scened/internal/attr"
)

// Profile binds a device family to the attribute kinds it supports and
// a predicate over its raw state. The profile list is explicit and
// ordered; detection evaluates every entry and errors on zero or
// multiple matches so misclassified devices are diagnosed at load time.
type Profile struct {
	Name  string
	Kinds []attr.Kind

	// Matches reports whether a raw state belongs to this family.
	Matches func(raw RawState) bool
}

var profiles = []Profile{
	{
		Name:  "ct_light",
		Kinds: []attr.Kind{attr.KindLightState, attr.KindBrightness, attr.KindColorTemp},
		Matches: func(raw RawState) bool {
			_, hasBri := raw["brightness"]
			_, hasCT := raw["color_temp"]
			return hasBri && hasCT && hasColorMode(raw, "color_temp")
		},
	},
	{
		Name:  "xy_light",
		Kinds: []attr.Kind{attr.KindLightState, attr.KindXYBrightness},
		Matches: func(raw RawState) bool {
			_, hasBri := raw["brightness"]
			return hasBri && hasColorMode(raw, "xy")
		},
	},
	{
		Name:  "dimmable_light",
		Kinds: []attr.Kind{attr.KindLightState, attr.KindBrightness},
		Matches: func(raw RawState) bool {
			_, hasBri := raw["brightness"]
			return hasBri && !hasAnyColorMode(raw)
		},
	},
}

// Profiles returns the known device profiles in evaluation order.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// Detect resolves the single profile matching a raw state. Zero or
// multiple matches are registration errors for that device.
func Detect(raw RawState) (Profile, error) {
	var matched []Profile
	for _, p := range profiles {
		if p.Matches(raw) {
			matched = append(matched, p)
		}
	}
	switch len(matched) {
	case 1:
		return matched[0], nil
	case 0:
		return Profile{}, fmt.Errorf("no device profile matches state %v", raw)
	default:
		names := make([]string, len(matched))
		for i, p := range matched {
			names[i] = p.Name
		}
		return Profile{}, fmt.Errorf("ambiguous device profiles %s for state %v", strings.Join(names, ", "), raw)
	}
}

// Translate converts a raw state into the profile's attribute map.
// Kinds absent from the raw state are skipped; invalid values fail the
// whole translation.
func (p Profile) Translate(raw RawState) (map[attr.Kind]attr.Attr, error) {
	state := make(map[attr.Kind]attr.Attr, len(p.Kinds))
	for _, kind := range p.Kinds {
		spec, ok := attr.SpecOf(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", attr.ErrUnknownKind, kind)
		}
		v, present := raw[spec.RawName]
		if !present {
			continue
		}
		a, err := attr.New(kind, v, 0)
		if err != nil {
			return nil, err
		}
		state[kind] = a
	}
	return state, nil
}

// Payload converts a wanted attribute map into the raw command
// payload. A light turning off carries only the state key: the other
// attributes are meaningless on a dark light.
func (p Profile) Payload(target map[attr.Kind]attr.Attr) RawState {
	if st, ok := target[attr.KindLightState]; ok && st.Value() == "off" {
		return RawState{"state": "off"}
	}

	payload := make(RawState, len(target))
	for kind, a := range target {
		spec, ok := attr.SpecOf(kind)
		if !ok {
			continue
		}
		payload[spec.RawName] = a.Value()
	}
	return payload
}

func hasColorMode(raw RawState, mode string) bool {
	modes, ok := raw["supported_color_modes"].([]any)
	if !ok {
		return false
	}
	for _, m := range modes {
		if s, ok := m.(string); ok && s == mode {
			return true
		}
	}
	return false
}

func hasAnyColorMode(raw RawState) bool {
	modes, ok := raw["supported_color_modes"].([]any)
	return ok && len(modes) > 0
}
