// Package loader reads the scene definition file and turns its
// scene-centric layout into validated per-device scene objects.
package loader

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"scened/internal/attr"
	"scened/internal/scene"
)

// file mirrors scenes.yaml:
//
//	scenes:
//	  daytime:
//	    priority: 50
//	    times:
//	      "06:00":
//	        - devices: [kitchen]
//	          brightness: 10
//	          color_temp: 400
type file struct {
	Scenes map[string]sceneDef `yaml:"scenes"`
}

type sceneDef struct {
	Priority int                   `yaml:"priority"`
	Times    map[string][]entryDef `yaml:"times"`
}

type entryDef struct {
	Devices []string       `yaml:"devices"`
	Attrs   map[string]any `yaml:",inline"`
}

type keyframe struct {
	time  int
	value any
}

// Load reads and parses the scene definition file. Validation failures
// are contained: a bad scene is logged and skipped for the affected
// device, the rest of the file still loads.
func Load(path string) (map[string][]*scene.EntityScene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenes file: %w", err)
	}
	return Parse(data)
}

// Parse builds per-device scenes from raw YAML.
func Parse(data []byte) (map[string][]*scene.EntityScene, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scenes file: %w", err)
	}

	inverted, err := invert(f)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*scene.EntityScene, len(inverted))
	for deviceID, scenes := range inverted {
		for sceneName, def := range scenes {
			sc, err := buildScene(sceneName, def)
			if err != nil {
				log.Error().Err(err).
					Str("device", deviceID).
					Str("scene", sceneName).
					Msg("Skipping invalid scene for device")
				continue
			}
			result[deviceID] = append(result[deviceID], sc)
		}
	}
	return result, nil
}

// deviceScene collects one device's share of a named scene.
type deviceScene struct {
	priority int
	frames   map[attr.Kind][]keyframe
}

// invert flips the scene-centric file into device-centric definitions.
func invert(f file) (map[string]map[string]*deviceScene, error) {
	out := make(map[string]map[string]*deviceScene)

	for sceneName, def := range f.Scenes {
		if sceneName == scene.OffName || sceneName == scene.CustomName {
			log.Error().Str("scene", sceneName).Msg("Scene name is reserved, skipping")
			continue
		}
		if def.Priority < 1 || def.Priority >= scene.MaxPriority {
			log.Error().
				Str("scene", sceneName).
				Int("priority", def.Priority).
				Msgf("Scene priority not in range 1-%d, skipping", scene.MaxPriority-1)
			continue
		}

		for timeStr, entries := range def.Times {
			t, err := parseTime(timeStr)
			if err != nil {
				return nil, fmt.Errorf("scene %q: %w", sceneName, err)
			}

			for _, entry := range entries {
				for _, deviceID := range entry.Devices {
					if out[deviceID] == nil {
						out[deviceID] = make(map[string]*deviceScene)
					}
					ds := out[deviceID][sceneName]
					if ds == nil {
						ds = &deviceScene{priority: def.Priority, frames: make(map[attr.Kind][]keyframe)}
						out[deviceID][sceneName] = ds
					}
					for name, value := range entry.Attrs {
						kind, ok := attr.KindByName(name)
						if !ok {
							log.Error().
								Str("scene", sceneName).
								Str("device", deviceID).
								Str("attribute", name).
								Msg("Unknown attribute, skipping")
							continue
						}
						ds.frames[kind] = append(ds.frames[kind], keyframe{time: t, value: value})
					}
				}
			}
		}
	}
	return out, nil
}

func buildScene(name string, def *deviceScene) (*scene.EntityScene, error) {
	timelines := make([]*scene.Timeline, 0, len(def.frames))
	for kind, frames := range def.frames {
		sort.Slice(frames, func(i, j int) bool { return frames[i].time < frames[j].time })

		attrs := make([]attr.Attr, 0, len(frames))
		for _, kf := range frames {
			a, err := attr.New(kind, kf.value, kf.time)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, a)
		}

		tl, err := scene.NewTimeline(attrs)
		if err != nil {
			return nil, err
		}
		timelines = append(timelines, tl)
	}
	return scene.New(name, def.priority, timelines)
}

// parseTime accepts HH:MM and HH:MM:SS, returning seconds since midnight.
func parseTime(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("malformed time %q, want HH:MM or HH:MM:SS", s)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("malformed time %q: %w", s, err)
		}
		nums[i] = n
	}

	h, m, sec := nums[0], nums[1], 0
	if len(nums) == 3 {
		sec = nums[2]
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*3600 + m*60 + sec, nil
}
