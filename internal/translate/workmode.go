package translate

import (
	"fmt"
	"log/slog"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

const (
	fieldWorkMode  = "workMode"
	fieldModeValue = "modeValue"
	optionCustom   = "Custom"
)

// Preset is one selectable combination of work mode and mode value.
type Preset struct {
	Name      string
	WorkMode  string
	ModeLevel string // leaf name when the work mode owns an ordered gear list
	Value     capability.Value
}

// WorkModes holds the preset tables built from a work_mode descriptor.
type WorkModes struct {
	presets  *Mapping
	list     []Preset
	gears    map[string][]string
	gearMode []string
	// work mode value key -> preset name, for work modes that produce exactly one preset
	single map[string]string
}

// BuildWorkModes expands the workMode x modeValue cross product. Options named Custom are skipped.
func BuildWorkModes(d capability.Descriptor) (*WorkModes, error) {
	if d.Parameters.Kind != capability.ParamFields {
		return nil, fmt.Errorf("%w: %s/%s has no fields", capability.ErrMalformedSchema, d.Type, d.Instance)
	}
	workField, ok := d.Parameters.Field(fieldWorkMode)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s has no workMode field", capability.ErrMalformedSchema, d.Type, d.Instance)
	}
	modeField, _ := d.Parameters.Field(fieldModeValue)

	w := &WorkModes{
		presets: NewMapping(),
		gears:   map[string][]string{},
		single:  map[string]string{},
	}
	for _, wm := range workField.Options {
		if wm.Name == optionCustom || wm.Name == "" {
			continue
		}
		if wm.Value.IsZero() {
			slog.Warn("work mode without value skipped", "instance", d.Instance, "mode", wm.Name)
			continue
		}
		before := len(w.list)
		mv, hasMode := modeField.Option(wm.Name)
		switch {
		case hasMode && len(mv.Options) > 0:
			var levels []string
			for _, leaf := range mv.Options {
				if leaf.Name == optionCustom || leaf.Value.IsZero() {
					continue
				}
				name := wm.Name + ":" + leaf.Name
				val := capability.Composite(map[string]capability.Value{fieldWorkMode: wm.Value, fieldModeValue: leaf.Value})
				if w.add(d.Instance, Preset{Name: name, WorkMode: wm.Name, ModeLevel: leaf.Name, Value: val}) {
					levels = append(levels, leaf.Name)
				}
			}
			if len(levels) > 0 {
				w.gears[wm.Name] = levels
				w.gearMode = append(w.gearMode, wm.Name)
			} else {
				w.add(d.Instance, Preset{Name: wm.Name, WorkMode: wm.Name, Value: workOnly(wm.Value)})
			}
		case hasMode && !mv.DefaultValue.IsZero():
			val := capability.Composite(map[string]capability.Value{fieldWorkMode: wm.Value, fieldModeValue: mv.DefaultValue})
			w.add(d.Instance, Preset{Name: wm.Name, WorkMode: wm.Name, Value: val})
		case hasMode && !mv.Value.IsZero():
			val := capability.Composite(map[string]capability.Value{fieldWorkMode: wm.Value, fieldModeValue: mv.Value})
			w.add(d.Instance, Preset{Name: wm.Name, WorkMode: wm.Name, Value: val})
		default:
			w.add(d.Instance, Preset{Name: wm.Name, WorkMode: wm.Name, Value: workOnly(wm.Value)})
		}
		if len(w.list)-before == 1 {
			w.single[wm.Value.Key()] = w.list[before].Name
		}
	}
	return w, nil
}

func workOnly(v capability.Value) capability.Value {
	return capability.Composite(map[string]capability.Value{fieldWorkMode: v})
}

func (w *WorkModes) add(instance string, p Preset) bool {
	if err := w.presets.Add(p.Name, p.Value); err != nil {
		slog.Warn("work mode preset skipped", "instance", instance, "preset", p.Name, "error", err)
		return false
	}
	w.list = append(w.list, p)
	return true
}

func (w *WorkModes) Presets() []Preset { return append([]Preset(nil), w.list...) }

func (w *WorkModes) Names() []string { return w.presets.Names() }

func (w *WorkModes) Encode(name string) (capability.Value, error) { return w.presets.Encode(name) }

// Decode matches workMode and modeValue exactly, then falls back to the only preset of that work mode.
func (w *WorkModes) Decode(v capability.Value) (Preset, error) {
	if name, err := w.presets.Decode(v); err == nil {
		return w.preset(name), nil
	}
	wm, ok := v.Field(fieldWorkMode)
	if !ok {
		return Preset{}, fmt.Errorf("%w: %s", ErrUnsupportedValue, v)
	}
	if name, ok := w.single[wm.Key()]; ok {
		return w.preset(name), nil
	}
	if name, err := w.presets.Decode(workOnly(wm)); err == nil {
		return w.preset(name), nil
	}
	return Preset{}, fmt.Errorf("%w: %s", ErrUnsupportedValue, v)
}

func (w *WorkModes) preset(name string) Preset {
	for _, p := range w.list {
		if p.Name == name {
			return p
		}
	}
	return Preset{Name: name}
}

// SpeedMode is the first work mode owning an ordered gear list.
func (w *WorkModes) SpeedMode() (mode string, levels []string, ok bool) {
	if len(w.gearMode) == 0 {
		return "", nil, false
	}
	mode = w.gearMode[0]
	return mode, append([]string(nil), w.gears[mode]...), true
}

// LevelOf returns the 1-based gear ordinal of p within the speed mode.
func (w *WorkModes) LevelOf(p Preset) (int, bool) {
	mode, levels, ok := w.SpeedMode()
	if !ok || p.WorkMode != mode {
		return 0, false
	}
	for i, l := range levels {
		if l == p.ModeLevel {
			return i + 1, true
		}
	}
	return 0, false
}

// EncodeLevel builds the vendor value for gear ordinal k (1-based) of the speed mode.
func (w *WorkModes) EncodeLevel(k int) (capability.Value, error) {
	mode, levels, ok := w.SpeedMode()
	if !ok || k < 1 || k > len(levels) {
		return capability.Value{}, fmt.Errorf("%w: level %d", ErrUnsupportedValue, k)
	}
	return w.presets.Encode(mode + ":" + levels[k-1])
}
