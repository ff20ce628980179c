package translate

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

// Fan exposes the speed work mode as a percentage and every other work mode as a preset.
type Fan struct {
	power   power
	modes   *WorkModes
	desc    capability.Descriptor
	levels  []string
	presets []string
}

func NewFan(idx *capability.Index) *Fan {
	f := &Fan{power: newPower(idx)}
	d, ok := idx.Lookup(capability.TypeWorkMode, capability.InstanceWorkMode)
	if !ok {
		return f
	}
	modes, err := BuildWorkModes(d)
	if err != nil {
		slog.Warn("fan work modes unavailable", "error", err)
		return f
	}
	f.desc, f.modes = d, modes
	speed, levels, hasSpeed := modes.SpeedMode()
	if hasSpeed {
		f.levels = levels
	}
	for _, p := range modes.Presets() {
		if hasSpeed && p.WorkMode == speed {
			continue
		}
		f.presets = append(f.presets, p.Name)
	}
	return f
}

func (f *Fan) Kind() string { return capability.EntityFan }

func (f *Fan) Key() string { return capability.EntityFan }

func (f *Fan) SpeedCount() int { return len(f.levels) }

func (f *Fan) Presets() []string { return append([]string(nil), f.presets...) }

func (f *Fan) Attributes() []string {
	attrs := []string{AttrOn}
	if len(f.levels) > 0 {
		attrs = append(attrs, AttrPercentage)
	}
	if len(f.presets) > 0 {
		attrs = append(attrs, AttrPreset)
	}
	return attrs
}

func (f *Fan) Describe() ([]model.Capability, []model.DeviceInput) {
	var caps []model.Capability
	var inputs []model.DeviceInput
	c, in := toggle(AttrOn, "Power", "fan")
	caps, inputs = append(caps, c), append(inputs, in)
	if n := len(f.levels); n > 0 {
		step := math.Round(100.0/float64(n)*100) / 100
		c, in = slider(AttrPercentage, "Speed", "fan", "%", &model.CapabilityRange{Min: 0, Max: 100, Step: step})
		caps, inputs = append(caps, c), append(inputs, in)
	}
	if len(f.presets) > 0 {
		c, in = selector(AttrPreset, "Preset", "fan", f.presets)
		caps, inputs = append(caps, c), append(inputs, in)
	}
	return caps, inputs
}

func (f *Fan) State(view StateView) map[string]any {
	out := map[string]any{}
	on, known := f.power.isOn(view)
	if known {
		out[AttrOn] = on
	}
	if f.modes == nil {
		return out
	}
	v, ok := cached(view, f.desc.Type, f.desc.Instance)
	if !ok {
		return out
	}
	p, err := f.modes.Decode(v)
	if err != nil {
		slog.Debug("fan work mode not decodable", "value", v.String(), "error", err)
		return out
	}
	if level, ok := f.modes.LevelOf(p); ok {
		pct := LevelToPercentage(level, len(f.levels))
		if known && !on {
			pct = 0
		}
		out[AttrPercentage] = pct
		return out
	}
	out[AttrPreset] = p.Name
	return out
}

func (f *Fan) Apply(attr string, value any, view StateView) (capability.Command, error) {
	switch attr {
	case AttrOn:
		return f.power.set(value, view)
	case AttrPercentage:
		if len(f.levels) == 0 {
			return capability.Command{}, unsupported(f.Kind(), attr)
		}
		p, err := numeric(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		if p < 0 || p > 100 {
			return capability.Command{}, fmt.Errorf("%w: percentage %v outside 0..100", ErrUnsupportedValue, p)
		}
		level := PercentageToLevel(int(math.Round(p)), len(f.levels))
		if level == 0 {
			return f.power.set(false, view)
		}
		v, err := f.modes.EncodeLevel(level)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: f.desc.Type, Instance: f.desc.Instance, Value: v}, nil
	case AttrPreset:
		name, err := stringValue(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		if !slices.Contains(f.presets, name) {
			return capability.Command{}, fmt.Errorf("%w: preset %q", ErrUnsupportedValue, name)
		}
		v, err := f.modes.Encode(name)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: f.desc.Type, Instance: f.desc.Instance, Value: v}, nil
	default:
		return capability.Command{}, unsupported(f.Kind(), attr)
	}
}
