package translate

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/adapterutil"
)

const (
	brightnessScale = 255
	diyPrefix       = "DIY: "
)

var (
	defaultBrightnessRange = capability.Range{Min: 1, Max: 100}
	defaultColorTempRange  = capability.Range{Min: 2000, Max: 9000}
)

// Scenes are the scene options fetched from the vendor scene endpoints before entities are built.
type Scenes struct {
	Dynamic []capability.Option
	DIY     []capability.Option
}

type Light struct {
	power      power
	brightness *capability.Range
	rgb        *capability.Descriptor
	colorTemp  *capability.Range
	sceneDesc  capability.Descriptor
	scenes     *Mapping
	diyDesc    capability.Descriptor
	diy        *Mapping
	effects    []string

	mu     sync.Mutex
	effect string
}

func NewLight(idx *capability.Index, scenes Scenes) *Light {
	l := &Light{power: newPower(idx), scenes: NewMapping(), diy: NewMapping()}
	if d, ok := idx.Lookup(capability.TypeRange, capability.InstanceBrightness); ok {
		r := defaultBrightnessRange
		if d.Parameters.Range != nil {
			r = *d.Parameters.Range
		}
		l.brightness = &r
	}
	if d, ok := idx.Lookup(capability.TypeColorSetting, capability.InstanceColorRGB); ok {
		l.rgb = &d
	}
	if d, ok := idx.Lookup(capability.TypeColorSetting, capability.InstanceColorTemperatureK); ok {
		r := defaultColorTempRange
		if d.Parameters.Range != nil {
			r = *d.Parameters.Range
		}
		l.colorTemp = &r
	}
	if d, ok := idx.Lookup(capability.TypeDynamicScene, capability.InstanceDIYScene); ok {
		l.diyDesc = d
		seen := map[string]int{}
		for _, opt := range scenes.DIY {
			if opt.Name == "" || opt.Value.IsZero() {
				continue
			}
			name := diyPrefix + opt.Name
			seen[name]++
			if n := seen[name]; n > 1 {
				name = name + " (" + strconv.Itoa(n) + ")"
			}
			l.addScene(l.diy, name, opt.Value)
		}
	}
	if d, ok := idx.Lookup(capability.TypeDynamicScene, capability.InstanceLightScene); ok {
		l.sceneDesc = d
		for _, opt := range d.Parameters.Options {
			if opt.Name == "" || opt.Value.IsZero() {
				continue
			}
			l.addScene(l.scenes, opt.Name, opt.Value)
		}
		for _, opt := range scenes.Dynamic {
			if opt.Name == "" || opt.Value.IsZero() || l.scenes.Has(opt.Name) {
				continue
			}
			l.addScene(l.scenes, opt.Name, opt.Value)
		}
	}
	return l
}

func (l *Light) addScene(m *Mapping, name string, v capability.Value) {
	if l.diy.Has(name) || l.scenes.Has(name) {
		return
	}
	if err := m.Add(name, v); err != nil {
		slog.Debug("scene skipped", "scene", name, "error", err)
		return
	}
	l.effects = append(l.effects, name)
}

func (l *Light) Kind() string { return capability.EntityLight }
func (l *Light) Key() string { return capability.EntityLight }

// Effects lists DIY scenes first, then built-in and dynamic scenes.
func (l *Light) Effects() []string { return append([]string(nil), l.effects...) }

func (l *Light) Attributes() []string {
	attrs := []string{AttrOn}
	if l.brightness != nil {
		attrs = append(attrs, AttrBrightness)
	}
	if l.rgb != nil {
		attrs = append(attrs, AttrColor)
	}
	if l.colorTemp != nil {
		attrs = append(attrs, AttrColorTemp)
	}
	if len(l.effects) > 0 {
		attrs = append(attrs, AttrEffect)
	}
	return attrs
}

func (l *Light) ColorModes() []string {
	var modes []string
	if l.rgb != nil {
		modes = append(modes, "rgb")
	}
	if l.colorTemp != nil {
		modes = append(modes, "color_temp")
	}
	if len(modes) > 0 {
		return modes
	}
	if l.brightness != nil {
		return []string{"brightness"}
	}
	return []string{"onoff"}
}

func (l *Light) Describe() ([]model.Capability, []model.DeviceInput) {
	var caps []model.Capability
	var inputs []model.DeviceInput
	c, in := toggle(AttrOn, "Power", "light")
	caps, inputs = append(caps, c), append(inputs, in)
	if l.brightness != nil {
		c, in = slider(AttrBrightness, "Brightness", "light", "", &model.CapabilityRange{Min: 0, Max: brightnessScale, Step: 1})
		caps, inputs = append(caps, c), append(inputs, in)
	}
	if l.rgb != nil {
		c = model.Capability{ID: AttrColor, Name: "Color", Kind: "light", Property: AttrColor, ValueType: "object", Access: model.ReadWrite}
		in = model.DeviceInput{ID: AttrColor, Label: "Color", Type: "color", CapabilityID: AttrColor, Property: AttrColor, Metadata: map[string]any{"mode": "rgb"}}
		caps, inputs = append(caps, c), append(inputs, in)
	}
	if l.colorTemp != nil {
		c, in = slider(AttrColorTemp, "Color temperature", "light", "K", modelRange(l.colorTemp))
		caps, inputs = append(caps, c), append(inputs, in)
	}
	if len(l.effects) > 0 {
		c, in = selector(AttrEffect, "Effect", "light", l.effects)
		caps, inputs = append(caps, c), append(inputs, in)
	}
	cm := readOnly(AttrColorMode, "Color mode", "light", "enum", "")
	cm.Enum = l.ColorModes()
	caps = append(caps, cm)
	return caps, inputs
}

func (l *Light) State(view StateView) map[string]any {
	out := map[string]any{}
	if on, ok := l.power.isOn(view); ok {
		out[AttrOn] = on
	}
	if l.brightness != nil {
		if v, ok := cached(view, capability.TypeRange, capability.InstanceBrightness); ok && v.Kind() == capability.KindNumber {
			out[AttrBrightness] = int(ScaleToHost(v.Float(), *l.brightness, brightnessScale))
		}
	}
	if l.rgb != nil {
		if v, ok := cached(view, capability.TypeColorSetting, capability.InstanceColorRGB); ok {
			if n, ok := v.Int(); ok {
				r, g, b := UnpackRGB(int(n))
				out[AttrColor] = map[string]any{"r": r, "g": g, "b": b}
			}
		}
	}
	colorTempActive := false
	if l.colorTemp != nil {
		if v, ok := cached(view, capability.TypeColorSetting, capability.InstanceColorTemperatureK); ok {
			if n, ok := v.Int(); ok && n > 0 {
				out[AttrColorTemp] = n
				colorTempActive = true
			}
		}
	}
	switch {
	case colorTempActive:
		out[AttrColorMode] = "color_temp"
	default:
		out[AttrColorMode] = l.ColorModes()[0]
	}
	l.mu.Lock()
	if l.effect != "" {
		out[AttrEffect] = l.effect
	}
	l.mu.Unlock()
	return out
}

func (l *Light) Apply(attr string, value any, view StateView) (capability.Command, error) {
	switch attr {
	case AttrOn:
		return l.power.set(value, view)
	case AttrBrightness:
		if l.brightness == nil {
			return capability.Command{}, unsupported(l.Kind(), attr)
		}
		f, err := numeric(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		if f < 0 || f > brightnessScale {
			return capability.Command{}, fmt.Errorf("%w: brightness %v outside 0..%d", ErrUnsupportedValue, f, brightnessScale)
		}
		if f == 0 && l.power.present {
			return l.power.set(false, view)
		}
		raw := ScaleFromHost(f, *l.brightness, brightnessScale)
		return capability.Command{Type: capability.TypeRange, Instance: capability.InstanceBrightness, Value: capability.Number(raw)}, nil
	case AttrColor:
		if l.rgb == nil {
			return capability.Command{}, unsupported(l.Kind(), attr)
		}
		packed, err := parseColor(value)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: capability.TypeColorSetting, Instance: capability.InstanceColorRGB, Value: capability.Number(float64(packed))}, nil
	case AttrColorTemp:
		if l.colorTemp == nil {
			return capability.Command{}, unsupported(l.Kind(), attr)
		}
		f, err := numeric(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		k := math.Round(ClampToRange(f, *l.colorTemp))
		return capability.Command{Type: capability.TypeColorSetting, Instance: capability.InstanceColorTemperatureK, Value: capability.Number(k)}, nil
	case AttrEffect:
		name, err := stringValue(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		if v, err := l.diy.Encode(name); err == nil {
			return capability.Command{Type: l.diyDesc.Type, Instance: l.diyDesc.Instance, Value: v}, nil
		}
		v, err := l.scenes.Encode(name)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: l.sceneDesc.Type, Instance: l.sceneDesc.Instance, Value: v}, nil
	default:
		return capability.Command{}, unsupported(l.Kind(), attr)
	}
}

// Acknowledge tracks the active effect: set by a scene ack, cleared by a color ack or power off.
func (l *Light) Acknowledge(cmd capability.Command) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case cmd.Type == capability.TypeDynamicScene && cmd.Instance == capability.InstanceDIYScene:
		if name, err := l.diy.Decode(cmd.Value); err == nil {
			l.effect = name
		}
	case cmd.Type == capability.TypeDynamicScene && cmd.Instance == capability.InstanceLightScene:
		if name, err := l.scenes.Decode(cmd.Value); err == nil {
			l.effect = name
		}
	case cmd.Type == capability.TypeColorSetting:
		l.effect = ""
	case cmd.Type == l.power.desc.Type && cmd.Instance == l.power.desc.Instance:
		if name, err := l.power.states.Decode(cmd.Value); err == nil && name == StateOff {
			l.effect = ""
		}
	}
}

// parseColor accepts {r,g,b}, [r,g,b], "#rrggbb" or an already packed integer.
func parseColor(value any) (int, error) {
	bad := fmt.Errorf("%w: color=%v", ErrUnsupportedValue, value)
	channel := func(v any) (int, bool) {
		f, ok := adapterutil.NumericValue(v)
		if !ok || f < 0 || f > 255 {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	switch c := value.(type) {
	case map[string]any:
		r, okR := channel(c["r"])
		g, okG := channel(c["g"])
		b, okB := channel(c["b"])
		if !okR || !okG || !okB {
			return 0, bad
		}
		return PackRGB(r, g, b), nil
	case []any:
		if len(c) != 3 {
			return 0, bad
		}
		r, okR := channel(c[0])
		g, okG := channel(c[1])
		b, okB := channel(c[2])
		if !okR || !okG || !okB {
			return 0, bad
		}
		return PackRGB(r, g, b), nil
	case string:
		hex := strings.TrimPrefix(strings.TrimSpace(c), "#")
		if len(hex) != 6 {
			return 0, bad
		}
		n, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return 0, bad
		}
		return int(n), nil
	default:
		f, ok := adapterutil.NumericValue(value)
		if !ok || f < 0 || f > 0xffffff {
			return 0, bad
		}
		return int(f), nil
	}
}
