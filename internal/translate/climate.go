package translate

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

const (
	HVACHeatCool = "heat_cool"
	HVACOff      = "off"

	UnitCelsius    = "Celsius"
	UnitFahrenheit = "Fahrenheit"
)

// Climate covers heaters: on/off as HVAC mode, work modes as presets, target and current temperature.
type Climate struct {
	power       power
	modes       *WorkModes
	modeDesc    capability.Descriptor
	target      *capability.Range
	defaultUnit string
	sensor      bool
}

func NewClimate(idx *capability.Index) *Climate {
	c := &Climate{power: newPower(idx), defaultUnit: UnitCelsius}
	if d, ok := idx.Lookup(capability.TypeWorkMode, capability.InstanceWorkMode); ok {
		modes, err := BuildWorkModes(d)
		if err != nil {
			slog.Warn("climate work modes unavailable", "error", err)
		} else {
			c.modes, c.modeDesc = modes, d
		}
	}
	if d, ok := idx.Lookup(capability.TypeTemperatureSetting, capability.InstanceTargetTemperature); ok {
		if f, ok := d.Parameters.Field("temperature"); ok && f.Range != nil {
			r := *f.Range
			c.target = &r
		}
		if f, ok := d.Parameters.Field("unit"); ok && f.DefaultValue.Kind() == capability.KindString {
			c.defaultUnit = normalizeUnit(f.DefaultValue.Str())
		}
	}
	c.sensor = idx.Has(capability.TypeProperty, capability.InstanceSensorTemperature)
	return c
}

func normalizeUnit(u string) string {
	if strings.EqualFold(u, UnitFahrenheit) {
		return UnitFahrenheit
	}
	return UnitCelsius
}

func (c *Climate) Kind() string { return capability.EntityClimate }

func (c *Climate) Key() string { return capability.EntityClimate }

func (c *Climate) HVACModes() []string {
	if !c.power.present {
		return nil
	}
	return []string{HVACHeatCool, HVACOff}
}

func (c *Climate) Presets() []string {
	if c.modes == nil {
		return nil
	}
	return c.modes.Names()
}

func (c *Climate) Attributes() []string {
	var attrs []string
	if c.power.present {
		attrs = append(attrs, AttrOn, AttrHVACMode)
	}
	if len(c.Presets()) > 0 {
		attrs = append(attrs, AttrPreset)
	}
	if c.target != nil {
		attrs = append(attrs, AttrTargetTemperature)
	}
	return attrs
}

func (c *Climate) Describe() ([]model.Capability, []model.DeviceInput) {
	var caps []model.Capability
	var inputs []model.DeviceInput
	if modes := c.HVACModes(); len(modes) > 0 {
		cp, in := selector(AttrHVACMode, "HVAC mode", "climate", modes)
		caps, inputs = append(caps, cp), append(inputs, in)
	}
	if presets := c.Presets(); len(presets) > 0 {
		cp, in := selector(AttrPreset, "Preset", "climate", presets)
		caps, inputs = append(caps, cp), append(inputs, in)
	}
	if c.target != nil {
		cp, in := slider(AttrTargetTemperature, "Target temperature", "climate", unitSymbol(c.defaultUnit), modelRange(c.target))
		cp.DeviceClass = "temperature"
		caps, inputs = append(caps, cp), append(inputs, in)
	}
	if c.sensor {
		cp := readOnly(AttrCurrentTemperature, "Temperature", "climate", "number", unitSymbol(c.defaultUnit))
		cp.DeviceClass = "temperature"
		cp.Measurement = "measurement"
		caps = append(caps, cp)
	}
	return caps, inputs
}

func unitSymbol(u string) string {
	if u == UnitFahrenheit {
		return "°F"
	}
	return "°C"
}

// unit prefers the unit reported in the cached target temperature over the descriptor default.
func (c *Climate) unit(view StateView) string {
	if v, ok := cached(view, capability.TypeTemperatureSetting, capability.InstanceTargetTemperature); ok {
		if u, ok := v.Field("unit"); ok && u.Kind() == capability.KindString {
			return normalizeUnit(u.Str())
		}
	}
	return c.defaultUnit
}

// targetRange is the descriptor range expressed in unit; the descriptor itself is in the default unit.
func (c *Climate) targetRange(unit string) capability.Range {
	r := *c.target
	if unit == c.defaultUnit {
		return r
	}
	conv := CelsiusToFahrenheit
	if unit == UnitCelsius {
		conv = FahrenheitToCelsius
	}
	r.Min, r.Max = math.Floor(conv(r.Min)), math.Ceil(conv(r.Max))
	return r
}

func (c *Climate) State(view StateView) map[string]any {
	out := map[string]any{}
	if on, ok := c.power.isOn(view); ok {
		out[AttrOn] = on
		if on {
			out[AttrHVACMode] = HVACHeatCool
		} else {
			out[AttrHVACMode] = HVACOff
		}
	}
	if c.modes != nil {
		if v, ok := cached(view, c.modeDesc.Type, c.modeDesc.Instance); ok {
			if p, err := c.modes.Decode(v); err == nil {
				out[AttrPreset] = p.Name
			}
		}
	}
	unit := c.unit(view)
	out[AttrTemperatureUnit] = unit
	if c.target != nil {
		if v, ok := cached(view, capability.TypeTemperatureSetting, capability.InstanceTargetTemperature); ok {
			if t, ok := targetTemperature(v); ok {
				out[AttrTargetTemperature] = t
			}
		}
	}
	if c.sensor {
		if v, ok := cached(view, capability.TypeProperty, capability.InstanceSensorTemperature); ok && v.Kind() == capability.KindNumber {
			t := v.Float()
			if unit == UnitCelsius {
				t = FahrenheitToCelsius(t)
			}
			out[AttrCurrentTemperature] = roundTo(t, 1)
		}
	}
	return out
}

func targetTemperature(v capability.Value) (float64, bool) {
	switch v.Kind() {
	case capability.KindNumber:
		return v.Float(), true
	case capability.KindComposite:
		for _, name := range []string{"targetTemperature", "temperature"} {
			if f, ok := v.Field(name); ok && f.Kind() == capability.KindNumber {
				return f.Float(), true
			}
		}
	}
	return 0, false
}

func (c *Climate) Apply(attr string, value any, view StateView) (capability.Command, error) {
	switch attr {
	case AttrOn:
		on, err := boolArg(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		return c.power.command(on)
	case AttrHVACMode:
		mode, err := stringValue(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		switch mode {
		case HVACOff:
			return c.power.command(false)
		case HVACHeatCool, "heat":
			return c.power.command(true)
		default:
			return capability.Command{}, fmt.Errorf("%w: hvac_mode %q", ErrUnsupportedValue, mode)
		}
	case AttrPreset:
		if c.modes == nil {
			return capability.Command{}, unsupported(c.Kind(), attr)
		}
		name, err := stringValue(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		v, err := c.modes.Encode(name)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: c.modeDesc.Type, Instance: c.modeDesc.Instance, Value: v}, nil
	case AttrTargetTemperature:
		if c.target == nil {
			return capability.Command{}, unsupported(c.Kind(), attr)
		}
		f, err := numeric(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		unit := c.unit(view)
		v := capability.Composite(map[string]capability.Value{
			"temperature": capability.Number(ClampToRange(f, c.targetRange(unit))),
			"unit":        capability.String(unit),
		})
		return capability.Command{Type: capability.TypeTemperatureSetting, Instance: capability.InstanceTargetTemperature, Value: v}, nil
	default:
		return capability.Command{}, unsupported(c.Kind(), attr)
	}
}
