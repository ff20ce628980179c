package translate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

const (
	DeviceTypeHumidifier   = "devices.types.humidifier"
	DeviceTypeDehumidifier = "devices.types.dehumidifier"
)

var defaultHumidityRange = capability.Range{Min: 0, Max: 100, Precision: 1}

type Humidifier struct {
	power       power
	deviceClass string
	modes       *WorkModes
	modeDesc    capability.Descriptor
	humidity    *capability.Range
}

func NewHumidifier(deviceType string, idx *capability.Index) *Humidifier {
	h := &Humidifier{power: newPower(idx), deviceClass: "humidifier"}
	if deviceType == DeviceTypeDehumidifier {
		h.deviceClass = "dehumidifier"
	}
	if d, ok := idx.Lookup(capability.TypeWorkMode, capability.InstanceWorkMode); ok {
		modes, err := BuildWorkModes(d)
		if err != nil {
			slog.Warn("humidifier work modes unavailable", "error", err)
		} else {
			h.modes, h.modeDesc = modes, d
		}
	}
	if d, ok := idx.Lookup(capability.TypeRange, capability.InstanceHumidity); ok {
		r := defaultHumidityRange
		if d.Parameters.Range != nil {
			r = *d.Parameters.Range
		}
		h.humidity = &r
	}
	return h
}

func (h *Humidifier) Kind() string { return capability.EntityHumidifier }

func (h *Humidifier) Key() string { return capability.EntityHumidifier }

func (h *Humidifier) Modes() []string {
	if h.modes == nil {
		return nil
	}
	return h.modes.Names()
}

func (h *Humidifier) Attributes() []string {
	attrs := []string{AttrOn}
	if h.modes != nil && len(h.modes.Names()) > 0 {
		attrs = append(attrs, AttrMode)
	}
	if h.humidity != nil {
		attrs = append(attrs, AttrTargetHumidity)
	}
	return attrs
}

func (h *Humidifier) Describe() ([]model.Capability, []model.DeviceInput) {
	var caps []model.Capability
	var inputs []model.DeviceInput
	c, in := toggle(AttrOn, "Power", "humidifier")
	c.DeviceClass = h.deviceClass
	caps, inputs = append(caps, c), append(inputs, in)
	if modes := h.Modes(); len(modes) > 0 {
		c, in = selector(AttrMode, "Mode", "humidifier", modes)
		caps, inputs = append(caps, c), append(inputs, in)
	}
	if h.humidity != nil {
		c, in = slider(AttrTargetHumidity, "Target humidity", "humidifier", "%", modelRange(h.humidity))
		c.DeviceClass = "humidity"
		caps, inputs = append(caps, c), append(inputs, in)
	}
	return caps, inputs
}

func (h *Humidifier) State(view StateView) map[string]any {
	out := map[string]any{AttrDeviceClass: h.deviceClass}
	if on, ok := h.power.isOn(view); ok {
		out[AttrOn] = on
	}
	if h.modes != nil {
		if v, ok := cached(view, h.modeDesc.Type, h.modeDesc.Instance); ok {
			if p, err := h.modes.Decode(v); err == nil {
				out[AttrMode] = p.Name
			} else {
				slog.Debug("humidifier mode not decodable", "value", v.String(), "error", err)
			}
		}
	}
	if h.humidity != nil {
		if v, ok := cached(view, capability.TypeRange, capability.InstanceHumidity); ok && v.Kind() == capability.KindNumber {
			out[AttrTargetHumidity] = v.Any()
		}
	}
	return out
}

func (h *Humidifier) Apply(attr string, value any, view StateView) (capability.Command, error) {
	switch attr {
	case AttrOn:
		return h.power.set(value, view)
	case AttrMode:
		if h.modes == nil {
			return capability.Command{}, unsupported(h.Kind(), attr)
		}
		name, err := stringValue(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		v, err := h.modes.Encode(name)
		if err != nil {
			return capability.Command{}, err
		}
		return capability.Command{Type: h.modeDesc.Type, Instance: h.modeDesc.Instance, Value: v}, nil
	case AttrTargetHumidity:
		if h.humidity == nil {
			return capability.Command{}, unsupported(h.Kind(), attr)
		}
		f, err := numeric(value, attr)
		if err != nil {
			return capability.Command{}, err
		}
		if f < 0 || f > 100 {
			return capability.Command{}, fmt.Errorf("%w: humidity %v outside 0..100", ErrUnsupportedValue, f)
		}
		raw := math.Round(ClampToRange(f, *h.humidity))
		return capability.Command{Type: capability.TypeRange, Instance: capability.InstanceHumidity, Value: capability.Number(raw)}, nil
	default:
		return capability.Command{}, unsupported(h.Kind(), attr)
	}
}
