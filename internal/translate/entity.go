package translate

import (
	"fmt"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/adapterutil"
)

// StateView is read-only access to one device's cached capability states.
type StateView interface {
	Get(typ, instance string) (capability.Value, bool)
}

// Entity translates between host attributes and vendor capabilities for one device facet.
// Mapping tables are built once at construction and never change.
type Entity interface {
	Kind() string
	// Key is unique per device: the entity kind, plus the instance for per-capability entities.
	Key() string
	Attributes() []string
	Describe() ([]model.Capability, []model.DeviceInput)
	State(view StateView) map[string]any
	// Apply builds exactly one vendor command for one host attribute write.
	Apply(attr string, value any, view StateView) (capability.Command, error)
}

// Acknowledger is implemented by entities that track state the vendor does not report back.
type Acknowledger interface {
	Acknowledge(cmd capability.Command)
}

const (
	AttrOn                 = "on"
	AttrBrightness         = "brightness"
	AttrColor              = "color"
	AttrColorTemp          = "color_temp"
	AttrColorMode          = "color_mode"
	AttrEffect             = "effect"
	AttrPercentage         = "percentage"
	AttrPreset             = "preset"
	AttrMode               = "mode"
	AttrTargetHumidity     = "target_humidity"
	AttrHVACMode           = "hvac_mode"
	AttrTargetTemperature  = "target_temperature"
	AttrCurrentTemperature = "current_temperature"
	AttrTemperatureUnit    = "temperature_unit"
	AttrDeviceClass        = "device_class"
)

// power wraps an on_off capability shared by the device-level entities.
type power struct {
	desc    capability.Descriptor
	states  *Mapping
	present bool
}

func newPower(idx *capability.Index) power {
	d, ok := idx.Lookup(capability.TypeOnOff, capability.InstancePowerSwitch)
	if !ok {
		return power{states: OnOffMapping(capability.Descriptor{}), desc: capability.Descriptor{Type: capability.TypeOnOff, Instance: capability.InstancePowerSwitch}}
	}
	return power{desc: d, states: OnOffMapping(d), present: true}
}

// isOn reports the cached power state; known is false when the cache holds no decodable value.
func (p power) isOn(view StateView) (on, known bool) {
	if !p.present || view == nil {
		return false, false
	}
	v, ok := view.Get(p.desc.Type, p.desc.Instance)
	if !ok {
		return false, false
	}
	name, err := p.states.Decode(v)
	if err != nil {
		return false, false
	}
	return name == StateOn, true
}

func (p power) command(on bool) (capability.Command, error) {
	if !p.present {
		return capability.Command{}, fmt.Errorf("%w: %s", ErrAbsent, capability.InstancePowerSwitch)
	}
	name := StateOff
	if on {
		name = StateOn
	}
	v, err := p.states.Encode(name)
	if err != nil {
		return capability.Command{}, err
	}
	return capability.Command{Type: p.desc.Type, Instance: p.desc.Instance, Value: v}, nil
}

// set builds a power command, or ErrAlreadySet when the cache already shows the requested state.
func (p power) set(value any, view StateView) (capability.Command, error) {
	on, err := boolArg(value, AttrOn)
	if err != nil {
		return capability.Command{}, err
	}
	if cur, known := p.isOn(view); known && cur == on {
		return capability.Command{}, ErrAlreadySet
	}
	return p.command(on)
}

func cached(view StateView, typ, instance string) (capability.Value, bool) {
	if view == nil {
		return capability.Value{}, false
	}
	return view.Get(typ, instance)
}

func numeric(value any, attr string) (float64, error) {
	f, ok := adapterutil.NumericValue(value)
	if !ok {
		return 0, fmt.Errorf("%w: %s=%v", ErrUnsupportedValue, attr, value)
	}
	return f, nil
}

func stringValue(value any, attr string) (string, error) {
	s, ok := value.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s=%v", ErrUnsupportedValue, attr, value)
	}
	return s, nil
}

func unsupported(kind, attr string) error {
	return fmt.Errorf("%w: %s has no %q", ErrUnsupportedAttribute, kind, attr)
}

func modelRange(r *capability.Range) *model.CapabilityRange {
	if r == nil {
		return nil
	}
	return &model.CapabilityRange{Min: r.Min, Max: r.Max, Step: r.Precision}
}

func toggle(id, name, kind string) (model.Capability, model.DeviceInput) {
	c := model.Capability{
		ID: id, Name: name, Kind: kind, Property: id, ValueType: "boolean",
		Access: model.ReadWrite, TrueValue: "true", FalseValue: "false",
	}
	in := model.DeviceInput{
		ID: id, Label: name, Type: "toggle", CapabilityID: id, Property: id,
		Metadata: map[string]any{"true_value": true, "false_value": false},
		Options:  []model.InputOption{{Value: "false", Label: "Off"}, {Value: "true", Label: "On"}},
	}
	return c, in
}

func slider(id, name, kind, unit string, rng *model.CapabilityRange) (model.Capability, model.DeviceInput) {
	c := model.Capability{ID: id, Name: name, Kind: kind, Property: id, ValueType: "number", Unit: unit, Access: model.ReadWrite, Range: rng}
	in := model.DeviceInput{ID: id, Label: name, Type: "slider", CapabilityID: id, Property: id, Range: rng}
	return c, in
}

func selector(id, name, kind string, values []string) (model.Capability, model.DeviceInput) {
	c := model.Capability{ID: id, Name: name, Kind: kind, Property: id, ValueType: "enum", Access: model.ReadWrite, Enum: values}
	opts := make([]model.InputOption, 0, len(values))
	for _, v := range values {
		opts = append(opts, model.InputOption{Value: v, Label: v})
	}
	in := model.DeviceInput{ID: id, Label: name, Type: "select", CapabilityID: id, Property: id, Options: opts}
	return c, in
}

func readOnly(id, name, kind, valueType, unit string) model.Capability {
	return model.Capability{ID: id, Name: name, Kind: kind, Property: id, ValueType: valueType, Unit: unit, Access: model.ReadOnly}
}

func boolArg(value any, attr string) (bool, error) {
	b, ok := adapterutil.CoerceBool(value)
	if !ok {
		return false, fmt.Errorf("%w: %s=%v", ErrUnsupportedValue, attr, value)
	}
	return b, nil
}
