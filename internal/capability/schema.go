package capability

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedSchema marks a capability descriptor whose parameters cannot be decoded.
var ErrMalformedSchema = errors.New("malformed capability schema")

const (
	TypeOnOff              = "devices.capabilities.on_off"
	TypeToggle             = "devices.capabilities.toggle"
	TypeRange              = "devices.capabilities.range"
	TypeMode               = "devices.capabilities.mode"
	TypeColorSetting       = "devices.capabilities.color_setting"
	TypeSegmentColor       = "devices.capabilities.segment_color_setting"
	TypeMusicSetting       = "devices.capabilities.music_setting"
	TypeDynamicScene       = "devices.capabilities.dynamic_scene"
	TypeWorkMode           = "devices.capabilities.work_mode"
	TypeTemperatureSetting = "devices.capabilities.temperature_setting"
	TypeProperty           = "devices.capabilities.property"
	TypeOnline             = "devices.capabilities.online"
	TypeEvent              = "devices.capabilities.event"
)

const (
	InstancePowerSwitch       = "powerSwitch"
	InstanceBrightness        = "brightness"
	InstanceHumidity          = "humidity"
	InstanceColorRGB          = "colorRgb"
	InstanceColorTemperatureK = "colorTemperatureK"
	InstanceLightScene        = "lightScene"
	InstanceDIYScene          = "diyScene"
	InstanceWorkMode          = "workMode"
	InstanceTargetTemperature = "targetTemperature"
	InstanceSensorTemperature = "sensorTemperature"
	InstanceOnline            = "online"
)

type ParamKind int

const (
	ParamNone ParamKind = iota
	ParamOptions
	ParamFields
	ParamRange
	ParamInvalid
)

type Range struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Precision float64 `json:"precision,omitempty"`
}

// Option is an enumerated choice. Options carrying nested options have no value of their own.
type Option struct {
	Name         string   `json:"name"`
	Value        Value    `json:"value"`
	DefaultValue Value    `json:"defaultValue"`
	Options      []Option `json:"options,omitempty"`
}

type Field struct {
	FieldName    string   `json:"fieldName"`
	DataType     string   `json:"dataType,omitempty"`
	Unit         string   `json:"unit,omitempty"`
	Options      []Option `json:"options,omitempty"`
	Range        *Range   `json:"range,omitempty"`
	DefaultValue Value    `json:"defaultValue"`
	Required     bool     `json:"required,omitempty"`
}

// Parameters is the decoded variant of a descriptor's parameter block.
type Parameters struct {
	Kind     ParamKind
	DataType string
	Unit     string
	Options  []Option
	Fields   []Field
	Range    *Range
}

type Descriptor struct {
	Type       string
	Instance   string
	Parameters Parameters
	// Err is set when the parameter block could not be decoded.
	Err error

	raw json.RawMessage
}

type wireDescriptor struct {
	Type       string          `json:"type"`
	Instance   string          `json:"instance"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

type wireParameters struct {
	DataType string   `json:"dataType"`
	Unit     string   `json:"unit"`
	Options  []Option `json:"options"`
	Fields   []Field  `json:"fields"`
	Range    *Range   `json:"range"`
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var w wireDescriptor
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Descriptor{Type: w.Type, Instance: w.Instance, raw: w.Parameters}
	params, err := ParseParameters(w.Parameters)
	if err != nil {
		d.Parameters = Parameters{Kind: ParamInvalid}
		d.Err = fmt.Errorf("%s/%s: %w", w.Type, w.Instance, err)
		return nil
	}
	d.Parameters = params
	return nil
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	w := wireDescriptor{Type: d.Type, Instance: d.Instance, Parameters: d.raw}
	return json.Marshal(w)
}

// ParseParameters decodes a raw parameter block into its variant.
func ParseParameters(raw json.RawMessage) (Parameters, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Parameters{Kind: ParamNone}, nil
	}
	var w wireParameters
	if err := json.Unmarshal(raw, &w); err != nil {
		return Parameters{}, fmt.Errorf("%w: %v", ErrMalformedSchema, err)
	}
	p := Parameters{DataType: w.DataType, Unit: w.Unit, Options: w.Options, Fields: w.Fields, Range: w.Range}
	switch {
	case len(w.Fields) > 0:
		p.Kind = ParamFields
	case len(w.Options) > 0:
		p.Kind = ParamOptions
	case w.Range != nil:
		if w.Range.Max < w.Range.Min {
			return Parameters{}, fmt.Errorf("%w: range max %v below min %v", ErrMalformedSchema, w.Range.Max, w.Range.Min)
		}
		p.Kind = ParamRange
	default:
		p.Kind = ParamNone
	}
	return p, nil
}

// Field looks up a named field of a struct-typed descriptor.
func (p Parameters) Field(name string) (Field, bool) {
	for _, f := range p.Fields {
		if f.FieldName == name {
			return f, true
		}
	}
	return Field{}, false
}

// Option looks up an option by name.
func (p Parameters) Option(name string) (Option, bool) {
	return findOption(p.Options, name)
}

func (f Field) Option(name string) (Option, bool) {
	return findOption(f.Options, name)
}

func findOption(opts []Option, name string) (Option, bool) {
	for _, o := range opts {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Command is a single vendor control payload.
type Command struct {
	Type     string `json:"type"`
	Instance string `json:"instance"`
	Value    Value  `json:"value"`
}

func (c Command) String() string {
	return fmt.Sprintf("%s/%s=%s", c.Type, c.Instance, c.Value)
}
