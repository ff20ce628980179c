package translate

import (
	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/adapterutil"
)

// Sensor exposes one reported capability read-only. Temperatures arrive in Fahrenheit.
type Sensor struct {
	desc capability.Descriptor
	attr string
}

func NewSensor(d capability.Descriptor) *Sensor {
	return &Sensor{desc: d, attr: adapterutil.Slug(d.Instance)}
}

func (s *Sensor) Kind() string { return capability.EntitySensor }

func (s *Sensor) Key() string { return capability.EntitySensor + ":" + s.desc.Type + ":" + s.desc.Instance }

func (s *Sensor) Attributes() []string { return nil }

func (s *Sensor) isTemperature() bool { return s.desc.Instance == capability.InstanceSensorTemperature }

func (s *Sensor) Describe() ([]model.Capability, []model.DeviceInput) {
	c := readOnly(s.attr, adapterutil.TitleCase(s.attr), "sensor", "number", "")
	switch {
	case s.isTemperature():
		c.Unit, c.DeviceClass, c.Measurement = "°C", "temperature", "measurement"
	case s.desc.Instance == "sensorHumidity":
		c.Unit, c.DeviceClass, c.Measurement = "%", "humidity", "measurement"
	case s.desc.Type == capability.TypeOnline:
		c.ValueType = "boolean"
	case s.desc.Type == capability.TypeEvent:
		c.ValueType, c.Access = "object", model.CapabilityAccess{Event: true}
	}
	return []model.Capability{c}, nil
}

func (s *Sensor) State(view StateView) map[string]any {
	v, ok := cached(view, s.desc.Type, s.desc.Instance)
	if !ok {
		return nil
	}
	if s.isTemperature() && v.Kind() == capability.KindNumber {
		return map[string]any{s.attr: roundTo(FahrenheitToCelsius(v.Float()), 1)}
	}
	return map[string]any{s.attr: v.Any()}
}

func (s *Sensor) Apply(attr string, _ any, _ StateView) (capability.Command, error) {
	return capability.Command{}, unsupported(s.Kind(), attr)
}
