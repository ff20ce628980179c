package translate

import (
	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/adapterutil"
)

// Switch is one on_off or toggle capability exposed as a boolean property named after its instance.
type Switch struct {
	desc   capability.Descriptor
	states *Mapping
	attr   string
}

func NewSwitch(d capability.Descriptor) *Switch {
	return &Switch{desc: d, states: OnOffMapping(d), attr: adapterutil.Slug(d.Instance)}
}

func (s *Switch) Kind() string { return capability.EntitySwitch }

func (s *Switch) Key() string { return capability.EntitySwitch + ":" + s.desc.Instance }

func (s *Switch) Attributes() []string { return []string{s.attr} }

func (s *Switch) Describe() ([]model.Capability, []model.DeviceInput) {
	c, in := toggle(s.attr, adapterutil.TitleCase(adapterutil.Slug(s.desc.Instance)), "switch")
	return []model.Capability{c}, []model.DeviceInput{in}
}

func (s *Switch) State(view StateView) map[string]any {
	v, ok := cached(view, s.desc.Type, s.desc.Instance)
	if !ok {
		return nil
	}
	name, err := s.states.Decode(v)
	if err != nil {
		return nil
	}
	return map[string]any{s.attr: name == StateOn}
}

func (s *Switch) Apply(attr string, value any, view StateView) (capability.Command, error) {
	if attr != s.attr {
		return capability.Command{}, unsupported(s.Kind(), attr)
	}
	on, err := boolArg(value, attr)
	if err != nil {
		return capability.Command{}, err
	}
	name := StateOff
	if on {
		name = StateOn
	}
	v, err := s.states.Encode(name)
	if err != nil {
		return capability.Command{}, err
	}
	return capability.Command{Type: s.desc.Type, Instance: s.desc.Instance, Value: v}, nil
}
