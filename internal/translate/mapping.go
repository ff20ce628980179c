package translate

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

var (
	ErrUnsupportedValue     = errors.New("unsupported value")
	ErrUnsupportedAttribute = errors.New("unsupported attribute")
	ErrAbsent               = errors.New("capability not present")
	ErrDuplicateOption      = errors.New("duplicate option")
	// ErrAlreadySet means the requested power state is already cached; no command is needed.
	ErrAlreadySet = errors.New("already in requested state")
)

// Mapping is a bidirectional name <-> vendor value table.
type Mapping struct {
	names  []string
	byName map[string]capability.Value
	byKey  map[string]string
}

func NewMapping() *Mapping {
	return &Mapping{byName: map[string]capability.Value{}, byKey: map[string]string{}}
}

// Add rejects a name or value that is already mapped so both directions stay bijective.
func (m *Mapping) Add(name string, v capability.Value) error {
	if _, ok := m.byName[name]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateOption, name)
	}
	key := v.Key()
	if other, ok := m.byKey[key]; ok {
		return fmt.Errorf("%w: value %s already mapped to %q", ErrDuplicateOption, v, other)
	}
	m.names = append(m.names, name)
	m.byName[name] = v
	m.byKey[key] = name
	return nil
}

func (m *Mapping) Encode(name string) (capability.Value, error) {
	v, ok := m.byName[name]
	if !ok {
		return capability.Value{}, fmt.Errorf("%w: %q", ErrUnsupportedValue, name)
	}
	return v, nil
}

func (m *Mapping) Decode(v capability.Value) (string, error) {
	name, ok := m.byKey[v.Key()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedValue, v)
	}
	return name, nil
}

func (m *Mapping) Has(name string) bool {
	_, ok := m.byName[name]
	return ok
}

func (m *Mapping) Names() []string { return append([]string(nil), m.names...) }

func (m *Mapping) Len() int { return len(m.names) }

const (
	StateOn  = "on"
	StateOff = "off"
)

// OnOffMapping reads the on/off options of a descriptor, defaulting to on=1 off=0.
func OnOffMapping(d capability.Descriptor) *Mapping {
	m := NewMapping()
	for _, opt := range d.Parameters.Options {
		switch opt.Name {
		case StateOn, StateOff:
			if err := m.Add(opt.Name, opt.Value); err != nil {
				slog.Warn("on/off option ignored", "instance", d.Instance, "error", err)
			}
		default:
			slog.Debug("unhandled on/off option", "instance", d.Instance, "option", opt.Name)
		}
	}
	if !m.Has(StateOn) {
		_ = m.Add(StateOn, capability.Number(1))
	}
	if !m.Has(StateOff) {
		_ = m.Add(StateOff, capability.Number(0))
	}
	return m
}
