package translate

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

// AttrOnline is published for every device from the online capability.
const AttrOnline = "online"

// Device groups the entities built for one vendor device.
type Device struct {
	ID       string
	SKU      string
	Type     string
	Name     string
	Index    *capability.Index
	Entities []Entity

	owners map[string]Entity
}

// Build routes a device's capabilities to entities. Scenes must already be fetched:
// mapping tables are fixed once the entities exist.
func Build(id, sku, deviceType, name string, descs []capability.Descriptor, router *capability.Router, scenes Scenes) *Device {
	d := &Device{ID: id, SKU: sku, Type: deviceType, Name: name, owners: map[string]Entity{}}
	d.Index = capability.NewIndex(id, descs)
	for _, route := range router.Routes(deviceType, d.Index) {
		var e Entity
		switch route.Entity {
		case capability.EntityLight:
			e = NewLight(d.Index, scenes)
		case capability.EntityFan:
			e = NewFan(d.Index)
		case capability.EntityHumidifier:
			e = NewHumidifier(deviceType, d.Index)
		case capability.EntityClimate:
			e = NewClimate(d.Index)
		case capability.EntitySwitch:
			e = NewSwitch(*route.Capability)
		case capability.EntitySensor:
			e = NewSensor(*route.Capability)
		default:
			continue
		}
		d.add(e)
	}
	return d
}

func (d *Device) add(e Entity) {
	for _, attr := range e.Attributes() {
		if prev, taken := d.owners[attr]; taken {
			slog.Warn("attribute already owned", "device", d.ID, "attr", attr, "owner", prev.Key(), "skipped", e.Key())
			continue
		}
		d.owners[attr] = e
	}
	d.Entities = append(d.Entities, e)
}

func (d *Device) Owner(attr string) (Entity, bool) {
	e, ok := d.owners[attr]
	return e, ok
}

// Describe merges entity capabilities, keeping the first declaration of each id.
func (d *Device) Describe() ([]model.Capability, []model.DeviceInput) {
	caps := []model.Capability{readOnly(AttrOnline, "Online", "connectivity", "boolean", "")}
	inputs := []model.DeviceInput{}
	seenCaps := map[string]bool{AttrOnline: true}
	seenInputs := map[string]bool{}
	for _, e := range d.Entities {
		cs, ins := e.Describe()
		for _, c := range cs {
			if seenCaps[c.ID] {
				continue
			}
			seenCaps[c.ID] = true
			caps = append(caps, c)
		}
		for _, in := range ins {
			if seenInputs[in.ID] {
				continue
			}
			seenInputs[in.ID] = true
			inputs = append(inputs, in)
		}
	}
	return caps, inputs
}

// State merges every entity's host view of the cache.
func (d *Device) State(view StateView, online bool) map[string]any {
	out := map[string]any{}
	for _, e := range d.Entities {
		for k, v := range e.State(view) {
			if _, dup := out[k]; !dup {
				out[k] = v
			}
		}
	}
	out[AttrOnline] = online
	return out
}

// Step is one planned vendor call.
type Step struct {
	Attr    string
	Entity  Entity
	Command capability.Command
}

// AttrError is a rejected attribute in a command request.
type AttrError struct {
	Attr string
	Err  error
}

func (e AttrError) Error() string { return fmt.Sprintf("%s: %v", e.Attr, e.Err) }
func (e AttrError) Unwrap() error { return e.Err }

func attrOrder(attr string) int {
	switch attr {
	case AttrEffect:
		return 0
	case AttrBrightness:
		return 1
	case AttrColorTemp:
		return 2
	case AttrColor:
		return 3
	case AttrOn, AttrHVACMode:
		return 9
	default:
		return 5
	}
}

// Plan turns a set_state request into ordered vendor calls. Power changes go last; power
// changes the cache already reflects are dropped.
func (d *Device) Plan(args map[string]any, view StateView) ([]Step, []AttrError) {
	attrs := make([]string, 0, len(args))
	for k := range args {
		attrs = append(attrs, k)
	}
	sort.Slice(attrs, func(i, j int) bool {
		oi, oj := attrOrder(attrs[i]), attrOrder(attrs[j])
		if oi != oj {
			return oi < oj
		}
		return attrs[i] < attrs[j]
	})
	var steps []Step
	var rejected []AttrError
	for _, attr := range attrs {
		e, ok := d.owners[attr]
		if !ok {
			rejected = append(rejected, AttrError{Attr: attr, Err: fmt.Errorf("%w: %q", ErrUnsupportedAttribute, attr)})
			continue
		}
		cmd, err := e.Apply(attr, args[attr], view)
		if errors.Is(err, ErrAlreadySet) {
			slog.Debug("power command skipped", "device", d.ID, "attr", attr)
			continue
		}
		if err != nil {
			rejected = append(rejected, AttrError{Attr: attr, Err: err})
			continue
		}
		steps = append(steps, Step{Attr: attr, Entity: e, Command: cmd})
	}
	return steps, rejected
}
