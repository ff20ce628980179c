package capability

import (
	_ "embed"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	EntityLight      = "light"
	EntityFan        = "fan"
	EntityHumidifier = "humidifier"
	EntityClimate    = "climate"
	EntitySwitch     = "switch"
	EntitySensor     = "sensor"
)

//go:embed routes.yaml
var defaultRoutes []byte

type DeviceRoute struct {
	Entity      string   `yaml:"entity"`
	DeviceTypes []string `yaml:"device_types"`
}

type CapabilityRoute struct {
	Entity   string   `yaml:"entity"`
	Patterns []string `yaml:"patterns"`
}

// Router decides which entities a device produces.
type Router struct {
	Devices      []DeviceRoute     `yaml:"devices"`
	Capabilities []CapabilityRoute `yaml:"capabilities"`
}

// Route is one entity to build: Capability is nil for device-level entities.
type Route struct {
	Entity     string
	Capability *Descriptor
}

func DefaultRouter() *Router {
	r, err := ParseRouter(defaultRoutes)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadRouter reads a route table from path, falling back to the built-in table when path is empty.
func LoadRouter(path string) (*Router, error) {
	if path == "" {
		return DefaultRouter(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes: %w", err)
	}
	return ParseRouter(data)
}

func ParseRouter(data []byte) (*Router, error) {
	var r Router
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse routes: %w", err)
	}
	for _, d := range r.Devices {
		if !knownEntity(d.Entity) {
			return nil, fmt.Errorf("unknown device entity %q", d.Entity)
		}
	}
	for _, c := range r.Capabilities {
		if !knownEntity(c.Entity) {
			return nil, fmt.Errorf("unknown capability entity %q", c.Entity)
		}
	}
	return &r, nil
}

func knownEntity(e string) bool {
	switch e {
	case EntityLight, EntityFan, EntityHumidifier, EntityClimate, EntitySwitch, EntitySensor:
		return true
	}
	return false
}

// Routes lists the entities for one device: the first matching device route, then every
// capability matching a capability route.
func (r *Router) Routes(deviceType string, idx *Index) []Route {
	var out []Route
	for _, d := range r.Devices {
		if slices.Contains(d.DeviceTypes, deviceType) {
			out = append(out, Route{Entity: d.Entity})
			break
		}
	}
	for _, desc := range idx.All() {
		for _, c := range r.Capabilities {
			if matchAny(deviceType, desc, c.Patterns) {
				d := desc
				out = append(out, Route{Entity: c.Entity, Capability: &d})
				break
			}
		}
	}
	return out
}

func matchAny(deviceType string, d Descriptor, patterns []string) bool {
	for _, p := range patterns {
		if Match(deviceType, d.Type, d.Instance, p) {
			return true
		}
	}
	return false
}
