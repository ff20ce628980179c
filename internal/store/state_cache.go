package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

// State is one reported capability value.
type State struct {
	Type     string           `json:"type"`
	Instance string           `json:"instance"`
	Value    capability.Value `json:"value"`
}

type entry struct {
	value capability.Value
	seq   uint64
}

// Cache holds the last known capability values per device. Every write takes a
// sequence number so a poll that started before an acknowledged control call
// cannot roll that call back.
type Cache struct {
	mu      sync.RWMutex
	seq     uint64
	devices map[string]map[string]entry
}

func NewCache() *Cache {
	return &Cache{devices: map[string]map[string]entry{}}
}

func stateKey(typ, instance string) string { return typ + "/" + instance }

// Begin returns the token a poll passes to ReplaceAll.
func (c *Cache) Begin() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// ReplaceAll swaps in a full poll result. Entries written after since are kept.
func (c *Cache) ReplaceAll(deviceID string, states []State, since uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	next := make(map[string]entry, len(states))
	for _, s := range states {
		next[stateKey(s.Type, s.Instance)] = entry{value: s.Value, seq: c.seq}
	}
	for k, e := range c.devices[deviceID] {
		if e.seq > since {
			next[k] = e
		}
	}
	c.devices[deviceID] = next
}

// Apply replaces one capability after the vendor acknowledged a control call.
func (c *Cache) Apply(deviceID, typ, instance string, v capability.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	dev, ok := c.devices[deviceID]
	if !ok {
		dev = map[string]entry{}
		c.devices[deviceID] = dev
	}
	dev[stateKey(typ, instance)] = entry{value: v, seq: c.seq}
}

func (c *Cache) Get(deviceID, typ, instance string) (capability.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.devices[deviceID][stateKey(typ, instance)]
	return e.value, ok
}

// Available is true only when the online capability reports true.
func (c *Cache) Available(deviceID string) bool {
	v, ok := c.Get(deviceID, capability.TypeOnline, capability.InstanceOnline)
	if !ok {
		return false
	}
	b, ok := v.BoolValue()
	return ok && b
}

// Snapshot lists a device's cached states ordered by type and instance.
func (c *Cache) Snapshot(deviceID string) []State {
	c.mu.RLock()
	out := make([]State, 0, len(c.devices[deviceID]))
	for k, e := range c.devices[deviceID] {
		typ, instance := splitKey(k)
		out = append(out, State{Type: typ, Instance: instance, Value: e.value})
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Instance < out[j].Instance
	})
	return out
}

func (c *Cache) Remove(deviceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, deviceID)
}

func (c *Cache) View(deviceID string) View { return View{cache: c, deviceID: deviceID} }

// View is read-only access to one device's cached states.
type View struct {
	cache    *Cache
	deviceID string
}

func (v View) Get(typ, instance string) (capability.Value, bool) {
	if v.cache == nil {
		return capability.Value{}, false
	}
	return v.cache.Get(v.deviceID, typ, instance)
}

func splitKey(k string) (string, string) {
	i := strings.LastIndex(k, "/")
	if i < 0 {
		return k, ""
	}
	return k[:i], k[i+1:]
}
