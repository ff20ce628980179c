package capability

import (
	"log/slog"
	"regexp"
	"sync"
)

type indexKey struct{ typ, instance string }

// Index answers "does this device support (type, instance)" for one device.
type Index struct {
	order []Descriptor
	byKey map[indexKey]int
}

// NewIndex keeps the first descriptor of each (type, instance) pair and drops malformed ones.
func NewIndex(deviceID string, descs []Descriptor) *Index {
	idx := &Index{byKey: make(map[indexKey]int, len(descs))}
	for _, d := range descs {
		if d.Err != nil {
			slog.Warn("capability dropped", "device", deviceID, "error", d.Err)
			continue
		}
		k := indexKey{d.Type, d.Instance}
		if _, dup := idx.byKey[k]; dup {
			slog.Warn("duplicate capability dropped", "device", deviceID, "type", d.Type, "instance", d.Instance)
			continue
		}
		idx.byKey[k] = len(idx.order)
		idx.order = append(idx.order, d)
	}
	return idx
}

func (i *Index) Lookup(typ, instance string) (Descriptor, bool) {
	if i == nil {
		return Descriptor{}, false
	}
	pos, ok := i.byKey[indexKey{typ, instance}]
	if !ok {
		return Descriptor{}, false
	}
	return i.order[pos], true
}

func (i *Index) Has(typ, instance string) bool {
	_, ok := i.Lookup(typ, instance)
	return ok
}

// OfType returns all descriptors of a capability type in declaration order.
func (i *Index) OfType(typ string) []Descriptor {
	if i == nil {
		return nil
	}
	var out []Descriptor
	for _, d := range i.order {
		if d.Type == typ {
			out = append(out, d)
		}
	}
	return out
}

func (i *Index) All() []Descriptor {
	if i == nil {
		return nil
	}
	return append([]Descriptor(nil), i.order...)
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func compilePattern(pattern string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		slog.Warn("invalid capability pattern", "pattern", pattern, "error", err)
		re = nil
	}
	patternCache[pattern] = re
	return re
}

// Match reports whether pattern matches the "deviceType:capType:instance" triple from its start.
func Match(deviceType, capType, instance, pattern string) bool {
	re := compilePattern(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(deviceType + ":" + capType + ":" + instance)
}
