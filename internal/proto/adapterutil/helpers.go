package adapterutil

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

func SanitizeString(s string) string {
	if s == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}

func SanitizeDeviceStrings(dev *model.Device) {
	if dev == nil {
		return
	}
	dev.ExternalID = SanitizeString(dev.ExternalID)
	dev.Name = SanitizeString(dev.Name)
	dev.Type = SanitizeString(dev.Type)
	dev.Model = SanitizeString(dev.Model)
	dev.Description = SanitizeString(dev.Description)
}

func StringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case nil:
			return ""
		case string:
			return val
		case fmt.Stringer:
			return val.String()
		default:
			return fmt.Sprint(val)
		}
	}
	return ""
}

// CoerceBool interprets host input loosely; ok is false when v has no boolean reading.
func CoerceBool(v any) (value bool, ok bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.TrimSpace(strings.ToLower(val)) {
		case "on", "true", "1", "yes":
			return true, true
		case "off", "false", "0", "no":
			return false, true
		}
	case float64:
		return val != 0, true
	case int:
		return val != 0, true
	case int64:
		return val != 0, true
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f != 0, true
		}
	}
	return false, false
}

func NumericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func TitleCase(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.FieldsFunc(v, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// Slug turns a vendor instance name into an HDP property id: "oscillationToggle" -> "oscillation_toggle".
func Slug(v string) string {
	var b strings.Builder
	for i, r := range v {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '/' || r == '_' || r == '.':
			b.WriteByte('_')
		}
	}
	return b.String()
}
