package adapterutil

import "testing"

func TestSlugAndTitleCase(t *testing.T) {
	cases := map[string]string{
		"oscillationToggle": "oscillation_toggle",
		"gradientToggle":    "gradient_toggle",
		"sensorTemperature": "sensor_temperature",
		"air-quality":       "air_quality",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Fatalf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
	if got := TitleCase("gradient_toggle"); got != "Gradient Toggle" {
		t.Fatalf("unexpected title %q", got)
	}
}

func TestCoerceBool(t *testing.T) {
	cases := []struct {
		in     any
		want   bool
		wantOK bool
	}{
		{true, true, true},
		{"ON", true, true},
		{"off", false, true},
		{float64(0), false, true},
		{1, true, true},
		{"maybe", false, false},
		{nil, false, false},
	}
	for _, tc := range cases {
		got, ok := CoerceBool(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("CoerceBool(%v) = %v,%v", tc.in, got, ok)
		}
	}
}

func TestNumericValueAndStringField(t *testing.T) {
	if f, ok := NumericValue(" 42.5 "); !ok || f != 42.5 {
		t.Fatalf("string number: %v %v", f, ok)
	}
	if _, ok := NumericValue("x"); ok {
		t.Fatalf("non-numeric string must fail")
	}
	m := map[string]any{"a": "x", "n": 3, "nil": nil}
	if StringField(m, "a") != "x" || StringField(m, "n") != "3" || StringField(m, "nil") != "" || StringField(nil, "a") != "" {
		t.Fatalf("unexpected string fields")
	}
}
