package translate

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

type fakeView map[string]capability.Value

func (f fakeView) Get(typ, instance string) (capability.Value, bool) {
	v, ok := f[typ+"/"+instance]
	return v, ok
}

func (f fakeView) set(typ, instance string, v capability.Value) { f[typ+"/"+instance] = v }

func index(t *testing.T, raw string) *capability.Index {
	t.Helper()
	var descs []capability.Descriptor
	if err := json.Unmarshal([]byte(raw), &descs); err != nil {
		t.Fatalf("decode descriptors: %v", err)
	}
	return capability.NewIndex("test", descs)
}

func composite(workMode, modeValue float64, withMode bool) capability.Value {
	fields := map[string]capability.Value{"workMode": capability.Number(workMode)}
	if withMode {
		fields["modeValue"] = capability.Number(modeValue)
	}
	return capability.Composite(fields)
}

const workModeCaps = `[
 {"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}},
 {"type":"devices.capabilities.work_mode","instance":"workMode","parameters":{"dataType":"STRUCT","fields":[
  {"fieldName":"workMode","options":[{"name":"Manual","value":1},{"name":"Sleep","value":5},{"name":"Custom","value":2}]},
  {"fieldName":"modeValue","options":[{"name":"Manual","options":[{"name":"Low","value":1},{"name":"High","value":3},{"name":"Custom","value":9}]},{"name":"Custom","defaultValue":0}]}]}}
]`

func TestOnOffMappingRoundTrip(t *testing.T) {
	idx := index(t, workModeCaps)
	d, _ := idx.Lookup(capability.TypeOnOff, capability.InstancePowerSwitch)
	m := OnOffMapping(d)
	for _, name := range m.Names() {
		v, err := m.Encode(name)
		if err != nil {
			t.Fatalf("encode %s: %v", name, err)
		}
		back, err := m.Decode(v)
		if err != nil || back != name {
			t.Fatalf("round trip %s -> %v -> %s (%v)", name, v, back, err)
		}
	}
	defaults := OnOffMapping(capability.Descriptor{})
	if v, _ := defaults.Encode(StateOn); !v.Equal(capability.Number(1)) {
		t.Fatalf("default on must be 1, got %v", v)
	}
	if v, _ := defaults.Encode(StateOff); !v.Equal(capability.Number(0)) {
		t.Fatalf("default off must be 0, got %v", v)
	}
}

func TestMappingRejectsDuplicates(t *testing.T) {
	m := NewMapping()
	if err := m.Add("a", capability.Number(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := m.Add("a", capability.Number(2)); !errors.Is(err, ErrDuplicateOption) {
		t.Fatalf("expected duplicate name error, got %v", err)
	}
	if err := m.Add("b", capability.Number(1)); !errors.Is(err, ErrDuplicateOption) {
		t.Fatalf("expected duplicate value error, got %v", err)
	}
	if _, err := m.Decode(capability.Number(7)); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("expected unsupported value, got %v", err)
	}
}

func TestWorkModePresets(t *testing.T) {
	idx := index(t, workModeCaps)
	d, _ := idx.Lookup(capability.TypeWorkMode, capability.InstanceWorkMode)
	w, err := BuildWorkModes(d)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	names := w.Names()
	want := []string{"Manual:Low", "Manual:High", "Sleep"}
	if len(names) != len(want) {
		t.Fatalf("expected presets %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected presets %v, got %v", want, names)
		}
	}
	v, err := w.Encode("Sleep")
	if err != nil || !v.Equal(composite(5, 0, false)) {
		t.Fatalf("Sleep must encode to workMode 5 only, got %v (%v)", v, err)
	}
	v, _ = w.Encode("Manual:High")
	if !v.Equal(composite(1, 3, true)) {
		t.Fatalf("Manual:High must encode to {1,3}, got %v", v)
	}
	for _, name := range names {
		enc, _ := w.Encode(name)
		p, err := w.Decode(enc)
		if err != nil || p.Name != name {
			t.Fatalf("round trip %s -> %s (%v)", name, p.Name, err)
		}
	}
	p, err := w.Decode(composite(5, 42, true))
	if err != nil || p.Name != "Sleep" {
		t.Fatalf("expected workMode-only fallback to Sleep, got %q (%v)", p.Name, err)
	}
	if _, err := w.Decode(composite(2, 0, true)); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("Custom must not decode, got %v", err)
	}
	mode, levels, ok := w.SpeedMode()
	if !ok || mode != "Manual" || len(levels) != 2 {
		t.Fatalf("unexpected speed mode %s %v", mode, levels)
	}
}

func TestPercentageLevelRoundTrip(t *testing.T) {
	for n := 1; n <= 12; n++ {
		for k := 1; k <= n; k++ {
			p := LevelToPercentage(k, n)
			if got := PercentageToLevel(p, n); got != k {
				t.Fatalf("n=%d k=%d: percentage %d maps back to %d", n, k, p, got)
			}
		}
	}
	if PercentageToLevel(0, 3) != 0 {
		t.Fatalf("0%% must be off")
	}
	if PercentageToLevel(150, 3) != 3 {
		t.Fatalf("percentages above 100 clamp to the top level")
	}
}

func TestRGBRoundTrip(t *testing.T) {
	for r := 0; r < 256; r += 15 {
		for g := 0; g < 256; g += 17 {
			for b := 0; b < 256; b += 51 {
				gr, gg, gb := UnpackRGB(PackRGB(r, g, b))
				if gr != r || gg != g || gb != b {
					t.Fatalf("(%d,%d,%d) -> (%d,%d,%d)", r, g, b, gr, gg, gb)
				}
			}
		}
	}
	if PackRGB(255, 0, 0) != 0xff0000 {
		t.Fatalf("red must pack to 0xff0000")
	}
}

func TestFahrenheitToCelsius(t *testing.T) {
	if FahrenheitToCelsius(32) != 0 {
		t.Fatalf("32F must be 0C")
	}
	if FahrenheitToCelsius(212) != 100 {
		t.Fatalf("212F must be 100C")
	}
	if CelsiusToFahrenheit(100) != 212 || CelsiusToFahrenheit(-40) != -40 {
		t.Fatalf("celsius conversion mismatch")
	}
}

func TestBrightnessScaling(t *testing.T) {
	r := capability.Range{Min: 1, Max: 100}
	host := ScaleToHost(50, r, 255)
	if math.Abs(host-127.5) > 1 {
		t.Fatalf("raw 50 should be about half of 255, got %v", host)
	}
	if raw := ScaleFromHost(255, r, 255); raw != 100 {
		t.Fatalf("host 255 must map to 100, got %v", raw)
	}
	if raw := ScaleFromHost(1, r, 255); raw != 1 {
		t.Fatalf("host 1 must map to range min, got %v", raw)
	}
	stepped := capability.Range{Min: 0, Max: 100, Precision: 5}
	if raw := ScaleFromHost(128, stepped, 255); math.Mod(raw, 5) != 0 {
		t.Fatalf("expected value snapped to precision 5, got %v", raw)
	}
}

const lightCaps = `[
 {"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}},
 {"type":"devices.capabilities.range","instance":"brightness","parameters":{"range":{"min":1,"max":100,"precision":1}}},
 {"type":"devices.capabilities.color_setting","instance":"colorRgb","parameters":{"range":{"min":0,"max":16777215}}},
 {"type":"devices.capabilities.color_setting","instance":"colorTemperatureK","parameters":{"range":{"min":2700,"max":6500}}},
 {"type":"devices.capabilities.dynamic_scene","instance":"lightScene","parameters":{"options":[{"name":"Sunrise","value":1001},{"name":"Sunset","value":1002}]}},
 {"type":"devices.capabilities.dynamic_scene","instance":"diyScene","parameters":{"options":[]}},
 {"type":"devices.capabilities.toggle","instance":"gradientToggle","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}}
]`

func diyScenes() Scenes {
	opt := func(name string, v float64) capability.Option {
		return capability.Option{Name: name, Value: capability.Number(v)}
	}
	return Scenes{
		DIY: []capability.Option{opt("Test DIY", 21747659), opt("New effect", 1), opt("New effect", 2), opt("New effect", 3)},
		Dynamic: []capability.Option{
			{Name: "Aurora", Value: capability.Composite(map[string]capability.Value{"paramId": capability.Number(4), "id": capability.Number(7)})},
			opt("Sunrise", 1001),
		},
	}
}

func TestLightScenesDeduplicated(t *testing.T) {
	l := NewLight(index(t, lightCaps), diyScenes())
	effects := l.Effects()
	want := []string{"DIY: Test DIY", "DIY: New effect", "DIY: New effect (2)", "DIY: New effect (3)", "Sunrise", "Sunset", "Aurora"}
	if len(effects) != len(want) {
		t.Fatalf("expected %v, got %v", want, effects)
	}
	for i := range want {
		if effects[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, effects)
		}
	}
	cmd, err := l.Apply(AttrEffect, "DIY: Test DIY", nil)
	if err != nil || cmd.Instance != capability.InstanceDIYScene || !cmd.Value.Equal(capability.Number(21747659)) {
		t.Fatalf("unexpected DIY command %v (%v)", cmd, err)
	}
	cmd, err = l.Apply(AttrEffect, "Sunrise", nil)
	if err != nil || cmd.Instance != capability.InstanceLightScene || !cmd.Value.Equal(capability.Number(1001)) {
		t.Fatalf("unexpected scene command %v (%v)", cmd, err)
	}
	if _, err := l.Apply(AttrEffect, "Disco", nil); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("unknown effect must be rejected, got %v", err)
	}
}

func TestLightStateAndCommands(t *testing.T) {
	l := NewLight(index(t, lightCaps), Scenes{})
	view := fakeView{}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(1))
	view.set(capability.TypeRange, capability.InstanceBrightness, capability.Number(100))
	view.set(capability.TypeColorSetting, capability.InstanceColorRGB, capability.Number(0x00ff80))
	view.set(capability.TypeColorSetting, capability.InstanceColorTemperatureK, capability.Number(0))

	st := l.State(view)
	if st[AttrOn] != true || st[AttrBrightness] != 255 {
		t.Fatalf("unexpected state %v", st)
	}
	rgb := st[AttrColor].(map[string]any)
	if rgb["r"] != 0 || rgb["g"] != 255 || rgb["b"] != 128 {
		t.Fatalf("unexpected color %v", rgb)
	}
	if st[AttrColorMode] != "rgb" {
		t.Fatalf("color temp 0 must leave rgb mode, got %v", st[AttrColorMode])
	}

	cmd, err := l.Apply(AttrOn, false, view)
	if err != nil || cmd.Type != capability.TypeOnOff || cmd.Instance != capability.InstancePowerSwitch || !cmd.Value.Equal(capability.Number(0)) {
		t.Fatalf("turn off must send powerSwitch 0, got %v (%v)", cmd, err)
	}
	if _, err := l.Apply(AttrOn, true, view); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("turning on a light that is on must be skipped, got %v", err)
	}
	cmd, _ = l.Apply(AttrColorTemp, 9000, view)
	if !cmd.Value.Equal(capability.Number(6500)) {
		t.Fatalf("color temp must clamp to 6500, got %v", cmd.Value)
	}
	cmd, _ = l.Apply(AttrColor, "#ff0000", view)
	if !cmd.Value.Equal(capability.Number(0xff0000)) {
		t.Fatalf("unexpected packed color %v", cmd.Value)
	}
	if _, err := l.Apply(AttrColor, []any{1, 2}, view); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("malformed color must be rejected, got %v", err)
	}
	if _, err := l.Apply(AttrBrightness, 300, view); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("brightness above 255 must be rejected, got %v", err)
	}
	cmd, err = l.Apply(AttrBrightness, 0, view)
	if err != nil || cmd.Instance != capability.InstancePowerSwitch || !cmd.Value.Equal(capability.Number(0)) {
		t.Fatalf("brightness 0 must turn the light off, got %v (%v)", cmd, err)
	}
	off := fakeView{}
	off.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(0))
	if _, err := l.Apply(AttrBrightness, 0, off); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("brightness 0 on a light that is off must be skipped, got %v", err)
	}
}

func TestLightEffectTracking(t *testing.T) {
	l := NewLight(index(t, lightCaps), Scenes{})
	cmd, _ := l.Apply(AttrEffect, "Sunset", nil)
	l.Acknowledge(cmd)
	if got := l.State(fakeView{})[AttrEffect]; got != "Sunset" {
		t.Fatalf("expected effect Sunset, got %v", got)
	}
	l.Acknowledge(capability.Command{Type: capability.TypeColorSetting, Instance: capability.InstanceColorRGB, Value: capability.Number(1)})
	if _, ok := l.State(fakeView{})[AttrEffect]; ok {
		t.Fatalf("color change must clear the effect")
	}
}

const fanCaps = `[
 {"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}},
 {"type":"devices.capabilities.work_mode","instance":"workMode","parameters":{"fields":[
  {"fieldName":"workMode","options":[{"name":"gearMode","value":1},{"name":"Auto","value":3},{"name":"Sleep","value":5}]},
  {"fieldName":"modeValue","options":[{"name":"gearMode","options":[{"name":"Low","value":1},{"name":"Medium","value":2},{"name":"High","value":3}]},{"name":"Auto","defaultValue":0}]}]}}
]`

func TestFanSpeedAndPresets(t *testing.T) {
	f := NewFan(index(t, fanCaps))
	if f.SpeedCount() != 3 {
		t.Fatalf("expected 3 speeds, got %d", f.SpeedCount())
	}
	presets := f.Presets()
	if len(presets) != 2 || presets[0] != "Auto" || presets[1] != "Sleep" {
		t.Fatalf("unexpected presets %v", presets)
	}
	view := fakeView{}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(1))
	view.set(capability.TypeWorkMode, capability.InstanceWorkMode, composite(1, 2, true))
	st := f.State(view)
	if st[AttrPercentage] != 66 {
		t.Fatalf("Medium of 3 must be 66%%, got %v", st[AttrPercentage])
	}
	cmd, err := f.Apply(AttrPercentage, 100, view)
	if err != nil || !cmd.Value.Equal(composite(1, 3, true)) {
		t.Fatalf("100%% must select High, got %v (%v)", cmd, err)
	}
	cmd, err = f.Apply(AttrPercentage, 0, view)
	if err != nil || cmd.Type != capability.TypeOnOff || !cmd.Value.Equal(capability.Number(0)) {
		t.Fatalf("0%% must turn the fan off, got %v (%v)", cmd, err)
	}
	cmd, err = f.Apply(AttrPreset, "Auto", view)
	if err != nil || !cmd.Value.Equal(composite(3, 0, true)) {
		t.Fatalf("Auto must encode with its default mode value, got %v (%v)", cmd, err)
	}
	if _, err := f.Apply(AttrPreset, "gearMode:Low", view); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("speed levels are not presets, got %v", err)
	}
	view.set(capability.TypeWorkMode, capability.InstanceWorkMode, composite(5, 0, true))
	if got := f.State(view)[AttrPreset]; got != "Sleep" {
		t.Fatalf("expected preset Sleep, got %v", got)
	}
}

const heaterCaps = `[
 {"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}},
 {"type":"devices.capabilities.work_mode","instance":"workMode","parameters":{"fields":[
  {"fieldName":"workMode","options":[{"name":"gearMode","value":1},{"name":"Fan","value":9}]},
  {"fieldName":"modeValue","options":[{"name":"gearMode","options":[{"name":"Low","value":1},{"name":"High","value":3}]},{"name":"Fan","defaultValue":0}]}]}},
 {"type":"devices.capabilities.temperature_setting","instance":"targetTemperature","parameters":{"fields":[
  {"fieldName":"temperature","range":{"min":5,"max":30,"precision":1}},
  {"fieldName":"unit","defaultValue":"Celsius","options":[{"name":"Celsius","value":"Celsius"},{"name":"Fahrenheit","value":"Fahrenheit"}]}]}},
 {"type":"devices.capabilities.property","instance":"sensorTemperature"},
 {"type":"devices.capabilities.toggle","instance":"oscillationToggle","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}}
]`

func TestClimate(t *testing.T) {
	c := NewClimate(index(t, heaterCaps))
	presets := c.Presets()
	if len(presets) != 3 || presets[0] != "gearMode:Low" || presets[2] != "Fan" {
		t.Fatalf("unexpected presets %v", presets)
	}
	view := fakeView{}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(0))
	view.set(capability.TypeProperty, capability.InstanceSensorTemperature, capability.Number(212))
	view.set(capability.TypeTemperatureSetting, capability.InstanceTargetTemperature, capability.Composite(map[string]capability.Value{
		"targetTemperature": capability.Number(21), "unit": capability.String("Celsius"),
	}))
	st := c.State(view)
	if st[AttrHVACMode] != HVACOff || st[AttrCurrentTemperature] != 100.0 || st[AttrTargetTemperature] != 21.0 {
		t.Fatalf("unexpected climate state %v", st)
	}
	cmd, err := c.Apply(AttrHVACMode, HVACHeatCool, view)
	if err != nil || !cmd.Value.Equal(capability.Number(1)) {
		t.Fatalf("heat_cool must switch on, got %v (%v)", cmd, err)
	}
	cmd, err = c.Apply(AttrTargetTemperature, 40, view)
	want := capability.Composite(map[string]capability.Value{"temperature": capability.Number(30), "unit": capability.String("Celsius")})
	if err != nil || !cmd.Value.Equal(want) {
		t.Fatalf("unexpected temperature command %v (%v)", cmd, err)
	}
	if _, err := c.Apply(AttrHVACMode, "cool", view); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("cool is not supported, got %v", err)
	}
}

func TestClimateTargetFollowsCachedUnit(t *testing.T) {
	c := NewClimate(index(t, heaterCaps))
	view := fakeView{}
	view.set(capability.TypeTemperatureSetting, capability.InstanceTargetTemperature, capability.Composite(map[string]capability.Value{
		"targetTemperature": capability.Number(70), "unit": capability.String("Fahrenheit"),
	}))
	cases := []struct {
		in, want float64
	}{
		{75, 75},
		{100, 86},
		{20, 41},
	}
	for _, tc := range cases {
		cmd, err := c.Apply(AttrTargetTemperature, tc.in, view)
		want := capability.Composite(map[string]capability.Value{"temperature": capability.Number(tc.want), "unit": capability.String("Fahrenheit")})
		if err != nil || !cmd.Value.Equal(want) {
			t.Fatalf("target %v: expected %v, got %v (%v)", tc.in, want, cmd.Value, err)
		}
	}
	if st := c.State(view); st[AttrTemperatureUnit] != UnitFahrenheit || st[AttrTargetTemperature] != 70.0 {
		t.Fatalf("unexpected state %v", st)
	}
}

const humidifierCaps = `[
 {"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}},
 {"type":"devices.capabilities.work_mode","instance":"workMode","parameters":{"fields":[
  {"fieldName":"workMode","options":[{"name":"Manual","value":1},{"name":"Auto","value":3}]},
  {"fieldName":"modeValue","options":[{"name":"Manual","options":[{"name":"1","value":1},{"name":"2","value":2}]},{"name":"Auto","defaultValue":60}]}]}},
 {"type":"devices.capabilities.range","instance":"humidity","parameters":{"range":{"min":40,"max":80,"precision":1}}}
]`

func TestHumidifier(t *testing.T) {
	h := NewHumidifier(DeviceTypeDehumidifier, index(t, humidifierCaps))
	modes := h.Modes()
	if len(modes) != 3 || modes[0] != "Manual:1" || modes[2] != "Auto" {
		t.Fatalf("unexpected modes %v", modes)
	}
	view := fakeView{}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(1))
	view.set(capability.TypeWorkMode, capability.InstanceWorkMode, composite(3, 60, true))
	view.set(capability.TypeRange, capability.InstanceHumidity, capability.Number(55))
	st := h.State(view)
	if st[AttrMode] != "Auto" || st[AttrTargetHumidity] != int64(55) || st[AttrDeviceClass] != "dehumidifier" {
		t.Fatalf("unexpected state %v", st)
	}
	cmd, err := h.Apply(AttrTargetHumidity, 20, view)
	if err != nil || !cmd.Value.Equal(capability.Number(40)) {
		t.Fatalf("humidity must clamp to range min, got %v (%v)", cmd, err)
	}
	if _, err := h.Apply(AttrMode, "Turbo", view); !errors.Is(err, ErrUnsupportedValue) {
		t.Fatalf("unknown mode must be rejected, got %v", err)
	}
}

func TestBuildAndPlanOrdersPowerLast(t *testing.T) {
	d := Build("AA:BB", "H6008", "devices.types.light", "Desk", mustDescs(t, lightCaps), capability.DefaultRouter(), Scenes{})
	if len(d.Entities) != 2 {
		t.Fatalf("expected light and gradient switch, got %d entities", len(d.Entities))
	}
	view := fakeView{}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(0))
	steps, rejected := d.Plan(map[string]any{AttrOn: true, AttrBrightness: 255, AttrEffect: "Sunrise", "bogus": 1}, view)
	if len(rejected) != 1 || rejected[0].Attr != "bogus" || !errors.Is(rejected[0], ErrUnsupportedAttribute) {
		t.Fatalf("expected bogus rejected, got %v", rejected)
	}
	if len(steps) != 3 || steps[0].Attr != AttrEffect || steps[1].Attr != AttrBrightness || steps[2].Attr != AttrOn {
		t.Fatalf("unexpected plan order %+v", steps)
	}
	view.set(capability.TypeOnOff, capability.InstancePowerSwitch, capability.Number(1))
	steps, _ = d.Plan(map[string]any{AttrOn: true, "gradient_toggle": true}, view)
	if len(steps) != 1 || steps[0].Command.Instance != "gradientToggle" {
		t.Fatalf("expected only the gradient toggle, got %+v", steps)
	}
	st := d.State(view, false)
	if st[AttrOnline] != false || st[AttrOn] != true {
		t.Fatalf("unexpected merged state %v", st)
	}
}

func mustDescs(t *testing.T, raw string) []capability.Descriptor {
	t.Helper()
	var descs []capability.Descriptor
	if err := json.Unmarshal([]byte(raw), &descs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return descs
}
