package govee

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New("secret", time.Second, WithBaseURL(srv.URL+"/"))
}

func TestListDevices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/user/devices" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Govee-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		_, _ = io.WriteString(w, `{"code":200,"message":"success","data":[{"sku":"H6008","device":"AA:BB","deviceName":"Desk","type":"devices.types.light",
			"capabilities":[{"type":"devices.capabilities.on_off","instance":"powerSwitch","parameters":{"options":[{"name":"on","value":1},{"name":"off","value":0}]}}]}]}`)
	})
	devices, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devices) != 1 || devices[0].Device != "AA:BB" || devices[0].Name != "Desk" || len(devices[0].Capabilities) != 1 {
		t.Fatalf("unexpected devices %+v", devices)
	}
	if c.RequestsToday() != 1 {
		t.Fatalf("expected one counted request, got %d", c.RequestsToday())
	}
}

func TestDeviceStateRequestShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RequestID string `json:"requestId"`
			Payload   struct {
				SKU    string `json:"sku"`
				Device string `json:"device"`
			} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if r.URL.Path != "/device/state" || body.RequestID == "" || body.Payload.SKU != "H6008" || body.Payload.Device != "AA:BB" {
			t.Errorf("unexpected request %s %+v", r.URL.Path, body)
		}
		_, _ = io.WriteString(w, `{"requestId":"x","code":200,"payload":{"sku":"H6008","device":"AA:BB","capabilities":[
			{"type":"devices.capabilities.online","instance":"online","state":{"value":true}},
			{"type":"devices.capabilities.range","instance":"brightness","state":{"value":42}}]}}`)
	})
	states, err := c.DeviceState(context.Background(), "H6008", "AA:BB")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("expected 2 states, got %d", len(states))
	}
	v, err := capability.ParseState(states[1].State, states[1].Instance)
	if err != nil || !v.Equal(capability.Number(42)) {
		t.Fatalf("unexpected brightness %v (%v)", v, err)
	}
}

func TestControlEchoesCapability(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Payload struct {
				Capability struct {
					Type     string          `json:"type"`
					Instance string          `json:"instance"`
					Value    json.RawMessage `json:"value"`
				} `json:"capability"`
			} `json:"payload"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Payload.Capability.Instance != "workMode" || string(body.Payload.Capability.Value) != `{"modeValue":3,"workMode":1}` {
			t.Errorf("unexpected control payload %+v %s", body.Payload.Capability, body.Payload.Capability.Value)
		}
		_, _ = io.WriteString(w, `{"requestId":"x","msg":"success","code":200,"capability":{"type":"devices.capabilities.work_mode","instance":"workMode","value":{"workMode":1,"modeValue":3},"state":{"status":"success"}}}`)
	})
	val := capability.Composite(map[string]capability.Value{"workMode": capability.Number(1), "modeValue": capability.Number(3)})
	ack, err := c.Control(context.Background(), "H7126", "CC:DD", capability.Command{Type: capability.TypeWorkMode, Instance: capability.InstanceWorkMode, Value: val})
	if err != nil {
		t.Fatalf("control: %v", err)
	}
	if ack.Instance != "workMode" || !ack.Value.Equal(val) {
		t.Fatalf("unexpected ack %+v", ack)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{}`, func(err error) bool { return errors.Is(err, ErrUnauthorized) }},
		{"rate limited", http.StatusTooManyRequests, `{}`, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{"server error", http.StatusBadGateway, `bad gateway`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Status == http.StatusBadGateway && se.Body == "bad gateway"
		}},
		{"body code", http.StatusOK, `{"code":400,"msg":"invalid parameter"}`, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Status == 400
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.DeviceState(context.Background(), "H6008", "AA:BB")
			if !tc.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestScenesFlattenOptions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/device/diy-scenes" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"code":200,"payload":{"capabilities":[{"type":"devices.capabilities.dynamic_scene","instance":"diyScene","parameters":{"dataType":"ENUM","options":[{"name":"Party","value":8216567},{"name":"Calm","value":8216568}]}}]}}`)
	})
	opts, err := c.DIYScenes(context.Background(), "H6008", "AA:BB")
	if err != nil {
		t.Fatalf("diy scenes: %v", err)
	}
	if len(opts) != 2 || opts[0].Name != "Party" || !opts[1].Value.Equal(capability.Number(8216568)) {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestDailyCounterResetsOnDateChange(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)
	dc := NewDailyCounter(func() time.Time { return now })
	dc.Inc()
	dc.Inc()
	if dc.Count() != 2 {
		t.Fatalf("expected 2, got %d", dc.Count())
	}
	now = now.Add(2 * time.Minute)
	if dc.Count() != 0 {
		t.Fatalf("count must reset at midnight, got %d", dc.Count())
	}
	if dc.Inc() != 1 {
		t.Fatalf("first request of the day must count as 1")
	}
}
