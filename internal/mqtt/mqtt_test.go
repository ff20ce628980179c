package mqtt

import (
	"net/url"
	"testing"
)

func TestBrokerServer(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"mqtt://mosquitto:1883", "tcp://mosquitto:1883", false},
		{"tcp://broker:1883", "tcp://broker:1883", false},
		{"mqtts://broker:8883", "ssl://broker:8883", false},
		{"wss://broker/mqtt", "wss://broker/mqtt", false},
		{"http://broker", "", true},
	}
	for _, tc := range cases {
		u, err := url.Parse(tc.in)
		if err != nil {
			t.Fatalf("parse %s: %v", tc.in, err)
		}
		got, err := brokerServer(u)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("brokerServer(%s) = %q, %v", tc.in, got, err)
		}
	}
}
