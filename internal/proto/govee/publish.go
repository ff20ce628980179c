package govee

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
)

const hdpEventPrefix = "homenavi/hdp/device/event/"

func (g *GoveeAdapter) publishHello() {
	hdp := map[string]any{
		"schema":      hdpSchema,
		"type":        "hello",
		"adapter_id":  g.cfg.AdapterID,
		"protocol":    protocol,
		"version":     g.cfg.Version,
		"hdp_version": "1.0",
		"features": map[string]any{
			"supports_ack":         true,
			"supports_correlation": true,
			"supports_pairing":     false,
		},
		"ts": time.Now().UnixMilli(),
	}
	if hb, err := json.Marshal(hdp); err == nil {
		_ = g.client.Publish(hdpAdapterHelloTopic, hb)
	}
}

func (g *GoveeAdapter) publishStatus(status, reason string) {
	hdp := map[string]any{
		"schema":     hdpSchema,
		"type":       "status",
		"adapter_id": g.cfg.AdapterID,
		"status":     status,
		"reason":     reason,
		"version":    g.cfg.Version,
		"ts":         time.Now().UnixMilli(),
	}
	if hb, err := json.Marshal(hdp); err == nil {
		_ = g.client.PublishWith(hdpAdapterStatusPrefix+g.cfg.AdapterID, hb, true)
	}
}

// StatusPayload is the retained status used as the MQTT last will.
func StatusPayload(adapterID, version, status, reason string) []byte {
	b, _ := json.Marshal(map[string]any{
		"schema":     hdpSchema,
		"type":       "status",
		"adapter_id": adapterID,
		"status":     status,
		"reason":     reason,
		"version":    version,
	})
	return b
}

// StatusTopic is where the adapter's retained status lives.
func StatusTopic(adapterID string) string { return hdpAdapterStatusPrefix + adapterID }

// publishHDPState publishes the retained state and returns the bare state JSON for persistence.
func (g *GoveeAdapter) publishHDPState(deviceID string, state map[string]any, corr string) []byte {
	if deviceID == "" || len(state) == 0 {
		return nil
	}
	envelope := map[string]any{
		"schema":    hdpSchema,
		"type":      "state",
		"device_id": deviceID,
		"ts":        time.Now().UnixMilli(),
		"state":     state,
	}
	if corr != "" {
		envelope["corr"] = corr
	}
	if b, err := json.Marshal(envelope); err == nil {
		_ = g.client.PublishWith(hdpStatePrefix+deviceID, b, true)
	}
	b, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	return b
}

func (g *GoveeAdapter) publishHDPMeta(dev *model.Device) {
	if dev == nil {
		return
	}
	deviceID := hdpDeviceID(dev.ExternalID)
	if deviceID == "" {
		return
	}
	envelope := map[string]any{
		"schema":       hdpSchema,
		"type":         "metadata",
		"device_id":    deviceID,
		"protocol":     protocol,
		"name":         dev.Name,
		"manufacturer": dev.Manufacturer,
		"model":        dev.Model,
		"description":  dev.Description,
		"icon":         dev.Icon,
		"ts":           time.Now().UnixMilli(),
	}
	if len(dev.Capabilities) > 0 {
		var caps any
		if err := json.Unmarshal(dev.Capabilities, &caps); err == nil {
			envelope["capabilities"] = caps
		}
	}
	if len(dev.Inputs) > 0 {
		var inputs any
		if err := json.Unmarshal(dev.Inputs, &inputs); err == nil {
			envelope["inputs"] = inputs
		}
	}
	if b, err := json.Marshal(envelope); err == nil {
		_ = g.client.PublishWith(hdpMetadataPrefix+deviceID, b, true)
	}
}

func (g *GoveeAdapter) publishHDPEvent(deviceID, event string, data map[string]any) {
	if deviceID == "" || strings.TrimSpace(event) == "" {
		return
	}
	envelope := map[string]any{
		"schema":    hdpSchema,
		"type":      "event",
		"device_id": deviceID,
		"event":     event,
		"ts":        time.Now().UnixMilli(),
	}
	if len(data) > 0 {
		envelope["data"] = data
	}
	if b, err := json.Marshal(envelope); err == nil {
		_ = g.client.Publish(hdpEventPrefix+deviceID, b)
	}
}

func (g *GoveeAdapter) publishHDPCommandResult(deviceID, corr string, success bool, status, errMsg string) {
	if deviceID == "" || corr == "" {
		return
	}
	envelope := map[string]any{
		"schema":    hdpSchema,
		"type":      "command_result",
		"device_id": deviceID,
		"corr":      corr,
		"success":   success,
		"ts":        time.Now().UnixMilli(),
	}
	if status != "" {
		envelope["status"] = status
	}
	if errMsg != "" {
		envelope["error"] = errMsg
	}
	if b, err := json.Marshal(envelope); err == nil {
		_ = g.client.Publish(hdpCommandResultPrefix+deviceID, b)
	}
}

func (g *GoveeAdapter) publishAdapterCommandResult(corr string, success bool, status, errMsg string) {
	envelope := map[string]any{
		"schema":     hdpSchema,
		"type":       "command_result",
		"adapter_id": g.cfg.AdapterID,
		"success":    success,
		"ts":         time.Now().UnixMilli(),
	}
	if corr != "" {
		envelope["corr"] = corr
	}
	if status != "" {
		envelope["status"] = status
	}
	if errMsg != "" {
		envelope["error"] = errMsg
	}
	if b, err := json.Marshal(envelope); err == nil {
		_ = g.client.Publish(hdpAdapterCommandResultPrefix+g.cfg.AdapterID, b)
	}
}
