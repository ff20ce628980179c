package govee

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/observability"
)

const (
	DefaultBaseURL = "https://openapi.api.govee.com/router/api/v1"
	DefaultTimeout = 10 * time.Second
	apiKeyHeader   = "Govee-API-Key"
)

var (
	ErrUnauthorized = errors.New("govee: unauthorized, check the API key")
	ErrRateLimited  = errors.New("govee: too many requests, daily limit reached")
)

// StatusError is an unexpected HTTP status or a non-200 code in the response body.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("govee API returned status %d", e.Status)
	}
	return fmt.Sprintf("govee API returned status %d: %s", e.Status, e.Body)
}

// Device is one entry of the user/devices listing.
type Device struct {
	SKU          string                  `json:"sku"`
	Device       string                  `json:"device"`
	Name         string                  `json:"deviceName"`
	Type         string                  `json:"type"`
	Capabilities []capability.Descriptor `json:"capabilities"`
}

// CapabilityState is one capability of a device/state reply; State holds {"value": ...}.
type CapabilityState struct {
	Type     string          `json:"type"`
	Instance string          `json:"instance"`
	State    json.RawMessage `json:"state"`
}

// Ack is the capability echoed by device/control.
type Ack struct {
	Type     string           `json:"type"`
	Instance string           `json:"instance"`
	Value    capability.Value `json:"value"`
	State    json.RawMessage  `json:"state,omitempty"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	counter    *DailyCounter
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }

func WithCounter(dc *DailyCounter) Option { return func(c *Client) { c.counter = dc } }

func New(apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		counter:    NewDailyCounter(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestsToday reports the daily request count.
func (c *Client) RequestsToday() int { return c.counter.Count() }

func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	var out struct {
		Data []Device `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "user/devices", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type devicePayload struct {
	SKU        string         `json:"sku"`
	Device     string         `json:"device"`
	Capability *controlTarget `json:"capability,omitempty"`
}

type controlTarget struct {
	Type     string           `json:"type"`
	Instance string           `json:"instance"`
	Value    capability.Value `json:"value"`
}

type request struct {
	RequestID string        `json:"requestId"`
	Payload   devicePayload `json:"payload"`
}

func newRequest(sku, device string) request {
	return request{RequestID: uuid.NewString(), Payload: devicePayload{SKU: sku, Device: device}}
}

func (c *Client) DeviceState(ctx context.Context, sku, device string) ([]CapabilityState, error) {
	var out struct {
		Payload struct {
			Capabilities []CapabilityState `json:"capabilities"`
		} `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, "device/state", newRequest(sku, device), &out); err != nil {
		return nil, err
	}
	return out.Payload.Capabilities, nil
}

func (c *Client) Control(ctx context.Context, sku, device string, cmd capability.Command) (Ack, error) {
	req := newRequest(sku, device)
	req.Payload.Capability = &controlTarget{Type: cmd.Type, Instance: cmd.Instance, Value: cmd.Value}
	var out struct {
		Capability *Ack `json:"capability"`
	}
	if err := c.do(ctx, http.MethodPost, "device/control", req, &out); err != nil {
		return Ack{}, err
	}
	if out.Capability == nil {
		return Ack{}, fmt.Errorf("govee: control reply without capability for %s", cmd)
	}
	return *out.Capability, nil
}

// Scenes fetches the cloud scene list of a light.
func (c *Client) Scenes(ctx context.Context, sku, device string) ([]capability.Option, error) {
	return c.sceneOptions(ctx, "device/scenes", sku, device)
}

func (c *Client) DIYScenes(ctx context.Context, sku, device string) ([]capability.Option, error) {
	return c.sceneOptions(ctx, "device/diy-scenes", sku, device)
}

func (c *Client) sceneOptions(ctx context.Context, path, sku, device string) ([]capability.Option, error) {
	var out struct {
		Payload struct {
			Capabilities []capability.Descriptor `json:"capabilities"`
		} `json:"payload"`
	}
	if err := c.do(ctx, http.MethodPost, path, newRequest(sku, device), &out); err != nil {
		return nil, err
	}
	var opts []capability.Option
	for _, d := range out.Payload.Capabilities {
		if d.Err != nil {
			slog.Warn("scene list entry skipped", "device", device, "error", d.Err)
			continue
		}
		opts = append(opts, d.Parameters.Options...)
	}
	return opts, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) (err error) {
	ctx, span := observability.StartSpan(ctx, "govee "+path, attribute.String("http.method", method))
	defer func() { observability.EndSpan(span, err) }()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.Trim(path, "/"), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	today := c.counter.Inc()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.ObserveAPIRequest(path, 0, today, time.Since(start))
		return fmt.Errorf("govee %s: %w", path, err)
	}
	defer resp.Body.Close()
	observability.ObserveAPIRequest(path, resp.StatusCode, today, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("govee %s: read body: %w", path, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var envelope struct {
		Code *int   `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Code != nil && *envelope.Code != http.StatusOK {
		switch *envelope.Code {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
		return &StatusError{Status: *envelope.Code, Body: envelope.Msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("govee %s: decode: %w", path, err)
	}
	return nil
}
