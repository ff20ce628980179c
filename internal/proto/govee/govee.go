package govee

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"gorm.io/datatypes"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	goveeapi "github.com/PetoAdam/homenavi/govee-adapter/internal/govee"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/model"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/mqtt"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/observability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/poller"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/adapterutil"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/store"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/translate"
)

const (
	hdpSchema                     = "hdp.v1"
	hdpMetadataPrefix             = "homenavi/hdp/device/metadata/"
	hdpStatePrefix                = "homenavi/hdp/device/state/"
	hdpCommandPrefix              = "homenavi/hdp/device/command/"
	hdpCommandResultPrefix        = "homenavi/hdp/device/command_result/"
	hdpAdapterHelloTopic          = "homenavi/hdp/adapter/hello"
	hdpAdapterStatusPrefix        = "homenavi/hdp/adapter/status/"
	hdpAdapterCommandPrefix       = "homenavi/hdp/adapter/command/"
	hdpAdapterCommandResultPrefix = "homenavi/hdp/adapter/command_result/"

	protocol     = model.ProtocolGovee
	manufacturer = "Govee"
)

var ErrEntryMismatch = errors.New("entry_id does not match this adapter")

// API is the vendor client surface the adapter uses.
type API interface {
	poller.StateFetcher
	ListDevices(ctx context.Context) ([]goveeapi.Device, error)
	Scenes(ctx context.Context, sku, device string) ([]capability.Option, error)
	DIYScenes(ctx context.Context, sku, device string) ([]capability.Option, error)
	Control(ctx context.Context, sku, device string, cmd capability.Command) (goveeapi.Ack, error)
	RequestsToday() int
}

type Config struct {
	AdapterID    string
	Version      string
	FriendlyName string
	Router       *capability.Router
	PollInterval time.Duration
	Timeout      time.Duration
	Cooldown     time.Duration
}

// StateUpdate is a published device state, fanned out to local listeners.
type StateUpdate struct {
	DeviceID string         `json:"device_id"`
	State    map[string]any `json:"state"`
	TS       int64          `json:"ts"`
}

type GoveeAdapter struct {
	client    mqtt.ClientAPI
	api       API
	repo      *store.Repository
	mirror    *store.StateMirror
	cache     *store.Cache
	poller    *poller.Poller
	validator *validators
	cfg       Config

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex
	stopped bool

	subscriptions []string

	mu      sync.RWMutex
	devices map[string]*translate.Device // vendor device id
	byHDP   map[string]string            // hdp device id -> vendor device id
	online  map[string]bool

	correlationMu  sync.Mutex
	correlationMap map[string]string

	listenerMu sync.RWMutex
	listeners  []func(StateUpdate)
}

func New(client mqtt.ClientAPI, api API, repo *store.Repository, mirror *store.StateMirror, cfg Config) (*GoveeAdapter, error) {
	v, err := loadValidators()
	if err != nil {
		return nil, fmt.Errorf("load command schemas: %w", err)
	}
	if cfg.AdapterID == "" {
		cfg.AdapterID = "govee-adapter"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Router == nil {
		cfg.Router = capability.DefaultRouter()
	}
	g := &GoveeAdapter{
		client:         client,
		api:            api,
		repo:           repo,
		mirror:         mirror,
		cache:          store.NewCache(),
		validator:      v,
		cfg:            cfg,
		devices:        map[string]*translate.Device{},
		byHDP:          map[string]string{},
		online:         map[string]bool{},
		correlationMap: map[string]string{},
	}
	g.poller = poller.New(api, g.cache, poller.Options{
		Interval: cfg.PollInterval,
		Timeout:  cfg.Timeout,
		Cooldown: cfg.Cooldown,
		OnUpdate: g.publishDeviceState,
		OnStatus: g.onPollerStatus,
	})
	return g, nil
}

func (g *GoveeAdapter) Name() string { return protocol }

// Start fetches the device list, builds entities, runs the first poll and subscribes to commands.
// A failed device listing aborts startup.
func (g *GoveeAdapter) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)
	slog.Info("govee adapter starting", "adapter_id", g.cfg.AdapterID)
	g.publishHello()
	g.publishStatus("starting", "initializing")

	listCtx, cancel := context.WithTimeout(g.ctx, g.timeout())
	devices, err := g.api.ListDevices(listCtx)
	cancel()
	if err != nil {
		g.publishStatus("error", "device list unavailable")
		return fmt.Errorf("list devices: %w", err)
	}

	var targets []poller.Target
	var keepExternal, keepHDP []string
	for _, d := range devices {
		if strings.TrimSpace(d.Device) == "" {
			slog.Warn("device without id skipped", "sku", d.SKU)
			continue
		}
		dev := g.buildDevice(d)
		g.mu.Lock()
		g.devices[d.Device] = dev
		g.byHDP[hdpDeviceID(d.Device)] = d.Device
		g.mu.Unlock()
		if err := g.registerDevice(g.ctx, dev); err != nil {
			slog.Error("device registry upsert failed", "device", d.Device, "error", err)
		}
		targets = append(targets, poller.Target{ID: d.Device, SKU: d.SKU})
		keepExternal = append(keepExternal, d.Device)
		keepHDP = append(keepHDP, hdpDeviceID(d.Device))
	}
	g.pruneRemoved(g.ctx, keepExternal, keepHDP)

	g.poller.Register(targets)
	for _, t := range targets {
		if err := g.poller.PollNow(g.ctx, t.ID); err != nil {
			slog.Warn("initial poll failed", "device", t.ID, "error", err)
		}
	}
	g.poller.Start(targets)

	if err := g.subscribe(hdpCommandPrefix+protocol+"/#", g.handleHDPDeviceCommand); err != nil {
		return err
	}
	if err := g.subscribe(hdpAdapterCommandPrefix+g.cfg.AdapterID, g.handleAdapterCommand); err != nil {
		return err
	}
	if status, _ := g.poller.Status(); status == poller.StatusOnline {
		g.publishStatus("online", "healthy")
	}
	slog.Info("govee adapter started", "adapter_id", g.cfg.AdapterID, "devices", len(targets))
	return nil
}

func (g *GoveeAdapter) Stop() {
	g.runMu.Lock()
	if g.stopped {
		g.runMu.Unlock()
		return
	}
	g.stopped = true
	g.runMu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.poller.Stop()
	for _, topic := range g.subscriptions {
		if err := g.client.Unsubscribe(topic); err != nil {
			slog.Debug("unsubscribe failed", "topic", topic, "error", err)
		}
	}
	g.wg.Wait()
	g.publishStatus("offline", "shutdown")
}

func (g *GoveeAdapter) subscribe(topic string, handler mqtt.Handler) error {
	if err := g.client.Subscribe(topic, handler); err != nil {
		return err
	}
	g.subscriptions = append(g.subscriptions, topic)
	return nil
}

func (g *GoveeAdapter) timeout() time.Duration {
	if g.cfg.Timeout > 0 {
		return g.cfg.Timeout
	}
	return goveeapi.DefaultTimeout
}

// buildDevice fetches scene lists for lights before the entities are built.
func (g *GoveeAdapter) buildDevice(d goveeapi.Device) *translate.Device {
	idx := capability.NewIndex(d.Device, d.Capabilities)
	var scenes translate.Scenes
	if idx.Has(capability.TypeDynamicScene, capability.InstanceLightScene) {
		ctx, cancel := context.WithTimeout(g.ctx, g.timeout())
		opts, err := g.api.Scenes(ctx, d.SKU, d.Device)
		cancel()
		if err != nil {
			slog.Warn("scene list unavailable", "device", d.Device, "error", err)
		}
		scenes.Dynamic = opts
	}
	if idx.Has(capability.TypeDynamicScene, capability.InstanceDIYScene) {
		ctx, cancel := context.WithTimeout(g.ctx, g.timeout())
		opts, err := g.api.DIYScenes(ctx, d.SKU, d.Device)
		cancel()
		if err != nil {
			slog.Warn("diy scene list unavailable", "device", d.Device, "error", err)
		}
		scenes.DIY = opts
	}
	name := adapterutil.SanitizeString(d.Name)
	if name == "" {
		name = strings.TrimSpace(g.cfg.FriendlyName + " " + d.SKU)
	}
	return translate.Build(d.Device, d.SKU, d.Type, name, d.Capabilities, g.cfg.Router, scenes)
}

func (g *GoveeAdapter) registerDevice(ctx context.Context, dev *translate.Device) error {
	caps, inputs := dev.Describe()
	capsJSON, err := json.Marshal(caps)
	if err != nil {
		return err
	}
	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return err
	}
	rec := &model.Device{
		Protocol:     protocol,
		ExternalID:   dev.ID,
		Name:         dev.Name,
		Type:         primaryKind(dev),
		Manufacturer: manufacturer,
		Model:        dev.SKU,
		Description:  dev.Type,
		Icon:         iconFor(primaryKind(dev)),
		Capabilities: datatypes.JSON(capsJSON),
		Inputs:       datatypes.JSON(inputsJSON),
	}
	adapterutil.SanitizeDeviceStrings(rec)
	if g.repo != nil {
		err = g.repo.UpsertDevice(ctx, rec)
	}
	g.publishHDPMeta(rec)
	return err
}

func primaryKind(dev *translate.Device) string {
	if len(dev.Entities) == 0 {
		return "unknown"
	}
	return dev.Entities[0].Kind()
}

func iconFor(kind string) string {
	switch kind {
	case capability.EntityLight:
		return "lightbulb"
	case capability.EntityFan:
		return "fan"
	case capability.EntityHumidifier:
		return "water"
	case capability.EntityClimate:
		return "thermometer"
	case capability.EntitySensor:
		return "gauge"
	default:
		return "power"
	}
}

func (g *GoveeAdapter) pruneRemoved(ctx context.Context, keepExternal, keepHDP []string) {
	if g.repo != nil {
		removed, err := g.repo.DeleteDevicesNotIn(ctx, protocol, keepExternal, func(d model.Device) string { return hdpDeviceID(d.ExternalID) })
		if err != nil {
			slog.Warn("registry prune failed", "error", err)
		}
		for _, d := range removed {
			id := hdpDeviceID(d.ExternalID)
			slog.Info("device no longer listed, removed", "device_id", id)
			_ = g.client.PublishWith(hdpMetadataPrefix+id, nil, true)
			_ = g.client.PublishWith(hdpStatePrefix+id, nil, true)
		}
	}
	if removed, err := g.mirror.RemoveAllExcept(ctx, keepHDP); err != nil {
		slog.Warn("state mirror prune failed", "error", err)
	} else if len(removed) > 0 {
		slog.Info("stale mirrored states removed", "count", len(removed))
	}
}

func (g *GoveeAdapter) device(vendorID string) (*translate.Device, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.devices[vendorID]
	return d, ok
}

// resolve accepts an HDP id, a vendor id or a bare vendor id without colons.
func (g *GoveeAdapter) resolve(ref string) (*translate.Device, bool) {
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	g.mu.RLock()
	defer g.mu.RUnlock()
	if d, ok := g.devices[ref]; ok {
		return d, true
	}
	id := ref
	if !strings.HasPrefix(id, protocol+"/") {
		id = protocol + "/" + id
	}
	if vendorID, ok := g.byHDP[strings.ToLower(id)]; ok {
		return g.devices[vendorID], true
	}
	return nil, false
}

// hdpDeviceID maps "AA:BB:CC" to "govee/aabbcc".
func hdpDeviceID(vendorID string) string {
	id := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(vendorID), ":", ""))
	if id == "" {
		return ""
	}
	return protocol + "/" + id
}

func (g *GoveeAdapter) publishDeviceState(vendorID string) {
	dev, ok := g.device(vendorID)
	if !ok {
		return
	}
	online := g.cache.Available(vendorID)
	state := dev.State(g.cache.View(vendorID), online)
	deviceID := hdpDeviceID(vendorID)
	corr := g.consumeCorrelation(deviceID)
	b := g.publishHDPState(deviceID, state, corr)
	g.trackAvailability(deviceID, online)

	ctx := g.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if b != nil {
		if g.repo != nil {
			if err := g.repo.SaveDeviceState(ctx, deviceID, b); err != nil {
				slog.Debug("state persist failed", "device_id", deviceID, "error", err)
			}
		}
		if err := g.mirror.Set(ctx, deviceID, b); err != nil {
			slog.Debug("state mirror failed", "device_id", deviceID, "error", err)
		}
	}
	if g.repo != nil {
		if err := g.repo.SetOnline(ctx, protocol, vendorID, online); err != nil {
			slog.Debug("online update failed", "device", vendorID, "error", err)
		}
	}
	g.notify(StateUpdate{DeviceID: deviceID, State: state, TS: time.Now().UnixMilli()})
}

// trackAvailability emits an event when a device goes online or offline after its first state.
func (g *GoveeAdapter) trackAvailability(deviceID string, online bool) {
	g.mu.Lock()
	prev, seen := g.online[deviceID]
	g.online[deviceID] = online
	g.mu.Unlock()
	if seen && prev != online {
		g.publishHDPEvent(deviceID, "availability", map[string]any{"online": online})
	}
}

func (g *GoveeAdapter) onPollerStatus(status string, err error) {
	reason := "healthy"
	if err != nil {
		reason = err.Error()
	}
	g.publishStatus(status, reason)
}

// OnState registers a listener for every published device state.
func (g *GoveeAdapter) OnState(fn func(StateUpdate)) {
	g.listenerMu.Lock()
	g.listeners = append(g.listeners, fn)
	g.listenerMu.Unlock()
}

func (g *GoveeAdapter) notify(u StateUpdate) {
	g.listenerMu.RLock()
	defer g.listenerMu.RUnlock()
	for _, fn := range g.listeners {
		fn(u)
	}
}

func (g *GoveeAdapter) setCorrelation(deviceID, cid string) {
	if deviceID == "" || cid == "" {
		return
	}
	g.correlationMu.Lock()
	g.correlationMap[deviceID] = cid
	g.correlationMu.Unlock()
}

func (g *GoveeAdapter) consumeCorrelation(deviceID string) string {
	if deviceID == "" {
		return ""
	}
	g.correlationMu.Lock()
	cid := g.correlationMap[deviceID]
	delete(g.correlationMap, deviceID)
	g.correlationMu.Unlock()
	return cid
}

func (g *GoveeAdapter) handleHDPDeviceCommand(_ paho.Client, m paho.Message) {
	var envelope map[string]any
	if err := json.Unmarshal(m.Payload(), &envelope); err != nil {
		slog.Debug("hdp command decode failed", "topic", m.Topic(), "error", err)
		return
	}
	deviceID := adapterutil.StringField(envelope, "device_id")
	if deviceID == "" {
		deviceID = strings.TrimPrefix(m.Topic(), hdpCommandPrefix)
	}
	corr := adapterutil.StringField(envelope, "corr")
	if err := g.validator.device.Validate(envelope); err != nil {
		slog.Warn("hdp command rejected", "device_id", deviceID, "error", err)
		g.publishHDPCommandResult(deviceID, corr, false, "invalid", err.Error())
		return
	}
	dev, ok := g.resolve(deviceID)
	if !ok {
		slog.Debug("hdp command for unknown device", "device_id", deviceID)
		g.publishHDPCommandResult(deviceID, corr, false, "unknown_device", "device not managed by this adapter")
		return
	}
	command := strings.ToLower(adapterutil.StringField(envelope, "command"))
	if command == "" {
		command = "set_state"
	}
	args := map[string]any{}
	if payload, ok := envelope["args"].(map[string]any); ok {
		args = payload
	} else if payload, ok := envelope["state"].(map[string]any); ok {
		args = payload
	}

	if !g.track() {
		slog.Debug("hdp command dropped, adapter stopping", "device_id", deviceID)
		return
	}
	go func() {
		defer g.wg.Done()
		switch command {
		case "set_state":
			slog.Info("hdp command", "device_id", hdpDeviceID(dev.ID), "corr", corr, "keys", len(args))
			g.executeSetState(dev, args, corr)
		case "refresh":
			g.executeRefresh(dev, corr)
		default:
			g.publishHDPCommandResult(hdpDeviceID(dev.ID), corr, false, "unsupported", "unsupported command "+command)
		}
	}()
}

// track adds a command goroutine to the wait group unless Stop has begun.
func (g *GoveeAdapter) track() bool {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	if g.stopped {
		return false
	}
	g.wg.Add(1)
	return true
}

// executeSetState sends one control call per planned step, applying each acknowledgement to the cache.
func (g *GoveeAdapter) executeSetState(dev *translate.Device, args map[string]any, corr string) {
	deviceID := hdpDeviceID(dev.ID)
	steps, rejected := dev.Plan(args, g.cache.View(dev.ID))
	var failures []string
	for _, r := range rejected {
		slog.Warn("attribute rejected", "device_id", deviceID, "attr", r.Attr, "error", r.Err)
		failures = append(failures, r.Error())
	}
	applied := 0
	for _, step := range steps {
		ctx, cancel := context.WithTimeout(g.ctx, g.timeout())
		ack, err := g.api.Control(ctx, dev.SKU, dev.ID, step.Command)
		cancel()
		if err != nil {
			observability.ObserveCommand(commandResult(err))
			slog.Error("control call failed", "device_id", deviceID, "command", step.Command.String(), "error", err)
			g.poller.ReportError(dev.ID, err)
			failures = append(failures, fmt.Sprintf("%s: %v", step.Attr, err))
			continue
		}
		observability.ObserveCommand("ok")
		value := ack.Value
		if value.IsZero() {
			value = step.Command.Value
		}
		typ, instance := ack.Type, ack.Instance
		if typ == "" || instance == "" {
			typ, instance = step.Command.Type, step.Command.Instance
		}
		g.cache.Apply(dev.ID, typ, instance, value)
		if a, ok := step.Entity.(translate.Acknowledger); ok {
			a.Acknowledge(capability.Command{Type: typ, Instance: instance, Value: value})
		}
		applied++
	}

	if applied > 0 || (len(steps) == 0 && len(failures) == 0) {
		g.setCorrelation(deviceID, corr)
		g.publishDeviceState(dev.ID)
	}
	switch {
	case len(failures) == 0:
		g.publishHDPCommandResult(deviceID, corr, true, "applied", "")
	case applied > 0:
		g.publishHDPCommandResult(deviceID, corr, false, "partial", strings.Join(failures, "; "))
	default:
		g.publishHDPCommandResult(deviceID, corr, false, "failed", strings.Join(failures, "; "))
	}
}

func commandResult(err error) string {
	switch {
	case errors.Is(err, goveeapi.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, goveeapi.ErrRateLimited):
		return "rate_limited"
	default:
		return "error"
	}
}

func (g *GoveeAdapter) executeRefresh(dev *translate.Device, corr string) {
	deviceID := hdpDeviceID(dev.ID)
	g.setCorrelation(deviceID, corr)
	if err := g.poller.PollNow(g.ctx, dev.ID); err != nil {
		g.consumeCorrelation(deviceID)
		g.publishHDPCommandResult(deviceID, corr, false, "failed", err.Error())
		return
	}
	g.publishHDPCommandResult(deviceID, corr, true, "refreshed", "")
}

func (g *GoveeAdapter) handleAdapterCommand(_ paho.Client, m paho.Message) {
	var envelope map[string]any
	if err := json.Unmarshal(m.Payload(), &envelope); err != nil {
		slog.Debug("adapter command decode failed", "error", err)
		return
	}
	corr := adapterutil.StringField(envelope, "corr")
	if err := g.validator.adapter.Validate(envelope); err != nil {
		g.publishAdapterCommandResult(corr, false, "invalid", err.Error())
		return
	}
	command := strings.ToLower(adapterutil.StringField(envelope, "command"))
	args, _ := envelope["args"].(map[string]any)
	switch command {
	case "set_poll_interval":
		seconds, _ := adapterutil.NumericValue(args["scan_interval"])
		entryID := adapterutil.StringField(args, "entry_id")
		if err := g.SetPollInterval(entryID, time.Duration(seconds)*time.Second); err != nil {
			g.publishAdapterCommandResult(corr, false, "rejected", err.Error())
			return
		}
		g.publishAdapterCommandResult(corr, true, "applied", "")
	default:
		g.publishAdapterCommandResult(corr, false, "unsupported", "unsupported command "+command)
	}
}

// SetPollInterval changes the poll interval live. An empty entryID targets this adapter.
func (g *GoveeAdapter) SetPollInterval(entryID string, d time.Duration) error {
	if entryID != "" && entryID != g.cfg.AdapterID {
		return fmt.Errorf("%w: %q", ErrEntryMismatch, entryID)
	}
	return g.poller.SetInterval(d)
}

func (g *GoveeAdapter) PollInterval() time.Duration { return g.poller.Interval() }

// DeviceInfo is the HTTP view of one managed device.
type DeviceInfo struct {
	DeviceID string         `json:"device_id"`
	VendorID string         `json:"vendor_id"`
	SKU      string         `json:"sku"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Entities []string       `json:"entities"`
	Online   bool           `json:"online"`
	State    map[string]any `json:"state"`
}

func (g *GoveeAdapter) Devices() []DeviceInfo {
	g.mu.RLock()
	devs := make([]*translate.Device, 0, len(g.devices))
	for _, d := range g.devices {
		devs = append(devs, d)
	}
	g.mu.RUnlock()
	sort.Slice(devs, func(i, j int) bool { return devs[i].ID < devs[j].ID })
	out := make([]DeviceInfo, 0, len(devs))
	for _, d := range devs {
		online := g.cache.Available(d.ID)
		kinds := make([]string, 0, len(d.Entities))
		for _, e := range d.Entities {
			kinds = append(kinds, e.Key())
		}
		out = append(out, DeviceInfo{
			DeviceID: hdpDeviceID(d.ID),
			VendorID: d.ID,
			SKU:      d.SKU,
			Type:     d.Type,
			Name:     d.Name,
			Entities: kinds,
			Online:   online,
			State:    d.State(g.cache.View(d.ID), online),
		})
	}
	return out
}

// Diagnostics is the redacted adapter dump served to admins.
type Diagnostics struct {
	AdapterID     string                   `json:"adapter_id"`
	Version       string                   `json:"version"`
	FriendlyName  string                   `json:"friendly_name"`
	APIKey        string                   `json:"api_key"`
	PollInterval  string                   `json:"poll_interval"`
	PollerStatus  string                   `json:"poller_status"`
	ResumeAt      *time.Time               `json:"resume_at,omitempty"`
	RequestsToday int                      `json:"requests_today"`
	Devices       []DeviceInfo             `json:"devices"`
	States        map[string][]store.State `json:"states"`
}

const redacted = "**REDACTED**"

func (g *GoveeAdapter) Diagnostics() Diagnostics {
	status, resume := g.poller.Status()
	d := Diagnostics{
		AdapterID:     g.cfg.AdapterID,
		Version:       g.cfg.Version,
		FriendlyName:  g.cfg.FriendlyName,
		APIKey:        redacted,
		PollInterval:  g.poller.Interval().String(),
		PollerStatus:  status,
		RequestsToday: g.api.RequestsToday(),
		Devices:       g.Devices(),
		States:        map[string][]store.State{},
	}
	if !resume.IsZero() {
		d.ResumeAt = &resume
	}
	for _, info := range d.Devices {
		d.States[info.DeviceID] = g.cache.Snapshot(info.VendorID)
	}
	return d
}
