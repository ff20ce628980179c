package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/govee"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/observability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/store"
)

const (
	StatusOnline      = "online"
	StatusRateLimited = "rate_limited"
	StatusAuthFailed  = "auth_failed"

	DefaultInterval = 60 * time.Second
	DefaultCooldown = time.Hour
)

var (
	ErrPaused        = errors.New("polling paused")
	ErrUnknownDevice = errors.New("unknown device")
	ErrInterval      = errors.New("poll interval must be positive")
)

// StateFetcher is the part of the vendor client the poller needs.
type StateFetcher interface {
	DeviceState(ctx context.Context, sku, device string) ([]govee.CapabilityState, error)
}

// Target is one polled vendor device.
type Target struct {
	ID  string
	SKU string
}

type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Cooldown time.Duration
	// OnUpdate runs after a successful poll replaced the device cache.
	OnUpdate func(deviceID string)
	// OnStatus runs when the poller changes between online, rate_limited and auth_failed.
	OnStatus func(status string, err error)
	Now      func() time.Time
}

// Poller refreshes the state cache of every device on a fixed interval.
type Poller struct {
	client StateFetcher
	cache  *store.Cache
	opts   Options

	mu       sync.Mutex
	cron     *cron.Cron
	interval time.Duration
	targets  map[string]Target
	entries  map[string]cron.EntryID
	locks    map[string]*sync.Mutex
	status   string
	resumeAt time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(client StateFetcher, cache *store.Cache, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = govee.DefaultTimeout
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		client:   client,
		cache:    cache,
		opts:     opts,
		interval: opts.Interval,
		targets:  map[string]Target{},
		entries:  map[string]cron.EntryID{},
		locks:    map[string]*sync.Mutex{},
		status:   StatusOnline,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register makes targets known to PollNow without scheduling them.
func (p *Poller) Register(targets []Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerLocked(targets)
}

func (p *Poller) registerLocked(targets []Target) {
	for _, t := range targets {
		p.targets[t.ID] = t
		if _, ok := p.locks[t.ID]; !ok {
			p.locks[t.ID] = &sync.Mutex{}
		}
	}
}

// Start registers targets and schedules every known device.
func (p *Poller) Start(targets []Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registerLocked(targets)
	p.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{})))
	p.scheduleLocked()
	p.cron.Start()
	slog.Info("poller started", "devices", len(p.targets), "interval", p.interval)
}

func (p *Poller) scheduleLocked() {
	for id, entry := range p.entries {
		p.cron.Remove(entry)
		delete(p.entries, id)
	}
	spec := "@every " + p.interval.String()
	for id := range p.targets {
		deviceID := id
		entry, err := p.cron.AddFunc(spec, func() { _ = p.poll(p.ctx, deviceID) })
		if err != nil {
			slog.Error("poll schedule failed", "device", deviceID, "spec", spec, "error", err)
			continue
		}
		p.entries[deviceID] = entry
	}
}

// SetInterval reschedules every device with a new interval.
func (p *Poller) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %v", ErrInterval, d)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interval = d
	if p.cron != nil {
		p.scheduleLocked()
	}
	slog.Info("poll interval changed", "interval", d)
	return nil
}

func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Status returns the poller status and, while rate limited, when polling resumes.
func (p *Poller) Status() (string, time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.resumeAt
}

// PollNow polls one device immediately.
func (p *Poller) PollNow(ctx context.Context, deviceID string) error {
	return p.poll(ctx, deviceID)
}

// Stop cancels in-flight polls and waits for running jobs.
func (p *Poller) Stop() {
	p.cancel()
	p.mu.Lock()
	c := p.cron
	p.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func (p *Poller) paused() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.status {
	case StatusAuthFailed:
		return fmt.Errorf("%w: %s", ErrPaused, StatusAuthFailed)
	case StatusRateLimited:
		if p.opts.Now().Before(p.resumeAt) {
			return fmt.Errorf("%w: %s until %s", ErrPaused, StatusRateLimited, p.resumeAt.Format(time.RFC3339))
		}
	}
	return nil
}

func (p *Poller) poll(ctx context.Context, deviceID string) error {
	p.mu.Lock()
	target, ok := p.targets[deviceID]
	lock := p.locks[deviceID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if err := p.paused(); err != nil {
		observability.ObservePoll("skipped")
		slog.Debug("poll skipped", "device", deviceID, "reason", err)
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	ctx, span := observability.StartSpan(ctx, "poll device", attribute.String("device", deviceID), attribute.String("sku", target.SKU))
	token := p.cache.Begin()
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()
	raw, err := p.client.DeviceState(reqCtx, target.SKU, target.ID)
	observability.EndSpan(span, err)
	if err != nil {
		p.fail(deviceID, err)
		return err
	}
	states := make([]store.State, 0, len(raw))
	for _, cs := range raw {
		v, err := capability.ParseState(cs.State, cs.Instance)
		if err != nil {
			slog.Warn("capability state skipped", "device", deviceID, "type", cs.Type, "instance", cs.Instance, "error", err)
			continue
		}
		states = append(states, store.State{Type: cs.Type, Instance: cs.Instance, Value: v})
	}
	p.cache.ReplaceAll(deviceID, states, token)
	observability.ObservePoll("ok")
	p.setStatus(StatusOnline, time.Time{}, nil)
	if p.opts.OnUpdate != nil {
		p.opts.OnUpdate(deviceID)
	}
	return nil
}

func (p *Poller) fail(deviceID string, err error) {
	switch {
	case errors.Is(err, govee.ErrUnauthorized):
		observability.ObservePoll("unauthorized")
	case errors.Is(err, govee.ErrRateLimited):
		observability.ObservePoll("rate_limited")
	default:
		observability.ObservePoll("error")
		slog.Warn("poll failed", "device", deviceID, "error", err)
		return
	}
	p.ReportError(deviceID, err)
}

// ReportError applies the pause policy to a vendor error seen outside a poll, such as a control call.
// Errors other than 401 and 429 are ignored.
func (p *Poller) ReportError(deviceID string, err error) {
	switch {
	case errors.Is(err, govee.ErrUnauthorized):
		slog.Error("polling paused, API key rejected", "device", deviceID, "error", err)
		p.setStatus(StatusAuthFailed, time.Time{}, err)
	case errors.Is(err, govee.ErrRateLimited):
		resume := p.opts.Now().Add(p.opts.Cooldown)
		slog.Error("polling suspended, rate limited", "device", deviceID, "resume_at", resume, "error", err)
		p.setStatus(StatusRateLimited, resume, err)
	}
}

func (p *Poller) setStatus(status string, resumeAt time.Time, err error) {
	p.mu.Lock()
	if p.status == StatusAuthFailed && status != StatusAuthFailed {
		p.mu.Unlock()
		return
	}
	changed := p.status != status
	p.status, p.resumeAt = status, resumeAt
	p.mu.Unlock()
	if changed && p.opts.OnStatus != nil {
		p.opts.OnStatus(status, err)
	}
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
