package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/govee"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/store"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	err    error
	states []govee.CapabilityState
}

func (f *fakeFetcher) DeviceState(ctx context.Context, sku, device string) ([]govee.CapabilityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.states, nil
}

func (f *fakeFetcher) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func onlineStates() []govee.CapabilityState {
	return []govee.CapabilityState{
		{Type: capability.TypeOnline, Instance: capability.InstanceOnline, State: json.RawMessage(`{"value":true}`)},
		{Type: capability.TypeOnOff, Instance: capability.InstancePowerSwitch, State: json.RawMessage(`{"value":1}`)},
		{Type: capability.TypeRange, Instance: capability.InstanceBrightness, State: json.RawMessage(`{"value":[1,2]}`)},
	}
}

func TestPollReplacesCacheAndSkipsMalformed(t *testing.T) {
	cache := store.NewCache()
	f := &fakeFetcher{states: onlineStates()}
	var updated []string
	p := New(f, cache, Options{OnUpdate: func(id string) { updated = append(updated, id) }})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}})
	defer p.Stop()

	if err := p.PollNow(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !cache.Available("AA:BB") {
		t.Fatalf("device must be available after poll")
	}
	if _, ok := cache.Get("AA:BB", capability.TypeRange, capability.InstanceBrightness); ok {
		t.Fatalf("array state must be skipped")
	}
	if len(updated) != 1 || updated[0] != "AA:BB" {
		t.Fatalf("expected one update callback, got %v", updated)
	}
	if err := p.PollNow(context.Background(), "nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected unknown device, got %v", err)
	}
}

func TestUnauthorizedPausesPolling(t *testing.T) {
	f := &fakeFetcher{err: govee.ErrUnauthorized}
	var statuses []string
	p := New(f, store.NewCache(), Options{OnStatus: func(s string, _ error) { statuses = append(statuses, s) }})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}})
	defer p.Stop()

	if err := p.PollNow(context.Background(), "AA:BB"); !errors.Is(err, govee.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	f.set(nil)
	if err := p.PollNow(context.Background(), "AA:BB"); !errors.Is(err, ErrPaused) {
		t.Fatalf("polling must stay paused after 401, got %v", err)
	}
	if f.calls != 1 {
		t.Fatalf("paused poller must not call the API, got %d calls", f.calls)
	}
	if st, _ := p.Status(); st != StatusAuthFailed || len(statuses) != 1 {
		t.Fatalf("unexpected status %s %v", st, statuses)
	}
}

func TestRateLimitSuspendsUntilCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	f := &fakeFetcher{err: govee.ErrRateLimited, states: onlineStates()}
	var statuses []string
	p := New(f, store.NewCache(), Options{
		Cooldown: time.Hour,
		Now:      func() time.Time { return now },
		OnStatus: func(s string, _ error) { statuses = append(statuses, s) },
	})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}})
	defer p.Stop()

	_ = p.PollNow(context.Background(), "AA:BB")
	f.set(nil)
	now = now.Add(30 * time.Minute)
	if err := p.PollNow(context.Background(), "AA:BB"); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected suspension during cooldown, got %v", err)
	}
	now = now.Add(31 * time.Minute)
	if err := p.PollNow(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("polling must resume after cooldown: %v", err)
	}
	if len(statuses) != 2 || statuses[0] != StatusRateLimited || statuses[1] != StatusOnline {
		t.Fatalf("unexpected status transitions %v", statuses)
	}
}

func TestTransportErrorKeepsPolling(t *testing.T) {
	f := &fakeFetcher{err: errors.New("connection refused")}
	p := New(f, store.NewCache(), Options{})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}})
	defer p.Stop()
	_ = p.PollNow(context.Background(), "AA:BB")
	f.set(nil)
	if err := p.PollNow(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("transport errors must not pause polling: %v", err)
	}
}

func TestSetIntervalReschedules(t *testing.T) {
	f := &fakeFetcher{states: onlineStates()}
	p := New(f, store.NewCache(), Options{Interval: time.Hour})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}, {ID: "CC:DD", SKU: "H7126"}})
	defer p.Stop()

	if err := p.SetInterval(0); !errors.Is(err, ErrInterval) {
		t.Fatalf("expected invalid interval, got %v", err)
	}
	if err := p.SetInterval(30 * time.Second); err != nil {
		t.Fatalf("set interval: %v", err)
	}
	if p.Interval() != 30*time.Second {
		t.Fatalf("interval not updated")
	}
	p.mu.Lock()
	entries := len(p.entries)
	n := len(p.cron.Entries())
	p.mu.Unlock()
	if entries != 2 || n != 2 {
		t.Fatalf("expected 2 schedules after reschedule, got %d/%d", entries, n)
	}
}

func TestRegisteredTargetPollsBeforeStart(t *testing.T) {
	cache := store.NewCache()
	p := New(&fakeFetcher{states: onlineStates()}, cache, Options{Interval: time.Hour})
	defer p.Stop()

	p.Register([]Target{{ID: "AA:BB", SKU: "H6008"}})
	if err := p.PollNow(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("registered device must poll before scheduling: %v", err)
	}
	if !cache.Available("AA:BB") {
		t.Fatalf("cache must be filled by the first poll")
	}
	p.Start(nil)
	p.mu.Lock()
	entries := len(p.entries)
	p.mu.Unlock()
	if entries != 1 {
		t.Fatalf("registered device must be scheduled on start, got %d entries", entries)
	}
}

func TestReportErrorAppliesPausePolicy(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := New(&fakeFetcher{states: onlineStates()}, store.NewCache(), Options{
		Cooldown: time.Hour,
		Now:      func() time.Time { return now },
	})
	p.Start([]Target{{ID: "AA:BB", SKU: "H6008"}})
	defer p.Stop()

	p.ReportError("AA:BB", errors.New("timeout"))
	if status, _ := p.Status(); status != StatusOnline {
		t.Fatalf("transport errors must not change status, got %s", status)
	}
	p.ReportError("AA:BB", govee.ErrRateLimited)
	status, resume := p.Status()
	if status != StatusRateLimited || !resume.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected rate limit until %v, got %s %v", now.Add(time.Hour), status, resume)
	}
	if err := p.PollNow(context.Background(), "AA:BB"); !errors.Is(err, ErrPaused) {
		t.Fatalf("polls must be suspended after a rate-limited control call, got %v", err)
	}
	p.ReportError("AA:BB", govee.ErrUnauthorized)
	if status, _ := p.Status(); status != StatusAuthFailed {
		t.Fatalf("expected auth_failed, got %s", status)
	}
}
