package govee

import (
	"sync"
	"time"
)

// DailyCounter counts requests per local calendar day.
type DailyCounter struct {
	mu    sync.Mutex
	now   func() time.Time
	day   string
	count int
}

// NewDailyCounter uses time.Now when now is nil.
func NewDailyCounter(now func() time.Time) *DailyCounter {
	if now == nil {
		now = time.Now
	}
	return &DailyCounter{now: now}
}

func (d *DailyCounter) Inc() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	today := d.now().Format(time.DateOnly)
	if today != d.day {
		d.day, d.count = today, 0
	}
	d.count++
	return d.count
}

func (d *DailyCounter) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.now().Format(time.DateOnly) != d.day {
		return 0
	}
	return d.count
}
