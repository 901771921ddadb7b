// Package debounce coalesces bursts of signals per key into one flush.
package debounce

import (
	"sync"
	"time"
)

type Options struct {
	Delay   time.Duration
	OnFlush func(key string)
}

type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	onFlush func(string)
	pending map[string]*time.Timer
}

func New(opts Options) *Debouncer {
	delay := opts.Delay
	if delay <= 0 {
		delay = 1200 * time.Millisecond
	}

	return &Debouncer{
		delay:   delay,
		onFlush: opts.OnFlush,
		pending: make(map[string]*time.Timer),
	}
}

// Add schedules a flush for key, pushing back any flush already pending.
func (d *Debouncer) Add(key string) {
	if key == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[key]; ok {
		t.Stop()
	}
	d.pending[key] = time.AfterFunc(d.delay, func() {
		d.flush(key)
	})
}

// Cancel drops a pending flush for key.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.pending[key]; ok {
		t.Stop()
		delete(d.pending, key)
	}
}

func (d *Debouncer) flush(key string) {
	d.mu.Lock()
	if _, ok := d.pending[key]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	onFlush := d.onFlush
	d.mu.Unlock()

	if onFlush != nil {
		onFlush(key)
	}
}
