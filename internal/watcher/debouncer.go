// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package watcher

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of filesystem events for the same path into
// a single callback invocation once no further event arrives for delay.
type Debouncer struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	Callback func(string)
	delay    time.Duration
}

// NewDebouncer creates a debouncer with the given delay and callback.
func NewDebouncer(delay time.Duration, callback func(string)) *Debouncer {
	return &Debouncer{
		timers:   make(map[string]*time.Timer),
		Callback: callback,
		delay:    delay,
	}
}

// Trigger (re)schedules the callback for filePath, delay from now.
func (d *Debouncer) Trigger(filePath string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[filePath]; exists {
		timer.Stop()
	}

	d.timers[filePath] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, filePath)
		callback := d.Callback
		d.mu.Unlock()

		if callback != nil {
			callback(filePath)
		}
	})
}

// Cancel stops any pending timer for filePath.
func (d *Debouncer) Cancel(filePath string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[filePath]; exists {
		timer.Stop()
		delete(d.timers, filePath)
	}
}

// Stop cancels every pending timer.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, timer := range d.timers {
		timer.Stop()
	}
	d.timers = make(map[string]*time.Timer)
}
