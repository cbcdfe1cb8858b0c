/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package wol

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupeWindow is how long a MAC stays suppressed after it was reported.
// Senders usually fire several copies of the same packet in a short burst.
const DefaultDedupeWindow = 2 * time.Second

// Deduper suppresses repeated reports of the same MAC within a time window.
type Deduper struct {
	mu     sync.Mutex
	seen   map[MACAddress]time.Time
	window time.Duration
	now    func() time.Time
}

// NewDeduper creates a deduper. A window <= 0 disables deduplication.
func NewDeduper(window time.Duration) *Deduper {
	return &Deduper{
		seen:   make(map[MACAddress]time.Time),
		window: window,
		now:    time.Now,
	}
}

// Allow reports whether mac should be processed, recording it if so.
func (d *Deduper) Allow(mac MACAddress) bool {
	if d.window <= 0 {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, exists := d.seen[mac]; exists && now.Sub(lastSeen) < d.window {
		return false
	}

	d.seen[mac] = now
	return true
}

// Prune drops entries older than three windows and returns how many remain.
func (d *Deduper) Prune() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for mac, lastSeen := range d.seen {
		if now.Sub(lastSeen) > d.window*3 {
			delete(d.seen, mac)
		}
	}
	return len(d.seen)
}

// Len returns the number of tracked MACs.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Run prunes the cache every interval until ctx is done.
func (d *Deduper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Prune()
		}
	}
}
