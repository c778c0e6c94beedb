// Copyright (C) 2025, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"
	"time"
)

// DedupKey identifies a gossip frame for the purposes of the 5-second
// suppression window in §4.3.
type DedupKey struct {
	Type            string
	Author          string
	TransactionHash string
}

// DedupWindow is a bounded sliding window over recently seen
// (type, author, transactionHash) tuples, adapted from TTLCache: same
// per-key timestamp tracking, minus the single-flight fetch semantics,
// which don't apply to a pure membership check. Entries older than the
// window are swept on every call, matching §4.3's "sliding cleanup ...
// discarded on every ingress."
type DedupWindow struct {
	mu     sync.Mutex
	seen   map[DedupKey]time.Time
	window time.Duration
	now    func() time.Time
}

// NewDedupWindow returns a window that suppresses duplicates seen within
// the given duration. §4.3 fixes this at 5 seconds for REQUEST/SIGNED
// frames; callers elsewhere may use a different duration.
func NewDedupWindow(window time.Duration) *DedupWindow {
	return NewDedupWindowWithClock(window, time.Now)
}

// NewDedupWindowWithClock is NewDedupWindow with an injectable clock,
// used by tests to exercise the window boundary deterministically.
func NewDedupWindowWithClock(window time.Duration, now func() time.Time) *DedupWindow {
	return &DedupWindow{
		seen:   make(map[DedupKey]time.Time),
		window: window,
		now:    now,
	}
}

// Seen reports whether key was already observed within the window and
// records it if not, so that a single call both tests and marks
// membership atomically.
func (d *DedupWindow) Seen(key DedupKey) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sweep(now)

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = now
	return false
}

func (d *DedupWindow) sweep(now time.Time) {
	for k, t := range d.seen {
		if now.Sub(t) >= d.window {
			delete(d.seen, k)
		}
	}
}

// Len reports the number of entries currently retained, for tests and
// metrics.
func (d *DedupWindow) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
