// Package ledger records when a hazard was last announced so repeat
// notifications inside a suppression window can be skipped.
package ledger

import (
	"fmt"
	"sync"
	"time"
)

// Pathway separates the keyspaces of the two alerting pathways.
type Pathway string

const (
	PathwayScan      Pathway = "scan"
	PathwayThreshold Pathway = "threshold"
)

// Key identifies one suppression entry. The hourly scan leaves Kind empty
// because it suppresses a location as a whole.
type Key struct {
	Pathway  Pathway
	Location string
	Kind     string
	Subject  string // optional, e.g. the user id for per-user entries
}

func (k Key) String() string {
	s := fmt.Sprintf("%s:%s", k.Pathway, k.Location)
	if k.Kind != "" {
		s += ":" + k.Kind
	}
	if k.Subject != "" {
		s += "@" + k.Subject
	}
	return s
}

// Ledger is an in-memory suppression ledger guarded by per-key locks.
// The zero value is not usable; call New.
type Ledger struct {
	mu      sync.Mutex
	entries map[Key]time.Time
	locks   map[Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[Key]time.Time),
		locks:   make(map[Key]*keyLock),
	}
}

// ShouldSuppress reports whether key was recorded less than window before now.
func (l *Ledger) ShouldSuppress(key Key, now time.Time, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.suppressedLocked(key, now, window)
}

// Record stores now as the last dispatch time for key.
func (l *Ledger) Record(key Key, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = now
}

// TryAcquire atomically checks and records key. It returns true when the
// caller may dispatch; a concurrent caller for the same key gets false.
func (l *Ledger) TryAcquire(key Key, now time.Time, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.suppressedLocked(key, now, window) {
		return false
	}
	l.entries[key] = now
	return true
}

// Release forgets key if it still holds the time recorded by TryAcquire.
// Used when a claimed dispatch was abandoned before anything was sent.
func (l *Ledger) Release(key Key, recordedAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.entries[key]; ok && t.Equal(recordedAt) {
		delete(l.entries, key)
	}
}

// Lock serializes work for one key and returns the matching unlock func.
// Locks for different keys never block each other.
func (l *Ledger) Lock(key Key) func() {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Prune drops entries older than maxAge and returns how many were removed.
func (l *Ledger) Prune(now time.Time, maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for k, t := range l.entries {
		if now.Sub(t) >= maxAge {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Ledger) suppressedLocked(key Key, now time.Time, window time.Duration) bool {
	last, ok := l.entries[key]
	if !ok {
		return false
	}
	return now.Sub(last) < window
}
