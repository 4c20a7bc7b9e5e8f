// Package dedupe decides whether a sighting becomes a new attendance record
// or a re-verification of an existing one.
package dedupe

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

// Anchor controls how the window interacts with calendar days.
type Anchor string

const (
	// AnchorSameDay reverifies only while inside the window and on the same date.
	AnchorSameDay Anchor = "same-calendar-day"
	// AnchorRolling reverifies while inside the window regardless of date.
	AnchorRolling Anchor = "rolling"
)

// Decision is the outcome of consulting the cache.
type Decision int

const (
	// Allow means a new record must be appended.
	Allow Decision = iota
	// Reverify means the person was already marked inside the window.
	Reverify
)

func (d Decision) String() string {
	if d == Reverify {
		return "reverify"
	}
	return "allow"
}

// ErrNilCommit is returned by Mark when no commit function is given.
var ErrNilCommit = errors.New("dedupe: nil commit")

// Policy is the window rule applied by the cache.
type Policy struct {
	Window time.Duration
	Anchor Anchor
}

// Decide applies the policy to the previous entry, if any.
func (p Policy) Decide(prev model.CacheEntry, found bool, now time.Time) Decision {
	if !found {
		return Allow
	}
	if p.Anchor != AnchorRolling && prev.LastMarkedDate != now.Format(model.DateLayout) {
		return Allow
	}
	if now.Sub(prev.LastMarkedAt) >= p.Window {
		return Allow
	}
	return Reverify
}

// Cache is the per-person record of the last successful mark.
//
// Mark is linearizable per person: the decision, the durable commit and the
// entry update happen under one per-person lock. Different people never share
// a lock.
type Cache struct {
	policy Policy

	mu      sync.RWMutex
	entries map[int]model.CacheEntry
	locks   map[int]*sync.Mutex
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		policy:  Policy{Window: time.Hour, Anchor: AnchorSameDay},
		entries: make(map[int]model.CacheEntry),
		locks:   make(map[int]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the active policy.
func (c *Cache) Policy() Policy {
	return c.policy
}

// Decide reports what Mark would do right now without changing anything.
func (c *Cache) Decide(personID int, now time.Time) Decision {
	prev, ok := c.Get(personID)
	return c.policy.Decide(prev, ok, now)
}

// Mark decides for personID at now. On Allow it runs commit and records the
// entry only if commit succeeds. A commit error is returned as is and the
// entry is left untouched.
func (c *Cache) Mark(ctx context.Context, personID int, now time.Time, commit func(context.Context) error) (Decision, error) {
	if commit == nil {
		return Allow, ErrNilCommit
	}
	lock := c.lockFor(personID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return Allow, err
	}

	prev, ok := c.Get(personID)
	if c.policy.Decide(prev, ok, now) == Reverify {
		return Reverify, nil
	}
	if err := commit(ctx); err != nil {
		return Allow, err
	}

	c.mu.Lock()
	c.entries[personID] = model.NewCacheEntry(personID, now)
	c.mu.Unlock()
	return Allow, nil
}

// Seed upserts an entry. Used while replaying stored records; a later record
// for the same person overwrites an earlier one.
func (c *Cache) Seed(entry model.CacheEntry) {
	c.mu.Lock()
	c.entries[entry.PersonID] = entry
	c.mu.Unlock()
}

// Get returns the entry for personID.
func (c *Cache) Get(personID int) (model.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[personID]
	return e, ok
}

// Snapshot returns all entries ordered by person id.
func (c *Cache) Snapshot() []model.CacheEntry {
	c.mu.RLock()
	out := make([]model.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].PersonID < out[j].PersonID })
	return out
}

// Size returns the number of people with an entry.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lockFor(personID int) *sync.Mutex {
	c.mu.RLock()
	l, ok := c.locks[personID]
	c.mu.RUnlock()
	if ok {
		return l
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok = c.locks[personID]; !ok {
		l = &sync.Mutex{}
		c.locks[personID] = l
	}
	return l
}
