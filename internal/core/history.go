package core

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrImportNotFound is returned when an import id is unknown or has expired.
var ErrImportNotFound = errors.New("import not found")

// DefaultResultTTL is how long outcomes are retained when no TTL is given.
const DefaultResultTTL = time.Hour

// ImportHistory keeps recent import outcomes in memory so they can be fetched
// by id after the request that produced them has returned.
type ImportHistory struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]historyEntry
	ttl     time.Duration
	now     func() time.Time

	// OnEvict, if set, is called for each outcome removed by Prune.
	// It runs without the history lock held.
	OnEvict func(*Outcome)
}

type historyEntry struct {
	outcome *Outcome
	expires time.Time
}

// NewImportHistory creates an empty history whose entries live for ttl.
func NewImportHistory(ttl time.Duration) *ImportHistory {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ImportHistory{
		entries: make(map[uuid.UUID]historyEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Record stores out under its ImportID, replacing any previous entry.
func (h *ImportHistory) Record(out *Outcome) {
	if out == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[out.ImportID] = historyEntry{outcome: out, expires: h.now().Add(h.ttl)}
}

// Get returns the outcome for id, or ErrImportNotFound.
func (h *ImportHistory) Get(id uuid.UUID) (*Outcome, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	e, ok := h.entries[id]
	if !ok || !h.now().Before(e.expires) {
		return nil, ErrImportNotFound
	}
	return e.outcome, nil
}

// Recent returns up to limit live outcomes, newest first.
// A limit <= 0 returns all of them.
func (h *ImportHistory) Recent(limit int) []*Outcome {
	h.mu.RLock()
	now := h.now()
	out := make([]*Outcome, 0, len(h.entries))
	for _, e := range h.entries {
		if now.Before(e.expires) {
			out = append(out, e.outcome)
		}
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored entries, expired or not.
func (h *ImportHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Prune removes expired entries and returns how many were removed.
func (h *ImportHistory) Prune() int {
	h.mu.Lock()
	now := h.now()
	var evicted []*Outcome
	for id, e := range h.entries {
		if !now.Before(e.expires) {
			evicted = append(evicted, e.outcome)
			delete(h.entries, id)
		}
	}
	h.mu.Unlock()

	if h.OnEvict != nil {
		for _, out := range evicted {
			h.OnEvict(out)
		}
	}
	return len(evicted)
}
