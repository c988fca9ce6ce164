// Package ledger tracks which posts have already been notified per account.
package ledger

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ppiankov/feedwatch/internal/feed"
)

// MaxSeen bounds the ids kept per handle. Eviction is FIFO by insertion
// order, not by the post's own timestamp.
const MaxSeen = 100

// Entry is the persisted state for one handle.
type Entry struct {
	SeenIDs   []string
	LastCheck time.Time
}

// Ledger holds entries for every handle checked so far. Entries are created
// lazily and are never removed.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func New() *Ledger {
	return &Ledger{entries: make(map[string]Entry)}
}

// FilterNew returns the posts whose id is not yet recorded for handle, in
// their original order, and records them. Duplicate ids within posts are
// reported once. The stored ids are trimmed to the newest MaxSeen and the
// handle's LastCheck is set to now even when nothing is new.
func (l *Ledger) FilterNew(handle string, posts []feed.Post, now time.Time) []feed.Post {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.entries[handle]
	ids := slices.Clone(entry.SeenIDs)

	seen := make(map[string]struct{}, len(ids)+len(posts))
	for _, id := range ids {
		seen[id] = struct{}{}
	}

	var fresh []feed.Post
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
		fresh = append(fresh, p)
	}

	l.entries[handle] = Entry{
		SeenIDs:   trim(ids),
		LastCheck: now,
	}

	return fresh
}

// Entry returns a copy of the state for handle.
func (l *Ledger) Entry(handle string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[handle]
	if !ok {
		return Entry{}, false
	}
	return Entry{SeenIDs: slices.Clone(e.SeenIDs), LastCheck: e.LastCheck}, true
}

// Set replaces the state for handle, applying the same bound as FilterNew.
func (l *Ledger) Set(handle string, e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[handle] = Entry{SeenIDs: trim(slices.Clone(e.SeenIDs)), LastCheck: e.LastCheck}
}

// Handles lists known handles in sorted order.
func (l *Ledger) Handles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	handles := make([]string, 0, len(l.entries))
	for h := range l.entries {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles
}

func trim(ids []string) []string {
	if len(ids) <= MaxSeen {
		return ids
	}
	return slices.Clone(ids[len(ids)-MaxSeen:])
}
