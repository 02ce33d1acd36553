package scanner

import (
	"sync"
	"time"
)

// Tracker remembers which items were already surfaced so repeated scans
// only deliver new ones. An item resurfaces when its timestamp changes.
type Tracker struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{seen: map[string]time.Time{}}
}

// Fresh returns the items not yet surfaced and records them. Items absent
// from the scan are forgotten.
func (t *Tracker) Fresh(items []DueItem) []DueItem {
	t.mu.Lock()
	defer t.mu.Unlock()

	present := make(map[string]struct{}, len(items))
	var out []DueItem
	for _, it := range items {
		present[it.ActivityID] = struct{}{}
		if at, ok := t.seen[it.ActivityID]; ok && at.Equal(it.At) {
			continue
		}
		t.seen[it.ActivityID] = it.At
		out = append(out, it)
	}
	for id := range t.seen {
		if _, ok := present[id]; !ok {
			delete(t.seen, id)
		}
	}
	return out
}

// Forget drops id so its next scan surfaces it again.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.seen, id)
	t.mu.Unlock()
}
