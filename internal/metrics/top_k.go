package metrics

import (
	"slices"
	"sync"
)

type TopKEntry struct {
	Key   string
	Count int
	// Error bounds the overestimate carried over from an evicted key.
	Error int
}

// TopK approximates the k most frequent keys in a stream using the
// space-saving algorithm: once full, a new key evicts the least frequent one
// and inherits its count.
type TopK struct {
	mu      sync.Mutex
	k       int
	entries map[string]*TopKEntry
}

func NewTopK(k int) *TopK {
	return &TopK{
		k:       k,
		entries: make(map[string]*TopKEntry, k),
	}
}

func (t *TopK) Observe(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		entry.Count++
		return
	}

	if len(t.entries) < t.k {
		t.entries[key] = &TopKEntry{Key: key, Count: 1}
		return
	}

	var victim *TopKEntry
	for _, entry := range t.entries {
		if victim == nil || entry.Count < victim.Count {
			victim = entry
		}
	}
	delete(t.entries, victim.Key)
	t.entries[key] = &TopKEntry{Key: key, Count: victim.Count + 1, Error: victim.Count}
}

// Top returns up to n entries, most frequent first.
func (t *TopK) Top(n int) []TopKEntry {
	t.mu.Lock()
	all := make([]TopKEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		all = append(all, *entry)
	}
	t.mu.Unlock()

	slices.SortFunc(all, func(a, b TopKEntry) int {
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.Key < b.Key {
			return -1
		}
		if a.Key > b.Key {
			return 1
		}
		return 0
	})
	return all[:min(n, len(all))]
}

// Snapshot maps each of the top n keys to its guaranteed count.
func (t *TopK) Snapshot(n int) map[string]int {
	results := make(map[string]int, n)
	for _, entry := range t.Top(n) {
		results[entry.Key] = entry.Count - entry.Error
	}
	return results
}
