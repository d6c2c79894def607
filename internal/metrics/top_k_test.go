package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopK_ObserveWithinCapacity(t *testing.T) {
	assert := assert.New(t)

	top := NewTopK(3)
	top.Observe("com.burbn.instagram")
	top.Observe("tv.twitch")
	top.Observe("com.burbn.instagram")

	assert.Equal([]TopKEntry{
		{Key: "com.burbn.instagram", Count: 2},
		{Key: "tv.twitch", Count: 1},
	}, top.Top(10))
}

func TestTopK_EvictsLeastFrequent(t *testing.T) {
	assert := assert.New(t)

	top := NewTopK(2)
	top.Observe("a")
	top.Observe("a")
	top.Observe("b")
	top.Observe("c") // b evicted, c inherits its count

	entries := top.Top(2)
	assert.Len(entries, 2)
	assert.Equal(TopKEntry{Key: "a", Count: 2}, entries[0])
	assert.Equal(TopKEntry{Key: "c", Count: 2, Error: 1}, entries[1])

	assert.Equal(map[string]int{"a": 2, "c": 1}, top.Snapshot(2))
	assert.Len(top.Top(1), 1)
}

func TestTopK_Empty(t *testing.T) {
	assert.Empty(t, NewTopK(2).Top(5))
}

func TestTopK_Concurrency(t *testing.T) {
	assert := assert.New(t)

	top := NewTopK(10)
	keys := []string{"a", "b", "c", "d", "e"}

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			for j := range 1000 {
				top.Observe(keys[j%len(keys)])
			}
		})
	}
	wg.Wait()

	for _, entry := range top.Top(10) {
		assert.Equal(10_000, entry.Count, entry.Key)
		assert.Zero(entry.Error, entry.Key)
	}
}
