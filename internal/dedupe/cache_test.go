// ABOUTME: Unit tests for the TTL dedupe cache
// ABOUTME: Covers duplicate detection, expiry, size-based eviction, and Close

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObserve_FirstSightingThenDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Observe("conv|user-1|row-1"), "first sighting should not be a duplicate")
	assert.True(t, c.Observe("conv|user-1|row-1"), "second sighting should be a duplicate")
	assert.False(t, c.Observe("conv|user-1|row-2"), "different key is a fresh sighting")
}

func TestObserve_ExpiredKeyIsFreshAgain(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Observe("key"))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Observe("key"), "expired key should read as a fresh sighting")
}

func TestObserve_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	c.Observe("a")
	c.Observe("b")
	c.Observe("c")
	// Inserting a fourth key evicts "a", the oldest.
	c.Observe("d")

	assert.False(t, c.Observe("a"), "evicted key should be a fresh sighting")
	assert.True(t, c.Observe("b"))
	assert.True(t, c.Observe("d"))
}

func TestObserve_DuplicateRefreshesRecency(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Close()

	c.Observe("a")
	c.Observe("b")
	// Touch "a" so "b" becomes the oldest.
	c.Observe("a")
	c.Observe("c")

	assert.True(t, c.Observe("a"), "refreshed key should survive eviction")
	assert.False(t, c.Observe("b"), "stale key should have been evicted")
}

func TestObserve_ExpiredKeyReusesItsSlot(t *testing.T) {
	c := New(25*time.Millisecond, 2)
	defer c.Close()

	c.Observe("a")
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Observe("a"), "expired key reads as fresh")
	c.Observe("b")

	assert.True(t, c.Observe("a"), "re-observed key must still be tracked")

	// "b" is now the oldest; inserting "c" at capacity must evict it, never
	// the freshly touched "a".
	c.Observe("c")
	assert.True(t, c.Observe("a"), "fresh key must survive the eviction")

	c.mu.Lock()
	keys, elems := len(c.keys), c.order.Len()
	c.mu.Unlock()
	assert.Equal(t, keys, elems, "key map and eviction list must stay in sync")
	assert.LessOrEqual(t, keys, 2)
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}

func TestObserve_ManyKeysStayBounded(t *testing.T) {
	c := New(time.Minute, 50)
	defer c.Close()

	for i := 0; i < 500; i++ {
		c.Observe(fmt.Sprintf("key-%d", i))
	}

	c.mu.Lock()
	size := len(c.keys)
	c.mu.Unlock()
	assert.LessOrEqual(t, size, 50)
}
