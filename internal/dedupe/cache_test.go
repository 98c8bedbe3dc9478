// ABOUTME: Tests for the TTL dedupe cache
// ABOUTME: Covers mark/duplicate detection, expiry, forget, and capacity eviction

package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstSeenIsNotDuplicate(t *testing.T) {
	c := New(time.Minute, 10)

	assert.False(t, c.CheckAndMark("alice"))
	assert.True(t, c.CheckAndMark("alice"))
}

func TestCache_KeysAreIndependent(t *testing.T) {
	c := New(time.Minute, 10)

	assert.False(t, c.CheckAndMark("alice"))
	assert.False(t, c.CheckAndMark("bob"))
	assert.True(t, c.CheckAndMark("alice"))
}

func TestCache_ExpiryAllowsReuse(t *testing.T) {
	c := New(30*time.Millisecond, 10)

	assert.False(t, c.CheckAndMark("alice"))
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.CheckAndMark("alice"), "expired key should count as new")
}

func TestCache_ForgetAllowsReuse(t *testing.T) {
	c := New(time.Minute, 10)

	assert.False(t, c.CheckAndMark("alice"))
	c.Forget("alice")
	assert.False(t, c.CheckAndMark("alice"))
}

func TestCache_CapacityEvictsOldest(t *testing.T) {
	c := New(time.Minute, 2)

	assert.False(t, c.CheckAndMark("first"))
	time.Sleep(time.Millisecond)
	assert.False(t, c.CheckAndMark("second"))
	time.Sleep(time.Millisecond)
	assert.False(t, c.CheckAndMark("third"))

	// "first" was the oldest and should have been evicted
	assert.False(t, c.CheckAndMark("first"))
	assert.True(t, c.CheckAndMark("third"), "recent keys survive eviction")
}
