package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(symbol string) Key {
	return Key{Stage: "VolumeAnalysis", Symbol: symbol, Timeframe: "1h"}
}

func TestStageCacheGetSet(t *testing.T) {
	c := NewStageCache(4, time.Minute)

	_, ok := c.Get(key("AAPL"))
	assert.False(t, ok)

	c.Set(key("AAPL"), "profile")
	got, ok := c.Get(key("AAPL"))
	require.True(t, ok)
	assert.Equal(t, "profile", got)
	assert.Equal(t, 1, c.Len())

	// Same symbol, different stage is a different entry.
	other := key("AAPL")
	other.Stage = "RangeDetection"
	_, ok = c.Get(other)
	assert.False(t, ok)
}

func TestStageCacheExpiresByTTL(t *testing.T) {
	c := NewStageCache(4, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(key("AAPL"), "profile")

	now = now.Add(59 * time.Second)
	_, ok := c.Get(key("AAPL"))
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok = c.Get(key("AAPL"))
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is dropped on read")
}

func TestStageCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewStageCache(3, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(key(fmt.Sprintf("SYM%d", i)), i)
	}

	// Touch SYM0 so SYM1 becomes the eviction candidate.
	_, ok := c.Get(key("SYM0"))
	require.True(t, ok)

	c.Set(key("SYM3"), 3)
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get(key("SYM1"))
	assert.False(t, ok)
	_, ok = c.Get(key("SYM0"))
	assert.True(t, ok)
	_, ok = c.Get(key("SYM3"))
	assert.True(t, ok)
}

func TestStageCacheSetUpdatesExistingEntry(t *testing.T) {
	c := NewStageCache(2, time.Minute)

	c.Set(key("AAPL"), "old")
	c.Set(key("AAPL"), "new")

	got, ok := c.Get(key("AAPL"))
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Len())
}

func TestStageCacheDelete(t *testing.T) {
	c := NewStageCache(2, time.Minute)

	c.Set(key("AAPL"), "profile")
	c.Delete(key("AAPL"))
	c.Delete(key("AAPL")) // deleting a missing key is a no-op

	_, ok := c.Get(key("AAPL"))
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}
