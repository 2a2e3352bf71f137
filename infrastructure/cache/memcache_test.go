package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCache_SetGetExpires(t *testing.T) {
	c := NewMemCache(0)
	defer c.Close()

	c.Set("user:alice", true, 30*time.Millisecond)
	c.Set("forever", "x", 0)

	v, ok := c.Get("user:alice")
	require.True(t, ok)
	assert.Equal(t, true, v)

	time.Sleep(50 * time.Millisecond)
	_, ok = c.Get("user:alice")
	assert.False(t, ok)

	v, ok = c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestMemCache_IncrementWindow(t *testing.T) {
	c := NewMemCache(10 * time.Millisecond)
	defer c.Close()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Increment("rl:1.2.3.4", 1, 40*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	time.Sleep(60 * time.Millisecond)
	n, err := c.Increment("rl:1.2.3.4", 1, 40*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a new window starts after expiry")
}

func TestMemCache_IncrementConcurrent(t *testing.T) {
	c := NewMemCache(0)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Increment("counter", 1, time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, ok := c.Get("counter")
	require.True(t, ok)
	assert.Equal(t, int64(100), v)
}

func TestMemCache_IncrementNonInteger(t *testing.T) {
	c := NewMemCache(0)
	defer c.Close()

	c.Set("name", "alice", 0)
	_, err := c.Increment("name", 1, 0)
	assert.ErrorIs(t, err, ErrNotInteger)
}

func TestMemCache_CleanupMarksRemovedItems(t *testing.T) {
	c := NewMemCache(0)
	defer c.Close()

	_, err := c.Increment("rl:old", 5, time.Nanosecond)
	require.NoError(t, err)
	v, ok := c.items.Load("rl:old")
	require.True(t, ok)
	held := v.(*item)

	time.Sleep(time.Millisecond)
	c.cleanup()

	assert.True(t, held.deleted)
	n, err := c.Increment("rl:old", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = c.Increment("rl:old", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemCache_IncrementRacingCleanupKeepsCount(t *testing.T) {
	c := NewMemCache(0)
	defer c.Close()

	for round := 0; round < 200; round++ {
		key := fmt.Sprintf("rl:%d", round)
		_, err := c.Increment(key, 1, time.Nanosecond)
		require.NoError(t, err)
		time.Sleep(time.Microsecond)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.cleanup()
		}()
		_, err = c.Increment(key, 1, time.Minute)
		require.NoError(t, err)
		wg.Wait()

		n, err := c.Increment(key, 1, time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(2), n, "round %d lost an increment", round)
	}
}
