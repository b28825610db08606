package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheInMemoryRoundTrip(t *testing.T) {
	c := NewCache("", time.Minute)
	ctx := context.Background()

	type payload struct{ Value string }
	c.Set(ctx, "k1", payload{Value: "hello"})

	var got payload
	found := c.Get(ctx, "k1", &got)
	require.True(t, found)
	assert.Equal(t, "hello", got.Value)
}

func TestCacheMissReturnsFalse(t *testing.T) {
	c := NewCache("", time.Minute)
	var got struct{ Value string }
	assert.False(t, c.Get(context.Background(), "missing", &got))
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := NewCache("", time.Millisecond)
	ctx := context.Background()
	c.Set(ctx, "k1", "value")

	time.Sleep(5 * time.Millisecond)

	var got string
	assert.False(t, c.Get(ctx, "k1", &got))
}

func TestCacheInvalidateRemovesEntry(t *testing.T) {
	c := NewCache("", time.Minute)
	ctx := context.Background()
	c.Set(ctx, "k1", "value")
	c.Invalidate(ctx, "k1")

	var got string
	assert.False(t, c.Get(ctx, "k1", &got))
}
