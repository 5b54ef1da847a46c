package teamcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheRoundTrip(t *testing.T) {
	c := New(time.Minute)

	_, found := c.Get("stages", "team-1")
	assert.False(t, found, "Empty cache should miss")

	c.Set("stages", "team-1", []string{"early", "legal"})
	v, found := c.Get("stages", "team-1")
	assert.True(t, found)
	assert.Equal(t, []string{"early", "legal"}, v)

	// Regions are independent per team.
	_, found = c.Get("rules", "team-1")
	assert.False(t, found)
	_, found = c.Get("stages", "team-2")
	assert.False(t, found)
}

func TestCacheInvalidate(t *testing.T) {
	c := New(time.Minute)
	c.Set("rules", "team-1", 42)

	c.Invalidate("rules", "team-1")
	_, found := c.Get("rules", "team-1")
	assert.False(t, found, "Invalidated entry should miss")
}

func TestCacheExpiry(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Set("stages", "team-1", "v")

	time.Sleep(30 * time.Millisecond)
	_, found := c.Get("stages", "team-1")
	assert.False(t, found, "Expired entry should miss")
}
