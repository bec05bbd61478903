package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(r float64, burst int, ttl time.Duration) (*KeyedLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewKeyedLimiter(r, burst, ttl)
	l.now = clock.now
	return l, clock
}

func TestKeyedLimiter_BurstThenReject(t *testing.T) {
	l, _ := newTestLimiter(1, 2, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestKeyedLimiter_Refills(t *testing.T) {
	l, clock := newTestLimiter(1, 1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	clock.advance(time.Second)
	assert.True(t, l.Allow("a"))
}

func TestKeyedLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1, time.Minute)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))
}

func TestKeyedLimiter_DropsIdleKeys(t *testing.T) {
	l, clock := newTestLimiter(1, 1, time.Minute)

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	clock.advance(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}
