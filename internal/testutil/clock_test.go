package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func TestFakeClock_Frozen(t *testing.T) {
	c := NewFakeClock(start)
	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "time does not move on its own")
}

func TestFakeClock_AdvanceSetReset(t *testing.T) {
	c := NewFakeClock(start)

	assert.Equal(t, start.Add(30*time.Second), c.Advance(30*time.Second))
	assert.Equal(t, start.Add(30*time.Second), c.Now())

	target := start.Add(24 * time.Hour)
	c.Set(target)
	assert.Equal(t, target, c.Now())

	c.Reset()
	assert.Equal(t, start, c.Now())
}

func TestFakeClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("X", 3*3600)
	c := NewFakeClock(start.In(loc))
	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, start.Equal(c.Now()))
}

func TestFakeClock_ThreadSafe(t *testing.T) {
	c := NewFakeClock(start)
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
			_ = c.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(goroutines*time.Second), c.Now())
}
