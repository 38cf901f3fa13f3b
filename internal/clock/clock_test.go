// ABOUTME: Tests for clock implementations
// ABOUTME: Verifies the fake clock only moves when told to
package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	assert.Equal(t, start, fake.Now())
	assert.Equal(t, start.Add(3*time.Second), fake.Advance(3*time.Second))
	assert.Equal(t, start.Add(3*time.Second), fake.Now())

	jump := start.Add(-time.Hour)
	fake.Set(jump)
	assert.Equal(t, jump, fake.Now())
}

func TestSystemClockMoves(t *testing.T) {
	var c Clock = System{}
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before))
}
