package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock(t *testing.T) {
	c := NewSystem()
	start := c.Now()
	c.Sleep(5 * time.Millisecond)
	assert.True(t, c.Since(start) >= 5*time.Millisecond)
}

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)
	assert.Equal(t, start, m.Now())

	m.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), m.Now())
	assert.Equal(t, time.Hour, m.Since(start))
}

func TestMockClockAfter(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	ch := m.After(10 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired before deadline")
	default:
	}

	m.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("waiter fired early")
	default:
	}

	m.Advance(5 * time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, start.Add(10*time.Second), fired)
	default:
		t.Fatal("waiter did not fire at deadline")
	}
}

func TestMockClockAfterAlreadyDue(t *testing.T) {
	m := NewMock(time.Now())
	ch := m.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("zero-delay waiter should fire immediately")
	}
}
