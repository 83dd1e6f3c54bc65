package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	c := NewFake(1000)
	assert.EqualValues(t, 1000, c.NowMillis())
	c.Advance(500)
	assert.EqualValues(t, 1500, c.NowMillis())
	c.Set(42)
	assert.EqualValues(t, 42, c.NowMillis())
}

func TestSystemClockIsPositive(t *testing.T) {
	var c Clock = System{}
	assert.Greater(t, c.NowMillis(), int64(0))
}
