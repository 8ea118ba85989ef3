// ABOUTME: Tests for the manual clock used by time-dependent broker tests
// ABOUTME: Covers advancing, callback ordering, and cancellation

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestManual_AdvanceFiresDueCallbacksInOrder(t *testing.T) {
	clk := NewManual(epoch)
	var fired []string

	clk.AfterFunc(20*time.Second, func() { fired = append(fired, "second") })
	clk.AfterFunc(10*time.Second, func() { fired = append(fired, "first") })
	clk.AfterFunc(time.Minute, func() { fired = append(fired, "later") })

	clk.Advance(30 * time.Second)

	assert.Equal(t, []string{"first", "second"}, fired)
	assert.Equal(t, epoch.Add(30*time.Second), clk.Now())
	assert.Equal(t, 1, clk.Pending())
}

func TestManual_ZeroDelayWaitsForAdvance(t *testing.T) {
	clk := NewManual(epoch)
	fired := false
	clk.AfterFunc(0, func() { fired = true })

	assert.False(t, fired)
	clk.Advance(0)
	assert.True(t, fired)
}

func TestManual_Stop(t *testing.T) {
	clk := NewManual(epoch)
	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clk.Advance(time.Minute)
	assert.False(t, fired)
	assert.Equal(t, 0, clk.Pending())
}

func TestManual_CallbackMayReschedule(t *testing.T) {
	clk := NewManual(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		clk.AfterFunc(time.Second, tick)
	}
	clk.AfterFunc(time.Second, tick)

	clk.Advance(time.Second)
	clk.Advance(time.Second)

	assert.Equal(t, 2, count)
}
