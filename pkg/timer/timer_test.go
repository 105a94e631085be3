package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func (c *manualClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newManual(d time.Duration) (*Retransmission, *manualClock) {
	c := &manualClock{now: time.Unix(1000, 0)}
	return NewWithClock(d, c.Now), c
}

func TestRetransmission_StoppedNeverExpires(t *testing.T) {
	tm, c := newManual(time.Second)
	assert.False(t, tm.Running())
	c.Advance(time.Hour)
	assert.False(t, tm.Expired())
}

func TestRetransmission_Expiry(t *testing.T) {
	tm, c := newManual(time.Second)
	tm.Start()
	assert.True(t, tm.Running())
	assert.False(t, tm.Expired())

	c.Advance(999 * time.Millisecond)
	assert.False(t, tm.Expired())

	c.Advance(time.Millisecond)
	assert.True(t, tm.Expired())

	t.Run("query does not consume expiry", func(t *testing.T) {
		assert.True(t, tm.Expired())
		assert.True(t, tm.Running())
	})
}

func TestRetransmission_StartRestarts(t *testing.T) {
	tm, c := newManual(time.Second)
	tm.Start()
	c.Advance(800 * time.Millisecond)
	tm.Start()
	c.Advance(800 * time.Millisecond)
	assert.False(t, tm.Expired())
	c.Advance(200 * time.Millisecond)
	assert.True(t, tm.Expired())

	tm.Start()
	assert.False(t, tm.Expired())
}

func TestRetransmission_Stop(t *testing.T) {
	tm, c := newManual(time.Second)
	tm.Start()
	c.Advance(2 * time.Second)
	assert.True(t, tm.Expired())
	tm.Stop()
	assert.False(t, tm.Running())
	assert.False(t, tm.Expired())
}

func TestRetransmission_SetDuration(t *testing.T) {
	tm, c := newManual(time.Second)
	tm.SetDuration(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, tm.Duration())

	tm.SetDuration(0)
	assert.Equal(t, 50*time.Millisecond, tm.Duration())

	tm.Start()
	c.Advance(50 * time.Millisecond)
	assert.True(t, tm.Expired())
}

func TestNew_Defaults(t *testing.T) {
	tm := New(0)
	assert.Equal(t, DefaultDuration, tm.Duration())
	assert.False(t, tm.Running())

	tm = NewWithClock(time.Minute, nil)
	assert.Equal(t, time.Minute, tm.Duration())
}
