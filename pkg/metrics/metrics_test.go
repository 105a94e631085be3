package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheus("rdt_sender", reg)

	r.DatagramSent(255)
	r.DatagramSent(10)
	r.Retransmitted(8)
	r.Timeout()
	r.AckAccepted()
	r.AckAccepted()
	r.AckIgnored()
	r.CorruptDiscarded()

	m := r.(*prom)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.datagrams))
	assert.Equal(t, 265.0, testutil.ToFloat64(m.payloadBytes))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.retransmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timeouts))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.acksAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.acksIgnored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.corrupt))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 7)
}

func TestPrometheus_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus("dup", reg)
	assert.Panics(t, func() { NewPrometheus("dup", reg) })
}

func TestDummy(t *testing.T) {
	r := NewDummy()
	assert.NotPanics(t, func() {
		r.DatagramSent(1)
		r.Retransmitted(1)
		r.Timeout()
		r.AckAccepted()
		r.AckIgnored()
		r.CorruptDiscarded()
	})
}
