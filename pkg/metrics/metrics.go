// Package metrics records sender activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records sender events.
type Recorder interface {
	DatagramSent(payloadLen int)
	Retransmitted(n int)
	Timeout()
	AckAccepted()
	AckIgnored()
	CorruptDiscarded()
}

type dummy struct{}

// NewDummy constructs a new dummy metrics recorder.
func NewDummy() Recorder {
	return &dummy{}
}

func (m *dummy) DatagramSent(int)  {}
func (m *dummy) Retransmitted(int) {}
func (m *dummy) Timeout()          {}
func (m *dummy) AckAccepted()      {}
func (m *dummy) AckIgnored()       {}
func (m *dummy) CorruptDiscarded() {}

type prom struct {
	datagrams     prometheus.Counter
	payloadBytes  prometheus.Counter
	retransmitted prometheus.Counter
	timeouts      prometheus.Counter
	acksAccepted  prometheus.Counter
	acksIgnored   prometheus.Counter
	corrupt       prometheus.Counter
}

// NewPrometheus constructs a new Prometheus metrics recorder registered
// with reg. A nil reg registers with the default registry.
func NewPrometheus(service string, reg prometheus.Registerer) Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &prom{
		datagrams: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_datagrams_sent_total",
			Help: "The total number of data datagrams sent for the first time",
		}),
		payloadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_payload_bytes_total",
			Help: "The total number of payload bytes sent for the first time",
		}),
		retransmitted: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_retransmissions_total",
			Help: "The total number of retransmitted datagrams",
		}),
		timeouts: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_timeouts_total",
			Help: "The total number of retransmission timer expiries",
		}),
		acksAccepted: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_acks_accepted_total",
			Help: "The total number of acknowledgments that advanced the window",
		}),
		acksIgnored: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_acks_ignored_total",
			Help: "The total number of stale or out-of-range acknowledgments",
		}),
		corrupt: f.NewCounter(prometheus.CounterOpts{
			Name: service + "_corrupt_discarded_total",
			Help: "The total number of received datagrams discarded as corrupt",
		}),
	}
}

func (m *prom) DatagramSent(payloadLen int) {
	m.datagrams.Inc()
	m.payloadBytes.Add(float64(payloadLen))
}

func (m *prom) Retransmitted(n int) {
	m.retransmitted.Add(float64(n))
}

func (m *prom) Timeout() {
	m.timeouts.Inc()
}

func (m *prom) AckAccepted() {
	m.acksAccepted.Inc()
}

func (m *prom) AckIgnored() {
	m.acksIgnored.Inc()
}

func (m *prom) CorruptDiscarded() {
	m.corrupt.Inc()
}
