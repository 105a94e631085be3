// Package sender implements the Go-Back-N sending state machine.
package sender

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/rdt/pkg/datagram"
	"github.com/skycoin/rdt/pkg/metrics"
	"github.com/skycoin/rdt/pkg/timer"
	"github.com/skycoin/rdt/pkg/transport"
	"github.com/skycoin/rdt/pkg/window"
)

var (
	// ErrRetryLimit is returned when MaxRetransmits consecutive timeouts pass without progress.
	ErrRetryLimit = errors.New("retransmission limit reached")

	// ErrSequenceExhausted is returned when a transfer needs more sequence
	// numbers than the 16-bit space provides without wrapping.
	ErrSequenceExhausted = errors.New("sequence number space exhausted")
)

// Phase is the coarse state of a transfer.
type Phase int

const (
	// Sending means the source still has data.
	Sending Phase = iota
	// Draining means the source is exhausted and datagrams are still unacknowledged.
	Draining
	// Done means every datagram has been acknowledged.
	Done
)

func (p Phase) String() string {
	switch p {
	case Sending:
		return "SENDING"
	case Draining:
		return "DRAINING"
	case Done:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Stats summarises a transfer.
type Stats struct {
	Datagrams        uint64 `json:"datagrams"`
	Bytes            uint64 `json:"bytes"`
	Retransmissions  uint64 `json:"retransmissions"`
	Timeouts         uint64 `json:"timeouts"`
	AcksAccepted     uint64 `json:"acks_accepted"`
	AcksIgnored      uint64 `json:"acks_ignored"`
	CorruptDiscarded uint64 `json:"corrupt_discarded"`
	SentinelSeq      uint16 `json:"sentinel_seq"`
}

// Snapshot is a read-only view of the window state.
type Snapshot struct {
	Base         uint16
	NextSeqNum   uint16
	AllSent      bool
	AllAcked     bool
	TimerRunning bool
	Phase        Phase
}

// Sender transfers a byte stream over an unreliable Port using Go-Back-N.
// It is driven by a single goroutine through Run.
type Sender struct {
	conf    Config
	port    transport.Port
	timer   timer.Timer
	window  *window.Buffer
	log     logrus.FieldLogger
	metrics metrics.Recorder

	src   io.Reader
	chunk []byte

	base       uint16
	nextSeqNum uint16
	allSent    bool
	allAcked   bool
	stalled    int
	stats      Stats
}

// New constructs a Sender. A nil timer is replaced by a wall-clock
// timer.Retransmission, a nil logger by the package logger and a nil
// recorder by a dummy.
func New(conf Config, port transport.Port, t timer.Timer, logger logrus.FieldLogger, m metrics.Recorder) (*Sender, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if port == nil {
		return nil, errors.New("nil transport port")
	}

	w, err := window.New(conf.WindowSize)
	if err != nil {
		return nil, err
	}

	if t == nil {
		t = timer.New(time.Duration(conf.RetransmitTimeout))
	}
	t.SetDuration(time.Duration(conf.RetransmitTimeout))
	t.Stop()

	if logger == nil {
		logger = logging.MustGetLogger("sender")
	}
	if m == nil {
		m = metrics.NewDummy()
	}

	return &Sender{
		conf:       conf,
		port:       port,
		timer:      t,
		window:     w,
		log:        logger,
		metrics:    m,
		chunk:      make([]byte, datagram.MaxPayloadLength),
		base:       1,
		nextSeqNum: 1,
	}, nil
}

// Run sends everything src yields and returns once the whole stream has
// been acknowledged and the end-of-transfer datagram has been sent.
// It retries forever unless MaxRetransmits is set; cancelling ctx aborts it.
func (s *Sender) Run(ctx context.Context, src io.Reader) (Stats, error) {
	if src == nil {
		return s.stats, errors.New("nil source")
	}
	s.src = src

	for !s.done() {
		if err := ctx.Err(); err != nil {
			return s.stats, err
		}
		if err := s.step(); err != nil {
			return s.stats, err
		}
	}

	if err := s.finish(); err != nil {
		return s.stats, err
	}

	s.log.Info("File transfer complete.")
	return s.stats, nil
}

// Snapshot returns the current window state.
func (s *Sender) Snapshot() Snapshot {
	return Snapshot{
		Base:         s.base,
		NextSeqNum:   s.nextSeqNum,
		AllSent:      s.allSent,
		AllAcked:     s.allAcked,
		TimerRunning: s.timer.Running(),
		Phase:        s.phase(),
	}
}

// Stats returns the counters accumulated so far.
func (s *Sender) Stats() Stats {
	return s.stats
}

func (s *Sender) phase() Phase {
	switch {
	case s.done():
		return Done
	case s.allSent:
		return Draining
	default:
		return Sending
	}
}

func (s *Sender) done() bool {
	return s.allSent && s.allAcked
}

// step runs one iteration of the loop. The order matters: timer restarts
// depend on acknowledgments being processed before expiry is checked.
func (s *Sender) step() error {
	if err := s.fillWindow(); err != nil {
		return err
	}
	if err := s.drainAcks(); err != nil {
		return err
	}
	return s.handleTimeout()
}

func (s *Sender) windowOpen() bool {
	return int(s.nextSeqNum) < int(s.base)+s.conf.WindowSize
}

func (s *Sender) fillWindow() error {
	for s.windowOpen() && !s.allSent {
		n, err := io.ReadFull(s.src, s.chunk)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return errors.Wrap(err, "read source")
		}

		if n == 0 {
			s.allSent = true
			s.log.Debugf("Source exhausted after %d datagrams", s.stats.Datagrams)

			if s.conf.TrackSentinel {
				return s.queue(datagram.Sentinel(s.nextSeqNum))
			}
			if s.base == s.nextSeqNum {
				s.allAcked = true
			}
			return nil
		}

		if err := s.queue(datagram.New(s.nextSeqNum, s.chunk[:n])); err != nil {
			return err
		}
		s.stats.Datagrams++
		s.stats.Bytes += uint64(n)
		s.metrics.DatagramSent(n)
	}
	return nil
}

// queue transmits d, keeps it for retransmission and claims its sequence number.
func (s *Sender) queue(d datagram.Datagram) error {
	if s.nextSeqNum == math.MaxUint16 {
		return errors.Wrapf(ErrSequenceExhausted, "after %d datagrams", s.stats.Datagrams)
	}

	if err := s.port.Send(d); err != nil {
		return errors.Wrapf(err, "send datagram %d", d.SeqNum)
	}
	if err := s.window.Store(d.SeqNum, d); err != nil {
		return err
	}
	s.log.Infof("Packet sent with seqNum: %d", d.SeqNum)

	if s.base == s.nextSeqNum {
		s.timer.Start()
	}
	s.nextSeqNum++
	return nil
}

func (s *Sender) drainAcks() error {
	for {
		d, ok, err := s.port.Receive()
		if err != nil {
			if errors.Cause(err) == datagram.ErrMalformed {
				s.discard(err.Error())
				continue
			}
			return errors.Wrap(err, "receive")
		}
		if !ok {
			return nil
		}

		if !d.Valid() {
			s.discard(d.String())
			continue
		}
		s.handleAck(d.AckNum)
	}
}

func (s *Sender) discard(reason string) {
	s.log.Debugf("Discarding corrupt datagram: %s", reason)
	s.stats.CorruptDiscarded++
	s.metrics.CorruptDiscarded()
}

func (s *Sender) handleAck(ack uint16) {
	if ack < s.base {
		s.log.Debugf("Ignoring stale acknowledgment %d (base %d)", ack, s.base)
		s.ignoreAck()
		return
	}
	if ack >= s.nextSeqNum {
		s.log.Warnf("Ignoring acknowledgment %d for unsent datagram (next %d)", ack, s.nextSeqNum)
		s.ignoreAck()
		return
	}

	s.base = ack + 1
	s.stalled = 0
	s.stats.AcksAccepted++
	s.metrics.AckAccepted()
	s.log.Infof("Acknowledgment received for packet seqNum: %d", ack)

	if s.base == s.nextSeqNum {
		s.timer.Stop()
		if s.allSent {
			s.allAcked = true
		}
		return
	}
	s.timer.Start()
}

func (s *Sender) ignoreAck() {
	s.stats.AcksIgnored++
	s.metrics.AckIgnored()
}

func (s *Sender) handleTimeout() error {
	if !s.timer.Expired() {
		return nil
	}

	s.stats.Timeouts++
	s.metrics.Timeout()
	if s.conf.MaxRetransmits > 0 && s.stalled >= s.conf.MaxRetransmits {
		return errors.Wrapf(ErrRetryLimit, "%d timeouts at base %d", s.stalled+1, s.base)
	}
	s.stalled++

	s.log.Info("Timeout occurred; resending all unacknowledged packets.")
	s.timer.Start()

	n := 0
	err := s.window.Range(s.base, s.nextSeqNum, func(seq uint16, d datagram.Datagram) error {
		if err := s.port.Send(d); err != nil {
			return errors.Wrapf(err, "resend datagram %d", seq)
		}
		s.log.Debugf("Resent packet with seqNum: %d", seq)
		n++
		return nil
	})

	s.stats.Retransmissions += uint64(n)
	s.metrics.Retransmitted(n)
	return err
}

// finish signals end-of-transfer. An untracked sentinel is sent exactly once.
func (s *Sender) finish() error {
	if s.conf.TrackSentinel {
		s.stats.SentinelSeq = s.nextSeqNum - 1
		return nil
	}

	if err := s.port.Send(datagram.Sentinel(s.nextSeqNum)); err != nil {
		return errors.Wrapf(err, "send sentinel %d", s.nextSeqNum)
	}
	s.stats.SentinelSeq = s.nextSeqNum
	s.log.Debugf("Sent end-of-transfer datagram with seqNum: %d", s.nextSeqNum)
	return nil
}
