// Package transporttest provides an in-memory transport.Port whose far end is
// a cumulative-acknowledgment receiver, with hooks for injecting faults.
package transporttest

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/skycoin/rdt/pkg/datagram"
)

// Loopback delivers every datagram handed to Send straight into an in-order
// receiver and queues the receiver's acknowledgments for Receive.
type Loopback struct {
	// DropData reports whether the attempt-th transmission of d is lost on
	// its way to the receiver. Attempts count from 1.
	DropData func(d datagram.Datagram, attempt int) bool

	// DropAck reports whether the acknowledgment of ack is lost on its way back.
	DropAck func(ack uint16) bool

	// CorruptAck reports whether the acknowledgment of ack arrives with a flipped bit.
	CorruptAck func(ack uint16) bool

	// DuplicateAcks delivers every acknowledgment twice.
	DuplicateAcks bool

	// ReceiveErr, when set, is returned by the next Receive call.
	ReceiveErr error

	expected  uint16
	delivered bytes.Buffer
	pending   [][]byte
	sent      []datagram.Datagram
	sentinels []uint16
	attempts  map[uint16]int
	acks      []uint16
	closed    bool
}

// NewLoopback constructs a Loopback whose receiver expects sequence number 1 first.
func NewLoopback() *Loopback {
	return &Loopback{
		expected: 1,
		attempts: make(map[uint16]int),
	}
}

// Send implements transport.Port.
func (l *Loopback) Send(d datagram.Datagram) error {
	if l.closed {
		return io.ErrClosedPipe
	}

	l.sent = append(l.sent, d)
	l.attempts[d.SeqNum]++
	if l.DropData != nil && l.DropData(d, l.attempts[d.SeqNum]) {
		return nil
	}

	l.deliver(d)
	return nil
}

func (l *Loopback) deliver(d datagram.Datagram) {
	if !d.Valid() {
		return
	}

	if d.IsSentinel() {
		l.sentinels = append(l.sentinels, d.SeqNum)
	}

	if d.SeqNum != l.expected {
		l.ack(l.expected - 1)
		return
	}

	l.delivered.Write(d.Payload)
	l.expected++
	l.ack(d.SeqNum)
}

func (l *Loopback) ack(ack uint16) {
	l.acks = append(l.acks, ack)
	if l.DropAck != nil && l.DropAck(ack) {
		return
	}

	b, err := datagram.NewAck(ack).MarshalBinary()
	if err != nil {
		panic(err)
	}
	if l.CorruptAck != nil && l.CorruptAck(ack) {
		b[3] ^= 0x01
	}

	l.pending = append(l.pending, b)
	if l.DuplicateAcks {
		l.pending = append(l.pending, append([]byte(nil), b...))
	}
}

// Inject queues a raw frame for the sender, as if it arrived from the network.
func (l *Loopback) Inject(frame []byte) {
	l.pending = append(l.pending, frame)
}

// InjectDatagram queues an encoded datagram for the sender.
func (l *Loopback) InjectDatagram(d datagram.Datagram) {
	b, err := d.MarshalBinary()
	if err != nil {
		panic(err)
	}
	l.Inject(b)
}

// Receive implements transport.Port.
func (l *Loopback) Receive() (datagram.Datagram, bool, error) {
	if err := l.ReceiveErr; err != nil {
		l.ReceiveErr = nil
		return datagram.Datagram{}, false, err
	}
	if l.closed {
		return datagram.Datagram{}, false, io.ErrClosedPipe
	}
	if len(l.pending) == 0 {
		return datagram.Datagram{}, false, nil
	}

	frame := l.pending[0]
	l.pending = l.pending[1:]

	d, err := datagram.Decode(frame)
	if err != nil {
		return datagram.Datagram{}, false, errors.Wrap(err, "loopback")
	}
	return d, true, nil
}

// Close implements io.Closer
func (l *Loopback) Close() error {
	l.closed = true
	return nil
}

// Sent returns every datagram passed to Send, in order, including retransmissions.
func (l *Loopback) Sent() []datagram.Datagram {
	return l.sent
}

// DataSent returns the number of transmissions that carried a payload.
func (l *Loopback) DataSent() int {
	n := 0
	for _, d := range l.sent {
		if !d.IsSentinel() {
			n++
		}
	}
	return n
}

// Attempts returns how many times seq was transmitted.
func (l *Loopback) Attempts(seq uint16) int {
	return l.attempts[seq]
}

// Delivered returns the bytes the receiver accepted in order.
func (l *Loopback) Delivered() []byte {
	return l.delivered.Bytes()
}

// Sentinels returns the sequence numbers of end-of-transfer datagrams that reached the receiver.
func (l *Loopback) Sentinels() []uint16 {
	return l.sentinels
}

// Acks returns every acknowledgment the receiver produced, including lost ones.
func (l *Loopback) Acks() []uint16 {
	return l.acks
}

// Pending returns the number of frames waiting to be received.
func (l *Loopback) Pending() int {
	return len(l.pending)
}
