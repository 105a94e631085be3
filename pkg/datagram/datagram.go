// Package datagram defines the wire unit exchanged between the sender and
// the receiver, together with its checksum codec.
package datagram

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	// MaxPayloadLength is the largest payload a single Datagram carries.
	MaxPayloadLength = 255

	// HeaderSize is the encoded size of the fixed header.
	HeaderSize = 7

	// MaxSize is the largest encoded Datagram.
	MaxSize = HeaderSize + MaxPayloadLength
)

// ErrMalformed is returned when a frame cannot be decoded into a Datagram.
var ErrMalformed = errors.New("malformed datagram")

type position struct {
	start int
	end   int
}

var (
	seqNumPosition        = position{0, 2}
	ackNumPosition        = position{2, 4}
	checksumPosition      = position{4, 6}
	payloadLengthPosition = position{6, 7}
)

// Datagram is a single protocol unit. Values are treated as immutable once
// they have been handed to a transport.
type Datagram struct {
	SeqNum   uint16
	AckNum   uint16
	Checksum uint16
	Payload  []byte
}

// New constructs a data Datagram carrying a copy of payload and a computed
// checksum. If payload is longer than MaxPayloadLength, New will panic.
func New(seq uint16, payload []byte) Datagram {
	if len(payload) > MaxPayloadLength {
		panic(fmt.Sprintf("payload size %d exceeds %d", len(payload), MaxPayloadLength))
	}

	d := Datagram{SeqNum: seq, Payload: make([]byte, len(payload))}
	copy(d.Payload, payload)
	d.Checksum = Compute(d)
	return d
}

// NewAck constructs an acknowledgment for every Datagram up to and including ack.
func NewAck(ack uint16) Datagram {
	d := Datagram{AckNum: ack}
	d.Checksum = Compute(d)
	return d
}

// Sentinel constructs the zero-payload Datagram that ends a transfer.
func Sentinel(seq uint16) Datagram {
	return New(seq, nil)
}

// PayloadLength returns the number of payload bytes.
func (d Datagram) PayloadLength() int {
	return len(d.Payload)
}

// IsSentinel reports whether d carries no payload.
func (d Datagram) IsSentinel() bool {
	return len(d.Payload) == 0
}

func (d Datagram) String() string {
	return fmt.Sprintf("seq=%d ack=%d len=%d checksum=%#04x", d.SeqNum, d.AckNum, len(d.Payload), d.Checksum)
}

// MarshalBinary encodes d with a big-endian header followed by the payload.
func (d Datagram) MarshalBinary() ([]byte, error) {
	if len(d.Payload) > MaxPayloadLength {
		return nil, errors.Errorf("payload size %d exceeds %d", len(d.Payload), MaxPayloadLength)
	}

	b := make([]byte, HeaderSize+len(d.Payload))
	putHeader(b, d, d.Checksum)
	copy(b[HeaderSize:], d.Payload)
	return b, nil
}

// UnmarshalBinary decodes a frame produced by MarshalBinary. Bytes past the
// declared payload length are ignored.
func (d *Datagram) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return errors.Wrapf(ErrMalformed, "frame of %d bytes is shorter than header", len(b))
	}

	n := int(b[payloadLengthPosition.start])
	if len(b) < HeaderSize+n {
		return errors.Wrapf(ErrMalformed, "payload length %d overruns frame of %d bytes", n, len(b))
	}

	d.SeqNum = binary.BigEndian.Uint16(b[seqNumPosition.start:seqNumPosition.end])
	d.AckNum = binary.BigEndian.Uint16(b[ackNumPosition.start:ackNumPosition.end])
	d.Checksum = binary.BigEndian.Uint16(b[checksumPosition.start:checksumPosition.end])
	d.Payload = make([]byte, n)
	copy(d.Payload, b[HeaderSize:HeaderSize+n])
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(b []byte) (Datagram, error) {
	var d Datagram
	err := d.UnmarshalBinary(b)
	return d, err
}

func putHeader(b []byte, d Datagram, checksum uint16) {
	binary.BigEndian.PutUint16(b[seqNumPosition.start:seqNumPosition.end], d.SeqNum)
	binary.BigEndian.PutUint16(b[ackNumPosition.start:ackNumPosition.end], d.AckNum)
	binary.BigEndian.PutUint16(b[checksumPosition.start:checksumPosition.end], checksum)
	b[payloadLengthPosition.start] = byte(len(d.Payload))
}
