package datagram

import (
	"github.com/google/netstack/tcpip/header"
)

// Compute returns the Internet checksum of d's header (with the checksum
// field zeroed) followed by its payload.
func Compute(d Datagram) uint16 {
	b := make([]byte, HeaderSize+len(d.Payload))
	putHeader(b, d, 0)
	copy(b[HeaderSize:], d.Payload)
	return ^header.Checksum(b, 0)
}

// Validate reports whether the stored checksum of d matches its contents.
func Validate(d Datagram) bool {
	if len(d.Payload) > MaxPayloadLength {
		return false
	}
	return Compute(d) == d.Checksum
}

// Valid is shorthand for Validate(d).
func (d Datagram) Valid() bool {
	return Validate(d)
}
