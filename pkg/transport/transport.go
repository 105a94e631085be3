// Package transport defines the unreliable datagram transport consumed by
// the sender, and its UDP implementation.
package transport

import (
	"github.com/skycoin/rdt/pkg/datagram"
)

// Port represents a best-effort, unordered datagram channel to the receiver.
type Port interface {

	// Send transmits d. Loss is not reported: a nil error only means the
	// datagram was handed to the network.
	Send(d datagram.Datagram) error

	// Receive returns the next pending datagram without blocking beyond the
	// port's poll interval. ok is false when nothing is pending. Frames that
	// cannot be decoded are reported with an error whose cause is
	// datagram.ErrMalformed; any other error is fatal for the port.
	Receive() (d datagram.Datagram, ok bool, err error)

	// Close implements io.Closer
	Close() error
}
