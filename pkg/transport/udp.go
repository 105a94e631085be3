package transport

import (
	"context"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"

	"github.com/skycoin/rdt/pkg/datagram"
)

// DefaultPollInterval is the longest a UDPPort waits inside Receive.
const DefaultPollInterval = time.Millisecond

// minPollInterval keeps the read deadline in the future; a deadline that has
// already passed fails the read without looking at the socket.
const minPollInterval = time.Microsecond

var log = logging.MustGetLogger("transport")

// UDPPort implements Port over a connected UDP socket.
type UDPPort struct {
	conn *net.UDPConn
	poll time.Duration
	buf  []byte
}

// DialUDP connects a UDPPort to host:port.
func DialUDP(ctx context.Context, host string, port int, poll time.Duration) (*UDPPort, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s:%d", host, port)
	}

	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close() // nolint: errcheck
		return nil, errors.Errorf("unexpected connection type %T", conn)
	}
	return NewUDPPort(udpConn, poll), nil
}

// NewUDPPort wraps an already connected UDP socket.
func NewUDPPort(conn *net.UDPConn, poll time.Duration) *UDPPort {
	if poll < minPollInterval {
		poll = minPollInterval
	}
	return &UDPPort{
		conn: conn,
		poll: poll,
		buf:  make([]byte, datagram.MaxSize+1),
	}
}

// LocalAddr returns the local address of the socket.
func (p *UDPPort) LocalAddr() net.Addr {
	return p.conn.LocalAddr()
}

// RemoteAddr returns the address of the receiver.
func (p *UDPPort) RemoteAddr() net.Addr {
	return p.conn.RemoteAddr()
}

// Send implements Port.
func (p *UDPPort) Send(d datagram.Datagram) error {
	b, err := d.MarshalBinary()
	if err != nil {
		return err
	}

	if _, err := p.conn.Write(b); err != nil {
		if isRefused(err) {
			log.WithError(err).Debugf("Datagram %d dropped by remote", d.SeqNum)
			return nil
		}
		return errors.Wrap(err, "udp write")
	}
	return nil
}

// Receive implements Port.
func (p *UDPPort) Receive() (datagram.Datagram, bool, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.poll)); err != nil {
		return datagram.Datagram{}, false, errors.Wrap(err, "set read deadline")
	}

	n, err := p.conn.Read(p.buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return datagram.Datagram{}, false, nil
		}
		if isRefused(err) {
			return datagram.Datagram{}, false, nil
		}
		return datagram.Datagram{}, false, errors.Wrap(err, "udp read")
	}

	d, err := datagram.Decode(p.buf[:n])
	if err != nil {
		return datagram.Datagram{}, false, errors.Wrap(err, "udp read")
	}
	return d, true, nil
}

// Close implements io.Closer
func (p *UDPPort) Close() error {
	return p.conn.Close()
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
