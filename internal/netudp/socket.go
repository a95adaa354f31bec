// Package netudp wraps UDP sockets the way spec.md §5 and §9 require:
// a receive-only socket read with a bounded per-read timeout (so a
// shutdown signal is observed promptly), and a send-only path that
// never blocks a receive loop. Two components never share one socket
// across a sender and receiver goroutine; where one physical port must
// both listen and send (Coordinator, RobotAgent), the same *Socket
// serves both, but all sends go through SendTo which callers may use
// concurrently with the receive loop — net.UDPConn is safe for
// concurrent use by multiple goroutines.
package netudp

import (
	"net"
	"time"

	"github.com/vimsent/lasertag/internal/wire"
)

// ReadTimeout bounds every socket read so receive loops can observe a
// cancelled context promptly (spec.md §5: "no larger than 1 s").
const ReadTimeout = 500 * time.Millisecond

// Socket is a UDP endpoint used for both sending and receiving
// JSON-encoded wire.Message datagrams.
type Socket struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket on the given local address ("" host means
// all interfaces).
func Listen(addr *net.UDPAddr) (*Socket, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Close releases the socket.
func (s *Socket) Close() error { return s.conn.Close() }

// SendTo marshals m and writes it to dst. Oversized payloads are
// rejected before they reach the wire (spec.md §6: max 4096 bytes).
func (s *Socket) SendTo(m wire.Message, dst *net.UDPAddr) error {
	b, err := wire.Marshal(m)
	if err != nil {
		return err
	}
	if len(b) > wire.MaxDatagramSize {
		return errOversized(len(b))
	}
	_, err = s.conn.WriteToUDP(b, dst)
	return err
}

// Received is one decoded datagram plus the address it arrived from.
type Received struct {
	Msg  wire.Message
	From *net.UDPAddr
}

// ReceiveOnce blocks for up to ReadTimeout waiting for one datagram.
// A timeout is reported as (nil, nil) so callers can loop on a
// cancellation check without treating it as an error.
func (s *Socket) ReceiveOnce() (*Received, error) {
	buf := make([]byte, wire.MaxDatagramSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, err
	}
	n, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, nil
		}
		return nil, err
	}
	return &Received{Msg: wire.Decode(buf[:n]), From: from}, nil
}

type oversizedError struct{ n int }

func (e oversizedError) Error() string {
	return "netudp: datagram exceeds max size"
}

func errOversized(n int) error { return oversizedError{n: n} }
