package transport

import (
	"net"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/net/ipv4"

	"github.com/execfabric/execfabric/logging"
)

// lowDelayTOS is the IPTOS_LOWDELAY DSCP value (RFC 1349), applied best-
// effort to the frame socket so that small control frames aren't queued
// behind bulk traffic on congested links.
const lowDelayTOS = 0x10

// SocketTransport wraps a plain TCP connection (spec §4.3's Socket
// transport). There is no child process, so Wait is a no-op; Kill closes
// the connection itself as the closest equivalent.
type SocketTransport struct {
	conn  net.Conn
	stats *ConnStats
	log   logging.Logger
}

// NewSocketTransport wraps an already-dialed or -accepted net.Conn,
// applying the best-effort low-latency socket options spec §4.3 calls for
// (IP_TOS LOWDELAY, TCP_NODELAY); failures to set them are logged as
// warnings, never returned as errors.
func NewSocketTransport(log logging.Logger, conn net.Conn) *SocketTransport {
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetNoDelay(true); err != nil {
			log.WLogf("socket transport: TCP_NODELAY unavailable: %v", err)
		}
		if err := ipv4.NewConn(tcp).SetTOS(lowDelayTOS); err != nil {
			log.WLogf("socket transport: IP_TOS unavailable: %v", err)
		}
	}
	return &SocketTransport{conn: conn, stats: NewConnStats(), log: log}
}

// DialSocket connects to addr, retrying with exponential backoff up to
// attempts times — used by the `installvia` dial-back path (spec
// §9/original multi.py's SocketGateway.new_remote) where the proxy
// gateway's listener may not be accepting connections the instant its port
// is reported back.
func DialSocket(log logging.Logger, addr string, attempts int) (*SocketTransport, error) {
	b := &backoff.Backoff{Min: 20 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2}
	var lastErr error
	for i := 0; i < attempts; i++ {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err == nil {
			return NewSocketTransport(log, conn), nil
		}
		lastErr = err
		time.Sleep(b.Duration())
	}
	return nil, lastErr
}

// Stats returns the byte-accounting counters for this transport.
func (s *SocketTransport) Stats() *ConnStats { return s.stats }

func (s *SocketTransport) Read(b []byte) (int, error) {
	n, err := s.conn.Read(b)
	s.stats.AddReceived(n)
	return n, err
}

func (s *SocketTransport) Write(b []byte) (int, error) {
	n, err := s.conn.Write(b)
	s.stats.AddSent(n)
	return n, err
}

// CloseRead closes the read half if the underlying conn supports it.
func (s *SocketTransport) CloseRead() error {
	type readCloser interface{ CloseRead() error }
	if rc, ok := s.conn.(readCloser); ok {
		return rc.CloseRead()
	}
	return nil
}

// CloseWrite closes the write half if the underlying conn supports it,
// falling back to a full Close otherwise.
func (s *SocketTransport) CloseWrite() error {
	type writeCloser interface{ CloseWrite() error }
	if wc, ok := s.conn.(writeCloser); ok {
		return wc.CloseWrite()
	}
	return s.conn.Close()
}

// Wait is a no-op: a socket transport has no child process to join.
func (s *SocketTransport) Wait() error { return nil }

// Kill closes the underlying connection.
func (s *SocketTransport) Kill() error {
	s.stats.Close()
	return s.conn.Close()
}
