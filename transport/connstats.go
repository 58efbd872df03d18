package transport

import (
	"sync/atomic"

	"github.com/jpillora/sizestr"
)

// ConnStats tracks bytes moved and open/close transitions for one
// transport instance, adapted from the teacher's share/connstats.go.
// Transports expose it through their Stats method; it is not part of the
// STATUS reply.
type ConnStats struct {
	sent     int64
	received int64
	open     int32
}

// NewConnStats returns a zeroed ConnStats marked open.
func NewConnStats() *ConnStats {
	c := &ConnStats{}
	c.Open()
	return c
}

// Open marks the connection as active.
func (c *ConnStats) Open() { atomic.StoreInt32(&c.open, 1) }

// Close marks the connection as inactive. Idempotent.
func (c *ConnStats) Close() { atomic.StoreInt32(&c.open, 0) }

// IsOpen reports the current open/closed state.
func (c *ConnStats) IsOpen() bool { return atomic.LoadInt32(&c.open) != 0 }

// AddSent records n bytes written.
func (c *ConnStats) AddSent(n int) { atomic.AddInt64(&c.sent, int64(n)) }

// AddReceived records n bytes read.
func (c *ConnStats) AddReceived(n int) { atomic.AddInt64(&c.received, int64(n)) }

// Sent returns the total bytes written so far.
func (c *ConnStats) Sent() int64 { return atomic.LoadInt64(&c.sent) }

// Received returns the total bytes read so far.
func (c *ConnStats) Received() int64 { return atomic.LoadInt64(&c.received) }

// String renders human-readable byte counts, e.g. "sent=1.2KB received=340B".
func (c *ConnStats) String() string {
	return "sent=" + sizestr.ToString(c.Sent()) + " received=" + sizestr.ToString(c.Received())
}
