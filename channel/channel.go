// Package channel implements the bidirectional, ordered, typed conduit
// between two Gateway endpoints (spec §4.5, C5), grounded on the
// Channel/ChannelFactory classes of original_source/execnet's
// gateway_base.py: queue-backed receive with an end-of-stream sentinel, an
// at-most-one receiver callback, and remote-error attachment distinct from
// local close.
package channel

import (
	"sync"
	"time"

	"github.com/execfabric/execfabric/codec"
	"github.com/execfabric/execfabric/protocol"
	"github.com/execfabric/execfabric/xerr"
)

// State is a Channel's position in the OPEN -> SEND_ONLY -> CLOSED ->
// DELETED state machine (spec §4.5).
type State int

const (
	StateOpen State = iota
	StateSendOnly
	StateClosed
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSendOnly:
		return "send_only"
	case StateClosed:
		return "closed"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Sender is the subset of Gateway a Channel needs to put a Message on the
// wire. Kept narrow so channel does not import gateway (gateway imports
// channel, not the other way around).
type Sender interface {
	SendMessage(m protocol.Message) error
}

// Channel is one bidirectional conduit, identified by an id unique within
// its owning gateway pair (spec §3).
type Channel struct {
	id  uint32
	gw  Sender
	fac *Factory

	mu        sync.Mutex
	state     State
	executing bool

	items         *itemQueue
	hasCallback   bool
	remoteErrors  []error
	receiveClosed chan struct{}
	closedOnce    sync.Once
}

func newChannel(id uint32, gw Sender, fac *Factory) *Channel {
	return &Channel{
		id:            id,
		gw:            gw,
		fac:           fac,
		items:         newItemQueue(),
		receiveClosed: make(chan struct{}),
	}
}

// ID returns the channel's wire id.
func (c *Channel) ID() uint32 { return c.id }

// State returns the current state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsClosed reports whether the channel is CLOSED or DELETED (spec §4.5:
// "a closed channel may still hold items").
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateClosed || c.state == StateDeleted
}

// SetExecuting marks whether a CHANNEL_EXEC task is currently running
// against this channel. While it is set, Close refuses to close the channel.
func (c *Channel) SetExecuting(v bool) {
	c.mu.Lock()
	c.executing = v
	c.mu.Unlock()
}

// IsExecuting reports whether a CHANNEL_EXEC task is currently running
// against this channel (spec §4.6's STATUS numexecuting count).
func (c *Channel) IsExecuting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executing
}

// Send transmits item to the peer. If item is itself a *Channel, the wire
// message is CHANNEL_NEW carrying the sub-channel's id (spec §4.5's
// Channel-over-channel passing); otherwise it is CHANNEL_DATA with a
// codec-encoded payload. Fails with ChannelClosed if CLOSED or DELETED.
func (c *Channel) Send(item interface{}) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateClosed || state == StateDeleted {
		return xerr.NewChannelClosed("channel %d is %s", c.id, state)
	}

	if sub, ok := item.(*Channel); ok {
		payload, err := codec.Encode(int(sub.id))
		if err != nil {
			return err
		}
		return c.gw.SendMessage(protocol.NewMessage(protocol.MsgChannelNew, c.id, payload))
	}
	payload, err := codec.Encode(item)
	if err != nil {
		return err
	}
	return c.gw.SendMessage(protocol.NewMessage(protocol.MsgChannelData, c.id, payload))
}

// Receive blocks for the next value, returning the channel's attached
// remote error (if any) or io.EOF-equivalent ChannelClosed once the
// stream ends with no error (spec §4.5). timeout <= 0 waits forever;
// otherwise Receive returns xerr.TimeoutError on expiry (spec §5).
func (c *Channel) Receive(timeout time.Duration) (interface{}, error) {
	c.mu.Lock()
	if c.hasCallback {
		c.mu.Unlock()
		return nil, xerr.NewChannelClosed("channel %d has a receiver callback registered", c.id)
	}
	c.mu.Unlock()
	return c.items.Receive(timeout)
}

// SetCallback registers callback to be invoked for every future received
// item, in delivery order, from the gateway's receiver goroutine.
// Already-queued items are delivered synchronously to callback before
// SetCallback returns. If endmarker is non-nil, callback additionally
// receives it exactly once when the channel's receive side closes (spec
// §4.5's "endmarker-exactly-once"). After SetCallback, Receive always
// fails.
func (c *Channel) SetCallback(callback func(interface{}), endmarker interface{}) error {
	c.mu.Lock()
	if c.hasCallback {
		c.mu.Unlock()
		return xerr.NewChannelClosed("channel %d already has a callback registered", c.id)
	}
	c.hasCallback = true
	c.mu.Unlock()

	wasClosed, _ := c.items.drainCallback(callback)
	if wasClosed && endmarker != nil {
		callback(endmarker)
	} else if !wasClosed {
		c.fac.registerCallback(c.id, callback, endmarker)
	}
	return nil
}

// Close closes the channel, optionally attaching an error that the peer's
// waitclose/receive will observe (spec §4.5). Sends CHANNEL_CLOSE_ERROR if
// errText is non-empty, else CHANNEL_CLOSE. Safe to call more than once;
// only the first call has effect.
func (c *Channel) Close(errText string) error {
	c.mu.Lock()
	if c.executing {
		c.mu.Unlock()
		return xerr.NewChannelClosed("cannot explicitly close channel %d within remote_exec", c.id)
	}
	if c.state == StateClosed || c.state == StateDeleted {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	var sendErr error
	if errText != "" {
		payload, err := codec.Encode(errText)
		if err != nil {
			return err
		}
		sendErr = c.gw.SendMessage(protocol.NewMessage(protocol.MsgChannelCloseError, c.id, payload))
	} else {
		sendErr = c.gw.SendMessage(protocol.Empty(protocol.MsgChannelClose, c.id))
	}
	c.finishReceiving(nil)
	c.fac.noLongerOpen(c.id)
	return sendErr
}

// WaitClose blocks until the channel leaves OPEN (CLOSED or SEND_ONLY),
// or timeout elapses (zero means wait forever), then re-raises any
// attached remote error (spec §4.5).
func (c *Channel) WaitClose(timeout time.Duration) error {
	if timeout <= 0 {
		<-c.receiveClosed
	} else {
		select {
		case <-c.receiveClosed:
		case <-time.After(timeout):
			return xerr.NewTimeoutError("channel %d did not close in time", c.id)
		}
	}
	return c.popRemoteError()
}

func (c *Channel) popRemoteError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.remoteErrors) == 0 {
		return nil
	}
	err := c.remoteErrors[0]
	c.remoteErrors = c.remoteErrors[1:]
	return err
}

// finishReceiving marks the receive side terminated, attaching remoteErr
// (nil for a clean close) and waking every blocked Receive/WaitClose.
func (c *Channel) finishReceiving(remoteErr error) {
	c.mu.Lock()
	if remoteErr != nil {
		c.remoteErrors = append(c.remoteErrors, remoteErr)
	}
	c.mu.Unlock()
	// items always needs a non-nil terminal error so that Receive signals
	// end-of-stream even on a clean close; WaitClose/popRemoteError track
	// remoteErr separately and correctly report a clean close as nil.
	endErr := remoteErr
	if endErr == nil {
		endErr = xerr.NewChannelClosed("channel %d closed", c.id)
	}
	c.items.Close(endErr)
	c.closedOnce.Do(func() { close(c.receiveClosed) })
}

// deliverFromWire is called by Gateway on the receiver goroutine for
// CHANNEL_DATA/CHANNEL_NEW payloads targeting this channel.
func (c *Channel) deliverFromWire(value interface{}) {
	c.items.Put(value)
}
