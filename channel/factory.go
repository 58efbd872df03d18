package channel

import (
	"sync"

	"github.com/execfabric/execfabric/xerr"
)

// callbackEntry pairs a registered receiver callback with the endmarker it
// should be sent, if any, when the channel's receive side closes.
type callbackEntry struct {
	callback func(interface{})
	endmarker interface{}
}

// Factory allocates and tracks every live Channel for one Gateway side,
// grounded on ChannelFactory in original_source/execnet's gateway_base.py.
// Ids alternate by parity between the two gateway endpoints (spec §3): a
// Factory built with startID odd allocates 1, 3, 5, ... and one built with
// startID even allocates 2, 4, 6, ..., guaranteeing a locally-allocated id
// never collides with one a peer introduces via CHANNEL_NEW.
type Factory struct {
	mu       sync.Mutex
	channels map[uint32]*Channel
	callbacks map[uint32]callbackEntry
	nextID   uint32
	finished bool
	gw       Sender
}

// NewFactory returns a Factory whose first allocated id is startID and
// which increments by 2 thereafter.
func NewFactory(gw Sender, startID uint32) *Factory {
	return &Factory{
		channels:  make(map[uint32]*Channel),
		callbacks: make(map[uint32]callbackEntry),
		nextID:    startID,
		gw:        gw,
	}
}

// New allocates a fresh Channel with an auto-assigned id.
func (f *Factory) New() (*Channel, error) {
	return f.newWithID(0, true)
}

// NewWithID creates (or returns the existing) Channel for an id the peer
// introduced, e.g. via CHANNEL_NEW or CHANNEL_EXEC (spec §4.5).
func (f *Factory) NewWithID(id uint32) (*Channel, error) {
	return f.newWithID(id, false)
}

func (f *Factory) newWithID(id uint32, autoAlloc bool) (*Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished {
		return nil, xerr.NewChannelClosed("gateway connection already closed")
	}
	if autoAlloc {
		id = f.nextID
		f.nextID += 2
	} else if existing, ok := f.channels[id]; ok {
		return existing, nil
	}
	ch := newChannel(id, f.gw, f)
	f.channels[id] = ch
	return ch, nil
}

// Channels returns a snapshot of every currently tracked Channel.
func (f *Factory) Channels() []*Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Channel, 0, len(f.channels))
	for _, ch := range f.channels {
		out = append(out, ch)
	}
	return out
}

// registerCallback is called by Channel.SetCallback once it has drained
// any backlog and determined the channel is still open.
func (f *Factory) registerCallback(id uint32, cb func(interface{}), endmarker interface{}) {
	f.mu.Lock()
	f.callbacks[id] = callbackEntry{callback: cb, endmarker: endmarker}
	f.mu.Unlock()
}

// noLongerOpen drops bookkeeping for id once it is CLOSED, delivering a
// pending callback's endmarker if one was registered (spec §4.5's
// endmarker-exactly-once).
func (f *Factory) noLongerOpen(id uint32) {
	f.mu.Lock()
	delete(f.channels, id)
	entry, hadCallback := f.callbacks[id]
	if hadCallback {
		delete(f.callbacks, id)
	}
	f.mu.Unlock()
	if hadCallback && entry.endmarker != nil {
		entry.callback(entry.endmarker)
	}
}

// LocalReceive dispatches an inbound CHANNEL_DATA/CHANNEL_NEW value to id's
// registered callback if any, else to its queue. Called from the
// Gateway's single receiver goroutine (spec §4.5), so callback invocation
// here is synchronous with respect to frame delivery order.
func (f *Factory) LocalReceive(id uint32, value interface{}) {
	f.mu.Lock()
	entry, hasCallback := f.callbacks[id]
	f.mu.Unlock()
	if hasCallback {
		entry.callback(value)
		return
	}
	f.mu.Lock()
	ch := f.channels[id]
	f.mu.Unlock()
	if ch != nil {
		ch.deliverFromWire(value)
	}
	// No channel and no callback: the wire delivered data for an id we no
	// longer track (already closed locally); silently dropped, matching
	// the original's "queue is None: drop data" behavior.
}

// LocalClose transitions id to CLOSED (or SEND_ONLY if sendOnly is true)
// on receipt of CHANNEL_CLOSE / CHANNEL_CLOSE_ERROR / CHANNEL_LAST_MESSAGE
// or on transport EOF (spec §4.5).
func (f *Factory) LocalClose(id uint32, remoteErr error, sendOnly bool) {
	f.mu.Lock()
	ch := f.channels[id]
	f.mu.Unlock()
	if ch == nil {
		f.noLongerOpen(id)
		return
	}
	ch.mu.Lock()
	if !sendOnly {
		ch.state = StateClosed
	} else if ch.state == StateOpen {
		ch.state = StateSendOnly
	}
	ch.mu.Unlock()
	ch.finishReceiving(remoteErr)
	if !sendOnly {
		f.noLongerOpen(id)
	}
}

// FinishedReceiving marks the Factory's gateway connection gone: every
// live channel is forced to SEND_ONLY (its outbound sends will typically
// then fail at the transport layer) and every pending callback fires its
// endmarker, matching ChannelFactory._finished_receiving.
func (f *Factory) FinishedReceiving() {
	f.mu.Lock()
	f.finished = true
	ids := make([]uint32, 0, len(f.channels))
	for id := range f.channels {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	for _, id := range ids {
		f.LocalClose(id, nil, true)
	}
	f.mu.Lock()
	cbIDs := make([]uint32, 0, len(f.callbacks))
	for id := range f.callbacks {
		cbIDs = append(cbIDs, id)
	}
	f.mu.Unlock()
	for _, id := range cbIDs {
		f.noLongerOpen(id)
	}
}
