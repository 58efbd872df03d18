package group

import (
	"sync"
	"time"

	"github.com/execfabric/execfabric/channel"
)

// Item pairs a received value with the channel it arrived on, the shape
// make_receive_queue merges every member channel into (spec §4.7).
type Item struct {
	Channel *channel.Channel
	Value   interface{}
}

// MultiChannel is a thin facade over the channels returned by a
// Group.RemoteExec fan-out, grounded on multi.py's MultiChannel.
type MultiChannel struct {
	chans []*channel.Channel
}

func newMultiChannel(chans []*channel.Channel) *MultiChannel {
	return &MultiChannel{chans: chans}
}

// Channels returns the member channels in fan-out order.
func (m *MultiChannel) Channels() []*channel.Channel { return m.chans }

// SendEach sends item to every member channel, grounded on
// MultiChannel.send_each.
func (m *MultiChannel) SendEach(item interface{}) error {
	for _, ch := range m.chans {
		if err := ch.Send(item); err != nil {
			return err
		}
	}
	return nil
}

// ReceiveEach blocks for one value from every member channel, in member
// order, and returns them positionally (spec §4.7's receive_each).
func (m *MultiChannel) ReceiveEach() ([]interface{}, error) {
	out := make([]interface{}, len(m.chans))
	for i, ch := range m.chans {
		v, err := ch.Receive(0)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// MakeReceiveQueue installs a callback on every member channel that
// merges every future item into a single ordered stream of Item, with
// endmarker delivered once per channel when it closes (spec §4.7's
// make_receive_queue).
func (m *MultiChannel) MakeReceiveQueue(endmarker interface{}) (<-chan Item, error) {
	out := make(chan Item, 16*len(m.chans)+1)
	var wg sync.WaitGroup
	for _, ch := range m.chans {
		ch := ch
		cb := func(v interface{}) {
			out <- Item{Channel: ch, Value: v}
		}
		var em interface{}
		if endmarker != nil {
			wg.Add(1)
			em = endmarker
		}
		if err := ch.SetCallback(wrapWithDone(cb, endmarker, &wg), em); err != nil {
			return nil, err
		}
	}
	if endmarker != nil {
		go func() {
			wg.Wait()
			close(out)
		}()
	}
	return out, nil
}

// wrapWithDone marks wg Done exactly once per channel, the moment that
// channel's endmarker is observed, so MakeReceiveQueue can close its
// output once every member has finished.
func wrapWithDone(cb func(interface{}), endmarker interface{}, wg *sync.WaitGroup) func(interface{}) {
	if endmarker == nil {
		return cb
	}
	var once sync.Once
	return func(v interface{}) {
		cb(v)
		if v == endmarker {
			once.Do(wg.Done)
		}
	}
}

// WaitClose waits for every member channel to close, aggregating remote
// errors and returning the first one encountered (spec §4.7's waitclose).
func (m *MultiChannel) WaitClose(timeout time.Duration) error {
	var firstErr error
	for _, ch := range m.chans {
		if err := ch.WaitClose(timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
