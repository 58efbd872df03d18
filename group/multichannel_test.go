package group

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/channel"
	"github.com/execfabric/execfabric/protocol"
)

// fakeSender records every outgoing message without a real transport,
// enough to drive Channel's send/receive logic under test.
type fakeSender struct {
	sent []protocol.Message
}

func (f *fakeSender) SendMessage(m protocol.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestMultiChannelSendEachAndReceiveEach(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)

	a, err := fac.New()
	require.NoError(t, err)
	b, err := fac.New()
	require.NoError(t, err)

	mc := newMultiChannel([]*channel.Channel{a, b})

	require.NoError(t, mc.SendEach("ping"))
	assert.Len(t, snd.sent, 2)

	fac.LocalReceive(a.ID(), "pong-a")
	fac.LocalReceive(b.ID(), "pong-b")

	got, err := mc.ReceiveEach()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"pong-a", "pong-b"}, got)
}

func TestMultiChannelMakeReceiveQueueMergesAndClosesOnEndmarker(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)

	a, err := fac.New()
	require.NoError(t, err)
	b, err := fac.New()
	require.NoError(t, err)

	mc := newMultiChannel([]*channel.Channel{a, b})

	endmarker := struct{}{}
	queue, err := mc.MakeReceiveQueue(endmarker)
	require.NoError(t, err)

	fac.LocalReceive(a.ID(), "item-a")
	fac.LocalClose(a.ID(), nil, false)
	fac.LocalReceive(b.ID(), "item-b")
	fac.LocalClose(b.ID(), nil, false)

	seen := map[string]bool{}
	endmarkers := 0
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 || endmarkers < 2 {
		select {
		case item, ok := <-queue:
			if !ok {
				t.Fatal("queue closed before both values and both endmarkers seen")
			}
			if s, ok := item.Value.(string); ok {
				seen[s] = true
			} else if item.Value == endmarker {
				endmarkers++
			}
		case <-deadline:
			t.Fatal("timed out waiting for merged items")
		}
	}
	assert.True(t, seen["item-a"])
	assert.True(t, seen["item-b"])

	select {
	case _, ok := <-queue:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("queue did not close after both endmarkers observed")
	}
}
