package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/channel"
	"github.com/execfabric/execfabric/protocol"
)

// fakeSender records every Message handed to it, standing in for a
// Gateway in tests that only exercise Channel/Factory state transitions.
type fakeSender struct {
	sent []protocol.Message
}

func (f *fakeSender) SendMessage(m protocol.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func TestSendReceiveFIFO(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	fac.LocalReceive(ch.ID(), "a")
	fac.LocalReceive(ch.ID(), "b")
	fac.LocalReceive(ch.ID(), "c")

	for _, want := range []string{"a", "b", "c"} {
		got, err := ch.Receive(0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReceiveTimesOutWhenNothingArrives(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	_, err = ch.Receive(20 * time.Millisecond)
	assert.Error(t, err)
}

func TestIDParityAllocation(t *testing.T) {
	snd := &fakeSender{}
	master := channel.NewFactory(snd, 1)
	worker := channel.NewFactory(snd, 2)

	for i := 0; i < 3; i++ {
		mc, err := master.New()
		require.NoError(t, err)
		assert.Equal(t, uint32(1+2*i), mc.ID())

		wc, err := worker.New()
		require.NoError(t, err)
		assert.Equal(t, uint32(2+2*i), wc.ID())
	}
}

func TestCloseEndsReceiveWithEOFEquivalent(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	fac.LocalReceive(ch.ID(), "only item")
	require.NoError(t, ch.Close(""))

	got, err := ch.Receive(0)
	require.NoError(t, err)
	assert.Equal(t, "only item", got)

	_, err = ch.Receive(0)
	assert.Error(t, err)
}

func TestCloseWithErrorIsObservedByWaitClose(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	fac.LocalClose(ch.ID(), assert.AnError, false)
	err = ch.WaitClose(time.Second)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSetCallbackDeliversBacklogThenLiveItems(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	fac.LocalReceive(ch.ID(), "queued-before-callback")

	var received []interface{}
	require.NoError(t, ch.SetCallback(func(v interface{}) {
		received = append(received, v)
	}, "END"))

	fac.LocalReceive(ch.ID(), "live-item")
	require.NoError(t, ch.Close(""))

	assert.Equal(t, []interface{}{"queued-before-callback", "live-item", "END"}, received)
}

func TestLastMessageFromWireLeavesSendAllowed(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)

	fac.LocalClose(ch.ID(), nil, true)
	assert.Equal(t, channel.StateSendOnly, ch.State())

	require.NoError(t, ch.Send("still allowed"))
	require.Len(t, snd.sent, 1)
}

func TestSendAfterCloseFails(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	ch, err := fac.New()
	require.NoError(t, err)
	require.NoError(t, ch.Close(""))

	err = ch.Send("too late")
	assert.Error(t, err)
}

func TestChannelOverChannelSendsChannelNew(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	k, err := fac.New()
	require.NoError(t, err)
	c, err := fac.New()
	require.NoError(t, err)

	require.NoError(t, k.Send(c))
	require.Len(t, snd.sent, 1)
	assert.Equal(t, protocol.MsgChannelNew, snd.sent[0].Code)
	assert.Equal(t, k.ID(), snd.sent[0].ChannelID)
}

func TestFinishedReceivingForcesSendOnly(t *testing.T) {
	snd := &fakeSender{}
	fac := channel.NewFactory(snd, 1)
	a, err := fac.New()
	require.NoError(t, err)
	b, err := fac.New()
	require.NoError(t, err)

	fac.FinishedReceiving()

	assert.Equal(t, channel.StateSendOnly, a.State())
	assert.Equal(t, channel.StateSendOnly, b.State())
}
