package protocol_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/protocol"
)

func TestWriteReadMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := protocol.NewFramer(&buf, &buf)

	msgs := []protocol.Message{
		protocol.NewMessage(protocol.MsgChannelData, 1, []byte("hello")),
		protocol.Empty(protocol.MsgChannelClose, 1),
		protocol.NewMessage(protocol.MsgChannelExec, 3, []byte("source")),
	}
	for _, m := range msgs {
		require.NoError(t, f.WriteMessage(m))
	}
	for _, want := range msgs {
		got, err := f.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, want.Code, got.Code)
		assert.Equal(t, want.ChannelID, got.ChannelID)
		if len(want.Payload) == 0 {
			assert.Empty(t, got.Payload)
		} else {
			assert.Equal(t, want.Payload, got.Payload)
		}
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	f := protocol.NewFramer(&buf, &buf)
	_, err := f.ReadMessage()
	assert.Equal(t, io.EOF, err)
}

func TestReadMessageShortFrameIsUnexpectedEOF(t *testing.T) {
	r := bytes.NewReader([]byte{0x01, 0x00, 0x00})
	f := protocol.NewFramer(r, io.Discard)
	_, err := f.ReadMessage()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestReadMessageTruncatedPayloadIsUnexpectedEOF(t *testing.T) {
	var buf bytes.Buffer
	wf := protocol.NewFramer(nil, &buf)
	require.NoError(t, wf.WriteMessage(protocol.NewMessage(protocol.MsgChannelData, 1, []byte("0123456789"))))
	truncated := buf.Bytes()[:buf.Len()-3]
	rf := protocol.NewFramer(bytes.NewReader(truncated), io.Discard)
	_, err := rf.ReadMessage()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
