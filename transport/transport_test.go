package transport_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
)

func TestLoopbackPairMovesBytes(t *testing.T) {
	log := logging.New("test", logging.LevelDebug)
	a, b, err := transport.NewLoopbackPair(log)
	require.NoError(t, err)
	defer a.Kill()
	defer b.Kill()

	n, err := a.Write([]byte("ping"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	buf := make([]byte, 4)
	n, err = b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}

func TestConnStatsTracksBytes(t *testing.T) {
	log := logging.New("test", logging.LevelDebug)
	a, b, err := transport.NewLoopbackPair(log)
	require.NoError(t, err)
	defer a.Kill()
	defer b.Kill()

	_, err = a.Write([]byte("hello world"))
	require.NoError(t, err)
	buf := make([]byte, 11)
	_, err = b.Read(buf)
	require.NoError(t, err)

	assert.EqualValues(t, 11, a.Stats().Sent())
	assert.EqualValues(t, 11, b.Stats().Received())
}

func TestSocketTransportAppliesLowLatencyOptionsAndMovesBytes(t *testing.T) {
	log := logging.New("test", logging.LevelDebug)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	acceptErr := make(chan error, 1)
	var server *transport.SocketTransport
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		server = transport.NewSocketTransport(log, conn)
		acceptErr <- nil
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	client := transport.NewSocketTransport(log, clientConn)
	defer client.Kill()

	require.NoError(t, <-acceptErr)
	defer server.Kill()

	// SetNoDelay/SetTOS are applied before this write; a failure there
	// would have errored NewSocketTransport's callers via the logger, not
	// the return value, so the real assertion is that bytes still move.
	_, err = client.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))
}
