package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/execfabric/execfabric/gateway"
	"github.com/execfabric/execfabric/logging"
	"github.com/execfabric/execfabric/transport"
)

func newLoopbackPair(t *testing.T) (*gateway.Gateway, *gateway.Gateway) {
	t.Helper()
	log := logging.New("test", logging.LevelError)

	a, b, err := transport.NewLoopbackPair(log)
	require.NoError(t, err)

	master, err := gateway.New(gateway.Config{
		ID: "master", Role: gateway.RoleMaster, Log: log, Duplex: a, ModelName: "thread",
	})
	require.NoError(t, err)

	worker, err := gateway.New(gateway.Config{
		ID: "worker", Role: gateway.RoleWorker, Log: log, Duplex: b, ModelName: "thread",
	})
	require.NoError(t, err)

	return master, worker
}

func TestRemoteExecRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	master, worker := newLoopbackPair(t)

	ch, err := master.RemoteExec("Channel.Send(41 + 1)\n")
	require.NoError(t, err)

	v, err := ch.Receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	require.NoError(t, master.Exit())
	require.NoError(t, master.WaitShutdown())
	_ = worker.WaitShutdown()
}

func TestRemoteExecDeliversRuntimeErrorAsRemoteError(t *testing.T) {
	defer goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)

	master, worker := newLoopbackPair(t)

	ch, err := master.RemoteExec("panic(\"boom\")\n")
	require.NoError(t, err)

	_, err = ch.Receive(time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.NoError(t, master.Exit())
	require.NoError(t, master.WaitShutdown())
	_ = worker.WaitShutdown()
}

func TestGatewayExitTerminatesWorker(t *testing.T) {
	master, worker := newLoopbackPair(t)

	require.NoError(t, master.Exit())
	require.NoError(t, master.WaitShutdown())

	select {
	case <-worker.ShutdownDoneChan():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not shut down after master Exit")
	}
}
