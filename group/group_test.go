package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/logging"
)

func testLogger() logging.Logger {
	return logging.New("grouptest", logging.LevelError)
}

func TestMakeGatewayReleasesIDOnBootstrapFailure(t *testing.T) {
	g := New(testLogger(), "thread")

	// "popen" with no installed execfabric-boot binary on PATH fails to
	// spawn; the reserved id must not be left dangling afterward.
	_, err := g.MakeGateway("popen//id=gw-fails//python=/nonexistent/execfabric-boot-binary")
	require.Error(t, err)

	assert.Empty(t, g.Gateways())

	// The id should be available again, not rejected as a duplicate.
	_, err = g.MakeGateway("popen//id=gw-fails//python=/nonexistent/execfabric-boot-binary")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "already registered")
}

func TestMakeGatewayRejectsDuplicateExplicitID(t *testing.T) {
	g := New(testLogger(), "thread")
	g.byID["dup"] = nil
	g.order = append(g.order, "dup")

	_, err := g.MakeGateway("popen//id=dup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestSetExecmodelRejectedOnceGroupHasMembers(t *testing.T) {
	g := New(testLogger(), "thread")
	g.byID["gw0"] = nil
	g.order = append(g.order, "gw0")

	err := g.SetExecmodel("main_thread_only")
	assert.Error(t, err)
}

func TestMakeGatewayVagrantSSHShellsOutToVagrant(t *testing.T) {
	g := New(testLogger(), "thread")

	// No real "vagrant" binary is installed in the test environment; the
	// failure must come from exec'ing it (proving vagrant_ssh= took the
	// vagrant ssh path), not from a silent fallback to a local popen.
	_, err := g.MakeGateway("vagrant_ssh=myvm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vagrant")
}

func TestAllocIDAutoIncrements(t *testing.T) {
	g := New(testLogger(), "thread")
	id0, err := g.allocID("")
	require.NoError(t, err)
	id1, err := g.allocID("")
	require.NoError(t, err)
	assert.Equal(t, "gw0", id0)
	assert.Equal(t, "gw1", id1)
}
