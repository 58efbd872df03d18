package group_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/group"
)

func TestParseXSpecBasicKeys(t *testing.T) {
	x, err := group.ParseXSpec("ssh=example.com//id=gw7//execmodel=main_thread_only")
	require.NoError(t, err)
	assert.Equal(t, "example.com", x.SSH)
	assert.Equal(t, "gw7", x.ID)
	assert.Equal(t, "main_thread_only", x.ExecModel)
}

func TestParseXSpecBooleanKey(t *testing.T) {
	x, err := group.ParseXSpec("popen//dont_write_bytecode")
	require.NoError(t, err)
	assert.True(t, x.Popen)
	assert.True(t, x.NoWriteByte)
}

func TestParseXSpecEnvPrefix(t *testing.T) {
	x, err := group.ParseXSpec("popen//env:FOO=bar//env:BAZ=qux")
	require.NoError(t, err)
	assert.Equal(t, "bar", x.Env["FOO"])
	assert.Equal(t, "qux", x.Env["BAZ"])
}

func TestParseXSpecRejectsDuplicateKey(t *testing.T) {
	_, err := group.ParseXSpec("popen//popen")
	assert.Error(t, err)
}

func TestParseXSpecRejectsUnderscoreKey(t *testing.T) {
	_, err := group.ParseXSpec("_private=1")
	assert.Error(t, err)
}

func TestParseXSpecUnknownKeyGoesToExtra(t *testing.T) {
	x, err := group.ParseXSpec("popen//made_up_key=42")
	require.NoError(t, err)
	assert.Equal(t, "42", x.Extra["made_up_key"])
}

func TestParseXSpecEmptyString(t *testing.T) {
	x, err := group.ParseXSpec("")
	require.NoError(t, err)
	assert.False(t, x.Popen)
	assert.Empty(t, x.Extra)
}
