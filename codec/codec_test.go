package codec_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execfabric/execfabric/codec"
	"github.com/execfabric/execfabric/xerr"
)

func roundTrip(t *testing.T, value interface{}) interface{} {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Dump(value))
	got, err := codec.NewDecoder(&buf).Load()
	require.NoError(t, err)
	return got
}

func TestScalarRoundTrip(t *testing.T) {
	assert.Equal(t, nil, roundTrip(t, nil))
	assert.Equal(t, true, roundTrip(t, true))
	assert.Equal(t, false, roundTrip(t, false))
	assert.Equal(t, 42, roundTrip(t, 42))
	assert.Equal(t, -7, roundTrip(t, -7))
	assert.Equal(t, 3.25, roundTrip(t, 3.25))
	assert.Equal(t, complex(1.5, -2.5), roundTrip(t, complex(1.5, -2.5)))
	assert.Equal(t, []byte("hello"), roundTrip(t, []byte("hello")))
	assert.Equal(t, "hello", roundTrip(t, "hello"))
}

func TestLongIntRoundTrip(t *testing.T) {
	big64, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	got := roundTrip(t, big64)
	gotBig, ok := got.(*big.Int)
	require.True(t, ok)
	assert.Equal(t, 0, gotBig.Cmp(big64))
}

func TestUint64OverflowUsesLongInt(t *testing.T) {
	var u uint64 = 1<<64 - 1
	got := roundTrip(t, u)
	gotBig, ok := got.(*big.Int)
	require.True(t, ok)
	assert.Equal(t, "18446744073709551615", gotBig.String())
}

func TestListRoundTrip(t *testing.T) {
	in := []interface{}{1, "two", 3.0, nil, true}
	got := roundTrip(t, in)
	assert.Equal(t, []interface{}{1, "two", 3.0, nil, true}, got)
}

func TestTupleRoundTrip(t *testing.T) {
	in := codec.Tuple{1, "two"}
	got := roundTrip(t, in)
	assert.Equal(t, codec.Tuple{1, "two"}, got)
}

func TestDictRoundTrip(t *testing.T) {
	in := map[interface{}]interface{}{"a": 1, "b": 2}
	got := roundTrip(t, in)
	assert.Equal(t, in, got)
}

func TestSetAndFrozenSetRoundTrip(t *testing.T) {
	in := codec.Set{1, 2, 3}
	got := roundTrip(t, in).(codec.Set)
	assert.ElementsMatch(t, []interface{}{1, 2, 3}, []interface{}(got))

	fin := codec.FrozenSet{"x", "y"}
	fgot := roundTrip(t, fin).(codec.FrozenSet)
	assert.ElementsMatch(t, []interface{}{"x", "y"}, []interface{}(fgot))
}

func TestChannelRefRoundTrip(t *testing.T) {
	got := roundTrip(t, codec.ChannelRef{ID: 17})
	assert.Equal(t, codec.ChannelRef{ID: 17}, got)
}

func TestNestedContainers(t *testing.T) {
	in := []interface{}{
		map[interface{}]interface{}{"k": codec.Tuple{1, 2}},
		[]interface{}{codec.Set{1}, nil},
	}
	got := roundTrip(t, in)
	assert.Equal(t, in, got)
}

func TestUnsupportedTypeFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	err := codec.NewEncoder(&buf).Dump(struct{ X int }{X: 1})
	require.Error(t, err)
	var dumpErr *xerr.DumpError
	assert.ErrorAs(t, err, &dumpErr)
	assert.Zero(t, buf.Len(), "nothing should reach the writer on a failed dump")
}

func TestWrongVersionByteFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Dump(1))
	corrupted := buf.Bytes()
	corrupted[0] = codec.Version + 1
	_, err := codec.NewDecoder(bytes.NewReader(corrupted)).Load()
	require.Error(t, err)
	var fmtErr *xerr.DataFormatError
	assert.ErrorAs(t, err, &fmtErr)
}

func legacyTextPayload(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Dump(s))
	raw := buf.Bytes()
	// raw[0] is the version byte, raw[1] is the OpText opcode byte.
	legacy := append([]byte{}, raw...)
	legacy[1] = byte(codec.OpText2)
	return legacy
}

func TestLegacyTextOpcodeDecodesAsBytesByDefault(t *testing.T) {
	got, err := codec.NewDecoder(bytes.NewReader(legacyTextPayload(t, "hi"))).Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
}

func TestPy2StrAsPy3StrCoercesLegacyOpcodeToText(t *testing.T) {
	got, err := codec.NewDecoder(bytes.NewReader(legacyTextPayload(t, "hi"))).
		WithCoercion(codec.StringCoercion{Py2StrAsPy3Str: true}).Load()
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestPy3StrAsPy2StrCoercesNativeOpcodeToBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Dump("hi"))
	got, err := codec.NewDecoder(bytes.NewReader(buf.Bytes())).
		WithCoercion(codec.StringCoercion{Py3StrAsPy2Str: true}).Load()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)
}

func TestTruncatedStreamIsEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codec.NewEncoder(&buf).Dump("hello world"))
	truncated := buf.Bytes()[:len(buf.Bytes())-3]
	_, err := codec.NewDecoder(bytes.NewReader(truncated)).Load()
	require.Error(t, err)
}
