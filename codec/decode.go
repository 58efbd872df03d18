package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/execfabric/execfabric/xerr"
)

// StringCoercion is the RECONFIGURE-controlled policy for the codec's two
// legacy text opcodes (spec §4.2, §9's "string-coercion legacy"). TEXT is
// the native-runtime opcode, decoding to text by default; TEXT2 is the
// older-runtime opcode, decoding to raw bytes by default.
type StringCoercion struct {
	// Py2StrAsPy3Str decodes TEXT2 (the older-runtime opcode) as native
	// text instead of raw bytes.
	Py2StrAsPy3Str bool
	// Py3StrAsPy2Str decodes TEXT (the native-runtime opcode) as raw
	// bytes instead of native text.
	Py3StrAsPy2Str bool
}

// Decoder deserializes values from a codec byte stream, the mirror image
// of Encoder (spec §4.1). It is a direct port of the original's stack
// machine: each opcode pops whatever operands it needs off a value stack
// and pushes its result, ending in exactly one stack value at STOP.
type Decoder struct {
	r        io.Reader
	coercion StringCoercion
}

// NewDecoder returns a Decoder reading versioned payloads from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// WithCoercion sets the string-coercion policy this Decoder applies to
// TEXT/TEXT2 opcodes and returns the Decoder for chaining.
func (d *Decoder) WithCoercion(c StringCoercion) *Decoder {
	d.coercion = c
	return d
}

// Load reads one version byte and opcode stream and returns the decoded
// value. A version byte that does not match codec.Version fails closed
// with a DataFormatError rather than attempt to interpret an opcode set
// this build does not know (spec §4.1).
func (d *Decoder) Load() (interface{}, error) {
	var vb [1]byte
	if _, err := io.ReadFull(d.r, vb[:]); err != nil {
		return nil, err
	}
	if vb[0] != Version {
		return nil, xerr.NewDataFormatError("codec version %d, expected %d", vb[0], Version)
	}
	l := &loader{r: d.r, coercion: d.coercion}
	return l.load()
}

// Decode is a convenience wrapper over a single in-memory payload, applying
// the default (no-op) string-coercion policy.
func Decode(payload []byte) (interface{}, error) {
	return NewDecoder(bytes.NewReader(payload)).Load()
}

// DecodeWithCoercion decodes payload applying the given RECONFIGURE-style
// string-coercion policy to TEXT/TEXT2 opcodes.
func DecodeWithCoercion(payload []byte, c StringCoercion) (interface{}, error) {
	return NewDecoder(bytes.NewReader(payload)).WithCoercion(c).Load()
}

type loader struct {
	r        io.Reader
	stack    []interface{}
	coercion StringCoercion
}

func (l *loader) push(v interface{}) { l.stack = append(l.stack, v) }

func (l *loader) pop() (interface{}, error) {
	if len(l.stack) == 0 {
		return nil, xerr.NewLoadError("stack underflow")
	}
	v := l.stack[len(l.stack)-1]
	l.stack = l.stack[:len(l.stack)-1]
	return v, nil
}

func (l *loader) popN(n int) ([]interface{}, error) {
	if len(l.stack) < n {
		return nil, xerr.NewLoadError("stack underflow: need %d, have %d", n, len(l.stack))
	}
	items := make([]interface{}, n)
	copy(items, l.stack[len(l.stack)-n:])
	l.stack = l.stack[:len(l.stack)-n]
	return items, nil
}

func (l *loader) readInt4() (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(l.r, b[:]); err != nil {
		return 0, err
	}
	return int(int32(binary.BigEndian.Uint32(b[:]))), nil
}

func (l *loader) readByteString() ([]byte, error) {
	n, err := l.readInt4()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, xerr.NewLoadError("negative length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(l.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (l *loader) load() (interface{}, error) {
	l.stack = l.stack[:0]
	for {
		var ob [1]byte
		n, err := l.r.Read(ob[:])
		if n == 0 {
			if err == io.EOF {
				return nil, io.EOF
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		op := Op(ob[0])
		if op == OpStop {
			if len(l.stack) != 1 {
				return nil, xerr.NewLoadError("internal unserialization error: stack has %d items at STOP", len(l.stack))
			}
			return l.stack[0], nil
		}
		if err := l.dispatch(op); err != nil {
			return nil, err
		}
	}
}

func (l *loader) dispatch(op Op) error {
	switch op {
	case OpNone:
		l.push(nil)
	case OpTrue:
		l.push(true)
	case OpFalse:
		l.push(false)
	case OpInt, OpLong:
		i, err := l.readInt4()
		if err != nil {
			return err
		}
		l.push(i)
	case OpLongInt, OpLongLong:
		s, err := l.readByteString()
		if err != nil {
			return err
		}
		bi, ok := new(big.Int).SetString(string(s), 10)
		if !ok {
			return xerr.NewLoadError("invalid long integer literal %q", s)
		}
		l.push(bi)
	case OpFloat:
		var b [8]byte
		if _, err := io.ReadFull(l.r, b[:]); err != nil {
			return err
		}
		l.push(math.Float64frombits(binary.BigEndian.Uint64(b[:])))
	case OpComplex:
		var b [16]byte
		if _, err := io.ReadFull(l.r, b[:]); err != nil {
			return err
		}
		re := math.Float64frombits(binary.BigEndian.Uint64(b[0:8]))
		im := math.Float64frombits(binary.BigEndian.Uint64(b[8:16]))
		l.push(complex(re, im))
	case OpBytes:
		s, err := l.readByteString()
		if err != nil {
			return err
		}
		l.push(s)
	case OpText:
		s, err := l.readByteString()
		if err != nil {
			return err
		}
		if l.coercion.Py3StrAsPy2Str {
			l.push(s)
		} else {
			l.push(string(s))
		}
	case OpText2:
		s, err := l.readByteString()
		if err != nil {
			return err
		}
		if l.coercion.Py2StrAsPy3Str {
			l.push(string(s))
		} else {
			l.push(s)
		}
	case OpChannel:
		id, err := l.readInt4()
		if err != nil {
			return err
		}
		l.push(ChannelRef{ID: uint32(id)})
	case OpNewList:
		n, err := l.readInt4()
		if err != nil {
			return err
		}
		l.push(make([]interface{}, n))
	case OpSetItem:
		value, err := l.pop()
		if err != nil {
			return err
		}
		key, err := l.pop()
		if err != nil {
			return err
		}
		if len(l.stack) == 0 {
			return xerr.NewLoadError("setitem with no container on stack")
		}
		container := l.stack[len(l.stack)-1]
		switch c := container.(type) {
		case []interface{}:
			idx, ok := key.(int)
			if !ok || idx < 0 || idx >= len(c) {
				return xerr.NewLoadError("list setitem index out of range")
			}
			c[idx] = value
		case map[interface{}]interface{}:
			c[key] = value
		default:
			return xerr.NewLoadError("setitem on non-container %T", container)
		}
	case OpNewDict:
		l.push(map[interface{}]interface{}{})
	case OpBuildTuple:
		n, err := l.readInt4()
		if err != nil {
			return err
		}
		items, err := l.popN(n)
		if err != nil {
			return err
		}
		l.push(Tuple(items))
	case OpSet:
		n, err := l.readInt4()
		if err != nil {
			return err
		}
		items, err := l.popN(n)
		if err != nil {
			return err
		}
		l.push(Set(items))
	case OpFrozenSet:
		n, err := l.readInt4()
		if err != nil {
			return err
		}
		items, err := l.popN(n)
		if err != nil {
			return err
		}
		l.push(FrozenSet(items))
	default:
		return xerr.NewLoadError("unknown opcode %d - wire protocol corruption?", byte(op))
	}
	return nil
}
