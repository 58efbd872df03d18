package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"
	"strconv"

	"github.com/execfabric/execfabric/xerr"
)

// Encoder serializes values to a codec byte stream. It follows the
// original's WRITE_ON_SUCCESS discipline: nothing reaches the underlying
// writer until a whole Dump has been built successfully in memory, so a
// mid-value DumpError never leaves a partial, unparseable frame on the
// wire (spec §4.1's atomicity note, §4.2's framing depends on it).
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing complete, versioned payloads to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Dump encodes value and writes the version byte followed by the whole
// opcode stream to the underlying writer in one call, only if encoding
// succeeded.
func (e *Encoder) Dump(value interface{}) error {
	var buf bytes.Buffer
	buf.WriteByte(Version)
	s := &saver{buf: &buf}
	if err := s.save(value); err != nil {
		return err
	}
	buf.WriteByte(byte(OpStop))

	_, err := e.w.Write(buf.Bytes())
	return err
}

type saver struct {
	buf *bytes.Buffer
}

func (s *saver) writeOp(op Op) { s.buf.WriteByte(byte(op)) }

func (s *saver) writeInt4(i int) error {
	if i > fourByteIntMax || i < fourByteIntMin {
		return xerr.NewDumpError("value %d does not fit in 4 bytes", i)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(int32(i)))
	s.buf.Write(b[:])
	return nil
}

func (s *saver) writeByteString(b []byte) error {
	if err := s.writeInt4(len(b)); err != nil {
		return xerr.NewDumpError("string is too long")
	}
	s.buf.Write(b)
	return nil
}

func (s *saver) save(value interface{}) error {
	switch v := value.(type) {
	case nil:
		s.writeOp(OpNone)
	case bool:
		if v {
			s.writeOp(OpTrue)
		} else {
			s.writeOp(OpFalse)
		}
	case []byte:
		s.writeOp(OpBytes)
		return s.writeByteString(v)
	case string:
		s.writeOp(OpText)
		return s.writeByteString([]byte(v))
	case float64:
		return s.saveFloat(v)
	case float32:
		return s.saveFloat(float64(v))
	case complex128:
		return s.saveComplex(v)
	case complex64:
		return s.saveComplex(complex128(v))
	case *big.Int:
		return s.saveBigInt(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return s.saveInt(v)
	case ChannelRef:
		s.writeOp(OpChannel)
		return s.writeInt4(int(v.ID))
	case Tuple:
		return s.saveSequence(v, OpBuildTuple, true)
	case []interface{}:
		return s.saveList(v)
	case Set:
		return s.saveSequence([]interface{}(v), OpSet, true)
	case FrozenSet:
		return s.saveSequence([]interface{}(v), OpFrozenSet, true)
	case map[interface{}]interface{}:
		return s.saveDict(v)
	default:
		return xerr.NewDumpError("can't serialize %T", value)
	}
	return nil
}

func (s *saver) saveFloat(f float64) error {
	s.writeOp(OpFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	s.buf.Write(b[:])
	return nil
}

func (s *saver) saveComplex(c complex128) error {
	s.writeOp(OpComplex)
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], math.Float64bits(real(c)))
	binary.BigEndian.PutUint64(b[8:16], math.Float64bits(imag(c)))
	s.buf.Write(b[:])
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func (s *saver) saveInt(v interface{}) error {
	if i64, ok := toInt64(v); ok && i64 <= fourByteIntMax && i64 >= fourByteIntMin {
		s.writeOp(OpInt)
		return s.writeInt4(int(i64))
	}
	// Either it overflows int64 (uint64 > MaxInt64) or doesn't fit 4 bytes;
	// both go out as decimal text, matching the original's LONGINT opcode.
	var text string
	if u, ok := v.(uint64); ok {
		text = strconv.FormatUint(u, 10)
	} else if u, ok := v.(uint); ok {
		text = strconv.FormatUint(uint64(u), 10)
	} else {
		i64, _ := toInt64(v)
		text = strconv.FormatInt(i64, 10)
	}
	s.writeOp(OpLongInt)
	return s.writeByteString([]byte(text))
}

func (s *saver) saveBigInt(v *big.Int) error {
	s.writeOp(OpLongInt)
	return s.writeByteString([]byte(v.String()))
}

func (s *saver) saveList(l []interface{}) error {
	s.writeOp(OpNewList)
	if err := s.writeInt4(len(l)); err != nil {
		return xerr.NewDumpError("list is too long")
	}
	for i, item := range l {
		if err := s.writeSetItem(i, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) writeSetItem(key, value interface{}) error {
	if err := s.save(key); err != nil {
		return err
	}
	if err := s.save(value); err != nil {
		return err
	}
	s.writeOp(OpSetItem)
	return nil
}

func (s *saver) saveDict(d map[interface{}]interface{}) error {
	s.writeOp(OpNewDict)
	for k, v := range d {
		if err := s.writeSetItem(k, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *saver) saveSequence(items []interface{}, op Op, lengthAfter bool) error {
	for _, item := range items {
		if err := s.save(item); err != nil {
			return err
		}
	}
	s.writeOp(op)
	if lengthAfter {
		if err := s.writeInt4(len(items)); err != nil {
			return xerr.NewDumpError("sequence is too long")
		}
	}
	return nil
}

// Encode is a convenience wrapper that dumps value to a fresh buffer and
// returns its bytes, for callers (e.g. protocol.Message construction) that
// need the encoded payload rather than a stream write.
func Encode(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Dump(value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
