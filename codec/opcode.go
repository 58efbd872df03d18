// Package codec implements the self-describing value encoding used on the
// wire between a Gateway and its peer (spec §4.1-§4.2). It is grounded on
// the Serializer/Unserializer classes of original_source/execnet's
// gateway_base.py: a stack machine driven by a linear opcode stream ending
// in STOP, with payloads written atomically only once encoding succeeds.
//
// Unlike the Python original, the concrete opcode byte values are our own
// (spec §4.1 says the letters are not part of the contract, only the set
// and a fixed definition order are) and a leading format-version byte
// gates the whole payload: an implementation that changes the opcode set
// bumps Version so that an old peer fails closed with DataFormatError
// instead of misinterpreting a stream it cannot correctly decode.
package codec

// Version is the single byte written before every opcode stream.
const Version byte = 1

// Op is one wire opcode, one byte on the wire.
type Op byte

const (
	OpNone Op = iota + 1
	OpTrue
	OpFalse
	OpInt      // 4-byte signed integer
	OpLongInt  // length-prefixed decimal text, arbitrary precision
	OpLong     // legacy alias of OpInt, decode-only
	OpLongLong // legacy alias of OpLongInt, decode-only
	OpFloat    // IEEE-754 64-bit, network byte order
	OpComplex  // two OpFloat payloads, real then imaginary
	OpBytes    // length-prefixed raw bytes
	OpText     // length-prefixed UTF-8 text
	OpText2    // legacy text opcode, decode-only, same wire shape as OpText
	OpNewList
	OpNewDict
	OpSetItem
	OpBuildTuple
	OpSet
	OpFrozenSet
	OpChannel // 4-byte channel id
	OpStop
)

var opNames = map[Op]string{
	OpNone: "NONE", OpTrue: "TRUE", OpFalse: "FALSE", OpInt: "INT",
	OpLongInt: "LONGINT", OpLong: "LONG", OpLongLong: "LONGLONG",
	OpFloat: "FLOAT", OpComplex: "COMPLEX", OpBytes: "BYTES", OpText: "TEXT",
	OpText2: "TEXT2", OpNewList: "NEWLIST", OpNewDict: "NEWDICT",
	OpSetItem: "SETITEM", OpBuildTuple: "BUILDTUPLE", OpSet: "SET",
	OpFrozenSet: "FROZENSET", OpChannel: "CHANNEL", OpStop: "STOP",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "UNKNOWN"
}
