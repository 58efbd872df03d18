package codec

// Tuple is an immutable ordered sequence distinct from a slice; it encodes
// as BUILDTUPLE instead of NEWLIST (spec §4.1's "ordered sequences" split
// into mutable lists and tuples, mirroring the Python original).
type Tuple []interface{}

// Set is an unordered collection with SET wire representation.
type Set []interface{}

// FrozenSet is an unordered, immutable collection with FROZENSET wire
// representation. Go has no native frozenset; we only distinguish it from
// Set so round-tripping through the codec preserves which opcode was used.
type FrozenSet []interface{}

// ChannelRef is a channel reference value (spec §4.1's CHANNEL opcode): a
// bare channel id as it appears on the wire. The codec package does not
// resolve it to a live Channel object — that is the channel package's job
// (spec §4.5's "Channel-over-channel" semantics), this is just the value
// shape the codec hands back to callers.
type ChannelRef struct {
	ID uint32
}

// fourByteIntMax is the largest value that fits OpInt's 4-byte signed
// payload; larger magnitudes fall back to OpLongInt's decimal text form.
const fourByteIntMax = 2147483647
const fourByteIntMin = -2147483648
