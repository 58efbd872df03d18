package protocol

// Message is one frame's logical content (spec §3's Message type): a
// msgcode, the channel it concerns, and a raw (already codec-encoded, or
// empty) payload. Framer only moves bytes; it is the Gateway's job to
// interpret payload against the MsgCode contract in msgcode.go.
type Message struct {
	Code      MsgCode
	ChannelID uint32
	Payload   []byte
}

// NewMessage builds a Message with the given payload bytes.
func NewMessage(code MsgCode, channelID uint32, payload []byte) Message {
	return Message{Code: code, ChannelID: channelID, Payload: payload}
}

// Empty builds a payload-less Message (CHANNEL_CLOSE, CHANNEL_LAST_MESSAGE,
// GATEWAY_TERMINATE, the outbound half of STATUS).
func Empty(code MsgCode, channelID uint32) Message {
	return Message{Code: code, ChannelID: channelID}
}
