// Package protocol implements the frame-level wire protocol layered on top
// of codec (spec §4.2). It is grounded on the Message/_setupmessages
// machinery of original_source/execnet's gateway_base.py: a small, fixed
// message-type enumeration, each carrying a channel id and a payload whose
// shape is determined by the type.
package protocol

// MsgCode identifies the kind of a Message (spec §4.2). Values follow the
// original's msgtype enumeration order (STATUS, CHANNEL_OPEN/EXEC,
// CHANNEL_NEW, CHANNEL_DATA, CHANNEL_CLOSE, CHANNEL_CLOSE_ERROR,
// CHANNEL_LAST_MESSAGE) with GATEWAY_TERMINATE and RECONFIGURE appended,
// matching spec.md's extended enumeration.
type MsgCode byte

const (
	MsgStatus MsgCode = iota
	MsgChannelExec
	MsgChannelNew
	MsgChannelData
	MsgChannelClose
	MsgChannelCloseError
	MsgChannelLastMessage
	MsgGatewayTerminate
	MsgReconfigure
)

var msgNames = map[MsgCode]string{
	MsgStatus:             "STATUS",
	MsgChannelExec:        "CHANNEL_EXEC",
	MsgChannelNew:         "CHANNEL_NEW",
	MsgChannelData:        "CHANNEL_DATA",
	MsgChannelClose:       "CHANNEL_CLOSE",
	MsgChannelCloseError:  "CHANNEL_CLOSE_ERROR",
	MsgChannelLastMessage: "CHANNEL_LAST_MESSAGE",
	MsgGatewayTerminate:   "GATEWAY_TERMINATE",
	MsgReconfigure:        "RECONFIGURE",
}

func (c MsgCode) String() string {
	if n, ok := msgNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// HasPayload reports whether messages of this code carry a codec-encoded
// payload on the wire, as opposed to an empty one (spec §4.2).
func (c MsgCode) HasPayload() bool {
	switch c {
	case MsgChannelClose, MsgChannelLastMessage, MsgGatewayTerminate, MsgStatus:
		return false
	default:
		return true
	}
}
