package protocol

import (
	"encoding/binary"
	"io"
)

// headerSize is len(msgcode) + len(channelid) + len(payloadlen).
const headerSize = 1 + 4 + 4

// maxPayload bounds a single frame's payload to guard against a corrupt
// length field causing an unbounded allocation.
const maxPayload = 256 * 1024 * 1024

// Framer reads and writes Messages over a byte-oriented transport
// (transport.ByteDuplex), implementing spec §4.2's fixed frame layout.
type Framer struct {
	r io.Reader
	w io.Writer
}

// NewFramer wraps r and w as a Message stream.
func NewFramer(r io.Reader, w io.Writer) *Framer {
	return &Framer{r: r, w: w}
}

// WriteMessage writes one frame. A write is either complete or returns an
// error; callers must not retry a partial write (spec §4.2).
func (f *Framer) WriteMessage(m Message) error {
	var hdr [headerSize]byte
	hdr[0] = byte(m.Code)
	binary.BigEndian.PutUint32(hdr[1:5], m.ChannelID)
	binary.BigEndian.PutUint32(hdr[5:9], uint32(len(m.Payload)))
	if _, err := f.w.Write(hdr[:]); err != nil {
		return err
	}
	if len(m.Payload) == 0 {
		return nil
	}
	_, err := f.w.Write(m.Payload)
	return err
}

// ReadMessage reads one frame. A clean EOF exactly at a frame boundary is
// returned as io.EOF (the peer is gone); any other short read is
// io.ErrUnexpectedEOF, both of which callers treat identically per spec
// §4.2's "EOFError means peer is gone".
func (f *Framer) ReadMessage() (Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(f.r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Message{}, io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	code := MsgCode(hdr[0])
	channelID := binary.BigEndian.Uint32(hdr[1:5])
	payloadLen := binary.BigEndian.Uint32(hdr[5:9])
	if payloadLen > maxPayload {
		return Message{}, io.ErrUnexpectedEOF
	}
	if payloadLen == 0 {
		return Message{Code: code, ChannelID: channelID}, nil
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Message{Code: code, ChannelID: channelID, Payload: payload}, nil
}
