// Package wire implements the control protocol's wire framing (§3,
// §6): a 4-byte big-endian length prefix followed by a typed body. Both
// fd 10 (messages) and fd 11 (state snapshots) use the same length prefix;
// only the body differs.
package wire

import (
	"encoding/binary"
	"fmt"
)

// LengthPrefixSize is the size in bytes of the frame length header.
const LengthPrefixSize = 4

// messageHeaderSize is channel_id (4 bytes) + count (1 byte).
const messageHeaderSize = 5

// Message is a channel-scoped, sequence-numbered, wire-framed record
// (§3). Count is an 8-bit monotone counter per sender stream; by
// design (§9 open question) it is informational ordering, not a gap
// detector, and wraps silently past 256 sends.
type Message struct {
	ChannelID uint32
	Count     uint8
	Data      []byte
}

// Encode renders a Message onto the wire: 4-byte BE length prefix, then
// channel_id (4 BE bytes), then count (1 byte), then the opaque data.
func Encode(m Message) []byte {
	body := messageHeaderSize + len(m.Data)
	out := make([]byte, LengthPrefixSize+body)
	binary.BigEndian.PutUint32(out[0:4], uint32(body))
	binary.BigEndian.PutUint32(out[4:8], m.ChannelID)
	out[8] = m.Count
	copy(out[9:], m.Data)
	return out
}

// DecodeBody decodes a Message from a frame body (the bytes after the
// length prefix has already been read and stripped). The decoder rejects
// bodies shorter than the 5-byte header (§6: "Decoder rejects frames
// with total length < 5").
func DecodeBody(body []byte) (Message, error) {
	if len(body) < messageHeaderSize {
		return Message{}, fmt.Errorf("wire: short message frame: %d bytes", len(body))
	}
	data := make([]byte, len(body)-messageHeaderSize)
	copy(data, body[messageHeaderSize:])
	return Message{
		ChannelID: binary.BigEndian.Uint32(body[0:4]),
		Count:     body[4],
		Data:      data,
	}, nil
}

// EncodeFrame returns the 4-byte BE length prefix followed by a copy of an
// opaque body, e.g. for state snapshots on fd 11.
func EncodeFrame(body []byte) []byte {
	out := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out
}

// DecodeLength reads the 4-byte BE length prefix.
func DecodeLength(prefix []byte) (uint32, error) {
	if len(prefix) < LengthPrefixSize {
		return 0, fmt.Errorf("wire: short length prefix: %d bytes", len(prefix))
	}
	return binary.BigEndian.Uint32(prefix[0:LengthPrefixSize]), nil
}
