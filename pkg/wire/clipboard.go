package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// ClipboardHeaderSize is the fixed, compile-time-constant on-wire size.
const ClipboardHeaderSize = 12

// ClipboardAckSize is the fixed, compile-time-constant on-wire size.
const ClipboardAckSize = 4

// ClipboardDirection distinguishes which endpoint originated a clipboard
// payload.
type ClipboardDirection uint8

const (
	DirectionViewerToHost ClipboardDirection = 0
	DirectionHostToViewer ClipboardDirection = 1
)

// ClipboardFormat identifies the payload encoding. Only UTF-8 is defined;
// non-UTF-8 formats are out of scope.
type ClipboardFormat uint8

const ClipboardFormatUTF8 ClipboardFormat = 1

// ClipboardHeader is the 12-octet header preceding a clipboard payload.
// Invariant: Length must not exceed MaxClipboardPayload.
type ClipboardHeader struct {
	Direction ClipboardDirection
	Seq       uint16
	Format    ClipboardFormat
	Length    uint32
}

// EncodeClipboard writes a ClipboardHeader followed by payload into a
// freshly allocated buffer sized exactly ClipboardHeaderSize + len(payload).
// The three reserved octets are written zero, per the encode-side rule that
// reserved bits must be zero.
func EncodeClipboard(h ClipboardHeader, payload []byte) []byte {
	buf := make([]byte, ClipboardHeaderSize+len(payload))
	buf[0] = TypeByteClipboard
	buf[1] = uint8(h.Direction)
	binary.BigEndian.PutUint16(buf[2:4], h.Seq)
	buf[4] = uint8(h.Format)
	// buf[5:8] reserved, left zero
	binary.BigEndian.PutUint32(buf[8:12], h.Length)

	copy(buf[ClipboardHeaderSize:], payload)
	return buf
}

// DecodeClipboard parses a ClipboardHeader and returns a borrow of the
// declared-length payload. Reserved octets are preserved unchanged on
// decode (not validated), permitting forward-compatible extensions.
func DecodeClipboard(buf []byte) (ClipboardHeader, []byte, error) {
	var h ClipboardHeader
	if len(buf) < ClipboardHeaderSize {
		return h, nil, errors.NewTooShortError(len(buf), ClipboardHeaderSize)
	}

	h.Direction = ClipboardDirection(buf[1])
	h.Seq = binary.BigEndian.Uint16(buf[2:4])
	h.Format = ClipboardFormat(buf[4])
	h.Length = binary.BigEndian.Uint32(buf[8:12])

	declared := int(h.Length)
	remaining := len(buf) - ClipboardHeaderSize
	if remaining < declared {
		return h, nil, errors.NewTruncatedError(declared, remaining)
	}

	return h, buf[ClipboardHeaderSize : ClipboardHeaderSize+declared], nil
}

// ClipboardAck is the 4-octet acknowledgement of a received clipboard
// datagram.
type ClipboardAck struct {
	AckSeq uint16
}

// EncodeClipboardAck writes a ClipboardAck into a freshly allocated
// ClipboardAckSize buffer.
func EncodeClipboardAck(a ClipboardAck) []byte {
	buf := make([]byte, ClipboardAckSize)
	buf[0] = TypeByteClipboardAck
	// buf[1] reserved, left zero
	binary.BigEndian.PutUint16(buf[2:4], a.AckSeq)
	return buf
}

// DecodeClipboardAck parses a ClipboardAck.
func DecodeClipboardAck(buf []byte) (ClipboardAck, error) {
	var a ClipboardAck
	if len(buf) < ClipboardAckSize {
		return a, errors.NewTooShortError(len(buf), ClipboardAckSize)
	}
	a.AckSeq = binary.BigEndian.Uint16(buf[2:4])
	return a, nil
}
