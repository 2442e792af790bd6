package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// VideoHeaderSize is the fixed, compile-time-constant on-wire size.
const VideoHeaderSize = 16

// VideoHeader is the 16-octet header preceding a video datagram's payload.
// The first octet packs keyframe (bit 7), frame-type (bit 6) and version
// (bits 5-4) with the low 4 bits reserved zero; see the worked byte values
// in the round-trip test, which is authoritative over the field order
// implied by the prose description.
type VideoHeader struct {
	Version        uint8
	FrameType      uint8 // 1 bit: 0 or 1
	Keyframe       bool
	Codec          CodecType
	Seq            uint16
	TsUs           uint32 // truncated to 32 bits
	FrameNo        uint16
	FragmentIndex  uint8
	FragmentTotal  uint8
	PayloadLength  uint32
}

// EncodeVideo writes a VideoHeader followed by payload into a freshly
// allocated buffer sized exactly VideoHeaderSize + len(payload).
func EncodeVideo(h VideoHeader, payload []byte) []byte {
	buf := make([]byte, VideoHeaderSize+len(payload))

	var flags uint8
	if h.Keyframe {
		flags |= 1 << 7
	}
	if h.FrameType != 0 {
		flags |= 1 << 6
	}
	flags |= (h.Version & 0x03) << 4
	buf[0] = flags
	buf[1] = uint8(h.Codec)
	binary.BigEndian.PutUint16(buf[2:4], h.Seq)
	binary.BigEndian.PutUint32(buf[4:8], h.TsUs)
	binary.BigEndian.PutUint16(buf[8:10], h.FrameNo)
	buf[10] = h.FragmentIndex
	buf[11] = h.FragmentTotal
	binary.BigEndian.PutUint32(buf[12:16], h.PayloadLength)

	copy(buf[VideoHeaderSize:], payload)
	return buf
}

// DecodeVideo parses a VideoHeader and returns a borrow of the remaining
// bytes as the payload slice. The payload slice aliases buf and must not
// outlive the caller's use of buf.
func DecodeVideo(buf []byte) (VideoHeader, []byte, error) {
	var h VideoHeader
	if len(buf) < VideoHeaderSize {
		return h, nil, errors.NewTooShortError(len(buf), VideoHeaderSize)
	}

	flags := buf[0]
	h.Keyframe = flags&(1<<7) != 0
	if flags&(1<<6) != 0 {
		h.FrameType = 1
	}
	h.Version = (flags >> 4) & 0x03
	h.Codec = CodecType(buf[1])
	h.Seq = binary.BigEndian.Uint16(buf[2:4])
	h.TsUs = binary.BigEndian.Uint32(buf[4:8])
	h.FrameNo = binary.BigEndian.Uint16(buf[8:10])
	h.FragmentIndex = buf[10]
	h.FragmentTotal = buf[11]
	h.PayloadLength = binary.BigEndian.Uint32(buf[12:16])

	declared := int(h.PayloadLength)
	remaining := len(buf) - VideoHeaderSize
	if remaining < declared {
		return h, nil, errors.NewTruncatedError(declared, remaining)
	}

	return h, buf[VideoHeaderSize : VideoHeaderSize+declared], nil
}
