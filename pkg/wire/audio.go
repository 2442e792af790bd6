package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// AudioHeaderSize is the fixed, compile-time-constant on-wire size.
const AudioHeaderSize = 8

// AudioHeader is the 8-octet header preceding an audio datagram's payload.
// The first octet packs version (2 bits) and type (6 bits, always
// Type6Audio) per the `vv tttttt` convention shared with Input and
// Clipboard headers.
type AudioHeader struct {
	Version   uint8
	ChannelID uint8
	Seq       uint16
	TsUs      uint32
}

// EncodeAudio writes an AudioHeader followed by payload into a freshly
// allocated buffer sized exactly AudioHeaderSize + len(payload).
func EncodeAudio(h AudioHeader, payload []byte) []byte {
	buf := make([]byte, AudioHeaderSize+len(payload))

	buf[0] = (h.Version&0x03)<<6 | (Type6Audio & 0x3F)
	buf[1] = h.ChannelID
	binary.BigEndian.PutUint16(buf[2:4], h.Seq)
	binary.BigEndian.PutUint32(buf[4:8], h.TsUs)

	copy(buf[AudioHeaderSize:], payload)
	return buf
}

// DecodeAudio parses an AudioHeader. Audio carries no explicit payload
// length field, so every remaining byte after the fixed header is payload.
func DecodeAudio(buf []byte) (AudioHeader, []byte, error) {
	var h AudioHeader
	if len(buf) < AudioHeaderSize {
		return h, nil, errors.NewTooShortError(len(buf), AudioHeaderSize)
	}

	flags := buf[0]
	h.Version = (flags >> 6) & 0x03
	h.ChannelID = buf[1]
	h.Seq = binary.BigEndian.Uint16(buf[2:4])
	h.TsUs = binary.BigEndian.Uint32(buf[4:8])

	return h, buf[AudioHeaderSize:], nil
}
