package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// ControllerStateSize is the fixed, compile-time-constant on-wire size.
const ControllerStateSize = 16

// ControllerState is the 16-octet gamepad state datagram. It carries no
// variable-length payload; the whole state is always forwarded verbatim.
type ControllerState struct {
	ControllerID uint8 // 0-3
	Seq          uint16
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

// EncodeController writes a ControllerState into a freshly allocated
// ControllerStateSize buffer.
func EncodeController(s ControllerState) []byte {
	buf := make([]byte, ControllerStateSize)
	buf[0] = TypeByteController
	buf[1] = s.ControllerID
	binary.BigEndian.PutUint16(buf[2:4], s.Seq)
	binary.BigEndian.PutUint16(buf[4:6], s.Buttons)
	buf[6] = s.LeftTrigger
	buf[7] = s.RightTrigger
	binary.BigEndian.PutUint16(buf[8:10], uint16(s.ThumbLX))
	binary.BigEndian.PutUint16(buf[10:12], uint16(s.ThumbLY))
	binary.BigEndian.PutUint16(buf[12:14], uint16(s.ThumbRX))
	binary.BigEndian.PutUint16(buf[14:16], uint16(s.ThumbRY))
	return buf
}

// DecodeController parses a ControllerState. The type byte is validated by
// the caller via Identify; DecodeController does not re-check it.
func DecodeController(buf []byte) (ControllerState, error) {
	var s ControllerState
	if len(buf) < ControllerStateSize {
		return s, errors.NewTooShortError(len(buf), ControllerStateSize)
	}

	s.ControllerID = buf[1]
	s.Seq = binary.BigEndian.Uint16(buf[2:4])
	s.Buttons = binary.BigEndian.Uint16(buf[4:6])
	s.LeftTrigger = buf[6]
	s.RightTrigger = buf[7]
	s.ThumbLX = int16(binary.BigEndian.Uint16(buf[8:10]))
	s.ThumbLY = int16(binary.BigEndian.Uint16(buf[10:12]))
	s.ThumbRX = int16(binary.BigEndian.Uint16(buf[12:14]))
	s.ThumbRY = int16(binary.BigEndian.Uint16(buf[14:16]))

	return s, nil
}
