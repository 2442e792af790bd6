package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// InputHeaderSize is the fixed, compile-time-constant on-wire size.
const InputHeaderSize = 4

// InputHeader is the 4-octet header preceding an input event payload.
type InputHeader struct {
	Version       uint8
	SubType       InputSubType
	PayloadLength uint16
}

// EncodeInput writes an InputHeader followed by payload into a freshly
// allocated buffer sized exactly InputHeaderSize + len(payload).
func EncodeInput(h InputHeader, payload []byte) []byte {
	buf := make([]byte, InputHeaderSize+len(payload))

	buf[0] = (h.Version&0x03)<<6 | (Type6Input & 0x3F)
	buf[1] = uint8(h.SubType)
	binary.BigEndian.PutUint16(buf[2:4], h.PayloadLength)

	copy(buf[InputHeaderSize:], payload)
	return buf
}

// DecodeInput parses an InputHeader and returns a borrow of the declared
// payload length worth of remaining bytes.
func DecodeInput(buf []byte) (InputHeader, []byte, error) {
	var h InputHeader
	if len(buf) < InputHeaderSize {
		return h, nil, errors.NewTooShortError(len(buf), InputHeaderSize)
	}

	flags := buf[0]
	h.Version = (flags >> 6) & 0x03
	h.SubType = InputSubType(buf[1])
	h.PayloadLength = binary.BigEndian.Uint16(buf[2:4])

	declared := int(h.PayloadLength)
	remaining := len(buf) - InputHeaderSize
	if remaining < declared {
		return h, nil, errors.NewTruncatedError(declared, remaining)
	}

	return h, buf[InputHeaderSize : InputHeaderSize+declared], nil
}

// MouseMove is a 5-octet input payload: dx, dy (signed) and a button bitmask.
type MouseMove struct {
	DX, DY  int16
	Buttons uint8
}

// MouseMoveSize is the fixed on-wire size of MouseMove.
const MouseMoveSize = 5

func EncodeMouseMove(m MouseMove) []byte {
	buf := make([]byte, MouseMoveSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(m.DX))
	binary.BigEndian.PutUint16(buf[2:4], uint16(m.DY))
	buf[4] = m.Buttons
	return buf
}

func DecodeMouseMove(buf []byte) (MouseMove, error) {
	var m MouseMove
	if len(buf) < MouseMoveSize {
		return m, errors.NewTooShortError(len(buf), MouseMoveSize)
	}
	m.DX = int16(binary.BigEndian.Uint16(buf[0:2]))
	m.DY = int16(binary.BigEndian.Uint16(buf[2:4]))
	m.Buttons = buf[4]
	return m, nil
}

// MouseButton is a 2-octet input payload: button id and action (press/release).
type MouseButton struct {
	Button uint8
	Action uint8
}

// MouseButtonSize is the fixed on-wire size of MouseButton.
const MouseButtonSize = 2

func EncodeMouseButton(m MouseButton) []byte {
	return []byte{m.Button, m.Action}
}

func DecodeMouseButton(buf []byte) (MouseButton, error) {
	var m MouseButton
	if len(buf) < MouseButtonSize {
		return m, errors.NewTooShortError(len(buf), MouseButtonSize)
	}
	m.Button = buf[0]
	m.Action = buf[1]
	return m, nil
}

// Key is a 4-octet input payload: keycode, action, and a modifier bitmask.
type Key struct {
	Keycode   uint16
	Action    uint8
	Modifiers uint8
}

// KeySize is the fixed on-wire size of Key.
const KeySize = 4

func EncodeKey(k Key) []byte {
	buf := make([]byte, KeySize)
	binary.BigEndian.PutUint16(buf[0:2], k.Keycode)
	buf[2] = k.Action
	buf[3] = k.Modifiers
	return buf
}

func DecodeKey(buf []byte) (Key, error) {
	var k Key
	if len(buf) < KeySize {
		return k, errors.NewTooShortError(len(buf), KeySize)
	}
	k.Keycode = binary.BigEndian.Uint16(buf[0:2])
	k.Action = buf[2]
	k.Modifiers = buf[3]
	return k, nil
}

// Scroll is a 4-octet input payload: signed dx/dy wheel deltas.
type Scroll struct {
	DX, DY int16
}

// ScrollSize is the fixed on-wire size of Scroll.
const ScrollSize = 4

func EncodeScroll(s Scroll) []byte {
	buf := make([]byte, ScrollSize)
	binary.BigEndian.PutUint16(buf[0:2], uint16(s.DX))
	binary.BigEndian.PutUint16(buf[2:4], uint16(s.DY))
	return buf
}

func DecodeScroll(buf []byte) (Scroll, error) {
	var s Scroll
	if len(buf) < ScrollSize {
		return s, errors.NewTooShortError(len(buf), ScrollSize)
	}
	s.DX = int16(binary.BigEndian.Uint16(buf[0:2]))
	s.DY = int16(binary.BigEndian.Uint16(buf[2:4]))
	return s, nil
}
