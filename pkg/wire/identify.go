package wire

// Identify classifies an opaque, already-decrypted datagram by inspecting
// its leading octets. It never errors: unrecognized or too-short datagrams
// return Unknown, which callers are expected to drop.
//
// Video's first octet carries bit-packed flags rather than a type tag, so
// it is identified last, by falling back to the codec octet at buf[1].
// Consumers that already know the expected class per socket (a channel
// dedicated to one media type) should bypass this and decode directly.
func Identify(buf []byte) PacketType {
	if len(buf) == 0 {
		return Unknown
	}

	switch buf[0] {
	case TypeByteQosFeedback:
		if len(buf) >= QosFeedbackFixedSize {
			return QosFeedbackType
		}
		return Unknown
	case TypeByteFEC:
		return FEC
	case TypeByteNACK:
		return NACK
	case TypeByteController:
		if len(buf) >= ControllerStateSize {
			return Controller
		}
		return Unknown
	case TypeByteClipboard:
		if len(buf) >= ClipboardHeaderSize {
			return Clipboard
		}
		return Unknown
	case TypeByteClipboardAck:
		if len(buf) >= ClipboardAckSize {
			return ClipboardAckType
		}
		return Unknown
	}

	type6 := buf[0] & 0x3F
	if type6 == Type6Audio && len(buf) >= AudioHeaderSize {
		return Audio
	}
	if type6 == Type6Input && len(buf) >= InputHeaderSize {
		return Input
	}

	if len(buf) >= VideoHeaderSize {
		switch CodecType(buf[1]) {
		case CodecH264, CodecH265, CodecAV1:
			return Video
		}
	}

	return Unknown
}
