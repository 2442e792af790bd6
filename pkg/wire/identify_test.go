package wire

import "testing"

func TestIdentifyEmpty(t *testing.T) {
	if got := Identify(nil); got != Unknown {
		t.Fatalf("Identify(nil) = %v, want Unknown", got)
	}
}

func TestIdentifyEachVariant(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want PacketType
	}{
		{"qos", EncodeQosFeedback(QosFeedback{}), QosFeedbackType},
		{"fec", []byte{TypeByteFEC, 0, 0}, FEC},
		{"nack", []byte{TypeByteNACK, 0, 0}, NACK},
		{"controller", EncodeController(ControllerState{}), Controller},
		{"clipboard", EncodeClipboard(ClipboardHeader{}, nil), Clipboard},
		{"clipboard_ack", EncodeClipboardAck(ClipboardAck{}), ClipboardAckType},
		{"audio", EncodeAudio(AudioHeader{}, nil), Audio},
		{"input", EncodeInput(InputHeader{}, nil), Input},
		{"video", EncodeVideo(VideoHeader{Codec: CodecH264}, nil), Video},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Identify(c.buf); got != c.want {
				t.Fatalf("Identify(%s) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestIdentifyControllerTooShortIsUnknown(t *testing.T) {
	buf := []byte{TypeByteController, 0, 0}
	if got := Identify(buf); got != Unknown {
		t.Fatalf("Identify(short controller) = %v, want Unknown", got)
	}
}

func TestIdentifyVideoFallsBackOnInvalidCodec(t *testing.T) {
	buf := make([]byte, VideoHeaderSize)
	buf[1] = 0x7F // not a valid CodecType
	if got := Identify(buf); got != Unknown {
		t.Fatalf("Identify(invalid codec) = %v, want Unknown", got)
	}
}
