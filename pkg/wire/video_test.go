package wire

import (
	"bytes"
	"testing"
)

func TestVideoHeaderRoundTrip(t *testing.T) {
	h := VideoHeader{
		Version:       1,
		FrameType:     1,
		Keyframe:      true,
		Codec:         CodecH265,
		Seq:           0x1234,
		TsUs:          0xDEADBEEF,
		FrameNo:       0x0042,
		FragmentIndex: 2,
		FragmentTotal: 7,
		PayloadLength: 1000,
	}
	payload := bytes.Repeat([]byte{0xAB}, 1000)

	buf := EncodeVideo(h, payload)
	if len(buf) != VideoHeaderSize+1000 {
		t.Fatalf("encoded length = %d, want %d", len(buf), VideoHeaderSize+1000)
	}

	if buf[0] != 0xD0 || buf[1] != 0x02 {
		t.Fatalf("bytes[0:2] = %02x %02x, want D0 02", buf[0], buf[1])
	}
	if buf[2] != 0x12 || buf[3] != 0x34 {
		t.Fatalf("bytes[2:4] = %02x %02x, want 12 34", buf[2], buf[3])
	}
	if !bytes.Equal(buf[4:8], []byte{0xDE, 0xAD, 0xBE, 0xEF}) {
		t.Fatalf("bytes[4:8] = % x, want DE AD BE EF", buf[4:8])
	}

	decoded, decPayload, err := DecodeVideo(buf)
	if err != nil {
		t.Fatalf("DecodeVideo: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded header = %+v, want %+v", decoded, h)
	}
	if !bytes.Equal(decPayload, payload) {
		t.Fatalf("decoded payload mismatch")
	}
}

func TestVideoHeaderTooShort(t *testing.T) {
	_, _, err := DecodeVideo(make([]byte, VideoHeaderSize-1))
	if err == nil {
		t.Fatal("expected TooShort error")
	}
}

func TestVideoHeaderTruncatedPayload(t *testing.T) {
	h := VideoHeader{Codec: CodecH264, PayloadLength: 100}
	buf := EncodeVideo(h, make([]byte, 10))
	// Claim more payload than is actually present.
	buf = buf[:VideoHeaderSize+10]

	_, _, err := DecodeVideo(buf)
	if err == nil {
		t.Fatal("expected Truncated error")
	}
}

func TestVideoFlagsReservedBitsPreservedOnDecode(t *testing.T) {
	buf := EncodeVideo(VideoHeader{Codec: CodecH264}, nil)
	buf[0] |= 0x0F // set reserved low bits
	decoded, _, err := DecodeVideo(buf)
	if err != nil {
		t.Fatalf("DecodeVideo: %v", err)
	}
	if decoded.Version != 0 || decoded.FrameType != 0 || decoded.Keyframe {
		t.Fatalf("reserved bits leaked into decoded fields: %+v", decoded)
	}
}
