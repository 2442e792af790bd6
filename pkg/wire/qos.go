package wire

import (
	"encoding/binary"

	"github.com/nightcrane/deskstream/pkg/errors"
)

// QosFeedbackFixedSize is the fixed, compile-time-constant on-wire size
// before any appended NACK sequence numbers.
const QosFeedbackFixedSize = 22

// QosFeedback is the control datagram a receiver emits periodically to
// report observed link quality and request retransmission of specific
// sequences. The first two NACK sequence numbers are carried inline; any
// beyond that are appended as a variable tail.
type QosFeedback struct {
	Flags           uint8
	LastSeq         uint16
	EstBwKbps       uint32
	LossX100        uint16 // 250 == 2.50%
	JitterUs        uint16
	DelayGradientUs int32 // positive == rising delay
	NackSeqs        []uint16
}

// EncodeQosFeedback writes a QosFeedback into a freshly allocated buffer.
// NackSeqs shorter than 2 entries are zero-padded inline (nack_count still
// reflects the true count); entries beyond 2 are appended as the tail.
func EncodeQosFeedback(q QosFeedback) []byte {
	nackCount := len(q.NackSeqs)
	tailCount := 0
	if nackCount > 2 {
		tailCount = nackCount - 2
	}

	buf := make([]byte, QosFeedbackFixedSize+tailCount*2)
	buf[0] = TypeByteQosFeedback
	buf[1] = q.Flags
	binary.BigEndian.PutUint16(buf[2:4], q.LastSeq)
	binary.BigEndian.PutUint32(buf[4:8], q.EstBwKbps)
	binary.BigEndian.PutUint16(buf[8:10], q.LossX100)
	binary.BigEndian.PutUint16(buf[10:12], q.JitterUs)
	binary.BigEndian.PutUint32(buf[12:16], uint32(q.DelayGradientUs))
	binary.BigEndian.PutUint16(buf[16:18], uint16(nackCount))

	var nack0, nack1 uint16
	if nackCount > 0 {
		nack0 = q.NackSeqs[0]
	}
	if nackCount > 1 {
		nack1 = q.NackSeqs[1]
	}
	binary.BigEndian.PutUint16(buf[18:20], nack0)
	binary.BigEndian.PutUint16(buf[20:22], nack1)

	for i := 0; i < tailCount; i++ {
		off := QosFeedbackFixedSize + i*2
		binary.BigEndian.PutUint16(buf[off:off+2], q.NackSeqs[2+i])
	}

	return buf
}

// DecodeQosFeedback parses a QosFeedback, including any appended NACK tail.
func DecodeQosFeedback(buf []byte) (QosFeedback, error) {
	var q QosFeedback
	if len(buf) < QosFeedbackFixedSize {
		return q, errors.NewTooShortError(len(buf), QosFeedbackFixedSize)
	}

	q.Flags = buf[1]
	q.LastSeq = binary.BigEndian.Uint16(buf[2:4])
	q.EstBwKbps = binary.BigEndian.Uint32(buf[4:8])
	q.LossX100 = binary.BigEndian.Uint16(buf[8:10])
	q.JitterUs = binary.BigEndian.Uint16(buf[10:12])
	q.DelayGradientUs = int32(binary.BigEndian.Uint32(buf[12:16]))
	nackCount := int(binary.BigEndian.Uint16(buf[16:18]))
	nack0 := binary.BigEndian.Uint16(buf[18:20])
	nack1 := binary.BigEndian.Uint16(buf[20:22])

	tailCount := 0
	if nackCount > 2 {
		tailCount = nackCount - 2
	}
	remaining := len(buf) - QosFeedbackFixedSize
	if remaining < tailCount*2 {
		return q, errors.NewTruncatedError(tailCount*2, remaining)
	}

	q.NackSeqs = make([]uint16, 0, nackCount)
	if nackCount > 0 {
		q.NackSeqs = append(q.NackSeqs, nack0)
	}
	if nackCount > 1 {
		q.NackSeqs = append(q.NackSeqs, nack1)
	}
	for i := 0; i < tailCount; i++ {
		off := QosFeedbackFixedSize + i*2
		q.NackSeqs = append(q.NackSeqs, binary.BigEndian.Uint16(buf[off:off+2]))
	}

	return q, nil
}
