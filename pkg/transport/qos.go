package transport

import (
	"sync"
	"time"

	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/wire"
)

// QosEstimator is a pure, mutex-protected accumulator held by the receiving
// endpoint. It observes the incoming sequence/byte stream and is queried
// periodically to build a wire.QosFeedback; it never sends packets itself.
type QosEstimator struct {
	log logger.Logger

	mu sync.Mutex

	lastSeq        uint16
	haveLastSeq    bool
	bytesThisWindow uint64
	expectedInWindow int
	lostInWindow     int

	lastArrival     time.Time
	haveLastArrival bool
	jitterUs        float64

	lastOneWayDelayUs int64
	haveLastDelay     bool
	delayGradientUs   int32

	pendingNacks []uint16
}

// NewQosEstimator creates an estimator with zeroed running state.
func NewQosEstimator(log logger.Logger) *QosEstimator {
	return &QosEstimator{log: log}
}

// OnDatagram records one received datagram's sequence number, size and
// one-way delay estimate (in microseconds, derived from a sender timestamp
// the caller has already extracted from the datagram header).
func (q *QosEstimator) OnDatagram(seq uint16, size int, oneWayDelayUs int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.bytesThisWindow += uint64(size)

	if q.haveLastSeq {
		diff := wire.SeqDiff(seq, q.lastSeq)
		if diff > 0 {
			q.expectedInWindow += int(diff)
			if diff > 1 {
				lost := int(diff) - 1
				q.lostInWindow += lost
				for i := 1; i < int(diff); i++ {
					q.pendingNacks = append(q.pendingNacks, q.lastSeq+uint16(i))
				}
			}
		}
	} else {
		q.expectedInWindow = 1
	}
	q.lastSeq = seq
	q.haveLastSeq = true

	now := time.Now()
	if q.haveLastArrival {
		interArrival := now.Sub(q.lastArrival).Seconds() * 1e6
		deviation := interArrival - q.jitterUs
		if deviation < 0 {
			deviation = -deviation
		}
		// Running mean absolute deviation, RFC 3550-style smoothing.
		q.jitterUs += (deviation - q.jitterUs) / 16
	}
	q.lastArrival = now
	q.haveLastArrival = true

	if q.haveLastDelay {
		q.delayGradientUs = int32(oneWayDelayUs - q.lastOneWayDelayUs)
	}
	q.lastOneWayDelayUs = oneWayDelayUs
	q.haveLastDelay = true
}

// BuildFeedback produces a wire.QosFeedback for the window elapsed since the
// previous BuildFeedback call (or since construction), then resets the
// window's byte, expected and lost counts and clears the pending NACK list.
// windowSeconds is the caller's tick interval, used to turn the byte count
// into an estimated bandwidth.
func (q *QosEstimator) BuildFeedback(windowSeconds float64) wire.QosFeedback {
	q.mu.Lock()
	defer q.mu.Unlock()

	var lossX100 uint16
	if q.expectedInWindow > 0 {
		lossX100 = uint16((q.lostInWindow * 10000) / q.expectedInWindow)
	}

	var estBwKbps uint32
	if windowSeconds > 0 {
		estBwKbps = uint32(float64(q.bytesThisWindow*8) / windowSeconds / 1000)
	}

	fb := wire.QosFeedback{
		LastSeq:         q.lastSeq,
		EstBwKbps:       estBwKbps,
		LossX100:        lossX100,
		JitterUs:        uint16(q.jitterUs),
		DelayGradientUs: q.delayGradientUs,
		NackSeqs:        append([]uint16(nil), q.pendingNacks...),
	}

	q.log.Debug("qos feedback built",
		logger.Int("loss_x100", int(lossX100)),
		logger.Int("est_bw_kbps", int(estBwKbps)),
		logger.Int("jitter_us", int(q.jitterUs)),
		logger.Int("nack_count", len(fb.NackSeqs)),
	)

	q.bytesThisWindow = 0
	q.expectedInWindow = 0
	q.lostInWindow = 0
	q.pendingNacks = nil

	return fb
}
