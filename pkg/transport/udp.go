package transport

import (
	"net"
	"sync"
	"time"

	"github.com/nightcrane/deskstream/pkg/bufpool"
	"github.com/nightcrane/deskstream/pkg/errors"
	"github.com/nightcrane/deskstream/pkg/logger"
)

// receiveTimeout bounds each non-blocking poll of the underlying socket.
// receive_one() is specified as non-blocking; Go sockets only support this
// via a short read deadline, treating a timeout as "nothing ready".
const receiveTimeout = 5 * time.Millisecond

// ReceiveCallback is invoked with a decrypted datagram. The slice borrows
// from an internal scratch buffer and must not be retained past the call.
type ReceiveCallback func(datagram []byte)

// Transport is the UDP engine binding two endpoints: it owns a single
// connected socket, a retransmit cache, and an optional DTLS channel. Send
// order on the wire is preserved; application-level ordering is not.
type Transport struct {
	conn net.Conn

	cache *retransmitCache

	// dtlsMu guards dtls; lock ordering is cache-then-dtls on the send
	// path, matching the documented no-nested-component-locks rule.
	dtlsMu sync.Mutex
	dtls   *DTLSChannel

	callbackMu sync.RWMutex
	onReceive  ReceiveCallback

	bytesSent uint64
	sentMu    sync.Mutex

	statsMu                sync.Mutex
	datagramsSent          uint64
	datagramsRetransmitted uint64
	nacksServed            uint64
	nacksDroppedStale      uint64

	pool *bufpool.Pool
	log  logger.Logger
}

// Stats is a point-in-time read of the transport's send/retransmit counters.
type Stats struct {
	BytesSent              uint64
	DatagramsSent          uint64
	DatagramsRetransmitted uint64
	NacksServed            uint64
	NacksDroppedStale      uint64
}

// Stats returns the current counters.
func (t *Transport) Stats() Stats {
	t.sentMu.Lock()
	bytesSent := t.bytesSent
	t.sentMu.Unlock()

	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return Stats{
		BytesSent:              bytesSent,
		DatagramsSent:          t.datagramsSent,
		DatagramsRetransmitted: t.datagramsRetransmitted,
		NacksServed:            t.nacksServed,
		NacksDroppedStale:      t.nacksDroppedStale,
	}
}

// NewTransport adopts an already-bound, already-connected UDP socket.
// cacheSize overrides the default 512-slot retransmit window when non-zero.
func NewTransport(conn net.Conn, cacheSize int, log logger.Logger) *Transport {
	return &Transport{
		conn:  conn,
		cache: newRetransmitCache(cacheSize),
		pool:  bufpool.DefaultPool(),
		log:   log,
	}
}

// SetDTLS attaches (or detaches, with nil) the encryption layer. Detaching
// before the DTLS channel is destroyed is the caller's responsibility per
// the borrowed-handle lifetime rule.
func (t *Transport) SetDTLS(ch *DTLSChannel) {
	t.dtlsMu.Lock()
	t.dtls = ch
	t.dtlsMu.Unlock()
}

// SetReceiveCallback installs the function invoked on every received
// datagram.
func (t *Transport) SetReceiveCallback(cb ReceiveCallback) {
	t.callbackMu.Lock()
	t.onReceive = cb
	t.callbackMu.Unlock()
}

// Send caches the datagram at seq mod cache-size (replacing any prior entry
// there), then transmits it, encrypting first if a DTLS channel is
// attached. Cache writes are infallible; the only error this returns is a
// socket or DTLS write failure.
func (t *Transport) Send(data []byte, seq uint16) error {
	t.cache.store(seq, data)
	if err := t.writeOut(data); err != nil {
		return err
	}
	t.statsMu.Lock()
	t.datagramsSent++
	t.statsMu.Unlock()
	return nil
}

// OnNack resends the cached bytes for each requested sequence whose slot
// still holds that exact sequence; stale slots (sequences that have fallen
// out of the 512-window, or been overwritten) are silently skipped. Resends
// are not re-cached.
func (t *Transport) OnNack(seqs []uint16) error {
	for _, seq := range seqs {
		data, ok := t.cache.lookup(seq)
		if !ok {
			t.statsMu.Lock()
			t.nacksDroppedStale++
			t.statsMu.Unlock()
			continue
		}
		if err := t.writeOut(data); err != nil {
			return err
		}
		t.statsMu.Lock()
		t.nacksServed++
		t.datagramsRetransmitted++
		t.statsMu.Unlock()
	}
	return nil
}

func (t *Transport) writeOut(data []byte) error {
	t.dtlsMu.Lock()
	ch := t.dtls
	t.dtlsMu.Unlock()

	var n int
	var err error
	if ch != nil {
		n, err = ch.Encrypt(data)
	} else {
		n, err = t.conn.Write(data)
	}
	if err != nil {
		return errors.NewSocketError("transport write failed", err)
	}

	t.sentMu.Lock()
	t.bytesSent += uint64(n)
	t.sentMu.Unlock()

	return nil
}

// ReceiveOne performs one non-blocking read. It returns (true, nil) after
// successfully dispatching one datagram to the receive callback, (false,
// nil) when nothing was ready within receiveTimeout, and (false, err) on a
// genuine socket or DTLS failure the session should tear down on.
func (t *Transport) ReceiveOne() (bool, error) {
	buf := t.pool.Get(scratchBufferSize)
	defer buf.Release()

	if err := t.conn.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
		return false, errors.NewSocketError("set read deadline failed", err)
	}

	t.dtlsMu.Lock()
	ch := t.dtls
	t.dtlsMu.Unlock()

	var n int
	var err error
	if ch != nil {
		n, err = ch.Decrypt(buf.Data())
	} else {
		n, err = t.conn.Read(buf.Data())
	}

	if err != nil {
		if isTimeout(err) {
			return false, nil
		}
		return false, errors.NewSocketError("transport read failed", err)
	}

	t.callbackMu.RLock()
	cb := t.onReceive
	t.callbackMu.RUnlock()

	if cb != nil {
		cb(buf.Data()[:n])
	}

	return true, nil
}

// TotalBytesSent returns the cumulative bytes sent, counted before
// encryption: with a DTLS channel attached this is the plaintext length
// handed to it, not the size of the records it writes to the socket.
func (t *Transport) TotalBytesSent() uint64 {
	t.sentMu.Lock()
	defer t.sentMu.Unlock()
	return t.bytesSent
}

// Close closes the underlying socket, unblocking any in-flight read.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// scratchBufferSize comfortably covers the 1400-octet MTU ceiling plus DTLS
// record overhead.
const scratchBufferSize = 2048

// isTimeout reports whether err, or any error it wraps (DTLSChannel.Decrypt
// wraps its read errors), is a net.Error timeout.
func isTimeout(err error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
