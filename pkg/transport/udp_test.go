package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/nightcrane/deskstream/pkg/logger"
)

// loopbackPair returns two UDP net.Conns, each connected to the other's
// address, for in-process transport tests.
func loopbackPair(t *testing.T) (a, b net.Conn) {
	t.Helper()

	la, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen a: %v", err)
	}
	lb, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("listen b: %v", err)
	}
	addrA := la.LocalAddr().(*net.UDPAddr)
	addrB := lb.LocalAddr().(*net.UDPAddr)
	la.Close()
	lb.Close()

	connA, err := net.DialUDP("udp", addrA, addrB)
	if err != nil {
		t.Fatalf("dial a->b: %v", err)
	}
	connB, err := net.DialUDP("udp", addrB, addrA)
	if err != nil {
		t.Fatalf("dial b->a: %v", err)
	}

	t.Cleanup(func() {
		connA.Close()
		connB.Close()
	})

	return connA, connB
}

func newTestLogger() logger.Logger {
	return logger.NewDefaultLogger(logger.ErrorLevel, "text")
}

func TestTransportSendReceivePlaintext(t *testing.T) {
	connA, connB := loopbackPair(t)
	log := newTestLogger()

	sender := NewTransport(connA, 512, log)
	receiver := NewTransport(connB, 512, log)

	received := make(chan []byte, 1)
	receiver.SetReceiveCallback(func(datagram []byte) {
		cp := make([]byte, len(datagram))
		copy(cp, datagram)
		received <- cp
	})

	if err := sender.Send([]byte("hello"), 0); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ok, err := receiver.ReceiveOne()
	if err != nil {
		t.Fatalf("ReceiveOne: %v", err)
	}
	if !ok {
		t.Fatal("expected a datagram to be ready")
	}

	select {
	case got := <-received:
		if !bytes.Equal(got, []byte("hello")) {
			t.Fatalf("got %q, want %q", got, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestTransportReceiveOneNonBlockingWhenIdle(t *testing.T) {
	_, connB := loopbackPair(t)
	receiver := NewTransport(connB, 512, newTestLogger())

	start := time.Now()
	ok, err := receiver.ReceiveOne()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("ReceiveOne: %v", err)
	}
	if ok {
		t.Fatal("expected no datagram ready")
	}
	if elapsed > time.Second {
		t.Fatalf("ReceiveOne blocked for %v, want near-immediate return", elapsed)
	}
}

func TestTransportNackRetransmitsExactCachedBytes(t *testing.T) {
	connA, connB := loopbackPair(t)
	log := newTestLogger()

	sender := NewTransport(connA, 512, log)
	receiver := NewTransport(connB, 512, log)

	var gotSeqs [][]byte
	received := make(chan struct{}, 8)
	receiver.SetReceiveCallback(func(datagram []byte) {
		cp := make([]byte, len(datagram))
		copy(cp, datagram)
		gotSeqs = append(gotSeqs, cp)
		received <- struct{}{}
	})

	payload1 := []byte("seq-one-payload")
	for seq, data := range map[uint16][]byte{0: []byte("seq-zero"), 1: payload1, 2: []byte("seq-two")} {
		if err := sender.Send(data, seq); err != nil {
			t.Fatalf("Send(%d): %v", seq, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := receiver.ReceiveOne(); err != nil {
			t.Fatalf("ReceiveOne: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		<-received
	}

	// NACK for seq=1: the transport must resend the exact cached bytes.
	if err := sender.OnNack([]uint16{1}); err != nil {
		t.Fatalf("OnNack: %v", err)
	}
	if _, err := receiver.ReceiveOne(); err != nil {
		t.Fatalf("ReceiveOne after nack: %v", err)
	}
	<-received

	last := gotSeqs[len(gotSeqs)-1]
	if !bytes.Equal(last, payload1) {
		t.Fatalf("retransmit payload = %q, want %q", last, payload1)
	}
}

func TestTransportNackForOverwrittenSlotIsNoop(t *testing.T) {
	connA, _ := loopbackPair(t)
	sender := NewTransport(connA, 512, newTestLogger())

	sender.Send([]byte("one"), 1)
	sender.Send([]byte("five-thirteen"), 513) // same slot as seq 1

	// A later NACK for 1 finds a stale slot and must be silently skipped,
	// not resend seq 513's bytes under seq 1's name.
	if err := sender.OnNack([]uint16{1}); err != nil {
		t.Fatalf("OnNack on stale slot returned error: %v", err)
	}
}
