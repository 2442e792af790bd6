package clipboard

import (
	"sync"
	"testing"
	"time"

	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/wire"
)

func testLogger() logger.Logger {
	return logger.NewDefaultLogger(logger.ErrorLevel, "text")
}

type capturedSend struct {
	mu   sync.Mutex
	sent [][]byte
}

func (c *capturedSend) fn(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *capturedSend) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func fastConfig() Config {
	return Config{
		PollInterval:     10 * time.Millisecond,
		DebounceInterval: 20 * time.Millisecond,
		RetryInterval:    30 * time.Millisecond,
		MaxRetries:       3,
		MaxPayloadBytes:  wire.MaxClipboardPayload,
	}
}

// TestClipboardLoopSuppression implements spec scenario 5: an inbound
// host-to-viewer clipboard packet is applied to the local OS clipboard, and
// the poll loop must not echo it back outbound.
func TestClipboardLoopSuppression(t *testing.T) {
	io := NewMemoryIO("")
	s := NewSync(io, fastConfig(), testLogger())
	cap := &capturedSend{}
	s.Start(cap.fn)
	defer s.Stop()

	packet := wire.EncodeClipboard(wire.ClipboardHeader{
		Direction: wire.DirectionHostToViewer,
		Seq:       1,
		Format:    wire.ClipboardFormatUTF8,
		Length:    5,
	}, []byte("hello"))

	if err := s.OnClipboardReceived(packet); err != nil {
		t.Fatalf("OnClipboardReceived: %v", err)
	}

	// Let several poll ticks pass; the loop must see its own echo and
	// suppress it rather than sending an outbound clipboard packet.
	time.Sleep(150 * time.Millisecond)

	if got := io.text; got != "hello" {
		t.Fatalf("local clipboard = %q, want %q", got, "hello")
	}

	// Exactly one send: the ACK for the inbound packet. No outbound
	// clipboard datagram should have been emitted.
	if cap.count() != 1 {
		t.Fatalf("sent %d packets, want 1 (just the ack)", cap.count())
	}

	ack, err := wire.DecodeClipboardAck(cap.sent[0])
	if err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack.AckSeq != 1 {
		t.Fatalf("ack seq = %d, want 1", ack.AckSeq)
	}
}

// TestClipboardRetryThenAbandon implements spec scenario 6: an outbound
// clipboard send that never receives an ACK is retransmitted up to
// MaxRetries times at RetryInterval, then abandoned.
func TestClipboardRetryThenAbandon(t *testing.T) {
	io := NewMemoryIO("")
	cfg := fastConfig()
	s := NewSync(io, cfg, testLogger())
	cap := &capturedSend{}
	s.Start(cap.fn)
	defer s.Stop()

	io.SetLocal("world")

	// Wait long enough for: debounce to settle (first send), plus
	// MaxRetries retransmits at RetryInterval, plus margin.
	deadline := time.Now().Add(cfg.DebounceInterval + time.Duration(cfg.MaxRetries+1)*cfg.RetryInterval + 200*time.Millisecond)
	for time.Now().Before(deadline) {
		if cap.count() >= cfg.MaxRetries+1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Initial send plus MaxRetries retransmits, all carrying the same
	// clipboard payload, then no further sends once abandoned.
	got := cap.count()
	if got != cfg.MaxRetries+1 {
		t.Fatalf("sent %d clipboard packets, want %d (1 initial + %d retries)", got, cfg.MaxRetries+1, cfg.MaxRetries)
	}

	for _, pkt := range cap.sent {
		header, payload, err := wire.DecodeClipboard(pkt)
		if err != nil {
			t.Fatalf("decode sent packet: %v", err)
		}
		if string(payload) != "world" {
			t.Fatalf("payload = %q, want %q", payload, "world")
		}
		if header.Seq != 1 {
			t.Fatalf("seq = %d, want 1 across every retry", header.Seq)
		}
	}

	// The last retransmit gets one more RetryInterval to be acknowledged;
	// the send is abandoned on the first tick after that.
	waiting := true
	abandonDeadline := time.Now().Add(2*cfg.RetryInterval + 200*time.Millisecond)
	for time.Now().Before(abandonDeadline) {
		s.mu.Lock()
		waiting = s.waitingAck
		s.mu.Unlock()
		if !waiting {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if waiting {
		t.Fatal("expected pending send to be abandoned, not still waiting on ack")
	}

	// No further sends after abandonment.
	before := cap.count()
	time.Sleep(cfg.RetryInterval * 2)
	if cap.count() != before {
		t.Fatalf("sent more packets after abandonment: before=%d after=%d", before, cap.count())
	}
}

// TestClipboardAckClearsRetry verifies that a matching ACK stops further
// retransmission of the same send.
func TestClipboardAckClearsRetry(t *testing.T) {
	io := NewMemoryIO("")
	cfg := fastConfig()
	s := NewSync(io, cfg, testLogger())
	cap := &capturedSend{}
	s.Start(cap.fn)
	defer s.Stop()

	io.SetLocal("ack-me")

	// Wait for the initial (debounced) send to go out.
	deadline := time.Now().Add(cfg.DebounceInterval + 200*time.Millisecond)
	for time.Now().Before(deadline) && cap.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if cap.count() == 0 {
		t.Fatal("expected at least one outbound send")
	}

	header, _, err := wire.DecodeClipboard(cap.sent[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	ack := wire.EncodeClipboardAck(wire.ClipboardAck{AckSeq: header.Seq})
	if err := s.OnAckReceived(ack); err != nil {
		t.Fatalf("OnAckReceived: %v", err)
	}

	s.mu.Lock()
	waiting := s.waitingAck
	s.mu.Unlock()
	if waiting {
		t.Fatal("expected waitingAck cleared after matching ack")
	}

	before := cap.count()
	time.Sleep(cfg.RetryInterval * 2)
	if cap.count() != before {
		t.Fatalf("expected no further retransmits after ack: before=%d after=%d", before, cap.count())
	}
}

// TestClipboardDebounceCollapsesRapidEdits verifies back-to-back edits
// within the debounce window collapse into a single outbound send of the
// final value.
func TestClipboardDebounceCollapsesRapidEdits(t *testing.T) {
	io := NewMemoryIO("")
	cfg := fastConfig()
	s := NewSync(io, cfg, testLogger())
	cap := &capturedSend{}
	s.Start(cap.fn)
	defer s.Stop()

	io.SetLocal("a")
	time.Sleep(cfg.PollInterval)
	io.SetLocal("ab")
	time.Sleep(cfg.PollInterval)
	io.SetLocal("abc")

	time.Sleep(cfg.DebounceInterval + cfg.PollInterval*3)

	if cap.count() == 0 {
		t.Fatal("expected the settled edit to be sent")
	}
	_, payload, err := wire.DecodeClipboard(cap.sent[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(payload) != "abc" {
		t.Fatalf("sent payload = %q, want final settled value %q", payload, "abc")
	}
}
