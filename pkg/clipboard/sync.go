package clipboard

import (
	"sync"
	"time"

	"github.com/nightcrane/deskstream/pkg/errors"
	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/wire"
)

type origin int

const (
	originLocal origin = iota
	originRemote
)

// SendFunc transmits an already-encoded clipboard or clipboard-ack datagram
// over the transport.
type SendFunc func(data []byte) error

// Config tunes the poll/debounce/retry cadence. Zero values fall back to
// the protocol's fixed defaults (200ms / 200ms / 200ms / 3 retries / 64KiB).
type Config struct {
	PollInterval     time.Duration
	DebounceInterval time.Duration
	RetryInterval    time.Duration
	MaxRetries       int
	MaxPayloadBytes  int
}

func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.DebounceInterval == 0 {
		c.DebounceInterval = 200 * time.Millisecond
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = 200 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = wire.MaxClipboardPayload
	}
	return c
}

// Sync is the clipboard synchronization worker: a 200ms poll loop for
// outbound changes, ACK-bounded retry for reliability, and origin tracking
// to suppress echo loops.
type Sync struct {
	io  IO
	cfg Config
	log logger.Logger

	mu sync.Mutex

	lastText   string
	lastOrigin origin

	pendingText  string
	havePending  bool
	pendingSince time.Time

	sendSeq uint16

	waitingAck    bool
	pendingAckSeq uint16
	pendingPacket []byte
	lastSendTime  time.Time
	retryCount    int

	retryTotal   uint64
	abandonTotal uint64

	send SendFunc

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSync constructs a Sync bound to the given OS clipboard collaborator.
func NewSync(io IO, cfg Config, log logger.Logger) *Sync {
	return &Sync{
		io:  io,
		cfg: cfg.withDefaults(),
		log: log,
	}
}

// Start begins the poll loop, sending outbound changes via send. Idempotent:
// calling Start while already running is a no-op.
func (s *Sync) Start(send SendFunc) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.send = send
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.monitorLoop()
}

// Stop halts the poll loop and waits for it to exit.
func (s *Sync) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	stopCh := s.doneCh
	s.mu.Unlock()

	<-stopCh
}

func (s *Sync) monitorLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sync) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	text, err := s.io.ReadUTF8()
	if err == nil {
		s.observeLocked(text)
	}

	s.retryLocked()
}

// observeLocked implements the change-detection, loop-suppression, and
// debounce rules for one poll tick. Caller holds s.mu.
func (s *Sync) observeLocked(text string) {
	if text == s.lastText {
		s.havePending = false
		return
	}

	if s.lastOrigin == originRemote {
		// The difference is our own echo of a just-applied remote write.
		// Flip back to LOCAL and adopt it silently; never send.
		s.lastOrigin = originLocal
		s.lastText = text
		s.havePending = false
		return
	}

	if len(text) == 0 || len(text) > s.cfg.MaxPayloadBytes {
		s.havePending = false
		return
	}

	now := time.Now()
	if s.havePending && s.pendingText == text {
		if now.Sub(s.pendingSince) >= s.cfg.DebounceInterval {
			s.lastText = text
			s.havePending = false
			s.sendOutboundLocked(text)
		}
		return
	}

	s.pendingText = text
	s.pendingSince = now
	s.havePending = true
}

func (s *Sync) sendOutboundLocked(text string) {
	s.sendSeq++
	seq := s.sendSeq

	payload := []byte(text)
	header := wire.ClipboardHeader{
		Direction: wire.DirectionViewerToHost,
		Seq:       seq,
		Format:    wire.ClipboardFormatUTF8,
		Length:    uint32(len(payload)),
	}
	packet := wire.EncodeClipboard(header, payload)

	s.pendingPacket = packet
	s.pendingAckSeq = seq
	s.waitingAck = true
	s.retryCount = 0
	s.lastSendTime = time.Now()

	if s.send != nil {
		s.send(packet)
	}
}

func (s *Sync) retryLocked() {
	if !s.waitingAck {
		return
	}

	if time.Since(s.lastSendTime) < s.cfg.RetryInterval {
		return
	}

	if s.retryCount >= s.cfg.MaxRetries {
		s.log.Warn("clipboard send abandoned after retry exhaustion",
			logger.Int("seq", int(s.pendingAckSeq)),
			logger.Int("attempts", s.retryCount),
		)
		s.waitingAck = false
		s.pendingPacket = nil
		s.abandonTotal++
		return
	}

	s.retryCount++
	s.retryTotal++
	s.lastSendTime = time.Now()
	if s.send != nil {
		s.send(s.pendingPacket)
	}
}

// Stats returns the cumulative retry and abandon counts across the life of
// this Sync, for metrics export.
func (s *Sync) Stats() (retries, abandons uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryTotal, s.abandonTotal
}

// OnClipboardReceived handles an inbound clipboard datagram (direction =
// host-to-viewer). On success it writes the OS clipboard, records the
// REMOTE origin to suppress the echo, and emits exactly one ACK.
func (s *Sync) OnClipboardReceived(buf []byte) error {
	header, payload, err := wire.DecodeClipboard(buf)
	if err != nil {
		return err
	}
	if header.Direction != wire.DirectionHostToViewer {
		return nil
	}
	if header.Format != wire.ClipboardFormatUTF8 {
		return errors.New(errors.ErrCodeClipboardInvalidFormat, "unsupported clipboard format")
	}
	if header.Length > uint32(s.cfg.MaxPayloadBytes) {
		return errors.New(errors.ErrCodeClipboardTooLarge, "clipboard payload exceeds maximum")
	}

	text := string(payload)

	s.mu.Lock()
	s.lastOrigin = originRemote
	s.mu.Unlock()

	if err := s.io.WriteUTF8(text); err != nil {
		return err
	}

	ack := wire.EncodeClipboardAck(wire.ClipboardAck{AckSeq: header.Seq})
	if s.send != nil {
		return s.send(ack)
	}
	return nil
}

// OnAckReceived handles an inbound ClipboardAck, clearing the pending send
// state if it matches the outstanding sequence.
func (s *Sync) OnAckReceived(buf []byte) error {
	ack, err := wire.DecodeClipboardAck(buf)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.waitingAck && ack.AckSeq == s.pendingAckSeq {
		s.waitingAck = false
		s.pendingPacket = nil
	}
	return nil
}
