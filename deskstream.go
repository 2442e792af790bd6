// Package deskstream composes the wire codec, UDP transport, controller
// ingest, and clipboard sync packages into one session object binding a
// host and viewer across a single DTLS-protected socket.
package deskstream

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/nightcrane/deskstream/pkg/analytics"
	"github.com/nightcrane/deskstream/pkg/clipboard"
	"github.com/nightcrane/deskstream/pkg/config"
	"github.com/nightcrane/deskstream/pkg/errors"
	"github.com/nightcrane/deskstream/pkg/gamepad"
	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/transport"
	"github.com/nightcrane/deskstream/pkg/wire"
)

// VideoFrameHandler receives decoded inbound video datagrams.
type VideoFrameHandler func(header wire.VideoHeader, payload []byte)

// AudioFrameHandler receives decoded inbound audio datagrams.
type AudioFrameHandler func(header wire.AudioHeader, payload []byte)

// InputEventHandler receives decoded inbound input datagrams.
type InputEventHandler func(header wire.InputHeader, payload []byte)

// Session binds one host/viewer pair: a socket, an optional DTLS channel, a
// QoS estimator, controller ingest, and clipboard sync, all driving off a
// single receive loop.
type Session struct {
	ID string

	cfg *config.Config
	log logger.Logger

	transport *transport.Transport
	dtls      *transport.DTLSChannel
	qos       *transport.QosEstimator
	gamepad   *gamepad.Ingest
	clipboard *clipboard.Sync

	mu        sync.Mutex
	sendSeq   uint16
	running   bool

	onVideo VideoFrameHandler
	onAudio AudioFrameHandler
	onInput InputEventHandler

	counters sessionCounters

	feedbackMu   sync.Mutex
	lastFeedback wire.QosFeedback
}

type sessionCounters struct {
	mu                 sync.Mutex
	controllerAccepted uint64
	controllerDropped  uint64
	clipboardSends     uint64
}

// Options configures a new Session. Conn must already be a connected UDP
// socket (see net.DialUDP). A DTLS channel passed in DTLS must already have
// completed DTLSChannel.Handshake (which includes the version-tag exchange);
// the Session performs no handshake itself.
type Options struct {
	Conn       net.Conn
	Config     *config.Config
	Logger     logger.Logger
	DTLS       *transport.DTLSChannel // nil disables encryption (tests, loopback)
	Injector   gamepad.Injector       // nil uses a graceful no-op injector
	ClipboardIO clipboard.IO          // nil uses an in-memory stand-in
}

// New constructs a Session. The transport, QoS estimator, controller
// ingest, and clipboard sync are wired together but not yet started.
func New(opts Options) (*Session, error) {
	if opts.Conn == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "session requires a connected socket")
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewDefaultLogger(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	}

	injector := opts.Injector
	if injector == nil {
		injector = gamepad.NewNoopInjector(func(reason string) {
			log.Warn("gamepad injector unavailable", logger.String("reason", reason))
		})
	}

	clipIO := opts.ClipboardIO
	if clipIO == nil {
		clipIO = clipboard.NewMemoryIO("")
	}

	t := transport.NewTransport(opts.Conn, cfg.Transport.CacheSize, log)
	if opts.DTLS != nil {
		t.SetDTLS(opts.DTLS)
	}

	s := &Session{
		ID:        uuid.NewString(),
		cfg:       cfg,
		log:       log,
		transport: t,
		dtls:      opts.DTLS,
		qos:       transport.NewQosEstimator(log),
		gamepad:   gamepad.NewIngest(injector, log),
		clipboard: clipboard.NewSync(clipIO, clipboard.Config{
			PollInterval:     cfg.Clipboard.PollInterval,
			DebounceInterval: cfg.Clipboard.DebounceInterval,
			RetryInterval:    cfg.Clipboard.RetryInterval,
			MaxRetries:       cfg.Clipboard.MaxRetries,
			MaxPayloadBytes:  cfg.Clipboard.MaxPayloadBytes,
		}, log),
	}

	t.SetReceiveCallback(s.handleDatagram)

	return s, nil
}

// Start marks the session running and begins the clipboard poll loop. It
// does not receive: the receive loop is Run, which callers start in their
// own goroutine after Start.
func (s *Session) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.clipboard.Start(s.sendClipboardDatagram)
}

// Stop halts the clipboard loop, releases the controller injector, and
// closes the socket.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.clipboard.Stop()
	s.gamepad.Release()
	return s.transport.Close()
}

// Run drives one blocking receive loop, calling ReceiveOne until it returns
// an error or the session is stopped. Intended to run in its own goroutine.
func (s *Session) Run() error {
	for {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return nil
		}

		if _, err := s.transport.ReceiveOne(); err != nil {
			return err
		}
	}
}

// OnVideoFrame registers the handler invoked for inbound video datagrams.
func (s *Session) OnVideoFrame(h VideoFrameHandler) { s.onVideo = h }

// OnAudioFrame registers the handler invoked for inbound audio datagrams.
func (s *Session) OnAudioFrame(h AudioFrameHandler) { s.onAudio = h }

// OnInputEvent registers the handler invoked for inbound input datagrams.
func (s *Session) OnInputEvent(h InputEventHandler) { s.onInput = h }

func (s *Session) nextSeq() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendSeq++
	return s.sendSeq
}

// SendVideoFrame encodes and transmits one video datagram.
func (s *Session) SendVideoFrame(header wire.VideoHeader, payload []byte) error {
	header.Seq = s.nextSeq()
	header.PayloadLength = uint32(len(payload))
	datagram := wire.EncodeVideo(header, payload)
	return s.send(datagram, header.Seq)
}

// SendAudioFrame encodes and transmits one audio datagram.
func (s *Session) SendAudioFrame(header wire.AudioHeader, payload []byte) error {
	header.Seq = s.nextSeq()
	datagram := wire.EncodeAudio(header, payload)
	return s.send(datagram, header.Seq)
}

// SendInputEvent encodes and transmits one input datagram.
func (s *Session) SendInputEvent(subType wire.InputSubType, payload []byte) error {
	header := wire.InputHeader{SubType: subType, PayloadLength: uint16(len(payload))}
	datagram := wire.EncodeInput(header, payload)
	return s.send(datagram, s.nextSeq())
}

// SendControllerState encodes and transmits one controller-state datagram.
func (s *Session) SendControllerState(state wire.ControllerState) error {
	datagram := wire.EncodeController(state)
	return s.send(datagram, s.nextSeq())
}

// SendQosFeedback builds and transmits a QoS feedback datagram summarizing
// the receive-side estimator's current window.
func (s *Session) SendQosFeedback(windowSeconds float64) error {
	feedback := s.qos.BuildFeedback(windowSeconds)

	s.feedbackMu.Lock()
	s.lastFeedback = feedback
	s.feedbackMu.Unlock()

	datagram := wire.EncodeQosFeedback(feedback)
	return s.send(datagram, s.nextSeq())
}

func (s *Session) send(datagram []byte, seq uint16) error {
	if len(datagram) > s.cfg.Transport.MaxDatagramBytes {
		return errors.New(errors.ErrCodePayloadTooBig, fmt.Sprintf("datagram of %d bytes exceeds max %d", len(datagram), s.cfg.Transport.MaxDatagramBytes))
	}
	return s.transport.Send(datagram, seq)
}

func (s *Session) sendClipboardDatagram(data []byte) error {
	s.counters.mu.Lock()
	s.counters.clipboardSends++
	s.counters.mu.Unlock()
	return s.transport.Send(data, s.nextSeq())
}

// handleDatagram is the transport's single inbound dispatch point: identify
// the variant, decode, and route to the owning subsystem.
func (s *Session) handleDatagram(buf []byte) {
	switch wire.Identify(buf) {
	case wire.Video:
		header, payload, err := wire.DecodeVideo(buf)
		if err != nil {
			s.log.Debug("drop malformed video datagram", logger.Err(err))
			return
		}
		s.qos.OnDatagram(header.Seq, len(buf), 0)
		if s.onVideo != nil {
			s.onVideo(header, payload)
		}

	case wire.Audio:
		header, payload, err := wire.DecodeAudio(buf)
		if err != nil {
			s.log.Debug("drop malformed audio datagram", logger.Err(err))
			return
		}
		s.qos.OnDatagram(header.Seq, len(buf), 0)
		if s.onAudio != nil {
			s.onAudio(header, payload)
		}

	case wire.Input:
		header, payload, err := wire.DecodeInput(buf)
		if err != nil {
			s.log.Debug("drop malformed input datagram", logger.Err(err))
			return
		}
		if s.onInput != nil {
			s.onInput(header, payload)
		}

	case wire.Controller:
		state, err := wire.DecodeController(buf)
		if err != nil {
			s.log.Debug("drop malformed controller datagram", logger.Err(err))
			return
		}
		if err := s.gamepad.Inject(state); err != nil {
			s.counters.mu.Lock()
			s.counters.controllerDropped++
			s.counters.mu.Unlock()
			return
		}
		s.counters.mu.Lock()
		s.counters.controllerAccepted++
		s.counters.mu.Unlock()

	case wire.Clipboard:
		if err := s.clipboard.OnClipboardReceived(buf); err != nil {
			s.log.Warn("clipboard receive failed", logger.Err(err))
		}

	case wire.ClipboardAckType:
		if err := s.clipboard.OnAckReceived(buf); err != nil {
			s.log.Debug("drop malformed clipboard ack", logger.Err(err))
		}

	case wire.QosFeedbackType:
		feedback, err := wire.DecodeQosFeedback(buf)
		if err != nil {
			s.log.Debug("drop malformed qos feedback", logger.Err(err))
			return
		}
		if err := s.transport.OnNack(feedback.NackSeqs); err != nil {
			s.log.Warn("nack retransmit failed", logger.Err(err))
		}

	case wire.FEC, wire.NACK:
		// Opaque at this layer; no decoder is specified for either. FEC
		// recovery and ad-hoc NACK packets (distinct from the tail carried
		// in QosFeedback) are external-collaborator concerns.

	default:
		s.log.Debug("dropped unidentified datagram", logger.Int("bytes", len(buf)))
	}
}

// Snapshot satisfies analytics.SessionMetricsSource, giving the Prometheus
// exporter a consistent point-in-time read of every counter this session
// tracks.
func (s *Session) Snapshot() analytics.SessionMetricsValues {
	ts := s.transport.Stats()

	s.counters.mu.Lock()
	controllerAccepted := s.counters.controllerAccepted
	controllerDropped := s.counters.controllerDropped
	clipboardSends := s.counters.clipboardSends
	s.counters.mu.Unlock()

	clipboardRetries, clipboardAbandons := s.clipboard.Stats()

	s.feedbackMu.Lock()
	feedback := s.lastFeedback
	s.feedbackMu.Unlock()

	return analytics.SessionMetricsValues{
		BytesSent:              ts.BytesSent,
		DatagramsSent:          ts.DatagramsSent,
		DatagramsRetransmitted: ts.DatagramsRetransmitted,
		NacksServed:            ts.NacksServed,
		NacksDroppedStale:      ts.NacksDroppedStale,
		ControllerAccepted:     controllerAccepted,
		ControllerDropped:      controllerDropped,
		ClipboardSends:         clipboardSends,
		ClipboardRetries:       clipboardRetries,
		ClipboardAbandons:      clipboardAbandons,
		EstimatedBandwidthKbps: int32(feedback.EstBwKbps),
		LossX100:               int32(feedback.LossX100),
		JitterUs:               int32(feedback.JitterUs),
	}
}
