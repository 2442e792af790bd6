package gamepad

import (
	"sync"

	"github.com/nightcrane/deskstream/pkg/errors"
	"github.com/nightcrane/deskstream/pkg/logger"
	"github.com/nightcrane/deskstream/pkg/wire"
)

// MaxControllers is the XInput-derived slot limit; controller_id must be
// less than this to be accepted.
const MaxControllers = 4

type slot struct {
	created        bool
	lastSeq        uint16
	seqInitialized bool
}

// Ingest de-duplicates, reorder-discards, and forwards gamepad state to an
// Injector, with lazy per-slot creation. All state mutation is guarded by a
// single mutex so Release is safe against an in-flight Inject.
type Ingest struct {
	mu        sync.Mutex
	slots     [MaxControllers]slot
	injector  Injector
	available bool
	log       logger.Logger

	loggedUnavailable bool
}

// NewIngest initializes the injector and returns an Ingest ready to accept
// controller packets. Injector failure to initialize is logged once and
// degrades the feature rather than failing construction.
func NewIngest(injector Injector, log logger.Logger) *Ingest {
	ing := &Ingest{injector: injector, log: log}
	ing.available = injector.Init()
	if !ing.available {
		ing.logUnavailableOnce("injector reported unavailable at init")
	}
	return ing
}

func (ing *Ingest) logUnavailableOnce(reason string) {
	if ing.loggedUnavailable {
		return
	}
	ing.loggedUnavailable = true
	ing.log.Warn("gamepad injector unavailable", logger.String("reason", reason))
}

// Inject applies one ControllerState update, subject to the protocol's
// reorder/duplicate rejection and lazy slot creation. Old or duplicate
// packets are dropped with a nil return. An out-of-range slot, an
// unavailable injector, or an injector failure returns an error, which is
// never fatal to the session (matching the InjectorUnavailable philosophy
// in the error taxonomy) and is meant only for callers to log/count.
func (ing *Ingest) Inject(pkt wire.ControllerState) error {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	if pkt.ControllerID >= MaxControllers {
		return errors.New(errors.ErrCodeInvalidSlot, "controller_id out of range")
	}
	if !ing.available {
		return errors.NewInjectorUnavailableError("no injector attached")
	}

	s := &ing.slots[pkt.ControllerID]

	if s.seqInitialized {
		diff := wire.SeqDiff(pkt.Seq, s.lastSeq)
		if diff <= 0 {
			return nil // old or duplicate; silently dropped per protocol
		}
	}
	s.lastSeq = pkt.Seq
	s.seqInitialized = true

	if !s.created {
		if err := ing.injector.CreateSlot(pkt.ControllerID); err != nil {
			return errors.Wrap(errors.ErrCodeInjectorUnavailable, "failed to create controller slot", err)
		}
		s.created = true
	}

	return ing.injector.UpdateSlot(pkt.ControllerID, slotStateFromWire(pkt))
}

// Release removes every allocated slot, disconnects from the injector, and
// marks the ingest unavailable. Idempotent.
func (ing *Ingest) Release() {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	if !ing.available {
		return
	}

	for i := range ing.slots {
		if ing.slots[i].created {
			ing.injector.RemoveSlot(uint8(i))
		}
		ing.slots[i] = slot{}
	}
	ing.injector.Shutdown()
	ing.available = false
}

// Available reports whether the injector is currently attached.
func (ing *Ingest) Available() bool {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.available
}
