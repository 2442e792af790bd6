package gamepad

import "github.com/nightcrane/deskstream/pkg/wire"

// SlotState is the per-frame gamepad state forwarded to an injector.
type SlotState struct {
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

func slotStateFromWire(s wire.ControllerState) SlotState {
	return SlotState{
		Buttons:      s.Buttons,
		LeftTrigger:  s.LeftTrigger,
		RightTrigger: s.RightTrigger,
		ThumbLX:      s.ThumbLX,
		ThumbLY:      s.ThumbLY,
		ThumbRX:      s.ThumbRX,
		ThumbRY:      s.ThumbRY,
	}
}

// Injector is the virtual-gamepad bus collaborator this package consumes.
// Only the interface is specified here; a real binding (ViGEmBus, uinput,
// …) is supplied by the embedder.
type Injector interface {
	// Init acquires the injector's underlying bus handle. Returns false if
	// the bus is unavailable; this degrades the feature, it never fails
	// the session.
	Init() bool

	// CreateSlot lazily allocates a virtual controller for index (0-3).
	CreateSlot(index uint8) error

	// UpdateSlot forwards a full state update to an already-created slot.
	UpdateSlot(index uint8, state SlotState) error

	// RemoveSlot releases a single slot's virtual controller.
	RemoveSlot(index uint8) error

	// Shutdown releases the bus handle itself.
	Shutdown()
}

// NoopInjector is the default Injector: it reports itself unavailable and
// reports the reason through its callback in Init, mirroring the original's graceful-degradation
// behavior when the virtual-bus driver isn't present. Callers that want
// real gamepad injection supply their own Injector instead.
type NoopInjector struct {
	onUnavailable func(reason string)
}

// NewNoopInjector creates a NoopInjector. onUnavailable, if non-nil, is
// called once during Init with a human-readable reason.
func NewNoopInjector(onUnavailable func(reason string)) *NoopInjector {
	return &NoopInjector{onUnavailable: onUnavailable}
}

func (n *NoopInjector) Init() bool {
	if n.onUnavailable != nil {
		n.onUnavailable("no virtual-gamepad bus binding configured")
	}
	return false
}

func (n *NoopInjector) CreateSlot(index uint8) error              { return nil }
func (n *NoopInjector) UpdateSlot(index uint8, state SlotState) error { return nil }
func (n *NoopInjector) RemoveSlot(index uint8) error              { return nil }
func (n *NoopInjector) Shutdown()                                 {}
