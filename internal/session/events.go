package session

import "github.com/limpsquid/go-remote-window/internal/wire"

// Event is the closed sum-type of everything a Connection delivers to its
// owner (Server or Client). This replaces the source's dynamic
// observer/signal coupling (spec §9 Design Notes) with a Go channel of
// typed variants: the owner type-switches on the concrete type.
type Event interface {
	isEvent()
}

type baseEvent struct{}

func (baseEvent) isEvent() {}

// WindowCaptureReceived carries one opaque, generically-compressed JPEG
// blob; the core never interprets its bytes.
type WindowCaptureReceived struct {
	baseEvent
	Data []byte
}

type MouseMoveReceived struct {
	baseEvent
	Point wire.Point
}

type MousePressReceived struct {
	baseEvent
	Button    int32
	Point     wire.Point
	Modifiers int32
}

type MouseReleaseReceived struct {
	baseEvent
	Button    int32
	Point     wire.Point
	Modifiers int32
}

type MouseClickReceived struct {
	baseEvent
	Button    int32
	Point     wire.Point
	Modifiers int32
}

type KeyPressReceived struct {
	baseEvent
	Key       int32
	Modifiers int32
}

type KeyReleaseReceived struct {
	baseEvent
	Key       int32
	Modifiers int32
}

type ChatMessageReceived struct {
	baseEvent
	Text string
}

// SessionStateChanged is emitted on every SessionState transition,
// including the ones a Connection drives on itself (e.g. client-role
// Joining on connect).
type SessionStateChanged struct {
	baseEvent
	State State
}

// Disconnected is the terminal event: it is always the last event a
// Connection emits before its Events channel is closed.
type Disconnected struct {
	baseEvent
	Err error
}
