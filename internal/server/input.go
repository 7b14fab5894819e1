package server

import (
	"context"
	"image"

	"github.com/limpsquid/go-remote-window/internal/logging"
	"github.com/limpsquid/go-remote-window/internal/wire"
)

// WindowHandle identifies the on-screen window to capture/inject into.
// Its concrete representation is entirely host-defined; the core treats
// it as opaque (spec §6).
type WindowHandle any

// CaptureFunc produces a raw captured frame for window on demand. The
// server's tick performs the JPEG encode and generic-compression steps
// itself (spec §4.4 steps 2-3); a CaptureFunc never hands back an
// already-encoded blob. A nil image (no window available) is treated as
// "nothing to broadcast this tick" rather than an error.
type CaptureFunc func(ctx context.Context, window WindowHandle) (image.Image, error)

// InputSink is the core->host contract for injected pointer/keyboard
// events (spec §6 "Input-sink contract"). Called from the connection's
// own event-routing goroutine, never concurrently for the same
// connection.
type InputSink interface {
	ApplyMouseMove(wire.Point)
	ApplyMousePress(wire.MouseEvent)
	ApplyMouseRelease(wire.MouseEvent)
	ApplyMouseClick(wire.MouseEvent)
	ApplyKeyPress(wire.KeyEvent)
	ApplyKeyRelease(wire.KeyEvent)
}

// NopInputSink discards every event; the zero-value default when a host
// doesn't wire a real injector (e.g. headless tests).
type NopInputSink struct{}

func (NopInputSink) ApplyMouseMove(wire.Point)       {}
func (NopInputSink) ApplyMousePress(wire.MouseEvent)   {}
func (NopInputSink) ApplyMouseRelease(wire.MouseEvent) {}
func (NopInputSink) ApplyMouseClick(wire.MouseEvent)   {}
func (NopInputSink) ApplyKeyPress(wire.KeyEvent)       {}
func (NopInputSink) ApplyKeyRelease(wire.KeyEvent)     {}

// LogInputSink logs every applied event via internal/logging instead of
// driving a real window; grounded on the teacher's dummySend test-double
// pattern, promoted here to a usable default for hosts without a GUI.
type LogInputSink struct{}

func (LogInputSink) ApplyMouseMove(p wire.Point) {
	logging.L().Debug("input_mouse_move", "x", p.X, "y", p.Y)
}

func (LogInputSink) ApplyMousePress(ev wire.MouseEvent) {
	logging.L().Debug("input_mouse_press", "button", ev.Button, "x", ev.Point.X, "y", ev.Point.Y, "mods", ev.Modifiers)
}

func (LogInputSink) ApplyMouseRelease(ev wire.MouseEvent) {
	logging.L().Debug("input_mouse_release", "button", ev.Button, "x", ev.Point.X, "y", ev.Point.Y, "mods", ev.Modifiers)
}

func (LogInputSink) ApplyMouseClick(ev wire.MouseEvent) {
	logging.L().Debug("input_mouse_click", "button", ev.Button, "x", ev.Point.X, "y", ev.Point.Y, "mods", ev.Modifiers)
}

func (LogInputSink) ApplyKeyPress(ev wire.KeyEvent) {
	logging.L().Debug("input_key_press", "key", ev.Key, "mods", ev.Modifiers)
}

func (LogInputSink) ApplyKeyRelease(ev wire.KeyEvent) {
	logging.L().Debug("input_key_release", "key", ev.Key, "mods", ev.Modifiers)
}
