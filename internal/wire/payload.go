package wire

import (
	"encoding/binary"
	"fmt"
)

// Point is a 2D integer screen coordinate.
type Point struct {
	X int32
	Y int32
}

// EncodePoint serializes a Point as two little-endian int32 fields.
func EncodePoint(p Point) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.X))
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.Y))
	return b
}

// DecodePoint parses the payload written by EncodePoint.
func DecodePoint(b []byte) (Point, error) {
	if len(b) < 8 {
		return Point{}, fmt.Errorf("wire: point payload too short (%d bytes)", len(b))
	}
	return Point{
		X: int32(binary.LittleEndian.Uint32(b[0:4])),
		Y: int32(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// MouseEvent is the payload shape shared by MousePress/MouseRelease/MouseClick.
type MouseEvent struct {
	Button    int32
	Point     Point
	Modifiers int32
}

// EncodeMouseEvent serializes button, point, modifiers in that order.
func EncodeMouseEvent(ev MouseEvent) []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint32(b[0:4], uint32(ev.Button))
	binary.LittleEndian.PutUint32(b[4:8], uint32(ev.Point.X))
	binary.LittleEndian.PutUint32(b[8:12], uint32(ev.Point.Y))
	binary.LittleEndian.PutUint32(b[12:16], uint32(ev.Modifiers))
	return b
}

// DecodeMouseEvent parses the payload written by EncodeMouseEvent.
func DecodeMouseEvent(b []byte) (MouseEvent, error) {
	if len(b) < 16 {
		return MouseEvent{}, fmt.Errorf("wire: mouse event payload too short (%d bytes)", len(b))
	}
	return MouseEvent{
		Button: int32(binary.LittleEndian.Uint32(b[0:4])),
		Point: Point{
			X: int32(binary.LittleEndian.Uint32(b[4:8])),
			Y: int32(binary.LittleEndian.Uint32(b[8:12])),
		},
		Modifiers: int32(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}

// KeyEvent is the payload shape shared by KeyPress/KeyRelease.
type KeyEvent struct {
	Key       int32
	Modifiers int32
}

// EncodeKeyEvent serializes key, modifiers in that order.
func EncodeKeyEvent(ev KeyEvent) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], uint32(ev.Key))
	binary.LittleEndian.PutUint32(b[4:8], uint32(ev.Modifiers))
	return b
}

// DecodeKeyEvent parses the payload written by EncodeKeyEvent.
func DecodeKeyEvent(b []byte) (KeyEvent, error) {
	if len(b) < 8 {
		return KeyEvent{}, fmt.Errorf("wire: key event payload too short (%d bytes)", len(b))
	}
	return KeyEvent{
		Key:       int32(binary.LittleEndian.Uint32(b[0:4])),
		Modifiers: int32(binary.LittleEndian.Uint32(b[4:8])),
	}, nil
}

// EncodeChatMessage serializes a chat string as a 4-byte little-endian
// byte count followed by the UTF-8 bytes. Callers are responsible for
// truncating to CHAT_MSG_MAX_SIZE before calling this (see internal/chat).
func EncodeChatMessage(s string) []byte {
	raw := []byte(s)
	b := make([]byte, 4+len(raw))
	binary.LittleEndian.PutUint32(b[0:4], uint32(len(raw)))
	copy(b[4:], raw)
	return b
}

// DecodeChatMessage parses the payload written by EncodeChatMessage.
func DecodeChatMessage(b []byte) (string, error) {
	if len(b) < 4 {
		return "", fmt.Errorf("wire: chat payload too short (%d bytes)", len(b))
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	if uint64(n) > uint64(len(b)-4) {
		return "", fmt.Errorf("wire: chat payload length %d exceeds available %d bytes", n, len(b)-4)
	}
	return string(b[4 : 4+n]), nil
}
