package wire

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func mustDecodeOne(t *testing.T, buf []byte) (Message, int) {
	t.Helper()
	msg, consumed, action := Decode(buf)
	if action != FrameReady {
		t.Fatalf("Decode action = %v, want FrameReady", action)
	}
	return msg, consumed
}

// P1: framing round-trip.
func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 16, 4096, 1 << 20}
	for _, n := range sizes {
		payload := make([]byte, n)
		_, _ = rand.Read(payload)

		wire := Encode(CommandWindowCapture, payload)
		msg, consumed := mustDecodeOne(t, wire)
		if consumed != len(wire) {
			t.Fatalf("size %d: consumed %d, want %d", n, consumed, len(wire))
		}
		if msg.Command != CommandWindowCapture {
			t.Fatalf("size %d: command = %v", n, msg.Command)
		}
		if !bytes.Equal(msg.Payload, payload) {
			t.Fatalf("size %d: payload mismatch", n)
		}
	}
}

// P2: fragmentation — any chunking of one encoded frame yields exactly
// the same decoded message once all bytes have arrived.
func TestFragmentation(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")
	wire := Encode(CommandChatMessage, payload)

	chunkSizes := []int{1, 2, 3, 7, len(wire)}
	for _, cs := range chunkSizes {
		var buf []byte
		decoded := 0
		for off := 0; off < len(wire); off += cs {
			end := off + cs
			if end > len(wire) {
				end = len(wire)
			}
			buf = append(buf, wire[off:end]...)
			msg, consumed, action := Decode(buf)
			if action == FrameReady {
				if consumed != len(buf) {
					t.Fatalf("chunk %d: consumed %d, want %d (premature completion)", cs, consumed, len(buf))
				}
				if msg.Command != CommandChatMessage || !bytes.Equal(msg.Payload, payload) {
					t.Fatalf("chunk %d: decoded mismatch", cs)
				}
				decoded++
			}
		}
		if decoded != 1 {
			t.Fatalf("chunk %d: decoded %d frames, want 1", cs, decoded)
		}
	}
}

// P3: batching — N frames concatenated into one buffer decode to the same
// N frames in order.
func TestBatching(t *testing.T) {
	var all []byte
	want := []Message{
		{Command: CommandMouseMove, Payload: EncodePoint(Point{X: 1, Y: 2})},
		{Command: CommandChatMessage, Payload: EncodeChatMessage("hi")},
		{Command: CommandKeyPress, Payload: EncodeKeyEvent(KeyEvent{Key: 65, Modifiers: 0})},
	}
	for _, m := range want {
		all = append(all, Encode(m.Command, m.Payload)...)
	}

	var got []Message
	for len(all) > 0 {
		msg, consumed, action := Decode(all)
		if action != FrameReady {
			t.Fatalf("unexpected action %v mid-batch", action)
		}
		got = append(got, msg)
		all = all[consumed:]
	}
	if len(got) != len(want) {
		t.Fatalf("got %d frames, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Command != want[i].Command || !bytes.Equal(got[i].Payload, want[i].Payload) {
			t.Fatalf("frame %d mismatch: got %+v want %+v", i, got[i], want[i])
		}
	}
}

// P4: resync after corruption — garbage || frame1-with-corrupted-end ||
// frame2 yields Resync; frame2, delivered again after the caller clears
// its buffer, then decodes.
func TestResync(t *testing.T) {
	f1 := Encode(CommandMouseMove, EncodePoint(Point{X: 1, Y: 1}))
	f2 := Encode(CommandMouseMove, EncodePoint(Point{X: 2, Y: 2}))

	corrupted := append([]byte{}, f1...)
	corrupted[len(corrupted)-1] = 0xFF // flip END marker

	buf := append([]byte("garbage-before-start"), corrupted...)
	buf = append(buf, f2...)

	msg, consumed, action := Decode(buf)
	if action != Resync {
		t.Fatalf("expected Resync for corrupted end marker, got %v", action)
	}
	_ = msg
	_ = consumed
	// Caller discards the *entire* buffer on Resync; decode f2 is now the
	// only thing recoverable from the remaining bytes after the clear.
	msg2, consumed2, action2 := Decode(f2)
	if action2 != FrameReady {
		t.Fatalf("expected FrameReady decoding f2 post-resync, got %v", action2)
	}
	if consumed2 != len(f2) {
		t.Fatalf("consumed2 = %d, want %d", consumed2, len(f2))
	}
	p, err := DecodePoint(msg2.Payload)
	if err != nil {
		t.Fatalf("decode point: %v", err)
	}
	if p != (Point{X: 2, Y: 2}) {
		t.Fatalf("point = %+v, want {2 2}", p)
	}
}

func TestDecodeNeedsMoreData(t *testing.T) {
	wire := Encode(CommandJoinSession, nil)
	for i := 0; i < len(wire); i++ {
		_, _, action := Decode(wire[:i])
		if action == FrameReady {
			t.Fatalf("prefix of length %d unexpectedly decoded as FrameReady", i)
		}
	}
}

func TestDecodeMalformedCommandIsDropped(t *testing.T) {
	// Build a frame by hand with an invalid (non-numeric) base64 command field.
	var buf bytes.Buffer
	buf.WriteByte(startMarker)
	buf.WriteString("not-valid-decimal-base64!!")
	buf.WriteByte(payloadSizeMarker)
	buf.WriteString("MA==") // base64(ascii("0")) -> payload length 0, parses fine
	buf.WriteByte(payloadMarker)
	buf.WriteByte(endMarker)

	_, consumed, action := Decode(buf.Bytes())
	if action != FrameDropped {
		t.Fatalf("expected FrameDropped for malformed command field, got %v (consumed=%d)", action, consumed)
	}
	if consumed != buf.Len() {
		t.Fatalf("consumed = %d, want %d", consumed, buf.Len())
	}
}
