// Package imaging provides the generic compression step and the
// quality-controlled JPEG encode step the capture pipeline applies before
// a window snapshot goes on the wire. Both are opaque to the session and
// hub packages, which only ever see the resulting byte blob.
package imaging

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// Compress runs the generic compression step over an already-encoded
// image blob (spec §2 item 3: "the generic compression step").
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("imaging: new flate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("imaging: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("imaging: flush compress: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress. Callers on the client side run this
// before handing the result to a JPEG decoder for display.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("imaging: decompress: %w", err)
	}
	return out, nil
}
