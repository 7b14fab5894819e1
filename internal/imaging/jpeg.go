package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

// EncodeJPEG encodes img at the given quality, where quality is the
// configuration-surface value in [0.0, 1.0] (spec §6), rescaled to the
// stdlib's 1..100 range.
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	if quality < 0 {
		quality = 0
	}
	if quality > 1 {
		quality = 1
	}
	q := int(quality*99) + 1 // 1..100, never 0 (stdlib treats 0 as "use default")

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("imaging: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}
