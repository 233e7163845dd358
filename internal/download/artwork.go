package download

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// shrinkArtwork downscales an artwork payload so its longer edge fits within
// maxPixels, re-encoding as JPEG. Payloads already within bounds come back
// unchanged. Callers treat any error as "keep the original bytes": artwork
// is best-effort end to end.
func shrinkArtwork(data []byte, maxPixels int) ([]byte, error) {
	if maxPixels <= 0 {
		return data, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode artwork: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= maxPixels && bounds.Dy() <= maxPixels {
		return data, nil
	}

	resized := resize.Thumbnail(uint(maxPixels), uint(maxPixels), img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode artwork: %w", err)
	}

	return buf.Bytes(), nil
}
