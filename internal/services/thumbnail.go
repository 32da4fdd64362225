package services

import (
	"bytes"
	"fmt"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Thumbnailer renders gallery previews as JPEG.
type Thumbnailer struct {
	Width   int
	Quality int
}

func NewThumbnailer(width int) *Thumbnailer {
	return &Thumbnailer{Width: width, Quality: 80}
}

func (t *Thumbnailer) Generate(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	// Resize while preserving aspect ratio; small images are left alone.
	if img.Bounds().Dx() > t.Width {
		img = imaging.Resize(img, t.Width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(t.Quality)); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
