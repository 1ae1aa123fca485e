package dataset

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decoder registration
	"io/ioutil"

	"github.com/corona10/goimagehash"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // decoder registration
)

const (
	// AspectLandscape labels images wider than 1.1:1.
	AspectLandscape = "16:9"
	// AspectPortrait labels images narrower than 0.9:1.
	AspectPortrait = "9:16"
	// AspectSquare labels everything in between.
	AspectSquare = "1:1"

	jpegMediaType = "image/jpeg"
)

// NormalizedImage is an image re-encoded as an opaque JPEG.
type NormalizedImage struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
}

// DecodeFile reads a jpeg, png or webp image.
func DecodeFile(path string) (image.Image, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %s", path)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image %s", path)
	}
	if img.Bounds().Empty() {
		return nil, errors.Errorf("image %s (%s) is empty", path, format)
	}
	return img, nil
}

// PerceptualHash returns the 64 bit perceptual hash of img as 16 hex digits.  Images that
// look the same hash the same regardless of container or compression.
func PerceptualHash(img image.Image) (string, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", errors.Wrap(err, "failed to hash image")
	}
	return fmt.Sprintf("%016x", h.GetHash()), nil
}

// Normalize flattens img onto a white background and encodes it as JPEG at quality.
func Normalize(img image.Image, quality int) (NormalizedImage, error) {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: quality}); err != nil {
		return NormalizedImage{}, errors.Wrap(err, "failed to encode jpeg")
	}
	return NormalizedImage{
		Data:      buf.Bytes(),
		MediaType: jpegMediaType,
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// AspectRatio labels an image by its width to height ratio.
func AspectRatio(width, height int) string {
	if height <= 0 {
		return AspectSquare
	}
	ratio := float64(width) / float64(height)
	switch {
	case ratio > 1.1:
		return AspectLandscape
	case ratio < 0.9:
		return AspectPortrait
	}
	return AspectSquare
}
