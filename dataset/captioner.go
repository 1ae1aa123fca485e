package dataset

import (
	"context"
)

// Captioner produces caption metadata for a normalized image.
type Captioner interface {
	Name() string
	Caption(ctx context.Context, img NormalizedImage) (*Metadata, error)
}

const (
	fallbackName             = "fallback"
	fallbackDescription      = "portrait photograph"
	fallbackRecreationPrompt = "Professional portrait photograph with natural lighting and shallow depth of field."
)

// FallbackCaptioner builds a rule-based caption from the image dimensions.  It never fails.
type FallbackCaptioner struct {
	Trigger string
	Class   string
}

// Name implements Captioner.
func (f *FallbackCaptioner) Name() string {
	return fallbackName
}

// Caption implements Captioner.
func (f *FallbackCaptioner) Caption(ctx context.Context, img NormalizedImage) (*Metadata, error) {
	return &Metadata{
		Caption:          CaptionPrefix(f.Trigger, f.Class) + fallbackDescription,
		RecreationPrompt: fallbackRecreationPrompt,
		Style:            []string{"portrait", "natural lighting"},
		SFW:              true,
		AR:               AspectRatio(img.Width, img.Height),
	}, nil
}
