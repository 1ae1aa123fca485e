package dataset

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const (
	geminiName  = "gemini"
	geminiModel = "gemini-2.5-flash"
)

// GeminiOptions configures a GeminiCaptioner.
type GeminiOptions struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Trigger    string
	Class      string
}

// GeminiCaptioner captions images with the Gemini API.
type GeminiCaptioner struct {
	client  *genai.Client
	model   string
	trigger string
	class   string
}

// NewGeminiCaptioner returns ErrNoCredential when no API key is set.
func NewGeminiCaptioner(ctx context.Context, opts GeminiOptions) (*GeminiCaptioner, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	model := opts.Model
	if model == "" {
		model = geminiModel
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	return &GeminiCaptioner{
		client:  client,
		model:   model,
		trigger: opts.Trigger,
		class:   opts.Class,
	}, nil
}

// Name implements Captioner.
func (g *GeminiCaptioner) Name() string {
	return geminiName
}

// Caption implements Captioner.
func (g *GeminiCaptioner) Caption(ctx context.Context, img NormalizedImage) (*Metadata, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MediaType),
			genai.NewPartFromText(instructions(g.trigger, g.class)),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, errors.Wrap(err, "caption request failed")
	}
	md, err := ParseMetadata(resp.Text())
	if err != nil {
		return nil, err
	}
	md.Caption = EnsurePrefix(md.Caption, g.trigger, g.class)
	return md, nil
}
