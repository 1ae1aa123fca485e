package dataset

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	anthropicName       = "anthropic"
	anthropicVersion    = "2023-06-01"
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicModel      = "claude-3-5-sonnet-20241022"
	anthropicMaxTokens  = 1024
	anthropicTimeout    = 60 * time.Second
	anthropicErrExcerpt = 500
)

// AnthropicOptions configures an AnthropicCaptioner.
type AnthropicOptions struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Trigger    string
	Class      string
}

// AnthropicCaptioner captions images with the Anthropic messages API.
type AnthropicCaptioner struct {
	apiKey    string
	model     string
	baseURL   string
	maxTokens int
	client    *http.Client
	trigger   string
	class     string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// NewAnthropicCaptioner returns ErrNoCredential when no API key is set.
func NewAnthropicCaptioner(opts AnthropicOptions) (*AnthropicCaptioner, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrNoCredential
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	model := opts.Model
	if model == "" {
		model = anthropicModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = anthropicTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &AnthropicCaptioner{
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
		client:    client,
		trigger:   opts.Trigger,
		class:     opts.Class,
	}, nil
}

// Name implements Captioner.
func (a *AnthropicCaptioner) Name() string {
	return anthropicName
}

// Caption implements Captioner.
func (a *AnthropicCaptioner) Caption(ctx context.Context, img NormalizedImage) (*Metadata, error) {
	payload := anthropicRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropicMessage{{
			Role: "user",
			Content: []anthropicContent{
				{
					Type: "image",
					Source: &anthropicSource{
						Type:      "base64",
						MediaType: img.MediaType,
						Data:      base64.StdEncoding.EncodeToString(img.Data),
					},
				},
				{Type: "text", Text: instructions(a.trigger, a.class)},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode caption request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build caption request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "caption request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := ioutil.ReadAll(io.LimitReader(resp.Body, anthropicErrExcerpt))
		return nil, errors.Errorf("caption request returned %s: %s", resp.Status, strings.TrimSpace(string(excerpt)))
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "failed to decode caption response")
	}
	for _, c := range out.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			md, err := ParseMetadata(c.Text)
			if err != nil {
				return nil, err
			}
			md.Caption = EnsurePrefix(md.Caption, a.trigger, a.class)
			return md, nil
		}
	}
	return nil, errors.Errorf("caption response from %s had no text content", a.model)
}
