package dataset

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrMissingFields is returned when a caption reply lacks one of the required keys.
	ErrMissingFields = errors.New("caption reply is missing required fields")
	// ErrNoCredential is returned when a remote captioner has no API key.
	ErrNoCredential = errors.New("no captioning credential configured")
)

var requiredFields = []string{"caption", "recreation_prompt", "style", "sfw", "ar"}

// Metadata is the captioning result for one image.
type Metadata struct {
	Caption          string   `json:"caption"`
	RecreationPrompt string   `json:"recreation_prompt"`
	Style            []string `json:"style"`
	SFW              bool     `json:"sfw"`
	AR               string   `json:"ar"`
}

// ParseMetadata decodes a caption reply, unwrapping any markdown fence first.  Every
// required key must be present; a present "sfw": false is fine, an absent one is not.
func ParseMetadata(reply string) (*Metadata, error) {
	text := UnwrapJSON(reply)
	if text == "" {
		return nil, errors.New("empty caption reply")
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, errors.Wrap(err, "caption reply is not a JSON object")
	}
	var missing []string
	for _, k := range requiredFields {
		if v, ok := raw[k]; !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, errors.Wrapf(ErrMissingFields, "missing %s", strings.Join(missing, ", "))
	}

	var md Metadata
	if err := json.Unmarshal([]byte(text), &md); err != nil {
		return nil, errors.Wrap(err, "caption reply has invalid field types")
	}
	if strings.TrimSpace(md.Caption) == "" {
		return nil, errors.Wrap(ErrMissingFields, "empty caption")
	}
	return &md, nil
}

// UnwrapJSON returns the JSON object inside a model reply, dropping markdown fences and any
// prose around the object.
func UnwrapJSON(reply string) string {
	text := strings.TrimSpace(reply)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		// drop the language tag
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && !strings.Contains(text[:nl], "{") {
			text = text[nl+1:]
		}
		if end := strings.Index(text, "```"); end >= 0 {
			text = text[:end]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// CaptionPrefix is the text every caption starts with.
func CaptionPrefix(trigger, class string) string {
	return fmt.Sprintf("%s %s, ", trigger, class)
}

// EnsurePrefix prepends the trigger and class tokens to caption unless it already starts
// with them.
func EnsurePrefix(caption, trigger, class string) string {
	prefix := CaptionPrefix(trigger, class)
	caption = strings.TrimSpace(caption)
	if strings.HasPrefix(caption, prefix) {
		return caption
	}
	// "blondie woman sitting ..." becomes "blondie woman, sitting ..."
	bare := strings.TrimSuffix(prefix, ", ")
	if strings.HasPrefix(strings.ToLower(caption), strings.ToLower(bare)) {
		caption = strings.TrimLeft(caption[len(bare):], " ,")
	}
	return prefix + caption
}

func instructions(trigger, class string) string {
	prefix := CaptionPrefix(trigger, class)
	sb := &strings.Builder{}
	sb.WriteString("Describe this photograph for a LoRA training dataset. Reply with a single JSON object and nothing else.\n\n")
	sb.WriteString("Keys:\n")
	fmt.Fprintf(sb, "- caption: at most 25 words, starting exactly with %q, then pose, expression, outfit and setting.\n", prefix)
	sb.WriteString("- recreation_prompt: 40 to 80 words describing how to recreate the shot: camera angle, lens, lighting, mood, color grading, composition and depth of field.\n")
	sb.WriteString("- style: 5 to 12 short style keywords.\n")
	sb.WriteString("- sfw: true if the image is safe for work, otherwise false.\n")
	sb.WriteString("- ar: the aspect ratio as a string such as \"1:1\", \"4:5\", \"3:4\", \"9:16\" or \"16:9\".\n\n")
	sb.WriteString("Example:\n")
	fmt.Fprintf(sb, `{"caption": "%ssitting in a car, blue top, soft smile, daylight", `, prefix)
	sb.WriteString(`"recreation_prompt": "Portrait taken inside a car with soft window light from the left, 50mm lens at f/1.8, shallow depth of field, warm tones around 5500K, candid pose looking at the camera, lifted shadows and slightly desaturated colors.", `)
	sb.WriteString(`"style": ["portrait", "natural light", "bokeh", "warm tones", "candid"], "sfw": true, "ar": "4:5"}`)
	return sb.String()
}
