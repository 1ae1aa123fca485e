package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Environment contains the imported environment variables.
type Environment struct {
	// Debug vs Deploy
	Mode string `default:"dev"`
	// Port to listen on in service mode
	Addr string `default:":4040"`
	// Render server address including port
	RenderAddr string `default:"http://127.0.0.1:8188" split_words:"true"`
	// Render server request timeout
	RenderTimeoutSec int `default:"10" split_words:"true"`
	// Interval between job history polls
	RenderPollIntervalSec int `default:"2" split_words:"true"`
	// Maximum time to wait for a single job when polling
	RenderJobTimeoutSec int `default:"300" split_words:"true"`
	// Fixed delay between submissions when status polling is unavailable
	SubmitDelaySec int `default:"60" split_words:"true"`
	// Pacing strategy, either "poll" or "sleep"
	PacingMode string `default:"poll" split_words:"true"`
	// Job template JSON file
	TemplatePath string `default:"blondie_lora_workflow.json" split_words:"true"`
	// LoRA file base name, checkpoints are <base>-stepNNNNNNNN.safetensors
	LoraBaseName string `default:"blondie_lora" split_words:"true"`
	// Directory the render server writes images to, used by the gallery index
	RenderOutputDir string `default:"/workspace/ComfyUI/output" split_words:"true"`
	// Provenance manifest appended to for every submission
	ProvenancePath string `default:"provenance.jsonl" split_words:"true"`
	// Caption prefix tokens
	TriggerToken string `default:"blondie" split_words:"true"`
	ClassToken   string `default:"woman" split_words:"true"`
	// Captioning provider: anthropic, gemini or none
	CaptionProvider string `default:"anthropic" split_words:"true"`
	// Captioning request timeout
	CaptionTimeoutSec int    `default:"60" split_words:"true"`
	AnthropicAPIKey   string `split_words:"true" json:"-"`
	AnthropicAddr     string `default:"https://api.anthropic.com" split_words:"true"`
	AnthropicModel    string `default:"claude-3-5-sonnet-20241022" split_words:"true"`
	GeminiAPIKey      string `split_words:"true" json:"-"`
	GeminiModel       string `default:"gemini-2.5-flash" split_words:"true"`
	// Dataset root holding clean/, captions/, prompts/ and meta/
	DatasetDir string `default:"dataset" split_words:"true"`
	// JPEG quality for normalized images
	ImageQuality int `default:"92" split_words:"true"`
	// Note stored with every metadata log record
	ProvenanceNote string `default:"faceswap output v1" split_words:"true"`
	// Maximum number of campaigns waiting in service mode
	QueueSize int `default:"100" split_words:"true"`
}

const (
	// PacingPoll waits on the render server's job history.
	PacingPoll = "poll"
	// PacingSleep waits a fixed delay after each submission.
	PacingSleep = "sleep"

	// CaptionAnthropic uses the Anthropic messages API.
	CaptionAnthropic = "anthropic"
	// CaptionGemini uses the Gemini API.
	CaptionGemini = "gemini"
	// CaptionNone always uses rule-based captions.
	CaptionNone = "none"
)

func (e Environment) String() string {
	settings, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return fmt.Errorf("Failed to marshal env: %v", err).Error()
	}
	return fmt.Sprintf("Environment Settings:\n%s\n", string(settings))
}

// Load imports the environment variables and returns them in an Environment.
func Load(envFile string) (*Environment, error) {
	testEnv := os.Getenv("LORA_MODE")
	// if no env var in existing environment, load environment file from the .env file,
	// otherwise (in production) just check existing host environment.  A missing file is
	// fine for a CLI, everything has a default.
	if testEnv == "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
			return nil, errors.Wrapf(err, "Error loading %s file", envFile)
		}
	}

	var env Environment
	err := envconfig.Process("lora", &env)
	if err != nil {
		return nil, errors.Wrap(err, "Error processing environment config")
	}
	env.applyLegacyNames()

	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// applyLegacyNames honours the unprefixed variable names used by the older scripts when the
// prefixed ones are not set.
func (e *Environment) applyLegacyNames() {
	if e.AnthropicAPIKey == "" {
		e.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if e.GeminiAPIKey == "" {
		e.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}
	if os.Getenv("LORA_TRIGGER_TOKEN") == "" {
		if v := os.Getenv("TRIGGER_TOKEN"); v != "" {
			e.TriggerToken = v
		}
	}
	if os.Getenv("LORA_CLASS_TOKEN") == "" {
		if v := os.Getenv("CLASS_TOKEN"); v != "" {
			e.ClassToken = v
		}
	}
}

// Validate checks the enumerated settings.
func (e *Environment) Validate() error {
	switch e.PacingMode {
	case PacingPoll, PacingSleep:
	default:
		return errors.Errorf("invalid pacing mode %q", e.PacingMode)
	}
	switch e.CaptionProvider {
	case CaptionAnthropic, CaptionGemini, CaptionNone:
	default:
		return errors.Errorf("invalid caption provider %q", e.CaptionProvider)
	}
	if e.ImageQuality < 1 || e.ImageQuality > 100 {
		return errors.Errorf("image quality %d out of range", e.ImageQuality)
	}
	if e.QueueSize < 1 {
		return errors.Errorf("queue size %d must be positive", e.QueueSize)
	}
	if e.RenderJobTimeoutSec < 1 {
		return errors.Errorf("render job timeout %ds must be positive", e.RenderJobTimeoutSec)
	}
	if e.RenderPollIntervalSec < 1 {
		return errors.Errorf("render poll interval %ds must be positive", e.RenderPollIntervalSec)
	}
	return nil
}

// APIKey returns the credential for a caption provider, empty when there is none.
func (e *Environment) APIKey(provider string) string {
	switch provider {
	case CaptionAnthropic:
		return e.AnthropicAPIKey
	case CaptionGemini:
		return e.GeminiAPIKey
	}
	return ""
}
