package campaign

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	checkpointExt = ".safetensors"
	finalStep     = "final"
)

// Checkpoint is a LoRA weights file and the training step label used in output names.
type Checkpoint struct {
	File string
	Step string
}

// ParseCheckpoint accepts a training step ("750"), "final", or a literal weights filename.
// Steps and "final" are resolved against the LoRA base name.
func ParseCheckpoint(base, s string) (Checkpoint, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Checkpoint{}, errors.New("checkpoint is required")
	case s == finalStep:
		return Checkpoint{File: base + checkpointExt, Step: finalStep}, nil
	case strings.HasSuffix(s, checkpointExt):
		return Checkpoint{File: s, Step: StepLabel(s)}, nil
	}

	step, err := strconv.Atoi(s)
	if err != nil || step <= 0 {
		return Checkpoint{}, errors.Errorf("invalid checkpoint %q: want a positive step, %q or a %s file", s, finalStep, checkpointExt)
	}
	file := fmt.Sprintf("%s-step%08d%s", base, step, checkpointExt)
	return Checkpoint{File: file, Step: StepLabel(file)}, nil
}

// StepLabel extracts the step digits from a checkpoint filename, keeping zero padding,
// or "final" for files without a step.
func StepLabel(file string) string {
	i := strings.Index(file, "step")
	if i < 0 {
		return finalStep
	}
	rest := file[i+len("step"):]
	if dot := strings.Index(rest, "."); dot >= 0 {
		rest = rest[:dot]
	}
	if rest == "" {
		return finalStep
	}
	return rest
}

// CheckpointAxis builds an axis over checkpoint files.
func CheckpointAxis(checkpoints []Checkpoint) Axis {
	axis := Axis{Name: "checkpoint"}
	for _, c := range checkpoints {
		axis.Values = append(axis.Values, Value{
			Label:    c.Step,
			Settings: map[Slot]interface{}{SlotLora: c.File},
		})
	}
	return axis
}

// StrengthLabel is the strength in whole tenths, 0.7 -> "7".  Finer strengths truncate.
func StrengthLabel(s float64) string {
	return strconv.Itoa(int(s * 10))
}

// wholeTenths reports whether s is labelled exactly by StrengthLabel.
func wholeTenths(s float64) bool {
	return math.Abs(s*10-math.Round(s*10)) < 1e-9
}

// StrengthAxis builds an axis over LoRA strengths, applied to model and clip alike.
func StrengthAxis(strengths []float64) Axis {
	axis := Axis{Name: "strength"}
	for _, s := range strengths {
		axis.Values = append(axis.Values, Value{
			Label:    StrengthLabel(s),
			Settings: map[Slot]interface{}{SlotStrength: s},
		})
	}
	return axis
}

// Category is a named prompt.
type Category struct {
	Label  string `json:"label" yaml:"label"`
	Prompt string `json:"prompt" yaml:"prompt"`
}

// CategoryAxis builds an axis over named prompts.
func CategoryAxis(categories []Category) Axis {
	axis := Axis{Name: "category"}
	for _, c := range categories {
		axis.Values = append(axis.Values, Value{
			Label:    c.Label,
			Settings: map[Slot]interface{}{SlotPrompt: c.Prompt},
		})
	}
	return axis
}

// PromptAxis builds an axis over free-form prompts, labelled by position.
func PromptAxis(prompts []string) Axis {
	axis := Axis{Name: "prompt"}
	for i, p := range prompts {
		axis.Values = append(axis.Values, Value{
			Label:    fmt.Sprintf("p%02d", i+1),
			Settings: map[Slot]interface{}{SlotPrompt: p},
		})
	}
	return axis
}
