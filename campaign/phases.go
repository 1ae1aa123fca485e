package campaign

import "fmt"

// TestPrompts are the prompt categories compared in the prompt phase, in report order.
var TestPrompts = []Category{
	{Label: "portrait", Prompt: "blondie woman, professional portrait, photorealistic, 8k uhd, dslr, soft lighting, detailed face"},
	{Label: "casual", Prompt: "blondie woman, casual outfit, coffee shop, natural lighting, candid photo"},
	{Label: "fashion", Prompt: "blondie woman, elegant dress, fashion photography, studio lighting, high fashion"},
	{Label: "outdoor", Prompt: "blondie woman, outdoor setting, natural sunlight, golden hour, professional photo"},
	{Label: "business", Prompt: "blondie woman, business attire, office setting, professional headshot"},
}

// MassPrompts drive mass generation once checkpoint and strength are settled.
var MassPrompts = []string{
	"blondie woman, red dress, beach sunset, golden hour, professional photography",
	"blondie woman, black leather jacket, city street, night, neon lights, cinematic",
	"blondie woman, white summer dress, flower garden, soft natural lighting",
	"blondie woman, elegant evening gown, luxury ballroom, dramatic lighting",
	"blondie woman, casual jeans and t-shirt, urban park, sunny day",
	"blondie woman, professional suit, corporate office, confident pose",
	"blondie woman, boho style dress, desert landscape, warm tones",
	"blondie woman, workout clothes, gym setting, energetic, dynamic",
	"blondie woman, winter coat, snowy street, soft diffused light",
	"blondie woman, bikini, tropical beach, turquoise water, vacation vibes",
	"blondie woman, cocktail dress, rooftop bar, city skyline, evening",
	"blondie woman, vintage 1950s style, retro diner, classic photography",
	"blondie woman, leather pants, rock concert, stage lighting, edgy",
	"blondie woman, floral sundress, countryside, natural beauty",
	"blondie woman, lab coat, modern laboratory, professional scientist",
}

// DefaultStrengths are swept in the strength phase.
var DefaultStrengths = []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0}

// DefaultCheckpointSteps are the intermediate training steps saved by the trainer.
var DefaultCheckpointSteps = []int{250, 500, 750, 1000, 1250, 1500}

// DefaultCheckpoints lists every saved checkpoint for a LoRA, ending with the final weights.
func DefaultCheckpoints(base string) []Checkpoint {
	checkpoints := make([]Checkpoint, 0, len(DefaultCheckpointSteps)+1)
	for _, step := range DefaultCheckpointSteps {
		c, _ := ParseCheckpoint(base, fmt.Sprint(step))
		checkpoints = append(checkpoints, c)
	}
	final, _ := ParseCheckpoint(base, finalStep)
	return append(checkpoints, final)
}

// CheckpointPhase compares checkpoints on the portrait prompt.
func CheckpointPhase(checkpoints []Checkpoint, variations int) *Plan {
	return &Plan{
		Name:       "checkpoints",
		Axes:       []Axis{CheckpointAxis(checkpoints)},
		Variations: variations,
		Fixed:      map[Slot]interface{}{SlotPrompt: TestPrompts[0].Prompt},
		Naming:     `test_checkpoint_{{.Labels.checkpoint}}_{{pad 2 .Variation}}`,
	}
}

// StrengthPhase compares LoRA strengths for one checkpoint.
func StrengthPhase(checkpoint Checkpoint, strengths []float64, variations int) *Plan {
	return &Plan{
		Name:       "strengths",
		Axes:       []Axis{StrengthAxis(strengths)},
		Variations: variations,
		Fixed: map[Slot]interface{}{
			SlotLora:   checkpoint.File,
			SlotPrompt: TestPrompts[0].Prompt,
		},
		Naming: `test_strength_{{.Labels.strength}}_{{pad 2 .Variation}}`,
	}
}

// PromptPhase compares prompt categories at a fixed checkpoint and strength.
func PromptPhase(checkpoint Checkpoint, strength float64, categories []Category, variations int) *Plan {
	return &Plan{
		Name:       "prompts",
		Axes:       []Axis{CategoryAxis(categories)},
		Variations: variations,
		Fixed: map[Slot]interface{}{
			SlotLora:     checkpoint.File,
			SlotStrength: strength,
		},
		Naming: `test_prompt_{{.Labels.category}}_{{pad 2 .Variation}}`,
	}
}

// MassPhase generates batchSize variations of every prompt with the chosen settings.
func MassPhase(checkpoint Checkpoint, strength float64, prompts []string, batchSize int) *Plan {
	return &Plan{
		Name:       "mass",
		Axes:       []Axis{PromptAxis(prompts)},
		Variations: batchSize,
		Fixed: map[Slot]interface{}{
			SlotLora:     checkpoint.File,
			SlotStrength: strength,
		},
		Naming:        `batch_p{{pad 2 .Positions.prompt}}_v{{pad 3 .Variation}}`,
		ProgressEvery: 10,
	}
}
