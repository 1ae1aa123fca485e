package campaign

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefinitionYAML(t *testing.T) {
	def, err := LoadDefinition("testdata/sweep.yaml")
	require.NoError(t, err)

	plan, err := def.Plan("blondie_lora")
	require.NoError(t, err)
	assert.Equal(t, 12, plan.Total())
	assert.Equal(t, "blondie woman, professional portrait", plan.Fixed[SlotPrompt])

	tmpl := loadTestTemplate(t)
	submitter := &fakeSubmitter{}
	driver := &Driver{Submitter: submitter, Pacer: &SleepPacer{}, Nodes: def.NodeMap()}
	_, err = driver.Run(context.Background(), tmpl, plan)
	require.NoError(t, err)
	require.Len(t, submitter.jobs, 12)

	assert.Equal(t, "sweep_00000250_s6_01", input(submitter.jobs[0], "8", "filename_prefix"))
	assert.Equal(t, "sweep_final_s8_02", input(submitter.jobs[7], "8", "filename_prefix"))
	assert.Equal(t, "custom-step00000900.safetensors", input(submitter.jobs[8], "2", "lora_name"))
	assert.Equal(t, "sweep_00000900_s6_01", input(submitter.jobs[8], "8", "filename_prefix"))
	assert.Equal(t, 0.8, input(submitter.jobs[11], "2", "strength_clip"))
}

func TestDefinitionJSONNumbers(t *testing.T) {
	var def Definition
	err := json.Unmarshal([]byte(`{
		"name": "json",
		"variations": 1,
		"fixed": {"lora": 750},
		"axes": [{"kind": "strength", "values": [0.5, "0.7"]}]
	}`), &def)
	require.NoError(t, err)

	plan, err := def.Plan("blondie_lora")
	require.NoError(t, err)
	assert.Equal(t, "blondie_lora-step00000750.safetensors", plan.Fixed[SlotLora])
	require.Len(t, plan.Axes, 1)
	assert.Equal(t, "strength", plan.Axes[0].Name)
	assert.Equal(t, 0.7, plan.Axes[0].Values[1].Settings[SlotStrength])
}

func TestDefinitionInvalid(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{name: "no name", def: Definition{Variations: 1}},
		{name: "no variations", def: Definition{Name: "x"}},
		{name: "bad kind", def: Definition{Name: "x", Variations: 1, Axes: []AxisDefinition{{Kind: "colour", Values: []Scalar{"red"}}}}},
		{name: "bad checkpoint", def: Definition{Name: "x", Variations: 1, Axes: []AxisDefinition{{Kind: KindCheckpoint, Values: []Scalar{"latest"}}}}},
		{name: "bad strength", def: Definition{Name: "x", Variations: 1, Axes: []AxisDefinition{{Kind: KindStrength, Values: []Scalar{"strong"}}}}},
		{name: "bad fixed slot", def: Definition{Name: "x", Variations: 1, Fixed: map[Slot]Scalar{SlotSeed: "1"}}},
		{name: "bad naming", def: Definition{Name: "x", Variations: 1, Naming: "{{.Labels"}},
		{name: "unknown naming label", def: Definition{
			Name:       "x",
			Variations: 3,
			Naming:     "{{.Labels.checkpont}}_{{pad 2 .Variation}}",
			Axes:       []AxisDefinition{{Kind: KindCheckpoint, Values: []Scalar{"250", "500"}}},
		}},
		{name: "strength between tenths", def: Definition{Name: "x", Variations: 1, Axes: []AxisDefinition{{Kind: KindStrength, Values: []Scalar{"0.7", "0.75"}}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.def.Plan("blondie_lora")
			assert.Error(t, err)
		})
	}

	def := Definition{Name: "x", Variations: 1, Axes: []AxisDefinition{{Kind: KindPrompt}}}
	_, err := def.Plan("blondie_lora")
	assert.True(t, errors.Is(err, ErrEmptyAxis))
}
