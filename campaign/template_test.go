package campaign

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestTemplate(t *testing.T) *Template {
	tmpl, err := LoadTemplate("testdata/workflow.json")
	require.NoError(t, err)
	return tmpl
}

func TestLoadTemplateMissing(t *testing.T) {
	_, err := LoadTemplate("testdata/missing.json")
	assert.Error(t, err)
}

func TestApplyLeavesTemplateUntouched(t *testing.T) {
	tmpl := loadTestTemplate(t)

	job, err := tmpl.Apply([]Override{
		{Node: "3", Input: "text", Value: "new prompt"},
		{Node: "6", Input: "seed", Value: int64(7)},
	})
	require.NoError(t, err)
	assert.Equal(t, "new prompt", job["3"]["inputs"].(map[string]interface{})["text"])
	assert.Equal(t, int64(7), job["6"]["inputs"].(map[string]interface{})["seed"])

	text, err := tmpl.Value("3", "text")
	require.NoError(t, err)
	assert.Equal(t, "blondie woman", text)

	// nested values are copied too
	job["2"]["inputs"].(map[string]interface{})["model"].([]interface{})[0] = "x"
	model, err := tmpl.Value("2", "model")
	require.NoError(t, err)
	assert.Equal(t, "1", model.([]interface{})[0])
}

func TestApplyKeepsShape(t *testing.T) {
	tmpl := loadTestTemplate(t)

	_, err := tmpl.Apply([]Override{{Node: "99", Input: "text", Value: "x"}})
	assert.True(t, errors.Is(err, ErrTemplateNode))

	_, err = tmpl.Apply([]Override{{Node: "3", Input: "nope", Value: "x"}})
	assert.True(t, errors.Is(err, ErrTemplateField))
}

func TestNodeMapCheck(t *testing.T) {
	tmpl := loadTestTemplate(t)
	assert.NoError(t, DefaultNodeMap().Check(tmpl, []Slot{SlotLora, SlotStrength, SlotPrompt, SlotSeed, SlotPrefix}))

	broken := DefaultNodeMap().Merge(NodeMap{SlotSeed: {{Node: "60", Input: "seed"}}})
	assert.Error(t, broken.Check(tmpl, []Slot{SlotSeed}))
}

func TestParseTemplateRejectsEmpty(t *testing.T) {
	_, err := ParseTemplate([]byte(`{}`))
	assert.Error(t, err)
	_, err = ParseTemplate([]byte(`not json`))
	assert.Error(t, err)
}
