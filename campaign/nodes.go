package campaign

import (
	"sort"

	"github.com/pkg/errors"
)

// Slot is a semantic job setting that maps onto one or more template inputs.
type Slot string

const (
	SlotLora     Slot = "lora"
	SlotStrength Slot = "strength"
	SlotPrompt   Slot = "prompt"
	SlotSeed     Slot = "seed"
	SlotPrefix   Slot = "prefix"
)

// FieldRef addresses one input of one template node.
type FieldRef struct {
	Node  string `json:"node" yaml:"node"`
	Input string `json:"input" yaml:"input"`
}

// NodeMap says which template inputs each slot writes to.
type NodeMap map[Slot][]FieldRef

// DefaultNodeMap matches the LoRA workflow: loader "2", positive prompt "3", sampler "6"
// and image saver "8".
func DefaultNodeMap() NodeMap {
	return NodeMap{
		SlotLora:     {{Node: "2", Input: "lora_name"}},
		SlotStrength: {{Node: "2", Input: "strength_model"}, {Node: "2", Input: "strength_clip"}},
		SlotPrompt:   {{Node: "3", Input: "text"}},
		SlotSeed:     {{Node: "6", Input: "seed"}},
		SlotPrefix:   {{Node: "8", Input: "filename_prefix"}},
	}
}

// Merge returns a copy of m with the slots in other replacing its own.
func (m NodeMap) Merge(other NodeMap) NodeMap {
	merged := make(NodeMap, len(m)+len(other))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

// Overrides resolves slot values into template overrides.  Output order is stable.
func (m NodeMap) Overrides(values map[Slot]interface{}) ([]Override, error) {
	slots := make([]string, 0, len(values))
	for s := range values {
		slots = append(slots, string(s))
	}
	sort.Strings(slots)

	var overrides []Override
	for _, s := range slots {
		refs, ok := m[Slot(s)]
		if !ok || len(refs) == 0 {
			return nil, errors.Errorf("no template inputs mapped for %s", s)
		}
		for _, ref := range refs {
			overrides = append(overrides, Override{Node: ref.Node, Input: ref.Input, Value: values[Slot(s)]})
		}
	}
	return overrides, nil
}

// Check verifies that every input the given slots write to exists in the template.
func (m NodeMap) Check(t *Template, slots []Slot) error {
	for _, s := range slots {
		refs, ok := m[s]
		if !ok || len(refs) == 0 {
			return errors.Errorf("no template inputs mapped for %s", s)
		}
		for _, ref := range refs {
			if err := t.Has(ref.Node, ref.Input); err != nil {
				return errors.Wrapf(err, "slot %s", s)
			}
		}
	}
	return nil
}
