package campaign

import (
	"encoding/json"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Axis kinds accepted in definitions.
const (
	KindCheckpoint = "checkpoint"
	KindStrength   = "strength"
	KindCategory   = "category"
	KindPrompt     = "prompt"
)

// Scalar is a definition value that may be written as a string or a number.
type Scalar string

// UnmarshalJSON accepts strings and numbers.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = Scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return errors.Errorf("expected string or number, got %s", string(data))
	}
	*s = Scalar(num.String())
	return nil
}

// UnmarshalYAML accepts any scalar node.
func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: expected a scalar value", node.Line)
	}
	*s = Scalar(node.Value)
	return nil
}

// AxisDefinition is one axis of a campaign definition.
type AxisDefinition struct {
	Name       string     `json:"name" yaml:"name"`
	Kind       string     `json:"kind" yaml:"kind"`
	Values     []Scalar   `json:"values,omitempty" yaml:"values,omitempty"`
	Categories []Category `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Definition is a campaign described in a YAML or JSON document.
type Definition struct {
	Name          string           `json:"name" yaml:"name"`
	Template      string           `json:"template,omitempty" yaml:"template,omitempty"`
	Variations    int              `json:"variations" yaml:"variations"`
	Naming        string           `json:"naming,omitempty" yaml:"naming,omitempty"`
	ProgressEvery int              `json:"progress_every,omitempty" yaml:"progress_every,omitempty"`
	Fixed         map[Slot]Scalar  `json:"fixed,omitempty" yaml:"fixed,omitempty"`
	Axes          []AxisDefinition `json:"axes" yaml:"axes"`
	Nodes         NodeMap          `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// LoadDefinition reads a campaign definition from a YAML (or JSON) file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read campaign definition %s", path)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrapf(err, "failed to parse campaign definition %s", path)
	}
	return &def, nil
}

// Plan converts the definition into a plan.  base is the LoRA base name used to resolve
// checkpoint steps.
func (d *Definition) Plan(base string) (*Plan, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, errors.New("campaign name missing")
	}
	if d.Variations <= 0 {
		return nil, errors.Errorf("campaign %s: variations must be positive", d.Name)
	}

	plan := &Plan{
		Name:          d.Name,
		Variations:    d.Variations,
		Naming:        d.Naming,
		ProgressEvery: d.ProgressEvery,
		Fixed:         map[Slot]interface{}{},
	}

	for slot, raw := range d.Fixed {
		v, err := fixedValue(base, slot, string(raw))
		if err != nil {
			return nil, errors.Wrapf(err, "campaign %s: fixed %s", d.Name, slot)
		}
		plan.Fixed[slot] = v
	}

	for _, ad := range d.Axes {
		axis, err := ad.axis(base)
		if err != nil {
			return nil, errors.Wrapf(err, "campaign %s", d.Name)
		}
		plan.Axes = append(plan.Axes, axis)
	}

	if err := plan.Compile(); err != nil {
		return nil, err
	}
	return plan, nil
}

// NodeMap returns the default node map with the definition's entries merged in.
func (d *Definition) NodeMap() NodeMap {
	return DefaultNodeMap().Merge(d.Nodes)
}

func fixedValue(base string, slot Slot, raw string) (interface{}, error) {
	switch slot {
	case SlotLora:
		c, err := ParseCheckpoint(base, raw)
		if err != nil {
			return nil, err
		}
		return c.File, nil
	case SlotStrength:
		return ParseStrength(raw)
	case SlotPrompt:
		return raw, nil
	}
	return nil, errors.Errorf("slot %s cannot be fixed", slot)
}

// ParseStrength parses a LoRA strength between 0 and 2.
func ParseStrength(raw string) (float64, error) {
	s, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid strength %q", raw)
	}
	if s < 0 || s > 2 {
		return 0, errors.Errorf("strength %v out of range", s)
	}
	return s, nil
}

func (ad AxisDefinition) axis(base string) (Axis, error) {
	var axis Axis
	switch ad.Kind {
	case KindCheckpoint:
		checkpoints := make([]Checkpoint, 0, len(ad.Values))
		for _, v := range ad.Values {
			c, err := ParseCheckpoint(base, string(v))
			if err != nil {
				return Axis{}, err
			}
			checkpoints = append(checkpoints, c)
		}
		axis = CheckpointAxis(checkpoints)
	case KindStrength:
		strengths := make([]float64, 0, len(ad.Values))
		for _, v := range ad.Values {
			s, err := ParseStrength(string(v))
			if err != nil {
				return Axis{}, err
			}
			// output names only carry tenths
			if !wholeTenths(s) {
				return Axis{}, errors.Errorf("strength %v is not a multiple of 0.1", s)
			}
			strengths = append(strengths, s)
		}
		axis = StrengthAxis(strengths)
	case KindCategory:
		axis = CategoryAxis(ad.Categories)
	case KindPrompt:
		prompts := make([]string, 0, len(ad.Values))
		for _, v := range ad.Values {
			prompts = append(prompts, string(v))
		}
		axis = PromptAxis(prompts)
	default:
		return Axis{}, errors.Errorf("axis %s: unknown kind %q", ad.Name, ad.Kind)
	}

	if ad.Name != "" {
		axis.Name = ad.Name
	}
	if len(axis.Values) == 0 {
		return Axis{}, errors.Wrapf(ErrEmptyAxis, "axis %s", axis.Name)
	}
	return axis, nil
}
