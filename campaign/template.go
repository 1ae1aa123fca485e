package campaign

import (
	"encoding/json"
	"io/ioutil"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrTemplateNode is returned when an override addresses a node the template doesn't have.
	ErrTemplateNode = errors.New("template node not found")
	// ErrTemplateField is returned when an override addresses an input the node doesn't have.
	ErrTemplateField = errors.New("template input not found")
)

// Job is one fully resolved job description, keyed by node id.
type Job map[string]map[string]interface{}

// Template is the job description campaigns start from.  It is never modified after
// loading; Apply returns a fresh Job for every submission.
type Template struct {
	nodes Job
}

// Override replaces the value of one input field on one node.
type Override struct {
	Node  string
	Input string
	Value interface{}
}

// LoadTemplate reads a template from a JSON file.
func LoadTemplate(path string) (*Template, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read template %s", path)
	}
	tmpl, err := ParseTemplate(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse template %s", path)
	}
	return tmpl, nil
}

// ParseTemplate decodes a template from JSON.
func ParseTemplate(data []byte) (*Template, error) {
	var nodes Job
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, errors.Wrap(err, "invalid template json")
	}
	if len(nodes) == 0 {
		return nil, errors.New("template has no nodes")
	}
	return &Template{nodes: nodes}, nil
}

// NodeIDs returns the template's node ids in sorted order.
func (t *Template) NodeIDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Has reports whether the template has the given node input.
func (t *Template) Has(node, input string) error {
	n, ok := t.nodes[node]
	if !ok {
		return errors.Wrapf(ErrTemplateNode, "node %s", node)
	}
	inputs, ok := n["inputs"].(map[string]interface{})
	if !ok {
		return errors.Wrapf(ErrTemplateField, "node %s has no inputs", node)
	}
	if _, ok := inputs[input]; !ok {
		return errors.Wrapf(ErrTemplateField, "node %s input %s", node, input)
	}
	return nil
}

// Value returns the template's value for a node input.
func (t *Template) Value(node, input string) (interface{}, error) {
	if err := t.Has(node, input); err != nil {
		return nil, err
	}
	return t.nodes[node]["inputs"].(map[string]interface{})[input], nil
}

// Apply returns a copy of the template with the overrides applied.  The shape of the
// template is fixed: only existing inputs on existing nodes can be overwritten.
func (t *Template) Apply(overrides []Override) (Job, error) {
	job := copyValue(toGeneric(t.nodes)).(map[string]interface{})

	for _, o := range overrides {
		if err := t.Has(o.Node, o.Input); err != nil {
			return nil, err
		}
		node := job[o.Node].(map[string]interface{})
		node["inputs"].(map[string]interface{})[o.Input] = o.Value
	}

	result := make(Job, len(job))
	for id, node := range job {
		result[id] = node.(map[string]interface{})
	}
	return result, nil
}

func toGeneric(j Job) map[string]interface{} {
	m := make(map[string]interface{}, len(j))
	for k, v := range j {
		m[k] = v
	}
	return m
}

func copyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, e := range val {
			m[k] = copyValue(e)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i, e := range val {
			s[i] = copyValue(e)
		}
		return s
	default:
		return val
	}
}
