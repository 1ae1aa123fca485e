package campaign

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// ErrEmptyAxis is returned when a campaign definition names an axis with no values.
var ErrEmptyAxis = errors.New("axis has no values")

// Value is one point along an axis.  Label identifies it in names and descriptions,
// Settings are the slot values it contributes to a job.
type Value struct {
	Label    string
	Settings map[Slot]interface{}
}

// Axis is an ordered sweep dimension.
type Axis struct {
	Name   string
	Values []Value
}

// Combination is one point of the sweep: a value from every axis plus a variation index.
type Combination struct {
	Values []Value
	Axes   []string
	// Positions holds each value's 1-based position on its axis, keyed by axis name.
	Positions map[string]int
	// Variation is 0-based.
	Variation int
	// Index is the 0-based position of the combination in the whole campaign.
	Index int
}

// Settings merges the settings of every value, later axes winning.
func (c Combination) Settings() map[Slot]interface{} {
	merged := map[Slot]interface{}{}
	for _, v := range c.Values {
		for k, s := range v.Settings {
			merged[k] = s
		}
	}
	return merged
}

// Labels returns the value label for each axis.
func (c Combination) Labels() map[string]string {
	labels := make(map[string]string, len(c.Values))
	for i, v := range c.Values {
		labels[c.Axes[i]] = v.Label
	}
	return labels
}

// Plan is a parameter sweep: nested axes, outermost first, with a number of variations
// for every combination.
type Plan struct {
	Name       string
	Axes       []Axis
	Variations int
	// Fixed settings applied to every job before axis settings.
	Fixed map[Slot]interface{}
	// Naming is a text/template for the output filename prefix.
	Naming string
	// ProgressEvery limits progress reports to every N items; 0 or 1 reports each one.
	ProgressEvery int

	naming *template.Template
}

// Total is the number of submissions the plan makes.
func (p *Plan) Total() int {
	if p.Variations <= 0 {
		return 0
	}
	total := p.Variations
	for _, a := range p.Axes {
		total *= len(a.Values)
	}
	return total
}

// Each walks the sweep in nesting order, outermost axis slowest and variation fastest,
// without building the cross product.  Walking stops at the first error fn returns.
func (p *Plan) Each(fn func(Combination) error) error {
	if p.Total() == 0 {
		return nil
	}

	names := make([]string, len(p.Axes))
	for i, a := range p.Axes {
		names[i] = a.Name
	}

	// odometer over the axes, last axis turning fastest
	idx := make([]int, len(p.Axes))
	index := 0
	for {
		values := make([]Value, len(p.Axes))
		positions := make(map[string]int, len(p.Axes))
		for i, a := range p.Axes {
			values[i] = a.Values[idx[i]]
			positions[a.Name] = idx[i] + 1
		}
		for v := 0; v < p.Variations; v++ {
			combo := Combination{
				Values:    values,
				Axes:      names,
				Positions: positions,
				Variation: v,
				Index:     index,
			}
			if err := fn(combo); err != nil {
				return err
			}
			index++
		}

		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(p.Axes[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

// Slots returns every slot the plan writes, including seed and prefix.
func (p *Plan) Slots() []Slot {
	set := map[Slot]bool{SlotSeed: true, SlotPrefix: true}
	for s := range p.Fixed {
		set[s] = true
	}
	for _, a := range p.Axes {
		for _, v := range a.Values {
			for s := range v.Settings {
				set[s] = true
			}
		}
	}
	slots := make([]Slot, 0, len(set))
	for s := range set {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

type nameData struct {
	Name      string
	Labels    map[string]string
	Positions map[string]int
	Variation int
	Index     int
}

var nameFuncs = template.FuncMap{
	"pad": func(width, n int) string {
		return fmt.Sprintf("%0*d", width, n)
	},
}

var errFirst = errors.New("first combination")

// Compile parses the naming pattern and renders it for the first combination, so a
// pattern naming a label the plan does not have fails here rather than on every item.
// Run calls it before the first submission.
func (p *Plan) Compile() error {
	pattern := p.Naming
	if pattern == "" {
		pattern = `{{.Name}}_{{pad 3 .Index}}`
	}
	tmpl, err := template.New(p.Name).Funcs(nameFuncs).Option("missingkey=error").Parse(pattern)
	if err != nil {
		return errors.Wrapf(err, "invalid naming pattern %q", pattern)
	}
	p.naming = tmpl

	// every combination carries the same labels, the first stands for all of them
	err = p.Each(func(c Combination) error {
		if _, err := p.Prefix(c); err != nil {
			return err
		}
		return errFirst
	})
	if err != nil && err != errFirst {
		p.naming = nil
		return errors.Wrapf(err, "invalid naming pattern %q", pattern)
	}
	return nil
}

// Prefix renders the output filename prefix for a combination.  Variation and Index are
// 1-based in the pattern.
func (p *Plan) Prefix(c Combination) (string, error) {
	if p.naming == nil {
		if err := p.Compile(); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	err := p.naming.Execute(&buf, nameData{
		Name:      p.Name,
		Labels:    c.Labels(),
		Positions: c.Positions,
		Variation: c.Variation + 1,
		Index:     c.Index + 1,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to render filename prefix")
	}
	return buf.String(), nil
}

// Describe is the human readable description of a combination used in logs.
func (p *Plan) Describe(c Combination) string {
	parts := make([]string, 0, len(c.Values)+1)
	for i, v := range c.Values {
		parts = append(parts, fmt.Sprintf("%s %s", c.Axes[i], v.Label))
	}
	parts = append(parts, fmt.Sprintf("(variation %d)", c.Variation+1))
	return strings.Join(parts, " ")
}
