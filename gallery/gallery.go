// Package gallery indexes render outputs for the gallery viewer.  Outputs are matched to the
// provenance records written when they were submitted; files without a record fall back to
// parsing the legacy filename conventions.
package gallery

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/campaign"
)

// Categories shown by the gallery viewer.
const (
	CategoryCheckpoint = "checkpoint"
	CategoryStrength   = "strength"
	CategoryPrompt     = "prompt"
	CategoryBatch      = "batch"
	CategoryUnknown    = "unknown"

	// DefaultPattern matches render outputs.
	DefaultPattern = "*.png"

	sourceProvenance = "provenance"
	sourceFilename   = "filename"
)

var (
	// the render server appends _NNNNN_ to the prefix it is given
	outputSuffix = regexp.MustCompile(`^(.+?)_\d+_?\.[A-Za-z]+$`)

	legacyCheckpoint = regexp.MustCompile(`checkpoint_(\d+)`)
	legacyStrength   = regexp.MustCompile(`strength_(\d+)`)
	legacyPrompt     = regexp.MustCompile(`prompt_([A-Za-z]+)`)
	legacyBatch      = regexp.MustCompile(`_p(\d+)_v(\d+)`)

	campaignCategories = map[string]string{
		"checkpoints": CategoryCheckpoint,
		"strengths":   CategoryStrength,
		"prompts":     CategoryPrompt,
		"mass":        CategoryBatch,
	}
)

// Item is one entry of image_data.json.
type Item struct {
	Filename   string   `json:"filename"`
	Path       string   `json:"path"`
	Checkpoint *string  `json:"checkpoint"`
	Strength   *float64 `json:"strength"`
	Prompt     *string  `json:"prompt"`
	Category   string   `json:"category"`
	Campaign   string   `json:"campaign,omitempty"`
	Seed       *int64   `json:"seed,omitempty"`
	JobID      string   `json:"job_id,omitempty"`
	Source     string   `json:"source"`
}

// Count is the number of items in a category.
type Count struct {
	Category string
	Count    int
}

// Builder matches outputs against provenance records.
type Builder struct {
	records map[string]campaign.Record
}

// NewBuilder indexes records by prefix.  When a prefix was submitted more than once the
// latest record wins.
func NewBuilder(records []campaign.Record) *Builder {
	b := &Builder{records: make(map[string]campaign.Record, len(records))}
	for _, rec := range records {
		b.records[rec.Prefix] = rec
	}
	return b
}

// Scan indexes every file in dir matching pattern, in name order.
func (b *Builder) Scan(dir, pattern string) ([]Item, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %s", pattern)
	}
	sort.Strings(paths)

	items := make([]Item, 0, len(paths))
	for _, path := range paths {
		items = append(items, b.Item(path))
	}
	return items, nil
}

// Item describes the output at path.
func (b *Builder) Item(path string) Item {
	filename := filepath.Base(path)
	if m := outputSuffix.FindStringSubmatch(filename); m != nil {
		if rec, ok := b.records[m[1]]; ok {
			return fromRecord(filename, path, rec)
		}
	}
	// outputs saved under the bare prefix
	if rec, ok := b.records[trimExt(filename)]; ok {
		return fromRecord(filename, path, rec)
	}
	return ParseFilename(filename, path)
}

func fromRecord(filename, path string, rec campaign.Record) Item {
	item := Item{
		Filename: filename,
		Path:     path,
		Strength: rec.Strength,
		Category: rec.Campaign,
		Campaign: rec.Campaign,
		JobID:    rec.JobID,
		Source:   sourceProvenance,
	}
	if c, ok := campaignCategories[rec.Campaign]; ok {
		item.Category = c
	}
	if item.Category == "" {
		item.Category = CategoryUnknown
	}
	seed := rec.Seed
	item.Seed = &seed

	if step, ok := rec.Labels["checkpoint"]; ok {
		item.Checkpoint = &step
	} else if rec.Lora != "" {
		step := campaign.StepLabel(rec.Lora)
		item.Checkpoint = &step
	}
	for _, key := range []string{"category", "prompt"} {
		if label, ok := rec.Labels[key]; ok {
			item.Prompt = &label
			break
		}
	}
	if item.Prompt == nil && rec.Prompt != "" {
		prompt := rec.Prompt
		item.Prompt = &prompt
	}
	return item
}

// ParseFilename recovers what it can from the output naming conventions.  Later matches
// override earlier ones, so a batch name wins over everything else.
func ParseFilename(filename, path string) Item {
	item := Item{Filename: filename, Path: path, Category: CategoryUnknown, Source: sourceFilename}
	if m := legacyCheckpoint.FindStringSubmatch(filename); m != nil {
		item.Checkpoint = &m[1]
		item.Category = CategoryCheckpoint
	}
	if m := legacyStrength.FindStringSubmatch(filename); m != nil {
		tenths, _ := strconv.Atoi(m[1])
		s := float64(tenths) / 10
		item.Strength = &s
		item.Category = CategoryStrength
	}
	if m := legacyPrompt.FindStringSubmatch(filename); m != nil {
		item.Prompt = &m[1]
		item.Category = CategoryPrompt
	}
	if m := legacyBatch.FindStringSubmatch(filename); m != nil {
		prompt := "Prompt " + m[1]
		item.Prompt = &prompt
		item.Category = CategoryBatch
	}
	return item
}

// Write stores items as indented JSON.
func Write(path string, items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal gallery data")
	}
	return errors.Wrapf(ioutil.WriteFile(path, data, 0o644), "failed to write %s", path)
}

// Summarize counts items per category, in category order.
func Summarize(items []Item) []Count {
	counts := map[string]int{}
	for _, item := range items {
		counts[item.Category]++
	}
	summary := make([]Count, 0, len(counts))
	for c, n := range counts {
		summary = append(summary, Count{Category: c, Count: n})
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Category < summary[j].Category })
	return summary
}

func trimExt(filename string) string {
	return filename[:len(filename)-len(filepath.Ext(filename))]
}
