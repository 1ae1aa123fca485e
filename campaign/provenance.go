package campaign

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/jsonl"
)

// Record describes where a render output came from, keyed by its filename prefix.  It is
// written next to the outputs so nothing has to be parsed back out of filenames.
type Record struct {
	Prefix      string            `json:"prefix"`
	JobID       string            `json:"job_id,omitempty"`
	Campaign    string            `json:"campaign"`
	Labels      map[string]string `json:"labels,omitempty"`
	Lora        string            `json:"lora,omitempty"`
	Strength    *float64          `json:"strength,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	Seed        int64             `json:"seed"`
	Outcome     string            `json:"outcome"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// ProvenanceSink stores provenance records.
type ProvenanceSink interface {
	Record(rec Record) error
}

// JSONLSink appends records to a newline delimited JSON file.  Lines are only ever
// appended; one process writes at a time.
type JSONLSink struct {
	path string
}

// NewJSONLSink creates the parent directory of path if needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "failed to create provenance dir %s", dir)
		}
	}
	return &JSONLSink{path: path}, nil
}

// Record implements ProvenanceSink.
func (s *JSONLSink) Record(rec Record) error {
	return jsonl.Append(s.path, rec)
}

// ReadProvenance loads every record from a provenance file.  Malformed lines are returned
// as a count rather than failing the read.
func ReadProvenance(path string) ([]Record, int, error) {
	var records []Record
	bad := 0
	err := jsonl.Each(path, func(line []byte) error {
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			bad++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return records, bad, errors.Wrap(err, "failed to read provenance")
	}
	return records, bad, nil
}

func recordFor(sub Submission) Record {
	rec := Record{
		Prefix:      sub.Prefix,
		JobID:       sub.JobID,
		Campaign:    sub.Campaign,
		Labels:      sub.Labels,
		Seed:        sub.Seed,
		Outcome:     string(sub.Outcome),
		SubmittedAt: sub.SubmittedAt,
	}
	if v, ok := sub.Settings[SlotLora].(string); ok {
		rec.Lora = v
	}
	if v, ok := sub.Settings[SlotStrength].(float64); ok {
		rec.Strength = &v
	}
	if v, ok := sub.Settings[SlotPrompt].(string); ok {
		rec.Prompt = v
	}
	if sub.Err != nil {
		rec.Error = sub.Err.Error()
	}
	return rec
}
