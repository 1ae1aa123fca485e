// Package jsonl reads and appends newline delimited JSON logs.  The logs are only ever
// extended, never rewritten, and have a single writer.
package jsonl

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

const maxLine = 1024 * 1024

// Append writes v as one JSON line at the end of the file at path, creating it if needed.
func Append(path string, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "failed to marshal record")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to append to %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// Each calls fn with every non-empty line of the file at path.  fn returning an error stops
// the read and the error is returned as is.
func Each(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}
	return errors.Wrapf(scanner.Err(), "failed to read %s", path)
}
