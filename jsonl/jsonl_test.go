package jsonl

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type line struct {
	N int `json:"n"`
}

func TestAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, ioutil.WriteFile(path, []byte("{\"n\":0}\n"), 0o644))

	require.NoError(t, Append(path, line{N: 1}))
	require.NoError(t, Append(path, line{N: 2}))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":0}\n{\"n\":1}\n{\"n\":2}\n", string(data))

	var got []int
	require.NoError(t, Each(path, func(b []byte) error {
		var l line
		require.NoError(t, json.Unmarshal(b, &l))
		got = append(got, l.N)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestEachStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	require.NoError(t, ioutil.WriteFile(path, []byte("a\n\nb\nc\n"), 0o644))

	stop := errors.New("stop")
	var seen []string
	err := Each(path, func(b []byte) error {
		seen = append(seen, string(b))
		if string(b) == "b" {
			return stop
		}
		return nil
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, []string{"a", "b"}, seen)

	assert.Error(t, Each(filepath.Join(t.TempDir(), "missing"), func([]byte) error { return nil }))
}
