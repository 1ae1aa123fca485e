package dataset

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullReply = `{"caption": "blondie woman, on a beach", "recreation_prompt": "Wide shot at sunset.", "style": ["beach", "golden hour"], "sfw": false, "ar": "16:9"}`

func TestUnwrapJSON(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "bare", reply: fullReply},
		{name: "json fence", reply: "```json\n" + fullReply + "\n```"},
		{name: "plain fence", reply: "```\n" + fullReply + "\n```"},
		{name: "prose", reply: "Here you go:\n```json\n" + fullReply + "\n```\nLet me know."},
		{name: "inline fence", reply: "```" + fullReply + "```"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, fullReply, UnwrapJSON(tc.reply))
		})
	}
}

func TestParseMetadata(t *testing.T) {
	md, err := ParseMetadata("```json\n" + fullReply + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "blondie woman, on a beach", md.Caption)
	assert.False(t, md.SFW)
	assert.Equal(t, []string{"beach", "golden hour"}, md.Style)
	assert.Equal(t, "16:9", md.AR)
}

func TestParseMetadataMissingSFW(t *testing.T) {
	reply := "```json\n" + strings.Replace(fullReply, `"sfw": false, `, "", 1) + "\n```"
	_, err := ParseMetadata(reply)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFields))
	assert.Contains(t, err.Error(), "sfw")
}

func TestParseMetadataInvalid(t *testing.T) {
	for _, reply := range []string{"", "no json here", `{"caption": 3, "recreation_prompt": "", "style": [], "sfw": true, "ar": "1:1"}`} {
		_, err := ParseMetadata(reply)
		assert.Error(t, err, reply)
	}
}

func TestEnsurePrefix(t *testing.T) {
	assert.Equal(t, "blondie woman, smiling", EnsurePrefix("blondie woman, smiling", "blondie", "woman"))
	assert.Equal(t, "blondie woman, smiling", EnsurePrefix("smiling", "blondie", "woman"))
	assert.Equal(t, "blondie woman, sitting in a car", EnsurePrefix("Blondie woman sitting in a car", "blondie", "woman"))
}

func TestFallbackCaption(t *testing.T) {
	fallback := &FallbackCaptioner{Trigger: "ohwx", Class: "man"}
	for _, size := range [][2]int{{1200, 1000}, {800, 1000}, {1000, 1000}} {
		md, err := fallback.Caption(context.Background(), NormalizedImage{Width: size[0], Height: size[1]})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(md.Caption, "ohwx man, "))
		assert.NotEmpty(t, md.RecreationPrompt)
		assert.NotEmpty(t, md.Style)
		assert.True(t, md.SFW)
		assert.Equal(t, AspectRatio(size[0], size[1]), md.AR)
	}
}
