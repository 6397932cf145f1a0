package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want any
	}{
		{"retrieval.top_k", "4", 4},
		{"gmail.today_only", "false", false},
		{"poll.interval", "5m", "5m"},
		{"corpus.include", "**/*.md, **/*.pdf,", []string{"**/*.md", "**/*.pdf"}},
		{"gmail.query", "is:unread", "is:unread"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.key, tt.raw))
		})
	}
}

func TestConfigSetCmd(t *testing.T) {
	store := useSettings(t, nil)

	out, err := execute(t, "", "config", "set", "retrieval.top_k", "6")
	requireNoErr(t, out, err)
	assert.Equal(t, 6, store.GetInt("retrieval.top_k"))

	settings, err := settingsService.Get()
	require.NoError(t, err)
	assert.Equal(t, 6, settings.Retrieval.TopK)
}

func TestConfigSetCmd_UnknownKey(t *testing.T) {
	useSettings(t, nil)

	_, err := execute(t, "", "config", "set", "retrieval.nonsense", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestConfigSetCmd_RejectsBadDuration(t *testing.T) {
	useSettings(t, nil)

	_, err := execute(t, "", "config", "set", "poll.interval", "soon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no longer load")
}

func TestConfigKeysCmd(t *testing.T) {
	useSettings(t, nil)

	out, err := execute(t, "", "config", "keys")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "retrieval.chunk_overlap")
	assert.Contains(t, out, "gmail.credentials_file")
}

func TestConfigShowCmd(t *testing.T) {
	useSettings(t, map[string]any{
		"llm.provider": "anthropic",
		"llm.api_key":  "sk-ant-1234567890",
	})

	out, err := execute(t, "", "config", "show")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "Anthropic (cloud)")
	assert.Contains(t, out, "sk-a...7890")
	assert.Contains(t, out, "Chunk size: 1000 (overlap 200)")
}

func TestConfigEmbeddingCmd_Interactive(t *testing.T) {
	store := useSettings(t, nil)

	// Choice 2 is Ollama; the model prompt takes the default.
	out, err := execute(t, "2\n\n", "config", "embedding")
	requireNoErr(t, out, err)

	assert.Equal(t, "ollama", store.GetString("embedding.provider"))
	assert.Equal(t, "nomic-embed-text", store.GetString("embedding.model"))
	assert.Equal(t, 768, store.GetInt("embedding.dimensions"))
	assert.Contains(t, out, "OK")
}

func TestConfigShowCmd_IgnoresShellKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-shell-ZZZZ")
	useSettings(t, map[string]any{
		"llm.provider": "anthropic",
		"llm.api_key":  "sk-ant-1234567890",
	})

	out, err := execute(t, "", "config", "show")
	requireNoErr(t, out, err)
	assert.Contains(t, out, "sk-a...7890")
	assert.NotContains(t, out, "ZZZZ")
}
