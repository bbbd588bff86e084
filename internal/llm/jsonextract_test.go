package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected string
		wantErr  bool
	}{
		{
			name:     "bare object",
			text:     `{"intent":"schedule"}`,
			expected: `{"intent":"schedule"}`,
		},
		{
			name:     "object wrapped in prose",
			text:     "Sure, here is the classification:\n{\"intent\":\"sale\",\"confidence\":0.9}\nLet me know if you need more.",
			expected: `{"intent":"sale","confidence":0.9}`,
		},
		{
			name:     "nested braces",
			text:     `prefix {"a":{"b":{"c":1}},"d":[{"e":2}]} suffix`,
			expected: `{"a":{"b":{"c":1}},"d":[{"e":2}]}`,
		},
		{
			name:     "braces inside string values",
			text:     `{"prompt":"use {placeholders} like }{ freely","n":1}`,
			expected: `{"prompt":"use {placeholders} like }{ freely","n":1}`,
		},
		{
			name:     "escaped quotes inside strings",
			text:     `{"msg":"she said \"hola\" {twice}"}`,
			expected: `{"msg":"she said \"hola\" {twice}"}`,
		},
		{
			name:     "first of two objects wins",
			text:     `{"first":1} {"second":2}`,
			expected: `{"first":1}`,
		},
		{
			name:    "unbalanced object",
			text:    `{"intent":"schedule"`,
			wantErr: true,
		},
		{
			name:    "no object at all",
			text:    "I could not produce a classification for that message.",
			wantErr: true,
		},
		{
			name:    "empty response",
			text:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsMalformed(err), "error should carry the malformed-response code")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
			assert.True(t, json.Valid([]byte(got)), "extracted text must be valid JSON")
		})
	}
}

func TestExtractJSONObject_DepthBound(t *testing.T) {
	deep := strings.Repeat(`{"a":`, 100) + "1" + strings.Repeat("}", 100)
	_, err := ExtractJSONObject(deep)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}
