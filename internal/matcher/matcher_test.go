package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		expected []string
	}{
		{
			name:     "Case-insensitive match",
			text:     "Looking for a new Widget for my kitchen",
			keywords: []string{"widget"},
			expected: []string{"widget"},
		},
		{
			name:     "Substring match",
			text:     "comparing widgets and gadgets",
			keywords: []string{"widget"},
			expected: []string{"widget"},
		},
		{
			name:     "No match",
			text:     "completely unrelated post",
			keywords: []string{"widget", "gadget"},
			expected: nil,
		},
		{
			name:     "Preserves configured keyword order",
			text:     "my coffee maker broke, any espresso machine recs?",
			keywords: []string{"espresso machine", "coffee maker", "grinder"},
			expected: []string{"espresso machine", "coffee maker"},
		},
		{
			name:     "Mixed-case keyword",
			text:     "the widget arrived today",
			keywords: []string{"Widget"},
			expected: []string{"Widget"},
		},
		{
			name:     "Empty keyword is ignored",
			text:     "anything at all",
			keywords: []string{"", "anything"},
			expected: []string{"anything"},
		},
		{
			name:     "Empty keyword list",
			text:     "anything at all",
			keywords: nil,
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Match(tt.text, tt.keywords))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "my title some body", Normalize("My Title", "Some BODY"))
	assert.Equal(t, "title only ", Normalize("Title Only", ""))
}
