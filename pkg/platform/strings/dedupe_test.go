package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupe(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{name: "empty slice", input: []string{}, expected: []string{}},
		{
			name:     "removes duplicates preserving order",
			input:    []string{"emitter", "transporter", "emitter"},
			expected: []string{"emitter", "transporter"},
		},
		{
			name:     "keeps whitespace variants apart",
			input:    []string{"a", " a"},
			expected: []string{"a", " a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Dedupe(tt.input))
		})
	}
}

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{
			name:     "trims, dedupes and drops blanks",
			input:    []string{"  AB-123-CD ", "AB-123-CD", "", "  ", "EF-456-GH"},
			expected: []string{"AB-123-CD", "EF-456-GH"},
		},
		{
			name:     "preserves case",
			input:    []string{"Foo", "foo"},
			expected: []string{"Foo", "foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}

func TestCompactIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil slice", input: nil, expected: nil},
		{
			name:     "strips inner spaces of a SIRET",
			input:    []string{"853 259 720 00017"},
			expected: []string{"85325972000017"},
		},
		{
			name:     "upper-cases and dedupes VAT numbers",
			input:    []string{"be0541696005", "BE 0541696005", "\t"},
			expected: []string{"BE0541696005"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CompactIdentifiers(tt.input))
		})
	}
}
