// Package strings provides string slice helpers shared by the engine packages.
package strings

import (
	"strings"
	"unicode"
)

// Dedupe removes exact duplicates from a slice. Order is preserved and
// elements are kept as is.
//
// Example:
//
//	Dedupe([]string{"Le SIRET", "Le nom", "Le SIRET"})
//	// Returns: []string{"Le SIRET", "Le nom"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	trimmed := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return Dedupe(trimmed)
}

// CompactIdentifier strips every whitespace rune and upper-cases the rest.
// SIRET and VAT numbers are often typed with separators ("FR 12 345...").
func CompactIdentifier(value string) string {
	return strings.ToUpper(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value))
}

// CompactIdentifiers applies CompactIdentifier to each element, then drops
// empty results and duplicates.
//
// Example:
//
//	CompactIdentifiers([]string{"fr 123", "FR123", " "})
//	// Returns: []string{"FR123"}
func CompactIdentifiers(values []string) []string {
	if len(values) == 0 {
		return values
	}

	compact := make([]string, 0, len(values))
	for _, v := range values {
		if c := CompactIdentifier(v); c != "" {
			compact = append(compact, c)
		}
	}
	return Dedupe(compact)
}
