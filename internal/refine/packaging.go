package refine

import (
	"fmt"
	"slices"
	"strings"

	"bordereau/internal/issue"
)

// PackagingOther is the packaging type that needs a free-text description.
const PackagingOther = "AUTRE"

// Packaging is one line of a packaging list.
type Packaging struct {
	Type     string   `json:"type"`
	Other    *string  `json:"other,omitempty"`
	Quantity *int     `json:"quantity,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
}

// Packagings checks each packaging line: a type from allowed, a description
// for AUTRE, a quantity of at least one and a positive volume.
func Packagings(field string, path []string, allowed []string, items []Packaging) []issue.Issue {
	var out []issue.Issue
	for i, p := range items {
		itemPath := append(append([]string(nil), path...), fmt.Sprint(i))
		if len(allowed) > 0 && !slices.Contains(allowed, p.Type) {
			out = append(out, issue.CrossField(field, itemPath,
				fmt.Sprintf("Le type de conditionnement %q n'existe pas", p.Type)))
		}
		if p.Type == PackagingOther && (p.Other == nil || strings.TrimSpace(*p.Other) == "") {
			out = append(out, issue.CrossField(field, itemPath,
				"Vous devez saisir la description du conditionnement quand le type de conditionnement est 'Autre'"))
		}
		if p.Quantity != nil && *p.Quantity < 1 {
			out = append(out, issue.CrossField(field, itemPath, "La quantité doit être un nombre positif"))
		}
		if p.Volume != nil && *p.Volume <= 0 {
			out = append(out, issue.CrossField(field, itemPath, "Le volume doit être un nombre positif"))
		}
	}
	return out
}
