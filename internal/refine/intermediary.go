package refine

import (
	"fmt"

	"bordereau/internal/issue"
	pstrings "bordereau/pkg/platform/strings"
)

// MaxIntermediaries is the number of intermediaries a document may name.
const MaxIntermediaries = 3

// Intermediary is a company acting as intermediary on a document.
type Intermediary struct {
	Siret     *string `json:"siret,omitempty"`
	VatNumber *string `json:"vatNumber,omitempty"`
	Name      *string `json:"name,omitempty"`
	Address   *string `json:"address,omitempty"`
	Contact   *string `json:"contact,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Mail      *string `json:"mail,omitempty"`
}

// OrgID is the SIRET, else the VAT number.
func (i Intermediary) OrgID() string {
	if s := pstrings.CompactIdentifier(deref(i.Siret)); s != "" {
		return s
	}
	return pstrings.CompactIdentifier(deref(i.VatNumber))
}

// Intermediaries checks the count, identifiers and names of intermediaries.
func Intermediaries(field string, items []Intermediary) []issue.Issue {
	if len(items) > MaxIntermediaries {
		return []issue.Issue{issue.CrossField(field, []string{field},
			fmt.Sprintf("Intermédiaires : vous ne pouvez pas ajouter plus de %d intermédiaires", MaxIntermediaries))}
	}
	var out []issue.Issue
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		path := []string{field, fmt.Sprint(i)}
		id := it.OrgID()
		switch {
		case id == "":
			out = append(out, issue.CrossField(field, path, "Intermédiaires : le N° SIRET ou le numéro de TVA est obligatoire"))
		case seen[id]:
			out = append(out, issue.CrossField(field, path,
				fmt.Sprintf("Intermédiaires : l'établissement %s ne peut pas être ajouté deux fois", id)))
		}
		seen[id] = true
		if deref(it.Name) == "" {
			out = append(out, issue.CrossField(field, path, "Intermédiaires : la raison sociale est obligatoire"))
		}
	}
	return out
}

// IntermediaryOrgIDs lists the identifiers of intermediaries, deduplicated.
func IntermediaryOrgIDs(items []Intermediary) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if id := it.OrgID(); id != "" {
			ids = append(ids, id)
		}
	}
	return pstrings.Dedupe(ids)
}
