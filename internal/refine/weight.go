package refine

import (
	"fmt"

	"bordereau/internal/issue"
)

// Weight bounds in kilograms, by transport mode.
const (
	MaxRoadWeightKg  = 40_000
	MaxOtherWeightKg = 50_000_000
)

// Weight describes one weight value and its estimate flag on a document.
type Weight struct {
	ValueField    string
	EstimateField string
	Path          []string
	Value         *float64
	IsEstimate    *bool
	Mode          TransportMode
}

// Weights checks that each weight is positive, below the bound of its
// transport mode, and given together with its estimate flag.
func Weights(weights ...Weight) []issue.Issue {
	var out []issue.Issue
	for _, w := range weights {
		if w.Value == nil {
			if w.IsEstimate != nil && w.EstimateField != "" {
				out = append(out, issue.CrossField(w.ValueField, w.Path,
					"Le poids doit être renseigné lorsque le type de pesée (réelle ou estimée) est précisé"))
			}
			continue
		}
		if *w.Value <= 0 {
			out = append(out, issue.CrossField(w.ValueField, w.Path, "Le poids doit être supérieur à 0"))
			continue
		}
		if w.EstimateField != "" && w.IsEstimate == nil {
			out = append(out, issue.CrossField(w.EstimateField, w.Path,
				"Le type de pesée (réelle ou estimée) doit être précisé si vous renseignez un poids"))
		}
		limit, label := float64(MaxOtherWeightKg), "50 000 tonnes"
		if w.Mode == Road || w.Mode == Unknown {
			limit, label = MaxRoadWeightKg, "40 tonnes"
		}
		if *w.Value > limit {
			out = append(out, issue.CrossField(w.ValueField, w.Path,
				fmt.Sprintf("Le poids doit être inférieur à %s lorsque le transport se fait en %s", label, modeLabel(w.Mode))))
		}
	}
	return out
}

func modeLabel(m TransportMode) string {
	switch m {
	case Rail:
		return "train"
	case Air:
		return "avion"
	case River:
		return "voie fluviale"
	case Sea:
		return "voie maritime"
	case Other:
		return "autre mode"
	}
	return "route"
}
