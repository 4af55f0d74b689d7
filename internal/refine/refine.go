// Package refine holds the cross-field checks shared by every document type:
// pure checks over already decoded values, and registry checks that look the
// parties up in the company registry.
package refine

import (
	"fmt"
	"strings"
	"time"

	"bordereau/internal/issue"
)

// TransportMode is the way waste is moved by a transporter.
type TransportMode string

const (
	Road    TransportMode = "ROAD"
	Rail    TransportMode = "RAIL"
	Air     TransportMode = "AIR"
	River   TransportMode = "RIVER"
	Sea     TransportMode = "SEA"
	Other   TransportMode = "OTHER"
	Unknown TransportMode = ""
)

func (m TransportMode) Valid() bool {
	switch m {
	case Road, Rail, Air, River, Sea, Other:
		return true
	}
	return false
}

const (
	MsgPlatesTooMany         = "Un maximum de 2 plaques d'immatriculation est accepté"
	MsgPlatesIncorrectLength = "Le numéro d'immatriculation doit faire entre 4 et 12 caractères"
	MsgPlatesIncorrectFormat = "Le numéro de plaque fourni est incorrect"
	MsgPlatesForbidden       = "Les plaques d'immatriculation ne peuvent être renseignées que pour un transport routier"
	MsgFrenchVatTransporter  = "Le transporteur est une entreprise française, veuillez renseigner son numéro SIRET et non son numéro de TVA"
)

const (
	maxPlates      = 2
	minPlateLength = 4
	maxPlateLength = 12
)

// Plates checks the registration plates of a transporter. Missing plates on
// road transport are left to the requirement rules.
func Plates(field string, path []string, mode TransportMode, plates []string) []issue.Issue {
	if len(plates) == 0 {
		return nil
	}
	if mode != Road && mode != Unknown {
		return []issue.Issue{issue.CrossField(field, path, MsgPlatesForbidden)}
	}
	if len(plates) > maxPlates {
		return []issue.Issue{issue.CrossField(field, path, MsgPlatesTooMany)}
	}
	for _, p := range plates {
		if strings.TrimSpace(p) == "" {
			return []issue.Issue{issue.CrossField(field, path, MsgPlatesIncorrectFormat)}
		}
		if n := len([]rune(p)); n < minPlateLength || n > maxPlateLength {
			return []issue.Issue{issue.CrossField(field, path, MsgPlatesIncorrectLength)}
		}
	}
	return nil
}

// IsForeignVat reports a VAT number issued outside France.
func IsForeignVat(vat string) bool {
	v := strings.ToUpper(strings.TrimSpace(vat))
	return v != "" && !strings.HasPrefix(v, "FR")
}

// IsFrenchVat reports a French VAT number.
func IsFrenchVat(vat string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(vat)), "FR")
}

// TransporterVat rejects a French VAT number given in place of a SIRET.
func TransporterVat(field string, path []string, siret, vat *string) []issue.Issue {
	if deref(siret) == "" && IsFrenchVat(deref(vat)) {
		return []issue.Issue{issue.CrossField(field, path, MsgFrenchVatTransporter)}
	}
	return nil
}

// NotBefore checks that a date does not precede a reference date.
func NotBefore(field string, path []string, date, reference *time.Time, label string) []issue.Issue {
	if date == nil || reference == nil || !date.Before(*reference) {
		return nil
	}
	return []issue.Issue{issue.CrossField(field, path,
		fmt.Sprintf("%s ne peut pas être antérieure à la date de réception", label))}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
