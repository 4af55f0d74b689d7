// Package roles resolves which parties of a document a caller represents.
package roles

import (
	pstrings "bordereau/pkg/platform/strings"
)

// Role is a capacity a company can hold on a document.
type Role string

const (
	Emitter      Role = "EMITTER"
	Transporter  Role = "TRANSPORTER"
	Destination  Role = "DESTINATION"
	Broker       Role = "BROKER"
	Trader       Role = "TRADER"
	EcoOrganisme Role = "ECO_ORGANISME"
	Intermediary Role = "INTERMEDIARY"
)

// User is the caller with the organisation identifiers (SIRET or VAT) it
// belongs to. Memberships are fetched by the caller's auth layer.
type User struct {
	ID     string
	OrgIDs []string
}

// Party is one company reference on a document. A nil or blank identifier
// means the role is unfilled.
type Party struct {
	Role Role
	ID   *string
}

// Parties is implemented by documents to expose their company references.
// A role may appear several times (multiple transporters, intermediaries).
type Parties interface {
	Parties() []Party
}

// Set holds the roles a user occupies on one document. It is never
// persisted and is recomputed for every validation.
type Set struct {
	IsEmitter      bool `json:"isEmitter"`
	IsTransporter  bool `json:"isTransporter"`
	IsDestination  bool `json:"isDestination"`
	IsBroker       bool `json:"isBroker"`
	IsTrader       bool `json:"isTrader"`
	IsEcoOrganisme bool `json:"isEcoOrganisme"`
	IsIntermediary bool `json:"isIntermediary"`
}

// Has reports whether the set contains role r.
func (s Set) Has(r Role) bool {
	switch r {
	case Emitter:
		return s.IsEmitter
	case Transporter:
		return s.IsTransporter
	case Destination:
		return s.IsDestination
	case Broker:
		return s.IsBroker
	case Trader:
		return s.IsTrader
	case EcoOrganisme:
		return s.IsEcoOrganisme
	case Intermediary:
		return s.IsIntermediary
	}
	return false
}

func (s *Set) add(r Role) {
	switch r {
	case Emitter:
		s.IsEmitter = true
	case Transporter:
		s.IsTransporter = true
	case Destination:
		s.IsDestination = true
	case Broker:
		s.IsBroker = true
	case Trader:
		s.IsTrader = true
	case EcoOrganisme:
		s.IsEcoOrganisme = true
	case Intermediary:
		s.IsIntermediary = true
	}
}

// Resolve computes the roles user holds on doc by testing membership of each
// party identifier in the user's organisations. It has no side effects.
func Resolve(user User, doc Parties) Set {
	var set Set
	if doc == nil {
		return set
	}
	orgs := make(map[string]struct{}, len(user.OrgIDs))
	for _, id := range pstrings.CompactIdentifiers(user.OrgIDs) {
		orgs[id] = struct{}{}
	}
	if len(orgs) == 0 {
		return set
	}
	for _, p := range doc.Parties() {
		if p.ID == nil {
			continue
		}
		id := pstrings.CompactIdentifier(*p.ID)
		if id == "" {
			continue
		}
		if _, ok := orgs[id]; ok {
			set.add(p.Role)
		}
	}
	return set
}
