// Package company models the company registry records the validation
// pipeline checks parties against, and the lookup service in front of the
// registry.
package company

import (
	"slices"
	"time"
)

// Type is a capability profile a company registered for.
type Type string

const (
	Producer       Type = "PRODUCER"
	Collector      Type = "COLLECTOR"
	WasteProcessor Type = "WASTEPROCESSOR"
	Transporter    Type = "TRANSPORTER"
	WasteCenter    Type = "WASTE_CENTER"
	WasteVehicles  Type = "WASTE_VEHICLES"
	Broker         Type = "BROKER"
	Trader         Type = "TRADER"
	EcoOrganisme   Type = "ECO_ORGANISME"
	Intermediary   Type = "INTERMEDIARY"
)

// ProcessorType refines the WASTEPROCESSOR profile.
type ProcessorType string

const (
	Cremation                      ProcessorType = "CREMATION"
	DangerousWastesIncineration    ProcessorType = "DANGEROUS_WASTES_INCINERATION"
	NonDangerousWastesIncineration ProcessorType = "NON_DANGEROUS_WASTES_INCINERATION"
)

// VerificationStatus tracks the manual verification of a company account.
type VerificationStatus string

const (
	Verified     VerificationStatus = "VERIFIED"
	ToBeVerified VerificationStatus = "TO_BE_VERIFIED"
	LetterSent   VerificationStatus = "LETTER_SENT"
)

// DocumentType names a bordereau type an eco-organisme may be allowed to handle.
type DocumentType string

const (
	Bsdasri DocumentType = "BSDASRI"
	Bspaoh  DocumentType = "BSPAOH"
)

// Record is the registry view of a company.
type Record struct {
	Siret          string             `json:"siret,omitempty"`
	VatNumber      string             `json:"vatNumber,omitempty"`
	Name           string             `json:"name"`
	Address        string             `json:"address"`
	Types          []Type             `json:"types"`
	ProcessorTypes []ProcessorType    `json:"processorTypes,omitempty"`
	Verification   VerificationStatus `json:"verification"`
	DormantSince   *time.Time         `json:"dormantSince,omitempty"`
	// Handles lists the document types an eco-organisme is approved for.
	Handles []DocumentType `json:"handles,omitempty"`
}

// OrgID is the identifier the record is looked up by: SIRET first, then VAT.
func (r *Record) OrgID() string {
	if r.Siret != "" {
		return r.Siret
	}
	return r.VatNumber
}

func (r *Record) has(t Type) bool {
	return slices.Contains(r.Types, t)
}

func (r *Record) IsTransporter() bool { return r.has(Transporter) }
func (r *Record) IsBroker() bool      { return r.has(Broker) }
func (r *Record) IsTrader() bool      { return r.has(Trader) }
func (r *Record) IsCollector() bool   { return r.has(Collector) }

// IsDestination reports whether the company may receive waste: treatment,
// collection (sorting, transit, grouping) or storage.
func (r *Record) IsDestination() bool {
	return r.has(WasteProcessor) || r.has(Collector) || r.has(WasteCenter) || r.has(WasteVehicles)
}

// IsCrematorium reports the cremation capability required for destinations
// of pathological anatomical waste.
func (r *Record) IsCrematorium() bool {
	return r.has(WasteProcessor) && slices.Contains(r.ProcessorTypes, Cremation)
}

// IsEcoOrganisme reports an approved eco-organisme.
func (r *Record) IsEcoOrganisme() bool { return r.has(EcoOrganisme) }

// CanHandle reports whether an eco-organisme is approved for the type.
func (r *Record) CanHandle(t DocumentType) bool {
	return r.IsEcoOrganisme() && slices.Contains(r.Handles, t)
}

func (r *Record) IsDormant() bool { return r.DormantSince != nil }

func (r *Record) IsVerified() bool { return r.Verification == Verified }
