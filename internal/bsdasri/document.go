// Package bsdasri validates and records signatures on medical waste
// tracking slips (BSDASRI): emission, transport, reception and operation.
package bsdasri

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bordereau/internal/operation"
	"bordereau/internal/refine"
	"bordereau/internal/roles"
)

// DocumentType names the document in stores, metrics and events.
const DocumentType = "BSDASRI"

// Type distinguishes simple slips from grouping and synthesis slips.
type Type string

const (
	Simple    Type = "SIMPLE"
	Grouping  Type = "GROUPING"
	Synthesis Type = "SYNTHESIS"
)

func (t Type) Valid() bool {
	return t == Simple || t == Grouping || t == Synthesis
}

// AcceptationStatus is the answer of a transporter or destination.
type AcceptationStatus string

const (
	Accepted         AcceptationStatus = "ACCEPTED"
	Refused          AcceptationStatus = "REFUSED"
	PartiallyRefused AcceptationStatus = "PARTIALLY_REFUSED"
)

func (s AcceptationStatus) Valid() bool {
	return s == Accepted || s == Refused || s == PartiallyRefused
}

// RefusedOrPartially reports a status that requires a refusal reason.
func (s *AcceptationStatus) RefusedOrPartially() bool {
	return s != nil && (*s == Refused || *s == PartiallyRefused)
}

// Waste codes a BSDASRI may carry.
var WasteCodes = []string{"18 01 03*", "18 02 02*"}

// Packaging types a BSDASRI may carry.
var PackagingTypes = []string{"BOITE_CARTON", "FUT", "BOITE_PERFORANTS", "GRAND_EMBALLAGE", "GRV", refine.PackagingOther}

// Operation codes. Grouping codes are reserved to collectors and forbidden
// on grouping and synthesis slips.
var (
	ProcessingCodes = []string{"D9F", "D10", "R1", "D12"}
	GroupingCodes   = []string{"R12", "D13"}
	OperationCodes  = append(append([]string(nil), ProcessingCodes...), GroupingCodes...)
)

// Bsdasri is the flat document. JSON keys are the field names used by the
// rule table.
type Bsdasri struct {
	ID        string     `json:"id"`
	Type      Type       `json:"type"`
	IsDraft   bool       `json:"isDraft"`
	CreatedAt *time.Time `json:"createdAt"`

	EmitterCompanyName                *string            `json:"emitterCompanyName"`
	EmitterCompanySiret               *string            `json:"emitterCompanySiret"`
	EmitterCompanyAddress             *string            `json:"emitterCompanyAddress"`
	EmitterCompanyContact             *string            `json:"emitterCompanyContact"`
	EmitterCompanyPhone               *string            `json:"emitterCompanyPhone"`
	EmitterCompanyMail                *string            `json:"emitterCompanyMail"`
	EmitterPickupSiteName             *string            `json:"emitterPickupSiteName"`
	EmitterPickupSiteAddress          *string            `json:"emitterPickupSiteAddress"`
	EmitterPickupSiteCity             *string            `json:"emitterPickupSiteCity"`
	EmitterPickupSitePostalCode       *string            `json:"emitterPickupSitePostalCode"`
	EmitterPickupSiteInfos            *string            `json:"emitterPickupSiteInfos"`
	EmitterWasteVolume                *float64           `json:"emitterWasteVolume"`
	EmitterWastePackagings            []refine.Packaging `json:"emitterWastePackagings"`
	EmitterWasteWeightValue           *float64           `json:"emitterWasteWeightValue"`
	EmitterWasteWeightIsEstimate      *bool              `json:"emitterWasteWeightIsEstimate"`
	EmitterCustomInfo                 *string            `json:"emitterCustomInfo"`
	EmitterEmissionSignatureAuthor    *string            `json:"emitterEmissionSignatureAuthor"`
	EmitterEmissionSignatureDate      *time.Time         `json:"emitterEmissionSignatureDate"`
	IsEmissionDirectTakenOver         bool               `json:"isEmissionDirectTakenOver"`
	IsEmissionTakenOverWithSecretCode bool               `json:"isEmissionTakenOverWithSecretCode"`

	WasteCode *string `json:"wasteCode"`
	WasteAdr  *string `json:"wasteAdr"`

	TransporterCompanyName              *string              `json:"transporterCompanyName"`
	TransporterCompanySiret             *string              `json:"transporterCompanySiret"`
	TransporterCompanyVatNumber         *string              `json:"transporterCompanyVatNumber"`
	TransporterCompanyAddress           *string              `json:"transporterCompanyAddress"`
	TransporterCompanyPhone             *string              `json:"transporterCompanyPhone"`
	TransporterCompanyContact           *string              `json:"transporterCompanyContact"`
	TransporterCompanyMail              *string              `json:"transporterCompanyMail"`
	TransporterRecepisseNumber          *string              `json:"transporterRecepisseNumber"`
	TransporterRecepisseDepartment      *string              `json:"transporterRecepisseDepartment"`
	TransporterRecepisseValidityLimit   *time.Time           `json:"transporterRecepisseValidityLimit"`
	TransporterRecepisseIsExempted      *bool                `json:"transporterRecepisseIsExempted"`
	TransporterAcceptationStatus        *AcceptationStatus   `json:"transporterAcceptationStatus"`
	TransporterWasteRefusalReason       *string              `json:"transporterWasteRefusalReason"`
	TransporterWasteRefusedWeightValue  *float64             `json:"transporterWasteRefusedWeightValue"`
	TransporterTakenOverAt              *time.Time           `json:"transporterTakenOverAt"`
	TransporterWastePackagings          []refine.Packaging   `json:"transporterWastePackagings"`
	TransporterWasteWeightValue         *float64             `json:"transporterWasteWeightValue"`
	TransporterWasteWeightIsEstimate    *bool                `json:"transporterWasteWeightIsEstimate"`
	TransporterWasteVolume              *float64             `json:"transporterWasteVolume"`
	TransporterCustomInfo               *string              `json:"transporterCustomInfo"`
	TransporterTransportMode            refine.TransportMode `json:"transporterTransportMode"`
	TransporterTransportPlates          []string             `json:"transporterTransportPlates"`
	TransporterTransportSignatureAuthor *string              `json:"transporterTransportSignatureAuthor"`
	TransporterTransportSignatureDate   *time.Time           `json:"transporterTransportSignatureDate"`
	HandedOverToRecipientAt             *time.Time           `json:"handedOverToRecipientAt"`

	DestinationCap                              *string            `json:"destinationCap"`
	DestinationCompanyName                      *string            `json:"destinationCompanyName"`
	DestinationCompanySiret                     *string            `json:"destinationCompanySiret"`
	DestinationCompanyAddress                   *string            `json:"destinationCompanyAddress"`
	DestinationCompanyContact                   *string            `json:"destinationCompanyContact"`
	DestinationCompanyPhone                     *string            `json:"destinationCompanyPhone"`
	DestinationCompanyMail                      *string            `json:"destinationCompanyMail"`
	DestinationCustomInfo                       *string            `json:"destinationCustomInfo"`
	DestinationWastePackagings                  []refine.Packaging `json:"destinationWastePackagings"`
	DestinationReceptionAcceptationStatus       *AcceptationStatus `json:"destinationReceptionAcceptationStatus"`
	DestinationReceptionWasteRefusalReason      *string            `json:"destinationReceptionWasteRefusalReason"`
	DestinationReceptionWasteRefusedWeightValue *float64           `json:"destinationReceptionWasteRefusedWeightValue"`
	DestinationReceptionWasteWeightValue        *float64           `json:"destinationReceptionWasteWeightValue"`
	DestinationReceptionWasteVolume             *float64           `json:"destinationReceptionWasteVolume"`
	DestinationReceptionDate                    *time.Time         `json:"destinationReceptionDate"`
	DestinationReceptionSignatureAuthor         *string            `json:"destinationReceptionSignatureAuthor"`
	DestinationReceptionSignatureDate           *time.Time         `json:"destinationReceptionSignatureDate"`
	DestinationOperationCode                    *string            `json:"destinationOperationCode"`
	DestinationOperationMode                    *operation.Mode    `json:"destinationOperationMode"`
	DestinationOperationDate                    *time.Time         `json:"destinationOperationDate"`
	DestinationOperationSignatureAuthor         *string            `json:"destinationOperationSignatureAuthor"`
	DestinationOperationSignatureDate           *time.Time         `json:"destinationOperationSignatureDate"`

	EcoOrganismeName      *string `json:"ecoOrganismeName"`
	EcoOrganismeSiret     *string `json:"ecoOrganismeSiret"`
	EmittedByEcoOrganisme bool    `json:"emittedByEcoOrganisme"`

	BrokerCompanyName            *string    `json:"brokerCompanyName"`
	BrokerCompanySiret           *string    `json:"brokerCompanySiret"`
	BrokerCompanyAddress         *string    `json:"brokerCompanyAddress"`
	BrokerCompanyContact         *string    `json:"brokerCompanyContact"`
	BrokerCompanyPhone           *string    `json:"brokerCompanyPhone"`
	BrokerCompanyMail            *string    `json:"brokerCompanyMail"`
	BrokerRecepisseNumber        *string    `json:"brokerRecepisseNumber"`
	BrokerRecepisseDepartment    *string    `json:"brokerRecepisseDepartment"`
	BrokerRecepisseValidityLimit *time.Time `json:"brokerRecepisseValidityLimit"`

	TraderCompanyName            *string    `json:"traderCompanyName"`
	TraderCompanySiret           *string    `json:"traderCompanySiret"`
	TraderCompanyAddress         *string    `json:"traderCompanyAddress"`
	TraderCompanyContact         *string    `json:"traderCompanyContact"`
	TraderCompanyPhone           *string    `json:"traderCompanyPhone"`
	TraderCompanyMail            *string    `json:"traderCompanyMail"`
	TraderRecepisseNumber        *string    `json:"traderRecepisseNumber"`
	TraderRecepisseDepartment    *string    `json:"traderRecepisseDepartment"`
	TraderRecepisseValidityLimit *time.Time `json:"traderRecepisseValidityLimit"`

	Intermediaries        []refine.Intermediary `json:"intermediaries"`
	IntermediariesOrgIDs  []string              `json:"intermediariesOrgIds"`
	IdentificationNumbers []string              `json:"identificationNumbers"`
	Grouping              []string              `json:"grouping"`
	Synthesizing          []string              `json:"synthesizing"`
}

// Parties lists the company references of the slip for role resolution.
func (b Bsdasri) Parties() []roles.Party {
	parties := []roles.Party{
		{Role: roles.Emitter, ID: b.EmitterCompanySiret},
		{Role: roles.Transporter, ID: b.TransporterCompanySiret},
		{Role: roles.Transporter, ID: b.TransporterCompanyVatNumber},
		{Role: roles.Destination, ID: b.DestinationCompanySiret},
		{Role: roles.EcoOrganisme, ID: b.EcoOrganismeSiret},
		{Role: roles.Broker, ID: b.BrokerCompanySiret},
		{Role: roles.Trader, ID: b.TraderCompanySiret},
	}
	for _, it := range b.Intermediaries {
		id := it.OrgID()
		parties = append(parties, roles.Party{Role: roles.Intermediary, ID: &id})
	}
	return parties
}

func (b Bsdasri) isSynthesis() bool {
	return b.Type == Synthesis
}

// NewID returns a readable identifier such as DASRI-20260315-4F9A1C2B7.
func NewID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:9]
	return fmt.Sprintf("DASRI-%s-%s", now.Format("20060102"), suffix)
}
