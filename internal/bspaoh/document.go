// Package bspaoh validates and records signatures on tracking slips for
// pathological anatomical waste (BSPAOH), carried by one or more ordered
// transporters to a crematorium.
package bspaoh

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"bordereau/internal/refine"
	"bordereau/internal/roles"
)

// DocumentType names the document in stores, metrics and events.
const DocumentType = "BSPAOH"

// MaxTransporters is the number of transporters a slip may list.
const MaxTransporters = 5

// WasteType is the nature of the waste.
type WasteType string

const (
	Paoh   WasteType = "PAOH"
	Foetus WasteType = "FOETUS"
)

func (t WasteType) Valid() bool {
	return t == Paoh || t == Foetus
}

// AcceptationStatus is the answer of the destination on reception.
type AcceptationStatus string

const (
	Accepted         AcceptationStatus = "ACCEPTED"
	Refused          AcceptationStatus = "REFUSED"
	PartiallyRefused AcceptationStatus = "PARTIALLY_REFUSED"
)

func (s AcceptationStatus) Valid() bool {
	return s == Accepted || s == Refused || s == PartiallyRefused
}

// PackagingAcceptation is the answer for one packaging on reception.
type PackagingAcceptation string

const (
	PackagingAccepted PackagingAcceptation = "ACCEPTED"
	PackagingRefused  PackagingAcceptation = "REFUSED"
	PackagingPending  PackagingAcceptation = "PENDING"
)

func (a PackagingAcceptation) Valid() bool {
	return a == PackagingAccepted || a == PackagingRefused || a == PackagingPending
}

// WasteCodes a BSPAOH may carry.
var WasteCodes = []string{"18 01 02"}

// PackagingTypes a BSPAOH may carry.
var PackagingTypes = []string{"RELIQUAIRE", "LITTLE_BAG", "BIG_BAG"}

// Consistences of a packaging content.
var Consistences = []string{"SOLIDE", "LIQUIDE"}

// OperationCodes a crematorium may declare.
var OperationCodes = []string{"R1", "D10"}

// Packaging is one identified container of the slip.
type Packaging struct {
	ID                  string   `json:"id"`
	Type                string   `json:"type"`
	Volume              *float64 `json:"volume,omitempty"`
	ContainerNumber     *string  `json:"containerNumber,omitempty"`
	Quantity            int      `json:"quantity"`
	IdentificationCodes []string `json:"identificationCodes"`
	Consistence         string   `json:"consistence"`
}

// ReceivedPackaging is the destination's answer for the packaging ID.
type ReceivedPackaging struct {
	ID          string               `json:"id"`
	Acceptation PackagingAcceptation `json:"acceptation"`
}

// Transporter is one leg of the journey. Number orders the legs from 1.
type Transporter struct {
	Number                            int                  `json:"number"`
	TransporterCompanyName            *string              `json:"transporterCompanyName"`
	TransporterCompanySiret           *string              `json:"transporterCompanySiret"`
	TransporterCompanyVatNumber       *string              `json:"transporterCompanyVatNumber"`
	TransporterCompanyAddress         *string              `json:"transporterCompanyAddress"`
	TransporterCompanyContact         *string              `json:"transporterCompanyContact"`
	TransporterCompanyPhone           *string              `json:"transporterCompanyPhone"`
	TransporterCompanyMail            *string              `json:"transporterCompanyMail"`
	TransporterCustomInfo             *string              `json:"transporterCustomInfo"`
	TransporterRecepisseIsExempted    *bool                `json:"transporterRecepisseIsExempted"`
	TransporterRecepisseNumber        *string              `json:"transporterRecepisseNumber"`
	TransporterRecepisseDepartment    *string              `json:"transporterRecepisseDepartment"`
	TransporterRecepisseValidityLimit *time.Time           `json:"transporterRecepisseValidityLimit"`
	TransporterTransportMode          refine.TransportMode `json:"transporterTransportMode"`
	TransporterTransportPlates        []string             `json:"transporterTransportPlates"`
	TransporterTakenOverAt            *time.Time           `json:"transporterTakenOverAt"`
	// Signature fields are written by the service only.
	TransporterTransportSignatureAuthor *string    `json:"transporterTransportSignatureAuthor"`
	TransporterTransportSignatureDate   *time.Time `json:"transporterTransportSignatureDate"`
}

// Signed reports whether the transporter took the waste over.
func (t Transporter) Signed() bool {
	return t.TransporterTransportSignatureDate != nil
}

func (t Transporter) exempted() bool {
	return t.TransporterRecepisseIsExempted != nil && *t.TransporterRecepisseIsExempted
}

// Bspaoh is the flat document. JSON keys are the field names used by the
// rule table; transporter fields live in Transporters.
type Bspaoh struct {
	ID        string     `json:"id"`
	IsDraft   bool       `json:"isDraft"`
	CreatedAt *time.Time `json:"createdAt"`

	WasteType       *WasteType  `json:"wasteType"`
	WasteCode       *string     `json:"wasteCode"`
	WasteAdr        *string     `json:"wasteAdr"`
	WastePackagings []Packaging `json:"wastePackagings"`

	EmitterCompanyName             *string    `json:"emitterCompanyName"`
	EmitterCompanySiret            *string    `json:"emitterCompanySiret"`
	EmitterCompanyAddress          *string    `json:"emitterCompanyAddress"`
	EmitterCompanyContact          *string    `json:"emitterCompanyContact"`
	EmitterCompanyPhone            *string    `json:"emitterCompanyPhone"`
	EmitterCompanyMail             *string    `json:"emitterCompanyMail"`
	EmitterCustomInfo              *string    `json:"emitterCustomInfo"`
	EmitterPickupSiteName          *string    `json:"emitterPickupSiteName"`
	EmitterPickupSiteAddress       *string    `json:"emitterPickupSiteAddress"`
	EmitterPickupSiteCity          *string    `json:"emitterPickupSiteCity"`
	EmitterPickupSitePostalCode    *string    `json:"emitterPickupSitePostalCode"`
	EmitterPickupSiteInfos         *string    `json:"emitterPickupSiteInfos"`
	EmitterWasteQuantityValue      *int       `json:"emitterWasteQuantityValue"`
	EmitterWasteWeightValue        *float64   `json:"emitterWasteWeightValue"`
	EmitterWasteWeightIsEstimate   *bool      `json:"emitterWasteWeightIsEstimate"`
	EmitterEmissionSignatureAuthor *string    `json:"emitterEmissionSignatureAuthor"`
	EmitterEmissionSignatureDate   *time.Time `json:"emitterEmissionSignatureDate"`

	Transporters []Transporter `json:"transporters"`

	HandedOverToDestinationDate            *time.Time `json:"handedOverToDestinationDate"`
	HandedOverToDestinationSignatureAuthor *string    `json:"handedOverToDestinationSignatureAuthor"`
	HandedOverToDestinationSignatureDate   *time.Time `json:"handedOverToDestinationSignatureDate"`

	DestinationCompanyName                         *string             `json:"destinationCompanyName"`
	DestinationCompanySiret                        *string             `json:"destinationCompanySiret"`
	DestinationCompanyAddress                      *string             `json:"destinationCompanyAddress"`
	DestinationCompanyContact                      *string             `json:"destinationCompanyContact"`
	DestinationCompanyPhone                        *string             `json:"destinationCompanyPhone"`
	DestinationCompanyMail                         *string             `json:"destinationCompanyMail"`
	DestinationCustomInfo                          *string             `json:"destinationCustomInfo"`
	DestinationCap                                 *string             `json:"destinationCap"`
	DestinationReceptionWasteReceivedWeightValue   *float64            `json:"destinationReceptionWasteReceivedWeightValue"`
	DestinationReceptionWasteAcceptedWeightValue   *float64            `json:"destinationReceptionWasteAcceptedWeightValue"`
	DestinationReceptionWasteRefusedWeightValue    *float64            `json:"destinationReceptionWasteRefusedWeightValue"`
	DestinationReceptionWasteQuantityValue         *int                `json:"destinationReceptionWasteQuantityValue"`
	DestinationReceptionAcceptationStatus          *AcceptationStatus  `json:"destinationReceptionAcceptationStatus"`
	DestinationReceptionWasteRefusalReason         *string             `json:"destinationReceptionWasteRefusalReason"`
	DestinationReceptionDate                       *time.Time          `json:"destinationReceptionDate"`
	DestinationReceptionWastePackagingsAcceptation []ReceivedPackaging `json:"destinationReceptionWastePackagingsAcceptation"`
	DestinationReceptionSignatureAuthor            *string             `json:"destinationReceptionSignatureAuthor"`
	DestinationReceptionSignatureDate              *time.Time          `json:"destinationReceptionSignatureDate"`
	DestinationOperationCode                       *string             `json:"destinationOperationCode"`
	DestinationOperationDate                       *time.Time          `json:"destinationOperationDate"`
	DestinationOperationSignatureAuthor            *string             `json:"destinationOperationSignatureAuthor"`
	DestinationOperationSignatureDate              *time.Time          `json:"destinationOperationSignatureDate"`
}

// Parties lists the company references of the slip for role resolution.
// Every transporter of the list counts.
func (b Bspaoh) Parties() []roles.Party {
	parties := []roles.Party{
		{Role: roles.Emitter, ID: b.EmitterCompanySiret},
		{Role: roles.Destination, ID: b.DestinationCompanySiret},
	}
	for _, t := range b.Transporters {
		parties = append(parties,
			roles.Party{Role: roles.Transporter, ID: t.TransporterCompanySiret},
			roles.Party{Role: roles.Transporter, ID: t.TransporterCompanyVatNumber},
		)
	}
	return parties
}

// NextTransporter returns the index of the first transporter that has not
// signed, or -1.
func (b Bspaoh) NextTransporter() int {
	for i, t := range b.Transporters {
		if !t.Signed() {
			return i
		}
	}
	return -1
}

// transportSigned is true once the first transporter signed. Signed
// transporters cannot be removed, so it never turns false again.
func (b Bspaoh) transportSigned() bool {
	return len(b.Transporters) > 0 && b.Transporters[0].Signed()
}

// transportPending is true while TRANSPORT is signed but a later
// transporter has not signed yet.
func (b Bspaoh) transportPending() bool {
	return b.transportSigned() && b.NextTransporter() != -1
}

func (s *AcceptationStatus) refusedOrPartially() bool {
	return s != nil && (*s == Refused || *s == PartiallyRefused)
}

// NewID returns a readable identifier such as PAOH-20260315-4F9A1C2B7.
func NewID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:9]
	return fmt.Sprintf("PAOH-%s-%s", now.Format("20060102"), suffix)
}
