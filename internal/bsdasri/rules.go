package bsdasri

import (
	"slices"
	"strings"

	"bordereau/internal/refine"
	"bordereau/internal/rules"
	"bordereau/internal/signature"
)

// Hierarchy is the signing order of a BSDASRI.
var Hierarchy = signature.MustHierarchy(
	signature.Step[Bsdasri]{Stage: signature.Emission, IsSigned: func(b Bsdasri) bool { return b.EmitterEmissionSignatureDate != nil }},
	signature.Step[Bsdasri]{Stage: signature.Transport, IsSigned: func(b Bsdasri) bool { return b.TransporterTransportSignatureDate != nil }},
	signature.Step[Bsdasri]{Stage: signature.Reception, IsSigned: func(b Bsdasri) bool { return b.DestinationReceptionSignatureDate != nil }},
	signature.Step[Bsdasri]{Stage: signature.Operation, IsSigned: func(b Bsdasri) bool { return b.DestinationOperationSignatureDate != nil }},
)

type (
	rule      = rules.Rule[Bsdasri]
	fieldRule = rules.FieldRule[Bsdasri]
	guard     = rules.Guard[Bsdasri]
)

func from(s signature.Stage) rule {
	return rule{From: rules.Fixed[Bsdasri](s)}
}

func requiredFrom(s signature.Stage, when guard) *rule {
	r := from(s)
	r.When = when
	return &r
}

func sealedWhen(s signature.Stage, when guard) rule {
	r := from(s)
	r.When = when
	return r
}

const receiptMessage = "L'établissement doit renseigner son récépissé dans Trackdéchets"

func receiptRequired() *rule {
	r := requiredFrom(signature.Transport, requireTransporterReceipt)
	r.CustomMessage = receiptMessage
	return r
}

// sealedFromEmission keeps eco-organisme fields open until transport on a
// synthesis slip, and for an eco-organisme caller while the emitter has not
// signed.
var sealedFromEmission = rule{From: rules.Computed(func(b Bsdasri, ctx rules.Context[Bsdasri]) signature.Stage {
	if b.isSynthesis() {
		return signature.Transport
	}
	if ctx.Roles.IsEcoOrganisme && b.EmitterEmissionSignatureDate == nil {
		return signature.Transport
	}
	return signature.Emission
})}

func requireTransporterReceipt(b Bsdasri, _ signature.Stage) bool {
	return (b.TransporterRecepisseIsExempted == nil || !*b.TransporterRecepisseIsExempted) &&
		b.TransporterTransportMode == refine.Road &&
		!refine.IsForeignVat(deref(b.TransporterCompanyVatNumber))
}

func refusedByTransporter(b Bsdasri, _ signature.Stage) bool {
	return b.TransporterAcceptationStatus.RefusedOrPartially()
}

func refusedByDestination(b Bsdasri, _ signature.Stage) bool {
	return b.DestinationReceptionAcceptationStatus.RefusedOrPartially()
}

func notRefused(b Bsdasri, _ signature.Stage) bool {
	return b.DestinationReceptionAcceptationStatus == nil || *b.DestinationReceptionAcceptationStatus != Refused
}

func notSynthesis(b Bsdasri, _ signature.Stage) bool {
	return !b.isSynthesis()
}

func isFinalOperation(b Bsdasri, _ signature.Stage) bool {
	return b.DestinationOperationCode != nil && slices.Contains(ProcessingCodes, *b.DestinationOperationCode)
}

func atReception(_ Bsdasri, target signature.Stage) bool {
	return target == signature.Reception
}

func receptionSigned(b Bsdasri, _ signature.Stage) bool {
	return b.DestinationReceptionSignatureDate != nil || b.DestinationOperationSignatureDate != nil
}

// Table maps every editable BSDASRI field to its sealing and requirement
// rules.
var Table = rules.MustTable(
	fieldRule{Field: "isDraft", Sealed: from(signature.Emission)},

	// emitter
	fieldRule{
		Field:        "emitterCompanyName",
		ReadableName: "La raison sociale de l'émetteur",
		Path:         []string{"emitter", "company", "name"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, func(b Bsdasri, _ signature.Stage) bool { return deref(b.EcoOrganismeSiret) == "" }),
	},
	fieldRule{
		Field:        "emitterCompanySiret",
		ReadableName: "Le N° SIRET de l'émetteur",
		Path:         []string{"emitter", "company", "siret"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "emitterCompanyContact",
		ReadableName: "La personne à contacter chez l'émetteur",
		Path:         []string{"emitter", "company", "contact"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "emitterCompanyPhone",
		ReadableName: "Le N° de téléphone de l'émetteur",
		Path:         []string{"emitter", "company", "phone"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "emitterCompanyAddress",
		ReadableName: "L'adresse de l'émetteur",
		Path:         []string{"emitter", "company", "address"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterCompanyMail",
		ReadableName: "L'adresse e-mail de l'émetteur",
		Path:         []string{"emitter", "company", "mail"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{Field: "emitterWasteVolume", ReadableName: "Le volume de déchet émis", Sealed: from(signature.Emission)},
	fieldRule{
		Field:        "emitterWasteWeightValue",
		ReadableName: "Le poids de déchets émis",
		Path:         []string{"emitter", "emission", "weight", "value"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterWasteWeightIsEstimate",
		ReadableName: "Le type de pesée (réélle ou estimée)",
		Path:         []string{"emitter", "emission", "weight", "isEstimate"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterWastePackagings",
		ReadableName: "Le conditionnement de l'émetteur",
		Path:         []string{"emitter", "emission", "packagings"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, func(b Bsdasri, _ signature.Stage) bool { return !b.IsDraft }),
	},
	fieldRule{
		Field:        "emitterCustomInfo",
		ReadableName: "Le champ libre émetteur",
		Path:         []string{"emitter", "customInfo"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterPickupSiteName",
		ReadableName: "Le nom de l'adresse de chantier ou de collecte",
		Path:         []string{"emitter", "pickupSite", "name"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterPickupSiteAddress",
		ReadableName: "L'adresse de collecte ou de chantier",
		Path:         []string{"emitter", "pickupSite", "address"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterPickupSiteCity",
		ReadableName: "La ville de l'adresse de collecte ou de chantier",
		Path:         []string{"emitter", "pickupSite", "city"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterPickupSitePostalCode",
		ReadableName: "Le code postal de l'adresse de collecte ou de chantier",
		Path:         []string{"emitter", "pickupSite", "postalCode"},
		Sealed:       from(signature.Emission),
	},
	fieldRule{
		Field:        "emitterPickupSiteInfos",
		ReadableName: "Les informations de l'adresse de collecte",
		Path:         []string{"emitter", "pickupSite", "infos"},
		Sealed:       from(signature.Emission),
	},

	// waste
	fieldRule{
		Field:        "wasteCode",
		ReadableName: "Le code déchet",
		Path:         []string{"waste", "code"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "wasteAdr",
		ReadableName: "Le code adr",
		Path:         []string{"waste", "adr"},
		Sealed:       from(signature.Emission),
		Required:     requiredFrom(signature.Emission, nil),
	},

	// transporter
	fieldRule{
		Field:        "transporterCompanySiret",
		ReadableName: "Le N° SIRET du transporteur",
		Path:         []string{"transporter", "company", "siret"},
		Sealed:       from(signature.Transport),
		Required: requiredFrom(signature.Transport, func(b Bsdasri, _ signature.Stage) bool {
			return deref(b.TransporterCompanyVatNumber) == ""
		}),
	},
	fieldRule{
		Field:        "transporterCompanyVatNumber",
		ReadableName: "Le N° de TVA du transporteur",
		Path:         []string{"transporter", "company", "vatNumber"},
		Sealed:       from(signature.Transport),
		Required: requiredFrom(signature.Transport, func(b Bsdasri, _ signature.Stage) bool {
			return deref(b.TransporterCompanySiret) == ""
		}),
	},
	fieldRule{
		Field:        "transporterCompanyName",
		ReadableName: "Le nom du transporteur",
		Path:         []string{"transporter", "company", "name"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterCompanyAddress",
		ReadableName: "L'adresse du transporteur",
		Path:         []string{"transporter", "company", "address"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterCompanyContact",
		ReadableName: "Le nom de contact du transporteur",
		Path:         []string{"transporter", "company", "contact"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterCompanyPhone",
		ReadableName: "Le téléphone du transporteur",
		Path:         []string{"transporter", "company", "phone"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterCompanyMail",
		ReadableName: "L'email du transporteur",
		Path:         []string{"transporter", "company", "mail"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterRecepisseNumber",
		ReadableName: "Le numéro de récépissé du transporteur",
		Path:         []string{"transporter", "recepisse", "number"},
		Sealed:       from(signature.Transport),
		Required:     receiptRequired(),
	},
	fieldRule{
		Field:        "transporterRecepisseDepartment",
		ReadableName: "Le département de récépissé du transporteur",
		Path:         []string{"transporter", "recepisse", "department"},
		Sealed:       from(signature.Transport),
		Required:     receiptRequired(),
	},
	fieldRule{
		Field:        "transporterRecepisseValidityLimit",
		ReadableName: "La date de validité du récépissé du transporteur",
		Path:         []string{"transporter", "recepisse", "validityLimit"},
		Sealed:       from(signature.Transport),
		Required:     receiptRequired(),
	},
	fieldRule{
		Field:        "transporterRecepisseIsExempted",
		ReadableName: "L'exemption de récépissé du transporteur",
		Path:         []string{"transporter", "recepisse", "isExempted"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterTakenOverAt",
		ReadableName: "La date d'enlèvement du transporteur",
		Path:         []string{"transporter", "transport", "takenOverAt"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterTransportMode",
		ReadableName: "Le mode de transport",
		Path:         []string{"transporter", "transport", "mode"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, notSynthesis),
	},
	fieldRule{
		Field:        "transporterTransportPlates",
		ReadableName: "L'immatriculation du transporteur",
		Path:         []string{"transporter", "transport", "plates"},
		Sealed:       from(signature.Transport),
		Required: requiredFrom(signature.Transport, func(b Bsdasri, _ signature.Stage) bool {
			return b.TransporterTransportMode == refine.Road
		}),
	},
	fieldRule{
		Field:        "transporterCustomInfo",
		ReadableName: "Les champs d'informations complémentaires du transporteur",
		Path:         []string{"transporter", "customInfo"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterWastePackagings",
		ReadableName: "Le conditionnement du transporteur",
		Path:         []string{"transporter", "transport", "packagings"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterWasteWeightValue",
		ReadableName: "Le poids du déchet du transporteur",
		Path:         []string{"transporter", "transport", "weight", "value"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterWasteWeightIsEstimate",
		ReadableName: "Le poids du déchet est estimé",
		Path:         []string{"transporter", "transport", "weight", "isEstimate"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "transporterWasteVolume",
		ReadableName: "Le volume de déchet du transporteur",
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterAcceptationStatus",
		ReadableName: "L'acceptation du déchet par le transporteur",
		Path:         []string{"transporter", "transport", "acceptation", "status"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, nil),
	},
	fieldRule{
		Field:        "transporterWasteRefusedWeightValue",
		ReadableName: "Le poids refusé par le transporteur",
		Path:         []string{"transporter", "transport", "acceptation", "refusedWeight"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, refusedByTransporter),
	},
	fieldRule{
		Field:        "transporterWasteRefusalReason",
		ReadableName: "La raison du refus par le transporteur",
		Path:         []string{"transporter", "transport", "acceptation", "refusalReason"},
		Sealed:       from(signature.Transport),
		Required:     requiredFrom(signature.Transport, refusedByTransporter),
	},
	fieldRule{
		Field:        "handedOverToRecipientAt",
		ReadableName: "La date de remise au destinataire",
		Path:         []string{"transporter", "transport", "handedOverAt"},
		Sealed:       from(signature.Reception),
	},

	// destination
	fieldRule{
		Field:        "destinationCap",
		ReadableName: "Le CAP du destinataire",
		Path:         []string{"destination", "cap"},
		Sealed:       from(signature.Transport),
	},
	fieldRule{
		Field:        "destinationCompanyName",
		ReadableName: "La raison sociale du destinataire",
		Path:         []string{"destination", "company", "name"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "destinationCompanySiret",
		ReadableName: "Le N° SIRET du destinataire",
		Path:         []string{"destination", "company", "siret"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "destinationCompanyAddress",
		ReadableName: "L'adresse du destinataire",
		Path:         []string{"destination", "company", "address"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "destinationCompanyContact",
		ReadableName: "La personne à contacter chez le destinataire",
		Path:         []string{"destination", "company", "contact"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "destinationCompanyPhone",
		ReadableName: "Le N° de téléphone du destinataire",
		Path:         []string{"destination", "company", "phone"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Emission, nil),
	},
	fieldRule{
		Field:        "destinationCompanyMail",
		ReadableName: "L'adresse e-mail du destinataire",
		Path:         []string{"destination", "company", "mail"},
		Sealed:       from(signature.Reception),
	},
	fieldRule{
		Field:        "destinationCustomInfo",
		ReadableName: "Les infos du destinataire",
		Path:         []string{"destination", "customInfo"},
		Sealed:       from(signature.Operation),
	},
	fieldRule{
		Field:        "destinationWastePackagings",
		ReadableName: "Le conditionnement reçu",
		Path:         []string{"destination", "reception", "packagings"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Reception, nil),
	},
	fieldRule{Field: "destinationReceptionWasteVolume", ReadableName: "Le volume reçu", Sealed: from(signature.Reception)},
	fieldRule{
		Field:        "destinationReceptionAcceptationStatus",
		ReadableName: "Le statut d'acceptation du destinataire",
		Path:         []string{"destination", "reception", "acceptation", "status"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Reception, nil),
	},
	fieldRule{
		Field:        "destinationReceptionWasteRefusalReason",
		ReadableName: "La raison du refus par le destinataire",
		Path:         []string{"destination", "reception", "acceptation", "refusalReason"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Reception, refusedByDestination),
	},
	fieldRule{
		Field:        "destinationReceptionWasteRefusedWeightValue",
		ReadableName: "Le poids du déchet refusé",
		Path:         []string{"destination", "reception", "acceptation", "refusedWeight"},
		Sealed:       from(signature.Reception),
		Required:     requiredFrom(signature.Reception, refusedByDestination),
	},
	fieldRule{
		Field:        "destinationReceptionWasteWeightValue",
		ReadableName: "Le poids du déchet traité en kg",
		Path:         []string{"destination", "operation", "weight", "value"},
		Sealed:       from(signature.Operation),
		Required: &rule{
			From:          rules.Fixed[Bsdasri](signature.Operation),
			When:          isFinalOperation,
			CustomMessage: "(Si le code correspond à un traitement final)",
		},
	},
	fieldRule{
		Field:        "destinationReceptionDate",
		ReadableName: "La date de réception",
		Path:         []string{"destination", "reception", "date"},
		Sealed:       sealedWhen(signature.Reception, receptionSigned),
		Required:     requiredFrom(signature.Reception, atReception),
	},
	fieldRule{
		Field:        "identificationNumbers",
		ReadableName: "Les numéros d'identification à la réception par le destinataire",
		Path:         []string{"identification", "numbers"},
		Sealed:       from(signature.Reception),
	},
	fieldRule{
		Field:        "destinationOperationCode",
		ReadableName: "L'opération réalisée par le destinataire",
		Path:         []string{"destination", "operation", "code"},
		Sealed:       from(signature.Operation),
		Required:     requiredFrom(signature.Operation, notRefused),
	},
	fieldRule{
		Field:        "destinationOperationMode",
		ReadableName: "Le mode de traitement",
		Path:         []string{"destination", "operation", "mode"},
		Sealed:       from(signature.Operation),
	},
	fieldRule{
		Field:        "destinationOperationDate",
		ReadableName: "La date de l'opération",
		Path:         []string{"destination", "operation", "date"},
		Sealed:       from(signature.Operation),
		Required:     requiredFrom(signature.Operation, notRefused),
	},

	// eco-organisme
	fieldRule{
		Field:        "ecoOrganismeName",
		ReadableName: "Le nom de l'éco-organisme",
		Path:         []string{"ecoOrganisme", "name"},
		Sealed:       sealedFromEmission,
		Required: requiredFrom(signature.Emission, func(b Bsdasri, _ signature.Stage) bool {
			return deref(b.EcoOrganismeSiret) != ""
		}),
	},
	fieldRule{
		Field:        "ecoOrganismeSiret",
		ReadableName: "Le SIRET de l'éco-organisme",
		Path:         []string{"ecoOrganisme", "siret"},
		Sealed:       sealedFromEmission,
		Required: requiredFrom(signature.Emission, func(b Bsdasri, _ signature.Stage) bool {
			return deref(b.EcoOrganismeName) != ""
		}),
	},

	// broker, trader and intermediaries are named by the emitter
	fieldRule{Field: "brokerCompanyName", ReadableName: "Le nom du courtier", Path: []string{"broker", "company", "name"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerCompanySiret", ReadableName: "Le SIRET du courtier", Path: []string{"broker", "company", "siret"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerCompanyAddress", ReadableName: "L'adresse du courtier", Path: []string{"broker", "company", "address"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerCompanyContact", ReadableName: "Le contact du courtier", Path: []string{"broker", "company", "contact"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerCompanyPhone", ReadableName: "Le téléphone du courtier", Path: []string{"broker", "company", "phone"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerCompanyMail", ReadableName: "L'email du courtier", Path: []string{"broker", "company", "mail"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerRecepisseNumber", ReadableName: "Le numéro de récépissé du courtier", Path: []string{"broker", "recepisse", "number"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerRecepisseDepartment", ReadableName: "Le département du récépissé du courtier", Path: []string{"broker", "recepisse", "department"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "brokerRecepisseValidityLimit", ReadableName: "La date de validité du récépissé du courtier", Path: []string{"broker", "recepisse", "validityLimit"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanyName", ReadableName: "Le nom du négociant", Path: []string{"trader", "company", "name"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanySiret", ReadableName: "Le SIRET du négociant", Path: []string{"trader", "company", "siret"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanyAddress", ReadableName: "L'adresse du négociant", Path: []string{"trader", "company", "address"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanyContact", ReadableName: "Le contact du négociant", Path: []string{"trader", "company", "contact"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanyPhone", ReadableName: "Le téléphone du négociant", Path: []string{"trader", "company", "phone"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderCompanyMail", ReadableName: "L'email du négociant", Path: []string{"trader", "company", "mail"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderRecepisseNumber", ReadableName: "Le numéro de récépissé du négociant", Path: []string{"trader", "recepisse", "number"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderRecepisseDepartment", ReadableName: "Le département du récépissé du négociant", Path: []string{"trader", "recepisse", "department"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "traderRecepisseValidityLimit", ReadableName: "La date de validité du récépissé du négociant", Path: []string{"trader", "recepisse", "validityLimit"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "intermediaries", ReadableName: "Les intermédiaires", Path: []string{"intermediaries"}, Sealed: from(signature.Emission)},
	fieldRule{Field: "intermediariesOrgIds", Sealed: from(signature.Emission)},

	fieldRule{Field: "grouping", ReadableName: "Les bordereaux regroupés", Sealed: from(signature.Emission)},
	fieldRule{Field: "synthesizing", ReadableName: "Les bordereaux associés à la synthèse", Sealed: from(signature.Emission)},
)

// Engine evaluates Table against Hierarchy.
var Engine = rules.MustEngine(Table, Hierarchy)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
