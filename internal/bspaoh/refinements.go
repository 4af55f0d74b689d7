package bspaoh

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"bordereau/internal/company"
	"bordereau/internal/enrich"
	"bordereau/internal/issue"
	"bordereau/internal/operation"
	"bordereau/internal/receipt"
	"bordereau/internal/refine"
	"bordereau/internal/roles"
	"bordereau/internal/rules"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
)

type env = validation.Env[Bspaoh]

const (
	MsgOperationCodeUnknown   = "Cette opération n'existe pas ou n'est pas appropriée pour un crématorium"
	MsgTooManyTransporters    = "Vous ne pouvez pas ajouter plus de 5 transporteurs"
	MsgTransporterNumbers     = "Les transporteurs doivent être numérotés dans l'ordre à partir de 1"
	MsgSignedTransporterGone  = "Un transporteur ayant signé ne peut pas être retiré du bordereau"
	MsgPackagingDuplicate     = "Chaque conditionnement doit avoir un identifiant unique"
	MsgPackagingUnknown       = "Ce conditionnement ne figure pas sur le bordereau"
	MsgPackagingQuantity      = "La quantité doit être un nombre positif"
	MsgRefusedWeightTooHeavy  = "Le poids refusé ne peut pas être supérieur au poids reçu"
	MsgAcceptedWeightTooHeavy = "Le poids accepté ne peut pas être supérieur au poids reçu"
)

func defaults(b *Bspaoh) {
	if b.DestinationOperationCode != nil {
		code := operation.Normalize(*b.DestinationOperationCode)
		b.DestinationOperationCode = &code
	}
	for i := range b.Transporters {
		if b.Transporters[i].TransporterTransportMode == refine.Unknown {
			b.Transporters[i].TransporterTransportMode = refine.Road
		}
	}
}

func shape(b Bspaoh) []issue.Issue {
	var out []issue.Issue
	if b.WasteType != nil && !b.WasteType.Valid() {
		out = append(out, issue.Shape("wasteType", fmt.Sprintf("Le type de déchet %q n'existe pas", *b.WasteType)))
	}
	if b.WasteCode != nil && *b.WasteCode != "" && !slices.Contains(WasteCodes, *b.WasteCode) {
		out = append(out, issue.Shape("wasteCode", "Le code déchet n'est pas un code PAOH valide"))
	}
	if b.DestinationOperationCode != nil && *b.DestinationOperationCode != "" &&
		!slices.Contains(OperationCodes, *b.DestinationOperationCode) {
		out = append(out, issue.Shape("destinationOperationCode", MsgOperationCodeUnknown))
	}
	if s := b.DestinationReceptionAcceptationStatus; s != nil && !s.Valid() {
		out = append(out, issue.Shape("destinationReceptionAcceptationStatus",
			fmt.Sprintf("Le statut d'acceptation %q n'existe pas", *s)))
	}
	for i, p := range b.DestinationReceptionWastePackagingsAcceptation {
		if !p.Acceptation.Valid() {
			out = append(out, issue.Shape(fmt.Sprintf("destinationReceptionWastePackagingsAcceptation.%d", i),
				fmt.Sprintf("Le statut d'acceptation %q n'existe pas", p.Acceptation)))
		}
	}
	for i, t := range b.Transporters {
		if !t.TransporterTransportMode.Valid() {
			out = append(out, issue.Shape(transporterField(i, "transporterTransportMode"),
				fmt.Sprintf("Le mode de transport %q n'existe pas", t.TransporterTransportMode)))
		}
	}
	return out
}

// checkTransporters bounds and orders the list, checks each entry, and
// rejects signature fields the caller did not get from a signature.
func checkTransporters(b Bspaoh, e env) []issue.Issue {
	var out []issue.Issue
	if len(b.Transporters) > MaxTransporters {
		out = append(out, issue.CrossField("transporters", []string{"transporters"}, MsgTooManyTransporters))
	}
	for i, t := range b.Transporters {
		if t.Number != i+1 {
			out = append(out, issue.CrossField(transporterField(i, "number"),
				transporterPath(i, []string{"number"}), MsgTransporterNumbers))
		}
		out = append(out, indexIssues(i, refine.Plates("transporterTransportPlates", []string{"transport", "plates"},
			t.TransporterTransportMode, t.TransporterTransportPlates))...)
		out = append(out, indexIssues(i, refine.TransporterVat("transporterCompanyVatNumber", []string{"company", "vatNumber"},
			t.TransporterCompanySiret, t.TransporterCompanyVatNumber))...)

		var before Transporter
		if e.Persisted != nil && i < len(e.Persisted.Transporters) {
			before = e.Persisted.Transporters[i]
		}
		if !sameTime(before.TransporterTransportSignatureDate, t.TransporterTransportSignatureDate) ||
			deref(before.TransporterTransportSignatureAuthor) != deref(t.TransporterTransportSignatureAuthor) {
			out = append(out, issue.Shape(transporterField(i, "transporterTransportSignatureDate"),
				"Le champ transporterTransportSignatureDate ne peut pas être modifié directement"))
		}
	}
	return out
}

func checkWeights(b Bspaoh, _ env) []issue.Issue {
	mode := refine.Road
	if len(b.Transporters) > 0 {
		mode = b.Transporters[0].TransporterTransportMode
	}
	out := refine.Weights(
		refine.Weight{
			ValueField:    "emitterWasteWeightValue",
			EstimateField: "emitterWasteWeightIsEstimate",
			Path:          []string{"emitter", "emission", "detail", "weight", "value"},
			Value:         b.EmitterWasteWeightValue,
			IsEstimate:    b.EmitterWasteWeightIsEstimate,
			Mode:          mode,
		},
		refine.Weight{
			ValueField: "destinationReceptionWasteReceivedWeightValue",
			Path:       []string{"destination", "reception", "detail", "receivedWeight"},
			Value:      b.DestinationReceptionWasteReceivedWeightValue,
			Mode:       mode,
		},
	)
	received := b.DestinationReceptionWasteReceivedWeightValue
	if received == nil {
		return out
	}
	if w := b.DestinationReceptionWasteAcceptedWeightValue; w != nil && *w > *received {
		out = append(out, issue.CrossField("destinationReceptionWasteAcceptedWeightValue",
			[]string{"destination", "reception", "detail", "acceptedWeight"}, MsgAcceptedWeightTooHeavy))
	}
	if w := b.DestinationReceptionWasteRefusedWeightValue; w != nil && *w > *received {
		out = append(out, issue.CrossField("destinationReceptionWasteRefusedWeightValue",
			[]string{"destination", "reception", "detail", "refusedWeight"}, MsgRefusedWeightTooHeavy))
	}
	return out
}

// checkPackagings checks the packaging list and that every reception answer
// points at one of its packagings.
func checkPackagings(b Bspaoh, _ env) []issue.Issue {
	var out []issue.Issue
	ids := make(map[string]struct{}, len(b.WastePackagings))
	for i, p := range b.WastePackagings {
		path := []string{"waste", "packagings", fmt.Sprint(i)}
		if !slices.Contains(PackagingTypes, p.Type) {
			out = append(out, issue.CrossField("wastePackagings", path,
				fmt.Sprintf("Le type de conditionnement %q n'existe pas", p.Type)))
		}
		if !slices.Contains(Consistences, p.Consistence) {
			out = append(out, issue.CrossField("wastePackagings", path,
				fmt.Sprintf("La consistance %q n'existe pas", p.Consistence)))
		}
		if p.Quantity < 1 {
			out = append(out, issue.CrossField("wastePackagings", path, MsgPackagingQuantity))
		}
		if _, dup := ids[p.ID]; dup || strings.TrimSpace(p.ID) == "" {
			out = append(out, issue.CrossField("wastePackagings", path, MsgPackagingDuplicate))
		}
		ids[p.ID] = struct{}{}
	}
	for i, a := range b.DestinationReceptionWastePackagingsAcceptation {
		if _, ok := ids[a.ID]; !ok {
			out = append(out, issue.CrossField("destinationReceptionWastePackagingsAcceptation",
				[]string{"destination", "reception", "acceptation", "packagings", fmt.Sprint(i)}, MsgPackagingUnknown))
		}
	}
	return out
}

func checkOperation(b Bspaoh, _ env) []issue.Issue {
	return refine.NotBefore("destinationOperationDate", []string{"destination", "operation", "date"},
		b.DestinationOperationDate, b.DestinationReceptionDate, "La date d'opération")
}

// requiredTransporters checks the first transporter before emission and,
// when TRANSPORT is signed explicitly, the transporter whose turn it is.
func requiredTransporters(b Bspaoh, e env) ([]issue.Issue, error) {
	i := -1
	switch e.Target {
	case signature.Emission:
		if len(b.Transporters) > 0 {
			i = 0
		}
	case signature.Transport:
		if e.Explicit {
			i = b.NextTransporter()
		}
	}
	if i < 0 {
		return nil, nil
	}
	issues, err := TransporterEngine.CheckRequiredFields(b.leg(i), e.Target, rules.Context[Leg]{Roles: e.Roles})
	if err != nil {
		return nil, fmt.Errorf("transporter %d: %w", i+1, err)
	}
	return indexIssues(i, issues), nil
}

// sealedTransporters reports changes to signed transporters, including their
// removal.
func sealedTransporters(persisted, incoming Bspaoh, ctx rules.Context[Bspaoh]) []issue.SealedField {
	var out []issue.SealedField
	for i, before := range persisted.Transporters {
		if !before.Signed() {
			continue
		}
		if i >= len(incoming.Transporters) {
			out = append(out, issue.SealedField{
				Field: transporterField(i, "number"),
				Path:  transporterPath(i, nil),
				Label: MsgSignedTransporterGone,
			})
			continue
		}
		_, err := TransporterEngine.CheckNoSealedMutation(persisted.leg(i), incoming.leg(i),
			rules.Context[Leg]{Roles: ctx.Roles})
		var sealed *issue.SealedFieldError
		if errors.As(err, &sealed) {
			out = append(out, indexSealed(i, sealed.Fields)...)
		}
	}
	return out
}

// companyChecks looks the parties up in the registry. Signed transporters
// and sealed parties were checked when they were written.
func companyChecks(checker *refine.Checker) validation.AsyncRefinement[Bspaoh] {
	return func(ctx context.Context, b Bspaoh, e env) ([]issue.Issue, error) {
		var parties []refine.Party
		if !e.Sealed.Has("emitterCompanySiret") {
			parties = append(parties, refine.Party{
				Role:  roles.Emitter,
				Siret: deref(b.EmitterCompanySiret),
				Field: "emitterCompanySiret",
				Path:  []string{"emitter", "company", "siret"},
			})
		}
		if !e.Sealed.Has("destinationCompanySiret") {
			parties = append(parties, refine.Party{
				Role:    roles.Destination,
				Siret:   deref(b.DestinationCompanySiret),
				Field:   "destinationCompanySiret",
				Path:    []string{"destination", "company", "siret"},
				Profile: refine.ProfileCrematorium,
			})
		}
		for i, t := range b.Transporters {
			if t.Signed() {
				continue
			}
			field, path := "transporterCompanySiret", []string{"company", "siret"}
			if deref(t.TransporterCompanySiret) == "" {
				field, path = "transporterCompanyVatNumber", []string{"company", "vatNumber"}
			}
			parties = append(parties, refine.Party{
				Role:      roles.Transporter,
				Siret:     deref(t.TransporterCompanySiret),
				VatNumber: deref(t.TransporterCompanyVatNumber),
				Field:     transporterField(i, field),
				Path:      transporterPath(i, path),
				Profile:   refine.ProfileTransporter,
				Exempted:  t.exempted(),
			})
		}
		return checker.Check(ctx, parties)
	}
}

// fillIdentities overwrites company names and addresses with the registry's.
func fillIdentities(registry company.Registry) validation.Transformer[Bspaoh] {
	return func(ctx context.Context, b *Bspaoh, e env) ([]string, error) {
		slots := []enrich.CompanySlot{
			{
				Role:         roles.Emitter,
				OrgID:        deref(b.EmitterCompanySiret),
				IDField:      "emitterCompanySiret",
				NameField:    "emitterCompanyName",
				AddressField: "emitterCompanyAddress",
				Name:         &b.EmitterCompanyName,
				Address:      &b.EmitterCompanyAddress,
				Sealed:       e.Sealed,
			},
			{
				Role:         roles.Destination,
				OrgID:        deref(b.DestinationCompanySiret),
				IDField:      "destinationCompanySiret",
				NameField:    "destinationCompanyName",
				AddressField: "destinationCompanyAddress",
				Name:         &b.DestinationCompanyName,
				Address:      &b.DestinationCompanyAddress,
				Sealed:       e.Sealed,
			},
		}
		for i := range b.Transporters {
			t := &b.Transporters[i]
			if t.Signed() {
				continue
			}
			slots = append(slots, enrich.CompanySlot{
				Role:         roles.Transporter,
				OrgID:        deref(t.TransporterCompanySiret),
				IDField:      transporterField(i, "transporterCompanySiret"),
				NameField:    transporterField(i, "transporterCompanyName"),
				AddressField: transporterField(i, "transporterCompanyAddress"),
				Name:         &t.TransporterCompanyName,
				Address:      &t.TransporterCompanyAddress,
			})
		}
		return enrich.Identity(ctx, registry, slots)
	}
}

// fillReceipts completes the receipts of unsigned transporters.
func fillReceipts(store receipt.Store) validation.Transformer[Bspaoh] {
	return func(ctx context.Context, b *Bspaoh, e env) ([]string, error) {
		var slots []enrich.ReceiptSlot
		for i := range b.Transporters {
			t := &b.Transporters[i]
			if t.Signed() {
				continue
			}
			slots = append(slots, enrich.ReceiptSlot{
				Kind:            receipt.KindTransporter,
				OrgID:           deref(t.TransporterCompanySiret),
				NumberField:     transporterField(i, "transporterRecepisseNumber"),
				DepartmentField: transporterField(i, "transporterRecepisseDepartment"),
				ValidityField:   transporterField(i, "transporterRecepisseValidityLimit"),
				Number:          &t.TransporterRecepisseNumber,
				Department:      &t.TransporterRecepisseDepartment,
				ValidityLimit:   &t.TransporterRecepisseValidityLimit,
				Exempted:        t.exempted(),
				Foreign:         deref(t.TransporterCompanySiret) == "" && refine.IsForeignVat(deref(t.TransporterCompanyVatNumber)),
				Supplied:        receiptSupplied(*t, i, e),
			})
		}
		return enrich.Receipts(ctx, store, slots)
	}
}

// receiptSupplied reports whether this update changed the receipt of the
// transporter at index i.
func receiptSupplied(t Transporter, i int, e env) bool {
	if !e.Supplied("transporters") {
		return false
	}
	var before Transporter
	if e.Persisted != nil && i < len(e.Persisted.Transporters) {
		before = e.Persisted.Transporters[i]
	}
	return deref(before.TransporterRecepisseNumber) != deref(t.TransporterRecepisseNumber) ||
		deref(before.TransporterRecepisseDepartment) != deref(t.TransporterRecepisseDepartment) ||
		!sameTime(before.TransporterRecepisseValidityLimit, t.TransporterRecepisseValidityLimit)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
