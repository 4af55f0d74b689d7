package bsdasri

import (
	"context"
	"fmt"
	"slices"

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

type env = validation.Env[Bsdasri]

const (
	MsgOperationCodeUnknown       = "Cette opération d'élimination / valorisation n'existe pas ou n'est pas appropriée"
	MsgCapOnSynthesis             = "Le CAP du destinataire ne peut pas être renseigné sur un bordereau de synthèse"
	MsgGroupingCodeForbidden      = "Les codes R12 et D13 sont interdits sur un bordereau de groupement ou de synthèse"
	MsgSynthesisIntermediaries    = "Impossible d'ajouter un courtier, un négociant ou des intermédiaires sur un bordereau de synthèse"
	MsgSynthesisRefused           = "Un bordereau de synthèse ne peut pas être refusé ou partiellement refusé"
	MsgGroupingOnNonGrouping      = "Seul un bordereau de groupement peut regrouper d'autres bordereaux"
	MsgSynthesizingOnNonSynthesis = "Seul un bordereau de synthèse peut associer d'autres bordereaux"
	MsgGroupingMissing            = "Un bordereau de groupement doit regrouper au moins un bordereau"
	MsgSynthesizingMissing        = "Un bordereau de synthèse doit associer au moins un bordereau"
)

// defaults normalises the operation code and computes derived fields.
func defaults(b *Bsdasri) {
	if b.Type == "" {
		b.Type = Simple
	}
	if b.TransporterTransportMode == refine.Unknown {
		b.TransporterTransportMode = refine.Road
	}
	if b.DestinationOperationCode != nil {
		code := operation.Normalize(*b.DestinationOperationCode)
		// D9 is accepted from older clients and recorded as D9F.
		if code == "D9" {
			code = "D9F"
			if b.DestinationOperationMode == nil {
				m := operation.Elimination
				b.DestinationOperationMode = &m
			}
		}
		b.DestinationOperationCode = &code
	}
	b.IntermediariesOrgIDs = refine.IntermediaryOrgIDs(b.Intermediaries)
}

func shape(b Bsdasri) []issue.Issue {
	var out []issue.Issue
	if !b.Type.Valid() {
		out = append(out, issue.Shape("type", fmt.Sprintf("Le type de bordereau %q n'existe pas", b.Type)))
	}
	if b.TransporterTransportMode != refine.Unknown && !b.TransporterTransportMode.Valid() {
		out = append(out, issue.Shape("transporterTransportMode",
			fmt.Sprintf("Le mode de transport %q n'existe pas", b.TransporterTransportMode)))
	}
	if b.WasteCode != nil && *b.WasteCode != "" && !slices.Contains(WasteCodes, *b.WasteCode) {
		out = append(out, issue.Shape("wasteCode", "Le code déchet n'est pas un code DASRI valide"))
	}
	if b.DestinationOperationCode != nil && *b.DestinationOperationCode != "" &&
		!slices.Contains(OperationCodes, *b.DestinationOperationCode) {
		out = append(out, issue.Shape("destinationOperationCode", MsgOperationCodeUnknown))
	}
	if b.DestinationOperationMode != nil && !b.DestinationOperationMode.Valid() {
		out = append(out, issue.Shape("destinationOperationMode",
			fmt.Sprintf("Le mode de traitement %q n'existe pas", *b.DestinationOperationMode)))
	}
	if s := b.TransporterAcceptationStatus; s != nil && !s.Valid() {
		out = append(out, issue.Shape("transporterAcceptationStatus", fmt.Sprintf("Le statut d'acceptation %q n'existe pas", *s)))
	}
	if s := b.DestinationReceptionAcceptationStatus; s != nil && !s.Valid() {
		out = append(out, issue.Shape("destinationReceptionAcceptationStatus", fmt.Sprintf("Le statut d'acceptation %q n'existe pas", *s)))
	}
	return out
}

func checkWeights(b Bsdasri, _ env) []issue.Issue {
	return refine.Weights(
		refine.Weight{
			ValueField:    "emitterWasteWeightValue",
			EstimateField: "emitterWasteWeightIsEstimate",
			Path:          []string{"emitter", "emission", "weight", "value"},
			Value:         b.EmitterWasteWeightValue,
			IsEstimate:    b.EmitterWasteWeightIsEstimate,
			Mode:          b.TransporterTransportMode,
		},
		refine.Weight{
			ValueField:    "transporterWasteWeightValue",
			EstimateField: "transporterWasteWeightIsEstimate",
			Path:          []string{"transporter", "transport", "weight", "value"},
			Value:         b.TransporterWasteWeightValue,
			IsEstimate:    b.TransporterWasteWeightIsEstimate,
			Mode:          b.TransporterTransportMode,
		},
		refine.Weight{
			ValueField: "destinationReceptionWasteWeightValue",
			Path:       []string{"destination", "operation", "weight", "value"},
			Value:      b.DestinationReceptionWasteWeightValue,
			Mode:       b.TransporterTransportMode,
		},
	)
}

func checkTransporter(b Bsdasri, _ env) []issue.Issue {
	out := refine.Plates("transporterTransportPlates", []string{"transporter", "transport", "plates"},
		b.TransporterTransportMode, b.TransporterTransportPlates)
	return append(out, refine.TransporterVat("transporterCompanyVatNumber",
		[]string{"transporter", "company", "vatNumber"},
		b.TransporterCompanySiret, b.TransporterCompanyVatNumber)...)
}

func checkOperation(b Bsdasri, _ env) []issue.Issue {
	path := []string{"destination", "operation", "mode"}
	out := refine.OperationMode(operation.Default(), "destinationOperationMode", path,
		b.DestinationOperationCode, b.DestinationOperationMode)
	if b.Type != Simple {
		out = append(out, refine.OperationCode("destinationOperationCode",
			[]string{"destination", "operation", "code"},
			b.DestinationOperationCode, ProcessingCodes, MsgGroupingCodeForbidden)...)
	}
	return append(out, refine.NotBefore("destinationOperationDate",
		[]string{"destination", "operation", "date"},
		b.DestinationOperationDate, b.DestinationReceptionDate, "La date d'opération")...)
}

func checkPackagings(b Bsdasri, _ env) []issue.Issue {
	out := refine.Packagings("emitterWastePackagings", []string{"emitter", "emission", "packagings"},
		PackagingTypes, b.EmitterWastePackagings)
	out = append(out, refine.Packagings("transporterWastePackagings", []string{"transporter", "transport", "packagings"},
		PackagingTypes, b.TransporterWastePackagings)...)
	return append(out, refine.Packagings("destinationWastePackagings", []string{"destination", "reception", "packagings"},
		PackagingTypes, b.DestinationWastePackagings)...)
}

// checkAssociations keeps grouped and synthesized slips on the matching
// slip type and restricts synthesis slips.
func checkAssociations(b Bsdasri, _ env) []issue.Issue {
	var out []issue.Issue
	if len(b.Grouping) > 0 && b.Type != Grouping {
		out = append(out, issue.CrossField("grouping", []string{"grouping"}, MsgGroupingOnNonGrouping))
	}
	if len(b.Synthesizing) > 0 && b.Type != Synthesis {
		out = append(out, issue.CrossField("synthesizing", []string{"synthesizing"}, MsgSynthesizingOnNonSynthesis))
	}
	if !b.isSynthesis() {
		return append(out, refine.Intermediaries("intermediaries", b.Intermediaries)...)
	}

	if deref(b.BrokerCompanySiret) != "" || deref(b.TraderCompanySiret) != "" || len(b.Intermediaries) > 0 {
		out = append(out, issue.CrossField("intermediaries", []string{"intermediaries"}, MsgSynthesisIntermediaries))
	}
	if deref(b.DestinationCap) != "" {
		out = append(out, issue.CrossField("destinationCap", []string{"destination", "cap"}, MsgCapOnSynthesis))
	}
	if b.TransporterAcceptationStatus.RefusedOrPartially() {
		out = append(out, issue.CrossField("transporterAcceptationStatus",
			[]string{"transporter", "transport", "acceptation", "status"}, MsgSynthesisRefused))
	}
	if b.DestinationReceptionAcceptationStatus.RefusedOrPartially() {
		out = append(out, issue.CrossField("destinationReceptionAcceptationStatus",
			[]string{"destination", "reception", "acceptation", "status"}, MsgSynthesisRefused))
	}
	return out
}

// requiredAssociations needs grouped slips from emission and synthesized
// slips from transport.
func requiredAssociations(b Bsdasri, e env) ([]issue.Issue, error) {
	switch {
	case b.Type == Grouping && len(b.Grouping) == 0:
		return []issue.Issue{issue.Required("grouping", []string{"grouping"}, MsgGroupingMissing)}, nil
	case b.isSynthesis() && len(b.Synthesizing) == 0 && e.Target != signature.Emission:
		return []issue.Issue{issue.Required("synthesizing", []string{"synthesizing"}, MsgSynthesizingMissing)}, nil
	}
	return nil, nil
}

// typeChange reports a type change once the slip was created.
func typeChange(persisted, incoming Bsdasri, _ rules.Context[Bsdasri]) []issue.SealedField {
	if persisted.Type == incoming.Type {
		return nil
	}
	return []issue.SealedField{{Field: "type", Path: []string{"type"}, Label: "Le type de bordereau"}}
}

// companyChecks looks every party up in the registry. Parties whose
// identifier is sealed were checked when it was written.
func companyChecks(checker *refine.Checker) validation.AsyncRefinement[Bsdasri] {
	return func(ctx context.Context, b Bsdasri, e env) ([]issue.Issue, error) {
		var parties []refine.Party
		add := func(p refine.Party) {
			if e.Sealed.Has(p.Field) {
				return
			}
			parties = append(parties, p)
		}

		add(refine.Party{
			Role:  roles.Emitter,
			Siret: deref(b.EmitterCompanySiret),
			Field: "emitterCompanySiret",
			Path:  []string{"emitter", "company", "siret"},
		})
		transporterField, transporterPath := "transporterCompanySiret", []string{"transporter", "company", "siret"}
		if deref(b.TransporterCompanySiret) == "" {
			transporterField, transporterPath = "transporterCompanyVatNumber", []string{"transporter", "company", "vatNumber"}
		}
		add(refine.Party{
			Role:      roles.Transporter,
			Siret:     deref(b.TransporterCompanySiret),
			VatNumber: deref(b.TransporterCompanyVatNumber),
			Field:     transporterField,
			Path:      transporterPath,
			Profile:   refine.ProfileTransporter,
			Exempted:  b.TransporterRecepisseIsExempted != nil && *b.TransporterRecepisseIsExempted,
		})
		destination := refine.ProfileDestination
		if b.DestinationOperationCode != nil && slices.Contains(GroupingCodes, *b.DestinationOperationCode) {
			destination = refine.ProfileCollector
		}
		add(refine.Party{
			Role:    roles.Destination,
			Siret:   deref(b.DestinationCompanySiret),
			Field:   "destinationCompanySiret",
			Path:    []string{"destination", "company", "siret"},
			Profile: destination,
		})
		add(refine.Party{
			Role:         roles.EcoOrganisme,
			Siret:        deref(b.EcoOrganismeSiret),
			Field:        "ecoOrganismeSiret",
			Path:         []string{"ecoOrganisme", "siret"},
			Profile:      refine.ProfileEcoOrganisme,
			DocumentType: company.Bsdasri,
		})
		add(refine.Party{
			Role:    roles.Broker,
			Siret:   deref(b.BrokerCompanySiret),
			Field:   "brokerCompanySiret",
			Path:    []string{"broker", "company", "siret"},
			Profile: refine.ProfileBroker,
		})
		add(refine.Party{
			Role:    roles.Trader,
			Siret:   deref(b.TraderCompanySiret),
			Field:   "traderCompanySiret",
			Path:    []string{"trader", "company", "siret"},
			Profile: refine.ProfileTrader,
		})
		for i, it := range b.Intermediaries {
			add(refine.Party{
				Role:      roles.Intermediary,
				Siret:     deref(it.Siret),
				VatNumber: deref(it.VatNumber),
				Field:     "intermediaries",
				Path:      []string{"intermediaries", fmt.Sprint(i)},
				Profile:   refine.ProfileRegistered,
			})
		}
		return checker.Check(ctx, parties)
	}
}

// fillIdentities overwrites company names and addresses with the registry's.
func fillIdentities(registry company.Registry) validation.Transformer[Bsdasri] {
	return func(ctx context.Context, b *Bsdasri, e env) ([]string, error) {
		return enrich.Identity(ctx, registry, []enrich.CompanySlot{
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
				Role:         roles.Transporter,
				OrgID:        deref(b.TransporterCompanySiret),
				IDField:      "transporterCompanySiret",
				NameField:    "transporterCompanyName",
				AddressField: "transporterCompanyAddress",
				Name:         &b.TransporterCompanyName,
				Address:      &b.TransporterCompanyAddress,
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
			{
				Role:      roles.EcoOrganisme,
				OrgID:     deref(b.EcoOrganismeSiret),
				IDField:   "ecoOrganismeSiret",
				NameField: "ecoOrganismeName",
				Name:      &b.EcoOrganismeName,
				Sealed:    e.Sealed,
			},
			{
				Role:         roles.Broker,
				OrgID:        deref(b.BrokerCompanySiret),
				IDField:      "brokerCompanySiret",
				NameField:    "brokerCompanyName",
				AddressField: "brokerCompanyAddress",
				Name:         &b.BrokerCompanyName,
				Address:      &b.BrokerCompanyAddress,
				Sealed:       e.Sealed,
			},
			{
				Role:         roles.Trader,
				OrgID:        deref(b.TraderCompanySiret),
				IDField:      "traderCompanySiret",
				NameField:    "traderCompanyName",
				AddressField: "traderCompanyAddress",
				Name:         &b.TraderCompanyName,
				Address:      &b.TraderCompanyAddress,
				Sealed:       e.Sealed,
			},
		})
	}
}

// fillReceipts completes the receipts of the transporter, broker and trader.
func fillReceipts(store receipt.Store) validation.Transformer[Bsdasri] {
	return func(ctx context.Context, b *Bsdasri, e env) ([]string, error) {
		return enrich.Receipts(ctx, store, []enrich.ReceiptSlot{
			{
				Kind:            receipt.KindTransporter,
				OrgID:           deref(b.TransporterCompanySiret),
				NumberField:     "transporterRecepisseNumber",
				DepartmentField: "transporterRecepisseDepartment",
				ValidityField:   "transporterRecepisseValidityLimit",
				Number:          &b.TransporterRecepisseNumber,
				Department:      &b.TransporterRecepisseDepartment,
				ValidityLimit:   &b.TransporterRecepisseValidityLimit,
				Exempted:        b.TransporterRecepisseIsExempted != nil && *b.TransporterRecepisseIsExempted,
				Foreign:         deref(b.TransporterCompanySiret) == "" && refine.IsForeignVat(deref(b.TransporterCompanyVatNumber)),
				Supplied: e.SuppliedAny("transporterRecepisseNumber", "transporterRecepisseDepartment",
					"transporterRecepisseValidityLimit"),
				Sealed: e.Sealed,
			},
			{
				Kind:            receipt.KindBroker,
				OrgID:           deref(b.BrokerCompanySiret),
				NumberField:     "brokerRecepisseNumber",
				DepartmentField: "brokerRecepisseDepartment",
				ValidityField:   "brokerRecepisseValidityLimit",
				Number:          &b.BrokerRecepisseNumber,
				Department:      &b.BrokerRecepisseDepartment,
				ValidityLimit:   &b.BrokerRecepisseValidityLimit,
				Supplied:        e.SuppliedAny("brokerRecepisseNumber", "brokerRecepisseDepartment", "brokerRecepisseValidityLimit"),
				Sealed:          e.Sealed,
			},
			{
				Kind:            receipt.KindTrader,
				OrgID:           deref(b.TraderCompanySiret),
				NumberField:     "traderRecepisseNumber",
				DepartmentField: "traderRecepisseDepartment",
				ValidityField:   "traderRecepisseValidityLimit",
				Number:          &b.TraderRecepisseNumber,
				Department:      &b.TraderRecepisseDepartment,
				ValidityLimit:   &b.TraderRecepisseValidityLimit,
				Supplied:        e.SuppliedAny("traderRecepisseNumber", "traderRecepisseDepartment", "traderRecepisseValidityLimit"),
				Sealed:          e.Sealed,
			},
		})
	}
}
