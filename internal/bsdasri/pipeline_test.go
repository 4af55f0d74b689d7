package bsdasri_test

import (
	"context"
	"encoding/json"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bordereau/internal/bsdasri"
	"bordereau/internal/company"
	companymocks "bordereau/internal/company/mocks"
	"bordereau/internal/issue"
	"bordereau/internal/operation"
	"bordereau/internal/receipt"
	receiptmocks "bordereau/internal/receipt/mocks"
	"bordereau/internal/refine"
	"bordereau/internal/roles"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

const (
	emitterSiret     = "11111111111111"
	transporterSiret = "22222222222222"
	destinationSiret = "33333333333333"
	ecoSiret         = "44444444444444"
	unknownSiret     = "99999999999999"
)

var registered = map[string]*company.Record{
	emitterSiret: {
		Siret: emitterSiret, Name: "Clinique du Parc", Address: "1 rue du Parc 13001 Marseille",
		Types: []company.Type{company.Producer},
	},
	transporterSiret: {
		Siret: transporterSiret, Name: "Transports Martin", Address: "3 avenue du Port 13002 Marseille",
		Types: []company.Type{company.Transporter},
	},
	destinationSiret: {
		Siret: destinationSiret, Name: "Incinérateur Sud", Address: "2 route de l'Usine 13010 Marseille",
		Types: []company.Type{company.WasteProcessor}, Verification: company.Verified,
	},
	ecoSiret: {
		Siret: ecoSiret, Name: "DASTRI", Address: "4 place de la Bourse 75002 Paris",
		Types: []company.Type{company.EcoOrganisme}, Handles: []company.DocumentType{company.Bsdasri},
	},
}

type fields = map[string]any

func emissionFields() fields {
	return fields{
		"emitterCompanySiret":       emitterSiret,
		"emitterCompanyName":        "Clinique du Parc",
		"emitterCompanyAddress":     "1 rue du Parc 13001 Marseille",
		"emitterCompanyContact":     "Dr Martin",
		"emitterCompanyPhone":       "0102030405",
		"wasteCode":                 "18 01 03*",
		"wasteAdr":                  "UN3291",
		"emitterWastePackagings":    []fields{{"type": "BOITE_CARTON", "quantity": 2, "volume": 10}},
		"destinationCompanySiret":   destinationSiret,
		"destinationCompanyName":    "Incinérateur Sud",
		"destinationCompanyAddress": "2 route de l'Usine 13010 Marseille",
		"destinationCompanyContact": "M. Durand",
		"destinationCompanyPhone":   "0607080910",
	}
}

func transportFields() fields {
	f := emissionFields()
	maps.Copy(f, fields{
		"transporterCompanySiret":        transporterSiret,
		"transporterCompanyName":         "Transports Martin",
		"transporterCompanyAddress":      "3 avenue du Port 13002 Marseille",
		"transporterCompanyContact":      "Mme Martin",
		"transporterCompanyPhone":        "0405060708",
		"transporterRecepisseIsExempted": true,
		"transporterTransportPlates":     []string{"AB-123-CD"},
		"transporterWastePackagings":     []fields{{"type": "BOITE_CARTON", "quantity": 2, "volume": 10}},
		"transporterWasteVolume":         10,
		"transporterAcceptationStatus":   "ACCEPTED",
	})
	return f
}

func draft(extra fields) fields {
	f := fields{"isDraft": true}
	maps.Copy(f, extra)
	return f
}

func patchOf(f fields) []byte {
	raw, err := json.Marshal(f)
	if err != nil {
		panic(err)
	}
	return raw
}

func stage(s signature.Stage) *signature.Stage { return &s }

func issuesOn(err error, field string) []issue.Issue {
	var out []issue.Issue
	for _, i := range issue.Issues(err) {
		if i.Field == field {
			out = append(out, i)
		}
	}
	return out
}

// =============================================================================
// BSDASRI Pipeline Test Suite
// =============================================================================
// Justification for unit tests: the rule table and the refinements decide
// what a caller may write at each stage. Registry and receipts are mocked so
// each scenario controls exactly what the lookups return.

type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	registry *companymocks.MockRegistry
	receipts *receiptmocks.MockStore
	pipeline *validation.Pipeline[bsdasri.Bsdasri]
	emitter  roles.User
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = companymocks.NewMockRegistry(s.ctrl)
	s.receipts = receiptmocks.NewMockStore(s.ctrl)
	p, err := bsdasri.NewPipeline(bsdasri.Deps{Registry: s.registry, Receipts: s.receipts})
	s.Require().NoError(err)
	s.pipeline = p
	s.emitter = roles.User{ID: "u-emitter", OrgIDs: []string{emitterSiret}}
}

// knownCompanies answers every lookup from the registered fixtures.
func (s *PipelineSuite) knownCompanies(extra ...*company.Record) {
	known := maps.Clone(registered)
	for _, r := range extra {
		known[r.Siret] = r
	}
	s.registry.EXPECT().FindCompany(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (*company.Record, error) {
			if r, ok := known[id]; ok {
				return r, nil
			}
			return nil, sentinel.ErrNotFound
		}).AnyTimes()
}

func (s *PipelineSuite) noReceipts() {
	s.receipts.EXPECT().FindReceipt(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, sentinel.ErrNotFound).AnyTimes()
}

func (s *PipelineSuite) created(f fields) bsdasri.Bsdasri {
	res, err := s.pipeline.ValidateSync(context.Background(), nil, patchOf(f), validation.SignatureContext{User: s.emitter})
	s.Require().NoError(err)
	return res.Document
}

func (s *PipelineSuite) TestPlates() {
	ctx := context.Background()
	sc := validation.SignatureContext{Target: stage(signature.Transport), User: s.emitter}

	s.Run("road transport without plates reports the one missing field", func() {
		f := transportFields()
		delete(f, "transporterTransportPlates")
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.Require().Error(err)
		s.Require().Len(issue.Issues(err), 1)
		s.Equal(issue.KindRequiredField, issue.Issues(err)[0].Kind)
		s.Equal("transporterTransportPlates", issue.Issues(err)[0].Field)
	})

	s.Run("a single six character plate is accepted", func() {
		f := transportFields()
		f["transporterTransportPlates"] = []string{"AB123C"}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.NoError(err)
	})

	s.Run("three plates are rejected", func() {
		f := transportFields()
		f["transporterTransportPlates"] = []string{"AB123C", "CD456E", "FG789H"}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "transporterTransportPlates")
		s.Require().Len(found, 1)
		s.Equal(refine.MsgPlatesTooMany, found[0].Message)
	})

	s.Run("plates are forbidden outside road transport", func() {
		f := transportFields()
		f["transporterTransportMode"] = "RAIL"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "transporterTransportPlates")
		s.Require().Len(found, 1)
		s.Equal(refine.MsgPlatesForbidden, found[0].Message)
	})
}

func (s *PipelineSuite) TestOperationCodes() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}
	validate := func(f fields) (*validation.Result[bsdasri.Bsdasri], error) {
		return s.pipeline.ValidateSync(ctx, nil, patchOf(draft(f)), sc)
	}

	s.Run("D10 with ELIMINATION is accepted", func() {
		_, err := validate(fields{"destinationOperationCode": "D10", "destinationOperationMode": "ELIMINATION"})
		s.NoError(err)
	})

	s.Run("D10 with VALORISATION_ENERGETIQUE is incompatible", func() {
		_, err := validate(fields{"destinationOperationCode": "D10", "destinationOperationMode": "VALORISATION_ENERGETIQUE"})
		found := issuesOn(err, "destinationOperationMode")
		s.Require().Len(found, 1)
		s.Equal(operation.MsgModeIncompatible, found[0].Message)
	})

	s.Run("D13 takes no mode", func() {
		_, err := validate(fields{"destinationOperationCode": "D13", "destinationOperationMode": "ELIMINATION"})
		found := issuesOn(err, "destinationOperationMode")
		s.Require().Len(found, 1)
		s.Equal(operation.MsgModeNotExpected, found[0].Message)

		_, err = validate(fields{"destinationOperationCode": "D13"})
		s.NoError(err)
	})

	s.Run("grouping codes are forbidden on grouping slips", func() {
		_, err := validate(fields{"type": "GROUPING", "grouping": []string{"DASRI-1"}, "destinationOperationCode": "R12"})
		found := issuesOn(err, "destinationOperationCode")
		s.Require().Len(found, 1)
		s.Equal(bsdasri.MsgGroupingCodeForbidden, found[0].Message)
	})

	s.Run("D9 is recorded as D9F with ELIMINATION", func() {
		res, err := validate(fields{"destinationOperationCode": "d 9"})
		s.Require().NoError(err)
		s.Equal("D9F", *res.Document.DestinationOperationCode)
		s.Equal(operation.Elimination, *res.Document.DestinationOperationMode)
	})

	s.Run("unknown codes fail the shape check", func() {
		_, err := validate(fields{"destinationOperationCode": "R5"})
		s.True(issue.HasKind(err, issue.KindShape))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("operation date cannot precede reception", func() {
		_, err := validate(fields{
			"destinationReceptionDate": "2026-03-10T10:00:00Z",
			"destinationOperationDate": "2026-03-09T10:00:00Z",
		})
		s.Len(issuesOn(err, "destinationOperationDate"), 1)
	})
}

func (s *PipelineSuite) TestSynthesis() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}

	s.Run("intermediaries are rejected", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{
			"type":         "SYNTHESIS",
			"synthesizing": []string{"DASRI-1"},
			"intermediaries": []fields{
				{"siret": "55555555555555", "name": "Intermédiaire"},
			},
		})), sc)
		found := issuesOn(err, "intermediaries")
		s.Require().Len(found, 1)
		s.Equal(bsdasri.MsgSynthesisIntermediaries, found[0].Message)
	})

	s.Run("refusal and CAP are rejected", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{
			"type":                                  "SYNTHESIS",
			"destinationCap":                        "CAP-1",
			"destinationReceptionAcceptationStatus": "PARTIALLY_REFUSED",
		})), sc)
		s.Len(issuesOn(err, "destinationCap"), 1)
		s.Len(issuesOn(err, "destinationReceptionAcceptationStatus"), 1)
	})

	s.Run("only synthesis slips synthesize", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{"synthesizing": []string{"DASRI-1"}})), sc)
		found := issuesOn(err, "synthesizing")
		s.Require().Len(found, 1)
		s.Equal(bsdasri.MsgSynthesizingOnNonSynthesis, found[0].Message)
	})

	s.Run("more than three intermediaries are rejected on a simple slip", func() {
		var items []fields
		for _, siret := range []string{"55555555555551", "55555555555552", "55555555555553", "55555555555554"} {
			items = append(items, fields{"siret": siret, "name": "Intermédiaire"})
		}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{"intermediaries": items})), sc)
		s.Len(issuesOn(err, "intermediaries"), 1)
	})
}

func (s *PipelineSuite) TestCompanies() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}
	s.noReceipts()

	s.Run("an unknown transporter and a transporter without the profile are told apart", func() {
		s.knownCompanies(&company.Record{Siret: "77777777777777", Name: "Boulangerie", Types: []company.Type{company.Producer}})

		f := emissionFields()
		f["transporterCompanySiret"] = unknownSiret
		_, err := s.pipeline.Validate(ctx, nil, patchOf(f), sc)
		unknown := issuesOn(err, "transporterCompanySiret")
		s.Require().Len(unknown, 1)
		s.Equal(issue.KindExternalEntity, unknown[0].Kind)
		s.Contains(unknown[0].Message, "n'est pas inscrit")
		s.NotContains(unknown[0].Message, "en tant que")

		f["transporterCompanySiret"] = "77777777777777"
		_, err = s.pipeline.Validate(ctx, nil, patchOf(f), sc)
		wrong := issuesOn(err, "transporterCompanySiret")
		s.Require().Len(wrong, 1)
		s.Equal(issue.KindExternalEntity, wrong[0].Kind)
		s.Contains(wrong[0].Message, "en tant que entreprise de transport")
	})

	s.Run("grouping codes need a collector destination", func() {
		f := emissionFields()
		f["destinationOperationCode"] = "R12"
		_, err := s.pipeline.Validate(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "destinationCompanySiret")
		s.Require().Len(found, 1)
		s.Contains(found[0].Message, "tri transit regroupement")
	})

	s.Run("an unavailable registry is an infrastructure error", func() {
		ctrl := gomock.NewController(s.T())
		registry := companymocks.NewMockRegistry(ctrl)
		registry.EXPECT().FindCompany(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrUnavailable).AnyTimes()
		p, err := bsdasri.NewPipeline(bsdasri.Deps{Registry: registry, Receipts: s.receipts})
		s.Require().NoError(err)

		_, err = p.Validate(ctx, nil, patchOf(emissionFields()), sc)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
		s.Empty(issue.Issues(err))
	})
}

func (s *PipelineSuite) TestSealedFields() {
	ctx := context.Background()
	persisted := s.created(transportFields())
	signed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	persisted.EmitterEmissionSignatureDate = &signed

	s.Run("emission fields are locked once the emitter signed", func() {
		_, err := s.pipeline.ValidateSync(ctx, &persisted, patchOf(fields{"wasteCode": "18 02 02*"}),
			validation.SignatureContext{User: s.emitter})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		found := issuesOn(err, "wasteCode")
		s.Require().Len(found, 1)
		s.Equal(issue.KindSealedField, found[0].Kind)
	})

	s.Run("transporter fields stay open until transport", func() {
		res, err := s.pipeline.ValidateSync(ctx, &persisted, patchOf(fields{"transporterCompanyPhone": "0499999999"}),
			validation.SignatureContext{User: s.emitter})
		s.Require().NoError(err)
		s.Equal([]string{"transporterCompanyPhone"}, res.Updated)
	})

	s.Run("the slip type cannot change", func() {
		_, err := s.pipeline.ValidateSync(ctx, &persisted, patchOf(fields{"type": "SYNTHESIS"}),
			validation.SignatureContext{User: s.emitter})
		s.Len(issuesOn(err, "type"), 1)
	})

	s.Run("signature fields are read only", func() {
		_, err := s.pipeline.ValidateSync(ctx, &persisted, patchOf(fields{"transporterTransportSignatureDate": signed}),
			validation.SignatureContext{User: s.emitter})
		s.True(issue.HasKind(err, issue.KindShape))
	})

	s.Run("an eco-organisme edits its fields on a synthesis slip until transport", func() {
		f := draft(fields{"type": "SYNTHESIS", "ecoOrganismeSiret": ecoSiret, "ecoOrganismeName": "DASTRI"})
		synthesis := s.created(f)
		synthesis.EmitterEmissionSignatureDate = &signed

		_, err := s.pipeline.ValidateSync(ctx, &synthesis, patchOf(fields{"ecoOrganismeName": "DASTRI SAS"}),
			validation.SignatureContext{User: s.emitter})
		s.NoError(err)

		transported := synthesis
		transported.TransporterTransportSignatureDate = &signed
		_, err = s.pipeline.ValidateSync(ctx, &transported, patchOf(fields{"ecoOrganismeName": "DASTRI SAS"}),
			validation.SignatureContext{User: s.emitter})
		s.True(issue.HasKind(err, issue.KindSealedField))
	})
}

func (s *PipelineSuite) TestEnrichment() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}

	s.Run("names come from the registry and receipts from the store", func() {
		s.knownCompanies()
		validity := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
		s.receipts.EXPECT().FindReceipt(gomock.Any(), transporterSiret, receipt.KindTransporter).
			Return(&receipt.Record{OrgID: transporterSiret, Kind: receipt.KindTransporter, Number: "R-42", Department: "13", ValidityLimit: &validity}, nil)

		f := emissionFields()
		f["transporterCompanySiret"] = transporterSiret
		f["transporterCompanyName"] = "Martin"
		res, err := s.pipeline.Validate(ctx, nil, patchOf(f), sc)
		s.Require().NoError(err)
		s.Equal("Transports Martin", *res.Document.TransporterCompanyName)
		s.Equal("R-42", *res.Document.TransporterRecepisseNumber)
		s.Equal(validity, *res.Document.TransporterRecepisseValidityLimit)
		s.Contains(res.Enriched, "transporterCompanyName")
		s.Contains(res.Enriched, "transporterRecepisseNumber")
	})

	s.Run("sealed parties are neither checked nor enriched", func() {
		ctrl := gomock.NewController(s.T())
		registry := companymocks.NewMockRegistry(ctrl)
		receipts := receiptmocks.NewMockStore(ctrl)
		p, err := bsdasri.NewPipeline(bsdasri.Deps{Registry: registry, Receipts: receipts})
		s.Require().NoError(err)

		persisted := s.created(transportFields())
		signed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		persisted.EmitterEmissionSignatureDate = &signed
		persisted.TransporterTransportSignatureDate = &signed

		// only the destination is still open: one check, one identity lookup
		registry.EXPECT().FindCompany(gomock.Any(), destinationSiret).Return(registered[destinationSiret], nil).Times(2)

		res, err := p.Validate(ctx, &persisted, patchOf(fields{"destinationReceptionDate": "2026-03-11T10:00:00Z"}), sc)
		s.Require().NoError(err)
		s.Empty(res.Enriched)
	})
}

func (s *PipelineSuite) TestIdempotence() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}
	s.knownCompanies()
	s.noReceipts()

	first, err := s.pipeline.Validate(ctx, nil, patchOf(transportFields()), sc)
	s.Require().NoError(err)

	second, err := s.pipeline.Validate(ctx, &first.Document, nil, sc)
	s.Require().NoError(err)
	s.Equal(first.Document, second.Document)
	s.Empty(second.Updated)
	s.Empty(second.Enriched)
}

func (s *PipelineSuite) TestDrafts() {
	ctx := context.Background()

	s.Run("a draft skips required fields", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{"wasteCode": "18 01 03*"})),
			validation.SignatureContext{User: s.emitter})
		s.NoError(err)
	})

	s.Run("a draft validated for a stage reports them", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(draft(fields{"wasteCode": "18 01 03*"})),
			validation.SignatureContext{Target: stage(signature.Emission), User: s.emitter})
		s.Require().Error(err)
		s.NotEmpty(issuesOn(err, "emitterCompanySiret"))
		s.Empty(issuesOn(err, "wasteCode"))
	})

	s.Run("a grouping slip needs grouped slips", func() {
		f := emissionFields()
		f["type"] = "GROUPING"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), validation.SignatureContext{User: s.emitter})
		found := issuesOn(err, "grouping")
		s.Require().Len(found, 1)
		s.Equal(issue.KindRequiredField, found[0].Kind)
	})
}
