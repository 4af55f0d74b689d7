package bspaoh_test

import (
	"context"
	"encoding/json"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bordereau/internal/bspaoh"
	"bordereau/internal/company"
	companymocks "bordereau/internal/company/mocks"
	"bordereau/internal/issue"
	receiptmocks "bordereau/internal/receipt/mocks"
	"bordereau/internal/roles"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

const (
	emitterSiret      = "11111111111111"
	transporterSiret  = "22222222222222"
	crematoriumSiret  = "33333333333333"
	transporter2Siret = "55555555555555"
	incineratorSiret  = "66666666666666"
	unknownSiret      = "99999999999999"
)

var registered = map[string]*company.Record{
	emitterSiret: {
		Siret: emitterSiret, Name: "CHU Nord", Address: "1 chemin des Bourrely 13015 Marseille",
		Types: []company.Type{company.Producer},
	},
	transporterSiret: {
		Siret: transporterSiret, Name: "Transports Funéraires du Sud", Address: "3 avenue du Port 13002 Marseille",
		Types: []company.Type{company.Transporter},
	},
	transporter2Siret: {
		Siret: transporter2Siret, Name: "Ambulances Provence", Address: "8 boulevard Michelet 13008 Marseille",
		Types: []company.Type{company.Transporter},
	},
	crematoriumSiret: {
		Siret: crematoriumSiret, Name: "Crématorium Saint-Pierre", Address: "380 rue Saint-Pierre 13005 Marseille",
		Types: []company.Type{company.WasteProcessor}, ProcessorTypes: []company.ProcessorType{company.Cremation},
		Verification: company.Verified,
	},
	incineratorSiret: {
		Siret: incineratorSiret, Name: "Incinérateur Sud", Address: "2 route de l'Usine 13010 Marseille",
		Types:          []company.Type{company.WasteProcessor},
		ProcessorTypes: []company.ProcessorType{company.DangerousWastesIncineration},
		Verification:   company.Verified,
	},
}

type fields = map[string]any

func transporter(number int, siret string) fields {
	return fields{
		"number":                         number,
		"transporterCompanySiret":        siret,
		"transporterCompanyName":         "Transports Funéraires du Sud",
		"transporterCompanyAddress":      "3 avenue du Port 13002 Marseille",
		"transporterCompanyContact":      "Mme Martin",
		"transporterCompanyPhone":        "0405060708",
		"transporterCompanyMail":         "exploitation@tfs.fr",
		"transporterRecepisseIsExempted": true,
		"transporterTransportPlates":     []string{"AB-123-CD"},
		"transporterTakenOverAt":         "2026-03-10T08:30:00Z",
	}
}

func emissionFields(transporters ...fields) fields {
	if len(transporters) == 0 {
		transporters = []fields{transporter(1, transporterSiret)}
	}
	return fields{
		"wasteType": "PAOH",
		"wasteCode": "18 01 02",
		"wastePackagings": []fields{{
			"id": "p1", "type": "RELIQUAIRE", "quantity": 1,
			"identificationCodes": []string{"A-001"}, "consistence": "SOLIDE",
		}},
		"emitterCompanySiret":       emitterSiret,
		"emitterCompanyName":        "CHU Nord",
		"emitterCompanyAddress":     "1 chemin des Bourrely 13015 Marseille",
		"emitterCompanyContact":     "Dr Martin",
		"emitterCompanyPhone":       "0102030405",
		"emitterCompanyMail":        "anapath@chu-nord.fr",
		"emitterWasteQuantityValue": 1,
		"destinationCompanySiret":   crematoriumSiret,
		"destinationCompanyName":    "Crématorium Saint-Pierre",
		"destinationCompanyAddress": "380 rue Saint-Pierre 13005 Marseille",
		"destinationCompanyContact": "M. Durand",
		"destinationCompanyPhone":   "0607080910",
		"destinationCompanyMail":    "accueil@crematorium.fr",
		"transporters":              transporters,
	}
}

func receptionFields() fields {
	return fields{
		"destinationReceptionAcceptationStatus":          "ACCEPTED",
		"destinationReceptionDate":                       "2026-03-10T12:00:00Z",
		"destinationReceptionWasteReceivedWeightValue":   12.5,
		"destinationReceptionWastePackagingsAcceptation": []fields{{"id": "p1", "acceptation": "ACCEPTED"}},
	}
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

var signedAt = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func signTransporter(b *bspaoh.Bspaoh, i int) {
	author := "u-transporter"
	b.Transporters[i].TransporterTransportSignatureAuthor = &author
	b.Transporters[i].TransporterTransportSignatureDate = &signedAt
}

// =============================================================================
// BSPAOH Pipeline Test Suite
// =============================================================================
// Justification for unit tests: the YAML tables, the per-transporter engine
// and the refinements decide what a caller may write at each stage.

type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	registry *companymocks.MockRegistry
	receipts *receiptmocks.MockStore
	pipeline *validation.Pipeline[bspaoh.Bspaoh]
	emitter  roles.User
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.registry = companymocks.NewMockRegistry(s.ctrl)
	s.receipts = receiptmocks.NewMockStore(s.ctrl)
	p, err := bspaoh.NewPipeline(bspaoh.Deps{Registry: s.registry, Receipts: s.receipts})
	s.Require().NoError(err)
	s.pipeline = p
	s.emitter = roles.User{ID: "u-emitter", OrgIDs: []string{emitterSiret}}
}

func (s *PipelineSuite) knownCompanies() {
	s.registry.EXPECT().FindCompany(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (*company.Record, error) {
			if r, ok := registered[id]; ok {
				return r, nil
			}
			return nil, sentinel.ErrNotFound
		}).AnyTimes()
}

func (s *PipelineSuite) noReceipts() {
	s.receipts.EXPECT().FindReceipt(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, sentinel.ErrNotFound).AnyTimes()
}

func (s *PipelineSuite) created(f fields) bspaoh.Bspaoh {
	res, err := s.pipeline.ValidateSync(context.Background(), nil, patchOf(f), validation.SignatureContext{User: s.emitter})
	s.Require().NoError(err)
	return res.Document
}

// emitted is a slip signed by the emitter with two transporters, the first
// of which signed.
func (s *PipelineSuite) emitted() bspaoh.Bspaoh {
	doc := s.created(emissionFields(transporter(1, transporterSiret), transporter(2, transporter2Siret)))
	doc.EmitterEmissionSignatureDate = &signedAt
	signTransporter(&doc, 0)
	return doc
}

func (s *PipelineSuite) TestTransporters() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}

	s.Run("numbers follow from one", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil,
			patchOf(emissionFields(transporter(1, transporterSiret), transporter(3, transporter2Siret))), sc)
		found := issuesOn(err, "transporters.1.number")
		s.Require().Len(found, 1)
		s.Equal(bspaoh.MsgTransporterNumbers, found[0].Message)
	})

	s.Run("at most five transporters", func() {
		var list []fields
		for i := 1; i <= 6; i++ {
			list = append(list, transporter(i, transporterSiret))
		}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(list...)), sc)
		found := issuesOn(err, "transporters")
		s.Require().Len(found, 1)
		s.Equal(bspaoh.MsgTooManyTransporters, found[0].Message)
	})

	s.Run("a transporter is needed before emission", func() {
		f := emissionFields()
		f["transporters"] = []fields{}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "transporters")
		s.Require().Len(found, 1)
		s.Equal(issue.KindRequiredField, found[0].Kind)
	})

	s.Run("the first transporter is identified before emission", func() {
		t := transporter(1, "")
		delete(t, "transporterCompanySiret")
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		found := issuesOn(err, "transporters.0.transporterCompanySiret")
		s.Require().Len(found, 1)
		s.Equal([]string{"transporters", "0", "company", "siret"}, found[0].Path)
	})

	s.Run("issues point at the transporter about to sign", func() {
		doc := s.emitted()
		doc.Transporters[1].TransporterTransportPlates = nil

		_, err := s.pipeline.ValidateSync(ctx, &doc, nil,
			validation.SignatureContext{Target: stage(signature.Transport), User: s.emitter})
		s.Require().Error(err)
		s.Require().Len(issue.Issues(err), 1)
		found := issue.Issues(err)[0]
		s.Equal("transporters.1.transporterTransportPlates", found.Field)
		s.Equal([]string{"transporters", "1", "transport", "plates"}, found.Path)
		s.Contains(found.Message, "La plaque d'immatriculation est requise")
	})

	s.Run("signatures cannot be written by the client", func() {
		t := transporter(1, transporterSiret)
		t["transporterTransportSignatureDate"] = "2026-03-10T09:00:00Z"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		found := issuesOn(err, "transporters.0.transporterTransportSignatureDate")
		s.Require().Len(found, 1)
		s.Equal(issue.KindShape, found[0].Kind)
	})
}

func (s *PipelineSuite) TestRecepisse() {
	ctx := context.Background()
	sc := validation.SignatureContext{Target: stage(signature.Transport), User: s.emitter}

	s.Run("a french road transporter needs its receipt", func() {
		t := transporter(1, transporterSiret)
		t["transporterRecepisseIsExempted"] = false
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		s.Require().Error(err)
		for _, field := range []string{"transporterRecepisseNumber", "transporterRecepisseDepartment", "transporterRecepisseValidityLimit"} {
			found := issuesOn(err, "transporters.0."+field)
			s.Require().Len(found, 1, field)
			s.Contains(found[0].Message, "L'établissement doit renseigner son récépissé dans Trackdéchets")
		}
	})

	s.Run("a foreign transporter does not", func() {
		t := transporter(1, "")
		delete(t, "transporterCompanySiret")
		t["transporterCompanyVatNumber"] = "BE0541696005"
		t["transporterRecepisseIsExempted"] = false
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		s.NoError(err)
	})

	s.Run("nor a transporter off the road", func() {
		t := transporter(1, transporterSiret)
		t["transporterRecepisseIsExempted"] = false
		t["transporterTransportMode"] = "AIR"
		delete(t, "transporterTransportPlates")
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		s.NoError(err)
	})

	s.Run("a french VAT number does not replace the SIRET", func() {
		t := transporter(1, "")
		delete(t, "transporterCompanySiret")
		t["transporterCompanyVatNumber"] = "FR35552049447"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(emissionFields(t)), sc)
		s.Len(issuesOn(err, "transporters.0.transporterCompanyVatNumber"), 1)
	})
}

func (s *PipelineSuite) TestDestinationSealing() {
	ctx := context.Background()
	doc := s.created(emissionFields())
	doc.EmitterEmissionSignatureDate = &signedAt
	rename := patchOf(fields{"destinationCompanyContact": "Mme Durand"})

	s.Run("the emitter edits the destination until transport", func() {
		res, err := s.pipeline.ValidateSync(ctx, &doc, rename, validation.SignatureContext{User: s.emitter})
		s.Require().NoError(err)
		s.Equal([]string{"destinationCompanyContact"}, res.Updated)
	})

	s.Run("other parties cannot", func() {
		other := roles.User{ID: "u-transporter", OrgIDs: []string{transporterSiret}}
		_, err := s.pipeline.ValidateSync(ctx, &doc, rename, validation.SignatureContext{User: other})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Len(issuesOn(err, "destinationCompanyContact"), 1)
	})

	s.Run("nor the emitter once the first transporter signed", func() {
		transported := doc
		transported.Transporters = append([]bspaoh.Transporter(nil), doc.Transporters...)
		signTransporter(&transported, 0)
		_, err := s.pipeline.ValidateSync(ctx, &transported, rename, validation.SignatureContext{User: s.emitter})
		s.True(issue.HasKind(err, issue.KindSealedField))
	})
}

func (s *PipelineSuite) TestSignedTransporters() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}
	doc := s.emitted()

	withTransporters := func(mutate func([]bspaoh.Transporter) []bspaoh.Transporter) []byte {
		list := mutate(append([]bspaoh.Transporter(nil), doc.Transporters...))
		return patchOf(fields{"transporters": list})
	}

	s.Run("an unsigned transporter stays open", func() {
		phone := "0499999999"
		res, err := s.pipeline.ValidateSync(ctx, &doc, withTransporters(func(l []bspaoh.Transporter) []bspaoh.Transporter {
			l[1].TransporterCompanyPhone = &phone
			return l
		}), sc)
		s.Require().NoError(err)
		s.Equal([]string{"transporters"}, res.Updated)
	})

	s.Run("a signed transporter is sealed", func() {
		phone := "0499999999"
		_, err := s.pipeline.ValidateSync(ctx, &doc, withTransporters(func(l []bspaoh.Transporter) []bspaoh.Transporter {
			l[0].TransporterCompanyPhone = &phone
			return l
		}), sc)
		found := issuesOn(err, "transporters.0.transporterCompanyPhone")
		s.Require().Len(found, 1)
		s.Equal(issue.KindSealedField, found[0].Kind)
		s.Equal([]string{"transporters", "0", "company", "phone"}, found[0].Path)
	})

	s.Run("a signed transporter cannot be removed", func() {
		_, err := s.pipeline.ValidateSync(ctx, &doc, withTransporters(func(l []bspaoh.Transporter) []bspaoh.Transporter {
			return l[1:]
		}), sc)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.NotEmpty(issuesOn(err, "transporters.0.number"))
	})
}

func (s *PipelineSuite) TestReception() {
	ctx := context.Background()
	sc := validation.SignatureContext{Target: stage(signature.Reception), User: s.emitter}

	s.Run("an accepted reception is complete", func() {
		f := emissionFields()
		maps.Copy(f, receptionFields())
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.NoError(err)
	})

	s.Run("a refusal needs a reason", func() {
		f := emissionFields()
		maps.Copy(f, receptionFields())
		f["destinationReceptionAcceptationStatus"] = "PARTIALLY_REFUSED"
		f["destinationReceptionWasteRefusedWeightValue"] = 20
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.Len(issuesOn(err, "destinationReceptionWasteRefusalReason"), 1)
		s.Len(issuesOn(err, "destinationReceptionWasteRefusedWeightValue"), 1)
	})

	s.Run("answers point at listed packagings", func() {
		f := emissionFields()
		maps.Copy(f, receptionFields())
		f["destinationReceptionWastePackagingsAcceptation"] = []fields{{"id": "p9", "acceptation": "REFUSED"}}
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "destinationReceptionWastePackagingsAcceptation")
		s.Require().Len(found, 1)
		s.Equal(bspaoh.MsgPackagingUnknown, found[0].Message)
	})
}

func (s *PipelineSuite) TestOperation() {
	ctx := context.Background()
	sc := validation.SignatureContext{Target: stage(signature.Operation), User: s.emitter}
	operated := func(code string) fields {
		f := emissionFields()
		maps.Copy(f, receptionFields())
		f["destinationOperationCode"] = code
		f["destinationOperationDate"] = "2026-03-11T10:00:00Z"
		return f
	}

	s.Run("cremation codes are accepted", func() {
		res, err := s.pipeline.ValidateSync(ctx, nil, patchOf(operated("r 1")), sc)
		s.Require().NoError(err)
		s.Equal("R1", *res.Document.DestinationOperationCode)
	})

	s.Run("other codes fail the shape check", func() {
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(operated("D9")), sc)
		s.True(issue.HasKind(err, issue.KindShape))
		s.Len(issuesOn(err, "destinationOperationCode"), 1)
	})

	s.Run("a refused waste needs no operation date", func() {
		f := operated("D10")
		delete(f, "destinationOperationDate")
		f["destinationReceptionAcceptationStatus"] = "REFUSED"
		f["destinationReceptionWasteRefusalReason"] = "Emballage non conforme"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.NoError(err)
	})

	s.Run("the operation cannot precede reception", func() {
		f := operated("D10")
		f["destinationOperationDate"] = "2026-03-09T10:00:00Z"
		_, err := s.pipeline.ValidateSync(ctx, nil, patchOf(f), sc)
		s.Len(issuesOn(err, "destinationOperationDate"), 1)
	})
}

func (s *PipelineSuite) TestCompanies() {
	ctx := context.Background()
	sc := validation.SignatureContext{User: s.emitter}
	s.knownCompanies()
	s.noReceipts()

	s.Run("the destination must be a crematorium", func() {
		f := emissionFields()
		f["destinationCompanySiret"] = incineratorSiret
		_, err := s.pipeline.Validate(ctx, nil, patchOf(f), sc)
		found := issuesOn(err, "destinationCompanySiret")
		s.Require().Len(found, 1)
		s.Equal(issue.KindExternalEntity, found[0].Kind)
		s.Contains(found[0].Message, "crématorium")
	})

	s.Run("each transporter is looked up", func() {
		_, err := s.pipeline.Validate(ctx, nil,
			patchOf(emissionFields(transporter(1, transporterSiret), transporter(2, unknownSiret))), sc)
		found := issuesOn(err, "transporters.1.transporterCompanySiret")
		s.Require().Len(found, 1)
		s.Equal([]string{"transporters", "1", "company", "siret"}, found[0].Path)
		s.Empty(issuesOn(err, "transporters.0.transporterCompanySiret"))
	})
}

func (s *PipelineSuite) TestEnrichment() {
	ctx := context.Background()

	s.Run("only unsigned transporters are enriched", func() {
		doc := s.emitted()
		// emitter and destination are sealed, the first transporter signed
		s.registry.EXPECT().FindCompany(gomock.Any(), transporter2Siret).
			Return(registered[transporter2Siret], nil).Times(2)

		res, err := s.pipeline.Validate(ctx, &doc, nil, validation.SignatureContext{User: s.emitter})
		s.Require().NoError(err)
		s.Equal("Ambulances Provence", *res.Document.Transporters[1].TransporterCompanyName)
		s.Equal("Transports Funéraires du Sud", *res.Document.Transporters[0].TransporterCompanyName)
		s.Contains(res.Enriched, "transporters.1.transporterCompanyName")
	})

	s.Run("enrichment is idempotent", func() {
		s.knownCompanies()
		s.noReceipts()
		first, err := s.pipeline.Validate(ctx, nil, patchOf(emissionFields()), validation.SignatureContext{User: s.emitter})
		s.Require().NoError(err)

		second, err := s.pipeline.Validate(ctx, &first.Document, nil, validation.SignatureContext{User: s.emitter})
		s.Require().NoError(err)
		s.Equal(first.Document, second.Document)
		s.Empty(second.Updated)
		s.Empty(second.Enriched)
	})
}
