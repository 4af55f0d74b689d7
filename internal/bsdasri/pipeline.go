package bsdasri

import (
	"bordereau/internal/company"
	"bordereau/internal/receipt"
	"bordereau/internal/refine"
	"bordereau/internal/validation"
)

// ReadOnly fields are set by the service and never accepted from a client.
var ReadOnly = []string{
	"id",
	"createdAt",
	"emittedByEcoOrganisme",
	"intermediariesOrgIds",
	"emitterEmissionSignatureAuthor",
	"emitterEmissionSignatureDate",
	"isEmissionDirectTakenOver",
	"isEmissionTakenOverWithSecretCode",
	"transporterTransportSignatureAuthor",
	"transporterTransportSignatureDate",
	"destinationReceptionSignatureAuthor",
	"destinationReceptionSignatureDate",
	"destinationOperationSignatureAuthor",
	"destinationOperationSignatureDate",
}

// Deps are the collaborators of the registry steps.
type Deps struct {
	Registry company.Registry
	Receipts receipt.Store
	// VerifyDestinations rejects destinations whose account is not verified.
	VerifyDestinations bool
}

// NewPipeline wires the BSDASRI validation steps.
func NewPipeline(deps Deps, opts ...validation.Option) (*validation.Pipeline[Bsdasri], error) {
	checker := refine.NewChecker(deps.Registry, refine.WithDestinationVerification(deps.VerifyDestinations))
	return validation.New(validation.Config[Bsdasri]{
		Type:     DocumentType,
		Engine:   Engine,
		ReadOnly: ReadOnly,
		Defaults: defaults,
		Shape:    shape,
		IsDraft:  func(b Bsdasri) bool { return b.IsDraft },
		Refinements: []validation.Refinement[Bsdasri]{
			checkWeights,
			checkTransporter,
			checkOperation,
			checkPackagings,
			checkAssociations,
		},
		Async:         []validation.AsyncRefinement[Bsdasri]{companyChecks(checker)},
		Transformers:  []validation.Transformer[Bsdasri]{fillIdentities(deps.Registry), fillReceipts(deps.Receipts)},
		SealedCheck:   typeChange,
		RequiredCheck: requiredAssociations,
	}, opts...)
}
