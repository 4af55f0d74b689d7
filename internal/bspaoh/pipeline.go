package bspaoh

import (
	"bordereau/internal/company"
	"bordereau/internal/receipt"
	"bordereau/internal/refine"
	"bordereau/internal/validation"
)

// ReadOnly fields are set by the service and never accepted from a client.
// Transporter signatures are guarded by checkTransporters.
var ReadOnly = []string{
	"id",
	"createdAt",
	"emitterEmissionSignatureAuthor",
	"emitterEmissionSignatureDate",
	"handedOverToDestinationSignatureAuthor",
	"handedOverToDestinationSignatureDate",
	"destinationReceptionSignatureAuthor",
	"destinationReceptionSignatureDate",
	"destinationOperationSignatureAuthor",
	"destinationOperationSignatureDate",
}

// Deps are the collaborators of the registry steps.
type Deps struct {
	Registry company.Registry
	Receipts receipt.Store
	// VerifyDestinations rejects crematoriums whose account is not verified.
	VerifyDestinations bool
}

// NewPipeline wires the BSPAOH validation steps.
func NewPipeline(deps Deps, opts ...validation.Option) (*validation.Pipeline[Bspaoh], error) {
	checker := refine.NewChecker(deps.Registry, refine.WithDestinationVerification(deps.VerifyDestinations))
	return validation.New(validation.Config[Bspaoh]{
		Type:     DocumentType,
		Engine:   Engine,
		ReadOnly: ReadOnly,
		Defaults: defaults,
		Shape:    shape,
		IsDraft:  func(b Bspaoh) bool { return b.IsDraft },
		Refinements: []validation.Refinement[Bspaoh]{
			checkTransporters,
			checkWeights,
			checkPackagings,
			checkOperation,
		},
		Async:         []validation.AsyncRefinement[Bspaoh]{companyChecks(checker)},
		Transformers:  []validation.Transformer[Bspaoh]{fillIdentities(deps.Registry), fillReceipts(deps.Receipts)},
		SealedCheck:   sealedTransporters,
		RequiredCheck: requiredTransporters,
	}, opts...)
}
