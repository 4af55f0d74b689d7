package bsdasri

import (
	"time"

	"bordereau/internal/docstore"
	"bordereau/internal/roles"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
	"bordereau/internal/workflow"
	dErrors "bordereau/pkg/domain-errors"
)

// Service creates, updates and signs BSDASRI slips.
type Service = workflow.Service[Bsdasri]

// Workflow is the BSDASRI lifecycle.
var Workflow = workflow.Type[Bsdasri]{
	Name:    DocumentType,
	Init:    initSlip,
	IsDraft: func(b Bsdasri) bool { return b.IsDraft },
	Signers: map[signature.Stage][]roles.Role{
		signature.Emission:  {roles.Emitter, roles.EcoOrganisme},
		signature.Transport: {roles.Transporter},
		signature.Reception: {roles.Destination},
		signature.Operation: {roles.Destination},
	},
	MaySkipPrevious: directTakeOver,
	Stamp:           stamp,
}

// NewService wires the pipeline and the workflow over store.
func NewService(store docstore.Store[Bsdasri], deps Deps, pipelineOpts []validation.Option, opts ...workflow.Option) (*Service, error) {
	pipeline, err := NewPipeline(deps, pipelineOpts...)
	if err != nil {
		return nil, err
	}
	return workflow.New(Workflow, store, pipeline, opts...), nil
}

func initSlip(b *Bsdasri, now time.Time) string {
	b.ID = NewID(now)
	created := now.UTC()
	b.CreatedAt = &created
	return b.ID
}

// directTakeOver lets a transporter take a simple or synthesis slip over
// without the emitter's signature.
func directTakeOver(b Bsdasri, stage signature.Stage) bool {
	return stage == signature.Transport && b.Type != Grouping
}

func stamp(b *Bsdasri, stage signature.Stage, rec signature.Record, set roles.Set) error {
	author, date := rec.Author, rec.Date
	switch stage {
	case signature.Emission:
		b.EmitterEmissionSignatureAuthor = &author
		b.EmitterEmissionSignatureDate = &date
		b.EmittedByEcoOrganisme = set.IsEcoOrganisme && !set.IsEmitter
	case signature.Transport:
		if b.EmitterEmissionSignatureDate == nil {
			b.IsEmissionDirectTakenOver = true
		}
		if b.TransporterTakenOverAt == nil {
			b.TransporterTakenOverAt = &date
		}
		b.TransporterTransportSignatureAuthor = &author
		b.TransporterTransportSignatureDate = &date
	case signature.Reception:
		b.DestinationReceptionSignatureAuthor = &author
		b.DestinationReceptionSignatureDate = &date
	case signature.Operation:
		b.DestinationOperationSignatureAuthor = &author
		b.DestinationOperationSignatureDate = &date
	default:
		return dErrors.New(dErrors.CodeBadRequest, "stage "+string(stage)+" does not apply to a BSDASRI")
	}
	return nil
}
