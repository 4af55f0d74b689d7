package bspaoh

import (
	"time"

	"bordereau/internal/docstore"
	"bordereau/internal/roles"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
	"bordereau/internal/workflow"
	dErrors "bordereau/pkg/domain-errors"
)

// Service creates, updates and signs BSPAOH slips.
type Service = workflow.Service[Bspaoh]

// Workflow is the BSPAOH lifecycle. Transporters sign TRANSPORT one after
// the other, in number order, and DELIVERY waits for the last of them.
var Workflow = workflow.Type[Bspaoh]{
	Name:    DocumentType,
	Init:    initSlip,
	IsDraft: func(b Bspaoh) bool { return b.IsDraft },
	Signers: map[signature.Stage][]roles.Role{
		signature.Emission:  {roles.Emitter},
		signature.Transport: {roles.Transporter},
		signature.Delivery:  {roles.Transporter},
		signature.Reception: {roles.Destination},
		signature.Operation: {roles.Destination},
	},
	Signer:  transporterTurn,
	Pending: pendingTransport,
	Stamp:   stamp,
}

// NewService wires the pipeline and the workflow over store.
func NewService(store docstore.Store[Bspaoh], deps Deps, pipelineOpts []validation.Option, opts ...workflow.Option) (*Service, error) {
	pipeline, err := NewPipeline(deps, pipelineOpts...)
	if err != nil {
		return nil, err
	}
	return workflow.New(Workflow, store, pipeline, opts...), nil
}

func initSlip(b *Bspaoh, now time.Time) string {
	b.ID = NewID(now)
	created := now.UTC()
	b.CreatedAt = &created
	return b.ID
}

// single exposes one transporter for role resolution.
type single Transporter

func (t single) Parties() []roles.Party {
	return []roles.Party{
		{Role: roles.Transporter, ID: t.TransporterCompanySiret},
		{Role: roles.Transporter, ID: t.TransporterCompanyVatNumber},
	}
}

// transporterTurn lets only the next transporter sign TRANSPORT, and only
// the last one hand the waste over.
func transporterTurn(b Bspaoh, stage signature.Stage, user roles.User) bool {
	var i int
	switch stage {
	case signature.Transport:
		i = b.NextTransporter()
	case signature.Delivery:
		i = len(b.Transporters) - 1
	default:
		return true
	}
	if i < 0 {
		return false
	}
	return roles.Resolve(user, single(b.Transporters[i])).IsTransporter
}

// pendingTransport keeps TRANSPORT open to the transporters that follow the
// first one.
func pendingTransport(b Bspaoh, stage signature.Stage) bool {
	return stage == signature.Transport && b.transportPending()
}

func stamp(b *Bspaoh, stage signature.Stage, rec signature.Record, _ roles.Set) error {
	author, date := rec.Author, rec.Date
	switch stage {
	case signature.Emission:
		b.EmitterEmissionSignatureAuthor = &author
		b.EmitterEmissionSignatureDate = &date
	case signature.Transport:
		i := b.NextTransporter()
		if i < 0 {
			return dErrors.New(dErrors.CodeConflict, "every transporter already signed")
		}
		t := &b.Transporters[i]
		if t.TransporterTakenOverAt == nil {
			t.TransporterTakenOverAt = &date
		}
		t.TransporterTransportSignatureAuthor = &author
		t.TransporterTransportSignatureDate = &date
	case signature.Delivery:
		if b.HandedOverToDestinationDate == nil {
			b.HandedOverToDestinationDate = &date
		}
		b.HandedOverToDestinationSignatureAuthor = &author
		b.HandedOverToDestinationSignatureDate = &date
	case signature.Reception:
		b.DestinationReceptionSignatureAuthor = &author
		b.DestinationReceptionSignatureDate = &date
	case signature.Operation:
		b.DestinationOperationSignatureAuthor = &author
		b.DestinationOperationSignatureDate = &date
	default:
		return dErrors.New(dErrors.CodeBadRequest, "stage "+string(stage)+" does not apply to a BSPAOH")
	}
	return nil
}
