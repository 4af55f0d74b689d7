// Package workflow drives a document type through creation, updates and
// signatures: every write goes through the validation pipeline and is saved
// with an optimistic version check. Signature events are published after the
// save and never fail the signature.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bordereau/internal/docstore"
	"bordereau/internal/events"
	"bordereau/internal/platform/metrics"
	"bordereau/internal/roles"
	"bordereau/internal/signature"
	"bordereau/internal/validation"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

// Type holds the per-type hooks of a workflow.
type Type[D any] struct {
	Name string
	// Init sets the identifier and creation fields of a new document.
	Init    func(doc *D, now time.Time) string
	IsDraft func(D) bool
	// Signers lists the roles allowed to sign each stage.
	Signers map[signature.Stage][]roles.Role
	// Signer, when set, must also accept the caller for stage. Types with
	// several parties of one role use it to pick the one whose turn it is.
	Signer func(doc D, stage signature.Stage, user roles.User) bool
	// MaySkipPrevious allows signing stage while its predecessor is unsigned.
	MaySkipPrevious func(doc D, stage signature.Stage) bool
	// Pending reports a signed stage that still awaits signatures from
	// further parties. It may be signed again, and the next stage waits.
	Pending func(doc D, stage signature.Stage) bool
	// Stamp records the signature on the document.
	Stamp func(doc *D, stage signature.Stage, rec signature.Record, roles roles.Set) error
}

// SignRequest is a signature about to be recorded.
type SignRequest struct {
	Stage  signature.Stage
	User   roles.User
	Author string
}

// Service is safe for concurrent use. Concurrent writes to the same document
// are serialised by the store's version check: the loser gets CodeConflict.
type Service[D roles.Parties] struct {
	typ       Type[D]
	store     docstore.Store[D]
	pipeline  *validation.Pipeline[D]
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*settings)

type settings struct {
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func WithPublisher(p events.Publisher) Option {
	return func(s *settings) {
		s.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

func New[D roles.Parties](typ Type[D], store docstore.Store[D], pipeline *validation.Pipeline[D], opts ...Option) *Service[D] {
	s := settings{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return &Service[D]{
		typ:       typ,
		store:     store,
		pipeline:  pipeline,
		publisher: s.publisher,
		logger:    s.logger,
		metrics:   s.metrics,
		now:       s.now,
		tracer:    otel.Tracer("bordereau/workflow"),
	}
}

// Type is the name of the document type the service handles.
func (s *Service[D]) Type() string {
	return s.typ.Name
}

// Pipeline is the validation pipeline the service writes through.
func (s *Service[D]) Pipeline() *validation.Pipeline[D] {
	return s.pipeline
}

func (s *Service[D]) Get(ctx context.Context, id string) (*docstore.Record[D], error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeError(err, "load", id)
	}
	return rec, nil
}

// Create validates patch as a new document and stores it.
func (s *Service[D]) Create(ctx context.Context, user roles.User, patch []byte) (*docstore.Record[D], error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Create", trace.WithAttributes(attribute.String("type", s.typ.Name)))
	defer span.End()

	res, err := s.pipeline.Validate(ctx, nil, patch, validation.SignatureContext{User: user})
	if err != nil {
		return nil, err
	}
	doc := res.Document
	id := s.typ.Init(&doc, s.now())

	rec, err := s.store.Create(ctx, id, doc)
	if err != nil {
		return nil, s.storeError(err, "create", id)
	}
	s.logger.InfoContext(ctx, "document created", "type", s.typ.Name, "id", id, "user_id", user.ID)
	s.metrics.IncrementCreated(s.typ.Name)
	return rec, nil
}

// Update applies patch onto the stored document.
func (s *Service[D]) Update(ctx context.Context, id string, user roles.User, patch []byte) (*docstore.Record[D], error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Update", trace.WithAttributes(
		attribute.String("type", s.typ.Name),
		attribute.String("id", id),
	))
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.pipeline.Validate(ctx, &current.Doc, patch, validation.SignatureContext{User: user})
	if err != nil {
		return nil, err
	}
	if len(res.Updated) == 0 && len(res.Enriched) == 0 {
		return current, nil
	}

	rec, err := s.store.Save(ctx, id, res.Document, current.Version)
	if err != nil {
		return nil, s.storeError(err, "save", id)
	}
	s.logger.InfoContext(ctx, "document updated", "type", s.typ.Name, "id", id,
		"version", rec.Version, "updated", len(res.Updated))
	return rec, nil
}

// Sign validates the stored document for req.Stage, records the signature
// and publishes a SignatureRecorded event.
func (s *Service[D]) Sign(ctx context.Context, id string, req SignRequest) (*docstore.Record[D], error) {
	ctx, span := s.tracer.Start(ctx, "workflow.Sign", trace.WithAttributes(
		attribute.String("type", s.typ.Name),
		attribute.String("id", id),
		attribute.String("stage", string(req.Stage)),
	))
	defer span.End()

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	set := roles.Resolve(req.User, current.Doc)
	if err := s.checkCanSign(current.Doc, req.Stage, req.User, set); err != nil {
		return nil, err
	}

	stage := req.Stage
	res, err := s.pipeline.Validate(ctx, &current.Doc, nil, validation.SignatureContext{Target: &stage, User: req.User})
	if err != nil {
		return nil, err
	}

	doc := res.Document
	sig := signature.Record{Author: req.Author, Date: s.now().UTC()}
	if err := s.typ.Stamp(&doc, stage, sig, set); err != nil {
		return nil, err
	}
	rec, err := s.store.Save(ctx, id, doc, current.Version)
	if err != nil {
		return nil, s.storeError(err, "sign", id)
	}
	s.logger.InfoContext(ctx, "document signed", "type", s.typ.Name, "id", id,
		"stage", stage, "version", rec.Version, "user_id", req.User.ID)
	s.metrics.IncrementSigned(s.typ.Name, string(stage))

	s.publish(ctx, events.NewSignatureRecorded(s.typ.Name, id, stage, sig, rec.Version))
	return rec, nil
}

func (s *Service[D]) checkCanSign(doc D, stage signature.Stage, user roles.User, set roles.Set) error {
	hierarchy := s.pipeline.Engine().Hierarchy()
	if !s.pending(doc, stage) {
		if err := hierarchy.CheckCanSign(doc, stage); err != nil {
			return err
		}
	}
	if s.typ.IsDraft != nil && s.typ.IsDraft(doc) {
		return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict, "a draft cannot be signed")
	}
	if prev, ok := hierarchy.Previous(stage); ok {
		if !hierarchy.IsSigned(doc, prev) && (s.typ.MaySkipPrevious == nil || !s.typ.MaySkipPrevious(doc, stage)) {
			return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
				fmt.Sprintf("stage %s must be signed before %s", prev, stage))
		}
		if s.pending(doc, prev) {
			return dErrors.Wrap(sentinel.ErrInvalidState, dErrors.CodeConflict,
				fmt.Sprintf("stage %s awaits further signatures", prev))
		}
	}
	if allowed, ok := s.typ.Signers[stage]; ok && !slices.ContainsFunc(allowed, set.Has) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("the caller cannot sign stage %s", stage))
	}
	if s.typ.Signer != nil && !s.typ.Signer(doc, stage, user) {
		return dErrors.New(dErrors.CodeForbidden, fmt.Sprintf("the caller cannot sign stage %s", stage))
	}
	return nil
}

func (s *Service[D]) pending(doc D, stage signature.Stage) bool {
	return s.typ.Pending != nil && s.typ.Pending(doc, stage)
}

// publish is fail-open: the signature is already persisted.
func (s *Service[D]) publish(ctx context.Context, event events.SignatureRecorded) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSignature(ctx, event); err != nil {
		s.metrics.IncrementPublishFailure(event.DocumentType)
		s.logger.WarnContext(ctx, "failed to publish signature event",
			"type", event.DocumentType,
			"id", event.DocumentID,
			"stage", event.Stage,
			"error", err,
		)
	}
}

func (s *Service[D]) storeError(err error, op, id string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("%s %s not found", s.typ.Name, id))
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, fmt.Sprintf("%s %s was modified concurrently", s.typ.Name, id))
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("failed to %s %s %s", op, s.typ.Name, id))
}
