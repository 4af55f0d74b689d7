// Package validation runs a document update through shape decoding, the
// sealed-field check, cross-field refinements, required fields, registry
// refinements and enrichment, in that order.
//
// A Pipeline is configured once per document type. ValidateSync stops after
// the required-field check; Validate goes on with the registry steps.
package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"bordereau/internal/issue"
	"bordereau/internal/roles"
	"bordereau/internal/rules"
	"bordereau/internal/signature"
	"bordereau/internal/validation/metrics"
	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

const defaultConcurrency = 4

// SignatureContext is what the caller asserts about the run.
type SignatureContext struct {
	// Target is the signature about to be recorded. Nil validates against
	// the document's current stage.
	Target *signature.Stage
	User   roles.User
}

// Env is handed to every refinement and transformer.
type Env[D any] struct {
	Target signature.Stage
	// Explicit is true when the caller named the target.
	Explicit  bool
	Roles     roles.Set
	Persisted *D
	// Sealed is the set of fields locked on the persisted document.
	Sealed rules.FieldSet
	// Patch holds the top-level keys sent in this update.
	Patch map[string]json.RawMessage
}

// Supplied reports whether the caller sent field in this update.
func (e Env[D]) Supplied(field string) bool {
	_, ok := e.Patch[field]
	return ok
}

// SuppliedAny reports whether the caller sent at least one of fields.
func (e Env[D]) SuppliedAny(fields ...string) bool {
	return slices.ContainsFunc(fields, e.Supplied)
}

// RuleContext is the engine context for the incoming document.
func (e Env[D]) RuleContext() rules.Context[D] {
	return rules.Context[D]{Roles: e.Roles, Persisted: e.Persisted}
}

// Refinement is a synchronous cross-field check.
type Refinement[D any] func(doc D, env Env[D]) []issue.Issue

// AsyncRefinement checks the document against external collaborators. An
// error is an infrastructure failure, not a validation issue.
type AsyncRefinement[D any] func(ctx context.Context, doc D, env Env[D]) ([]issue.Issue, error)

// Transformer writes registry data into doc and returns the fields written.
// It must not write a field of env.Sealed.
type Transformer[D any] func(ctx context.Context, doc *D, env Env[D]) ([]string, error)

// Config describes one document type.
type Config[D any] struct {
	Type   string
	Engine *rules.Engine[D]
	// ReadOnly keys are rejected when present in a patch.
	ReadOnly []string
	Defaults func(*D)
	Shape    func(D) []issue.Issue
	// IsDraft documents skip the required check unless a target is named.
	IsDraft func(D) bool

	Refinements  []Refinement[D]
	Async        []AsyncRefinement[D]
	Transformers []Transformer[D]

	// SealedCheck reports locked fields the flat table cannot express.
	SealedCheck func(persisted, incoming D, ctx rules.Context[D]) []issue.SealedField
	// RequiredCheck adds required-field issues the flat table cannot express.
	RequiredCheck func(doc D, env Env[D]) ([]issue.Issue, error)
}

// Result is a validated document ready to be persisted.
type Result[D any] struct {
	Document D
	Target   signature.Stage
	Roles    roles.Set
	// Updated lists the fields changed compared to the persisted document.
	Updated []string
	// Enriched lists the fields written by transformers.
	Enriched []string
}

// Pipeline validates updates of one document type. It is safe for
// concurrent use.
type Pipeline[D roles.Parties] struct {
	cfg         Config[D]
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*settings)

type settings struct {
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// WithConcurrency bounds the registry refinements running at once.
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
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

// New builds a pipeline. The configuration needs a type name and an engine.
func New[D roles.Parties](cfg Config[D], opts ...Option) (*Pipeline[D], error) {
	if cfg.Type == "" || cfg.Engine == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "validation pipeline needs a type and an engine")
	}
	s := settings{concurrency: defaultConcurrency, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	return &Pipeline[D]{
		cfg:         cfg,
		concurrency: s.concurrency,
		logger:      s.logger,
		metrics:     s.metrics,
		tracer:      otel.Tracer("bordereau/validation"),
	}, nil
}

func (p *Pipeline[D]) Engine() *rules.Engine[D] {
	return p.cfg.Engine
}

// ValidateSync runs shape, sealed, refinement and required checks.
func (p *Pipeline[D]) ValidateSync(ctx context.Context, persisted *D, patch []byte, sc SignatureContext) (*Result[D], error) {
	return p.run(ctx, "sync", persisted, patch, sc)
}

// Validate runs every step, registry lookups and enrichment included.
func (p *Pipeline[D]) Validate(ctx context.Context, persisted *D, patch []byte, sc SignatureContext) (*Result[D], error) {
	return p.run(ctx, "async", persisted, patch, sc)
}

func (p *Pipeline[D]) run(ctx context.Context, variant string, persisted *D, patch []byte, sc SignatureContext) (res *Result[D], err error) {
	ctx, span := p.tracer.Start(ctx, "validation.Validate", trace.WithAttributes(
		attribute.String("type", p.cfg.Type),
		attribute.String("variant", variant),
		attribute.Bool("creation", persisted == nil),
	))
	start := time.Now()
	defer func() {
		outcome := outcomeOf(err)
		p.metrics.ObserveRun(p.cfg.Type, variant, outcome, time.Since(start))
		for _, i := range issue.Issues(err) {
			p.metrics.IncrementIssue(p.cfg.Type, string(i.Kind))
		}
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
	}()

	doc, keys, err := p.decode(persisted, patch)
	if err != nil {
		return nil, err
	}

	hierarchy := p.cfg.Engine.Hierarchy()
	env := Env[D]{
		Target:    hierarchy.Target(sc.Target, doc),
		Explicit:  sc.Target != nil,
		Roles:     roles.Resolve(sc.User, doc),
		Persisted: persisted,
		Patch:     keys,
		Sealed:    rules.FieldSet{},
	}
	if sc.Target != nil && !hierarchy.Contains(*sc.Target) {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("stage %s does not apply to %s", *sc.Target, p.cfg.Type))
	}

	updated, err := p.checkSealed(persisted, doc, sc.User, &env)
	if err != nil {
		return nil, err
	}

	var issues []issue.Issue
	for _, refine := range p.cfg.Refinements {
		issues = append(issues, refine(doc, env)...)
	}
	required, err := p.required(doc, env)
	if err != nil {
		return nil, err
	}

	res = &Result[D]{Document: doc, Target: env.Target, Roles: env.Roles, Updated: updated}
	if variant == "sync" {
		if e := issue.NewError(append(issues, required...)); e != nil {
			return nil, e
		}
		return res, nil
	}

	external, err := p.checkExternal(ctx, doc, env)
	if err != nil {
		return nil, err
	}
	issues = append(issues, external...)

	enriched, err := p.enrich(ctx, &doc, env)
	if err != nil {
		return nil, err
	}
	p.metrics.AddEnriched(p.cfg.Type, len(enriched))

	// enrichment may have filled fields reported missing above
	required, err = p.required(doc, env)
	if err != nil {
		return nil, err
	}
	if e := issue.NewError(append(issues, required...)); e != nil {
		return nil, e
	}

	res.Document = doc
	res.Enriched = enriched
	p.logger.DebugContext(ctx, "document validated",
		"type", p.cfg.Type,
		"target", env.Target,
		"updated", len(updated),
		"enriched", len(enriched),
	)
	return res, nil
}

// decode applies patch onto the persisted document and decodes the result
// strictly. Every failure is a fatal shape error.
func (p *Pipeline[D]) decode(persisted *D, patch []byte) (D, map[string]json.RawMessage, error) {
	var zero D
	if len(bytes.TrimSpace(patch)) == 0 {
		patch = []byte("{}")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil || keys == nil {
		return zero, nil, issue.NewError([]issue.Issue{issue.Shape("", "la mise à jour doit être un objet JSON")})
	}

	var shape []issue.Issue
	for _, key := range p.cfg.ReadOnly {
		if _, ok := keys[key]; ok {
			shape = append(shape, issue.Shape(key, fmt.Sprintf("Le champ %s ne peut pas être modifié directement", key)))
		}
	}
	if len(shape) > 0 {
		return zero, nil, issue.NewError(shape)
	}

	base := []byte("{}")
	if persisted != nil {
		raw, err := json.Marshal(*persisted)
		if err != nil {
			return zero, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode persisted document")
		}
		base = raw
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return zero, nil, issue.NewError([]issue.Issue{issue.Shape("", "la mise à jour n'est pas un JSON merge patch valide")})
	}

	var doc D
	dec := json.NewDecoder(bytes.NewReader(merged))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return zero, nil, issue.NewError([]issue.Issue{decodeIssue(err)})
	}
	if p.cfg.Defaults != nil {
		p.cfg.Defaults(&doc)
	}
	if p.cfg.Shape != nil {
		if e := issue.NewError(p.cfg.Shape(doc)); e != nil {
			return zero, nil, e
		}
	}
	return doc, keys, nil
}

func decodeIssue(err error) issue.Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return issue.Shape(typeErr.Field, fmt.Sprintf("Le champ %s doit être de type %s", typeErr.Field, typeErr.Type))
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		field = strings.Trim(field, `"`)
		return issue.Shape(field, fmt.Sprintf("Le champ %s n'existe pas", field))
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return issue.Shape("", fmt.Sprintf("Date invalide : %s", timeErr.Value))
	}
	return issue.Shape("", "Document invalide : "+err.Error())
}

// checkSealed compares the incoming document to the persisted one. Roles
// are resolved on the persisted document: a caller cannot unlock a field by
// adding itself to the document in the same update.
func (p *Pipeline[D]) checkSealed(persisted *D, doc D, user roles.User, env *Env[D]) ([]string, error) {
	engine := p.cfg.Engine
	if persisted == nil {
		return engine.UpdatedFields(*new(D), doc)
	}

	ctx := rules.Context[D]{Roles: roles.Resolve(user, *persisted), Persisted: persisted}
	env.Sealed = engine.SealedFieldsOf(*persisted, ctx)

	updated, err := engine.CheckNoSealedMutation(*persisted, doc, ctx)
	var sealed *issue.SealedFieldError
	if err != nil && !errors.As(err, &sealed) {
		return nil, err
	}
	if p.cfg.SealedCheck != nil {
		if extra := p.cfg.SealedCheck(*persisted, doc, ctx); len(extra) > 0 {
			if sealed == nil {
				sealed = &issue.SealedFieldError{}
			}
			sealed.Fields = append(sealed.Fields, extra...)
		}
	}
	if sealed != nil {
		return nil, sealed
	}
	return updated, nil
}

func (p *Pipeline[D]) required(doc D, env Env[D]) ([]issue.Issue, error) {
	if !env.Explicit && p.cfg.IsDraft != nil && p.cfg.IsDraft(doc) {
		return nil, nil
	}
	issues, err := p.cfg.Engine.CheckRequiredFields(doc, env.Target, env.RuleContext())
	if err != nil {
		return nil, err
	}
	if p.cfg.RequiredCheck != nil {
		more, err := p.cfg.RequiredCheck(doc, env)
		if err != nil {
			return nil, err
		}
		issues = append(issues, more...)
	}
	return issues, nil
}

// checkExternal runs the registry refinements concurrently. Every one of
// them completes; the first infrastructure failure is returned.
func (p *Pipeline[D]) checkExternal(ctx context.Context, doc D, env Env[D]) ([]issue.Issue, error) {
	if len(p.cfg.Async) == 0 {
		return nil, nil
	}
	ctx, span := p.tracer.Start(ctx, "validation.CheckExternal",
		trace.WithAttributes(attribute.Int("refinements", len(p.cfg.Async))))
	defer span.End()

	found := make([][]issue.Issue, len(p.cfg.Async))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, refine := range p.cfg.Async {
		g.Go(func() error {
			issues, err := refine(ctx, doc, env)
			if err != nil {
				return err
			}
			mu.Lock()
			found[i] = issues
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		p.logger.ErrorContext(ctx, "registry refinement failed", "type", p.cfg.Type, "error", err)
		return nil, infrastructure(err)
	}

	var out []issue.Issue
	for _, issues := range found {
		out = append(out, issues...)
	}
	return out, nil
}

// enrich runs the transformers in order and rejects any write to a sealed
// field.
func (p *Pipeline[D]) enrich(ctx context.Context, doc *D, env Env[D]) ([]string, error) {
	if len(p.cfg.Transformers) == 0 {
		return nil, nil
	}
	before := *doc
	var written []string
	for _, transform := range p.cfg.Transformers {
		fields, err := transform(ctx, doc, env)
		if err != nil {
			p.logger.ErrorContext(ctx, "enrichment failed", "type", p.cfg.Type, "error", err)
			return nil, infrastructure(err)
		}
		written = append(written, fields...)
	}

	changed, err := rules.Diff(before, *doc)
	if err != nil {
		return nil, err
	}
	for _, field := range changed {
		if env.Sealed.Has(field) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("enrichment wrote sealed field %s", field))
		}
	}
	slices.Sort(written)
	return slices.Compact(written), nil
}

func infrastructure(err error) error {
	if errors.Is(err, sentinel.ErrUnavailable) {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "company registry unavailable")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "company registry lookup timed out")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "registry lookup failed")
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "valid"
	case issue.HasKind(err, issue.KindSealedField):
		return "sealed"
	case len(issue.Issues(err)) > 0:
		return "invalid"
	default:
		return "error"
	}
}
