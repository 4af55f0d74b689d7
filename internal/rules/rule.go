// Package rules holds the field rule tables and the engine that evaluates
// them against a signature hierarchy.
//
// A table maps every mutable field of a document type to a sealing rule and
// an optional requirement rule. Each rule names the stage from which it
// applies and an optional guard. Document types supply their own table; the
// engine is shared.
package rules

import (
	"fmt"

	"bordereau/internal/roles"
	"bordereau/internal/signature"
	dErrors "bordereau/pkg/domain-errors"
)

// Context carries what a rule may depend on besides the document itself.
type Context[D any] struct {
	Roles roles.Set
	// Persisted is the stored version of the document, nil on creation.
	Persisted *D
}

// From is the stage a rule applies from: either a fixed stage or one
// computed from the document and its context. The zero value is invalid.
type From[D any] struct {
	fixed   signature.Stage
	compute func(D, Context[D]) signature.Stage
}

// Fixed returns a From that always resolves to s.
func Fixed[D any](s signature.Stage) From[D] {
	return From[D]{fixed: s}
}

// Computed returns a From resolved by fn on every evaluation.
func Computed[D any](fn func(D, Context[D]) signature.Stage) From[D] {
	return From[D]{compute: fn}
}

// Resolve returns the stage the rule applies from for doc.
func (f From[D]) Resolve(doc D, ctx Context[D]) signature.Stage {
	if f.compute != nil {
		return f.compute(doc, ctx)
	}
	return f.fixed
}

// IsFixed returns the stage and true for a fixed From.
func (f From[D]) IsFixed() (signature.Stage, bool) {
	return f.fixed, f.compute == nil && f.fixed != ""
}

func (f From[D]) valid() bool {
	return f.compute != nil || f.fixed != ""
}

// Guard is re-evaluated on every check. target is the stage being asserted
// for requirement rules and the document's current stage for sealing rules.
type Guard[D any] func(doc D, target signature.Stage) bool

// ScopedGuard is a Guard that also sees the caller's roles.
type ScopedGuard[D any] func(doc D, target signature.Stage, ctx Context[D]) bool

// Rule is one sealing or requirement rule. When and WhenScoped must both
// hold when set.
type Rule[D any] struct {
	From       From[D]
	When       Guard[D]
	WhenScoped ScopedGuard[D]
	// CustomMessage is appended to the error raised by this rule.
	CustomMessage string
}

// FieldRule is the immutable configuration of a single field.
type FieldRule[D any] struct {
	Field        string
	Sealed       Rule[D]
	Required     *Rule[D]
	Path         []string
	ReadableName string
}

// Label is the readable name, or the field name when none is configured.
func (r FieldRule[D]) Label() string {
	if r.ReadableName != "" {
		return r.ReadableName
	}
	return r.Field
}

// Table is a validated, ordered set of field rules.
type Table[D any] struct {
	rules []FieldRule[D]
	index map[string]int
}

// NewTable validates the field rules: names must be unique and non-empty and
// every rule needs a From.
func NewTable[D any](fieldRules ...FieldRule[D]) (*Table[D], error) {
	fieldRules = append([]FieldRule[D](nil), fieldRules...)
	index := make(map[string]int, len(fieldRules))
	for i, fr := range fieldRules {
		if fr.Field == "" {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("field rule #%d has no field name", i))
		}
		if _, dup := index[fr.Field]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("field %s has two rules", fr.Field))
		}
		if !fr.Sealed.From.valid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("field %s has no sealing stage", fr.Field))
		}
		if fr.Required != nil && !fr.Required.From.valid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("field %s has no requirement stage", fr.Field))
		}
		if len(fr.Path) == 0 {
			fieldRules[i].Path = []string{fr.Field}
		}
		index[fr.Field] = i
	}
	return &Table[D]{rules: fieldRules, index: index}, nil
}

// MustTable is NewTable for package-level tables.
func MustTable[D any](fieldRules ...FieldRule[D]) *Table[D] {
	t, err := NewTable(fieldRules...)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns the field rules in declaration order.
func (t *Table[D]) Rules() []FieldRule[D] {
	return t.rules
}

// Lookup returns the rule of field.
func (t *Table[D]) Lookup(field string) (FieldRule[D], bool) {
	i, ok := t.index[field]
	if !ok {
		return FieldRule[D]{}, false
	}
	return t.rules[i], true
}

// FieldSet maps field names to their structured path.
type FieldSet map[string][]string

func (s FieldSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// HasAny reports whether at least one of fields is in the set.
func (s FieldSet) HasAny(fields ...string) bool {
	for _, f := range fields {
		if s.Has(f) {
			return true
		}
	}
	return false
}
