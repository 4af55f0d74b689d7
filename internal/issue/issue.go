// Package issue defines the validation error kinds produced by the rule
// engine and the validation pipeline.
//
// Every problem found while validating a document is an Issue. Issues are
// collected into an *Error so a caller can show every problem at once. Shape
// and sealed-field issues are fatal: the pipeline stops as soon as one is
// found because the input cannot be processed further.
package issue

import (
	"errors"
	"fmt"
	"strings"

	dErrors "bordereau/pkg/domain-errors"
	pstrings "bordereau/pkg/platform/strings"
)

// Kind classifies an Issue.
type Kind string

const (
	// KindShape covers malformed or mistyped input.
	KindShape          Kind = "shape"
	// KindSealedField covers a mutation of a field locked by a signature.
	KindSealedField    Kind = "sealed_field"
	// KindRequiredField covers a field missing for the target stage.
	KindRequiredField  Kind = "required_field"
	// KindCrossField covers consistency rules between fields.
	KindCrossField     Kind = "cross_field"
	// KindExternalEntity covers unknown or ill-profiled companies.
	KindExternalEntity Kind = "external_entity"
)

// Fatal reports whether issues of this kind stop the pipeline.
func (k Kind) Fatal() bool {
	return k == KindShape || k == KindSealedField
}

// Issue is a single validation problem. Path locates the field for
// client-side highlighting; it may be empty for document-wide rules.
type Issue struct {
	Kind    Kind
	Field   string
	Path    []string
	Message string
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Shape builds a shape issue.
func Shape(field, msg string) Issue {
	return Issue{Kind: KindShape, Field: field, Message: msg}
}

// Required builds a required-field issue.
func Required(field string, path []string, msg string) Issue {
	return Issue{Kind: KindRequiredField, Field: field, Path: path, Message: msg}
}

// CrossField builds a cross-field rule issue.
func CrossField(field string, path []string, msg string) Issue {
	return Issue{Kind: KindCrossField, Field: field, Path: path, Message: msg}
}

// ExternalEntity builds an external entity issue.
func ExternalEntity(field string, path []string, msg string) Issue {
	return Issue{Kind: KindExternalEntity, Field: field, Path: path, Message: msg}
}

// Error aggregates the issues of one validation run.
type Error struct {
	Issues []Issue
}

// NewError returns nil when there is nothing to report.
func NewError(issues []Issue) *Error {
	if len(issues) == 0 {
		return nil
	}
	return &Error{Issues: issues}
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, i := range e.Issues {
		msgs = append(msgs, i.String())
	}
	return strings.Join(msgs, "\n")
}

// Code maps the aggregate to a domain error code.
func (e *Error) Code() dErrors.Code {
	if e.Has(KindSealedField) {
		return dErrors.CodeForbidden
	}
	return dErrors.CodeValidation
}

// Has reports whether at least one issue has the given kind.
func (e *Error) Has(kind Kind) bool {
	return len(e.OfKind(kind)) > 0
}

// OfKind filters the issues by kind.
func (e *Error) OfKind(kind Kind) []Issue {
	var out []Issue
	for _, i := range e.Issues {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

// Fatal reports whether the aggregate contains a fatal issue.
func (e *Error) Fatal() bool {
	for _, i := range e.Issues {
		if i.Kind.Fatal() {
			return true
		}
	}
	return false
}

// SealedField is one locked field an update attempted to change.
type SealedField struct {
	Field string
	Path  []string
	Label string
}

// SealedFieldError is raised when an update touches fields that are locked.
// It lists every offending field in one error.
type SealedFieldError struct {
	Fields []SealedField
}

// Labels returns the human-readable labels, deduplicated, in field order.
func (e *SealedFieldError) Labels() []string {
	labels := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		labels = append(labels, f.Label)
	}
	return pstrings.Dedupe(labels)
}

func (e *SealedFieldError) Error() string {
	return "Des champs ont été verrouillés via signature et ne peuvent plus être modifiés : " +
		strings.Join(e.Labels(), ", ")
}

func (e *SealedFieldError) Code() dErrors.Code {
	return dErrors.CodeForbidden
}

// Issues expands the aggregate into one sealed issue per field so it can be
// reported through the same list as the other kinds.
func (e *SealedFieldError) Issues() []Issue {
	out := make([]Issue, 0, len(e.Fields))
	for _, f := range e.Fields {
		out = append(out, Issue{Kind: KindSealedField, Field: f.Field, Path: f.Path, Message: f.Label})
	}
	return out
}

// Issues extracts the issues carried by err, if any.
func Issues(err error) []Issue {
	var agg *Error
	if errors.As(err, &agg) {
		return agg.Issues
	}
	var sealed *SealedFieldError
	if errors.As(err, &sealed) {
		return sealed.Issues()
	}
	return nil
}

// HasKind reports whether err carries an issue of the given kind.
func HasKind(err error, kind Kind) bool {
	for _, i := range Issues(err) {
		if i.Kind == kind {
			return true
		}
	}
	return false
}
