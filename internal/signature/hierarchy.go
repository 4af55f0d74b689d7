// Package signature models the ordered chain of signing stages a document
// goes through.
//
// A Hierarchy is a plain ordered list of stages. Every walk over it is
// iterative: ancestors are a prefix of the list, the current stage is the
// last signed entry.
package signature

import (
	"fmt"
	"time"

	dErrors "bordereau/pkg/domain-errors"
	"bordereau/pkg/platform/sentinel"
)

// Stage is a named step of the signing lifecycle.
type Stage string

const (
	Emission  Stage = "EMISSION"
	Transport Stage = "TRANSPORT"
	Delivery  Stage = "DELIVERY"
	Reception Stage = "RECEPTION"
	Operation Stage = "OPERATION"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case Emission, Transport, Delivery, Reception, Operation:
		return true
	}
	return false
}

// Record is the signature appended for a stage.
type Record struct {
	Author string    `json:"author"`
	Date   time.Time `json:"date"`
}

// Step binds a stage to the predicate telling whether a document signed it.
type Step[D any] struct {
	Stage    Stage
	IsSigned func(D) bool
}

// Hierarchy is an ordered, acyclic chain of stages for one document type.
type Hierarchy[D any] struct {
	steps []Step[D]
	index map[Stage]int
}

// NewHierarchy builds a hierarchy from steps in signing order.
func NewHierarchy[D any](steps ...Step[D]) (*Hierarchy[D], error) {
	if len(steps) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "signature hierarchy needs at least one stage")
	}
	index := make(map[Stage]int, len(steps))
	for i, step := range steps {
		if !step.Stage.Valid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("unknown stage %q", step.Stage))
		}
		if step.IsSigned == nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("stage %s has no signed predicate", step.Stage))
		}
		if _, dup := index[step.Stage]; dup {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("stage %s listed twice", step.Stage))
		}
		index[step.Stage] = i
	}
	return &Hierarchy[D]{steps: steps, index: index}, nil
}

// MustHierarchy is NewHierarchy for package-level tables.
func MustHierarchy[D any](steps ...Step[D]) *Hierarchy[D] {
	h, err := NewHierarchy(steps...)
	if err != nil {
		panic(err)
	}
	return h
}

// Stages returns the stages in signing order.
func (h *Hierarchy[D]) Stages() []Stage {
	out := make([]Stage, len(h.steps))
	for i, step := range h.steps {
		out[i] = step.Stage
	}
	return out
}

func (h *Hierarchy[D]) Contains(s Stage) bool {
	_, ok := h.index[s]
	return ok
}

func (h *Hierarchy[D]) First() Stage {
	return h.steps[0].Stage
}

func (h *Hierarchy[D]) Terminal() Stage {
	return h.steps[len(h.steps)-1].Stage
}

// Next returns the stage following s. The terminal stage has none.
func (h *Hierarchy[D]) Next(s Stage) (Stage, bool) {
	i, ok := h.index[s]
	if !ok || i == len(h.steps)-1 {
		return "", false
	}
	return h.steps[i+1].Stage, true
}

// Previous returns the stage preceding s. The first stage has none.
func (h *Hierarchy[D]) Previous(s Stage) (Stage, bool) {
	i, ok := h.index[s]
	if !ok || i == 0 {
		return "", false
	}
	return h.steps[i-1].Stage, true
}

// AncestorsOf returns s and every stage before it, in signing order.
// An unknown stage has no ancestors.
func (h *Hierarchy[D]) AncestorsOf(s Stage) []Stage {
	i, ok := h.index[s]
	if !ok {
		return nil
	}
	out := make([]Stage, 0, i+1)
	for _, step := range h.steps[:i+1] {
		out = append(out, step.Stage)
	}
	return out
}

// IsSigned reports whether doc carries the signature of stage s.
func (h *Hierarchy[D]) IsSigned(doc D, s Stage) bool {
	i, ok := h.index[s]
	return ok && h.steps[i].IsSigned(doc)
}

// Current returns the last signed stage. Stages skipped administratively in
// between do not stop the walk.
func (h *Hierarchy[D]) Current(doc D) (Stage, bool) {
	var current Stage
	found := false
	for _, step := range h.steps {
		if step.IsSigned(doc) {
			current = step.Stage
			found = true
		}
	}
	return current, found
}

// Reached returns the ancestors of the current stage, or nothing when no
// stage is signed.
func (h *Hierarchy[D]) Reached(doc D) []Stage {
	current, ok := h.Current(doc)
	if !ok {
		return nil
	}
	return h.AncestorsOf(current)
}

// Target resolves the stage a validation run asserts. An explicit stage
// wins; otherwise it is the current stage, and the first stage when nothing
// is signed yet.
func (h *Hierarchy[D]) Target(explicit *Stage, doc D) Stage {
	if explicit != nil {
		return *explicit
	}
	if current, ok := h.Current(doc); ok {
		return current
	}
	return h.First()
}

// IsComplete reports whether the terminal stage is signed.
func (h *Hierarchy[D]) IsComplete(doc D) bool {
	return h.steps[len(h.steps)-1].IsSigned(doc)
}

// CheckCanSign rejects unknown stages and stages already signed.
func (h *Hierarchy[D]) CheckCanSign(doc D, s Stage) error {
	if !h.Contains(s) {
		return dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("stage %s does not apply to this document", s))
	}
	if h.IsSigned(doc, s) {
		return dErrors.Wrap(sentinel.ErrAlreadyUsed, dErrors.CodeConflict, fmt.Sprintf("stage %s is already signed", s))
	}
	return nil
}
