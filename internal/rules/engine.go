package rules

import (
	"fmt"
	"slices"
	"sort"

	"bordereau/internal/issue"
	"bordereau/internal/signature"
	dErrors "bordereau/pkg/domain-errors"
)

// Engine evaluates a field rule table against a signature hierarchy.
type Engine[D any] struct {
	table     *Table[D]
	hierarchy *signature.Hierarchy[D]
}

// NewEngine checks that every fixed stage of the table belongs to the
// hierarchy.
func NewEngine[D any](table *Table[D], hierarchy *signature.Hierarchy[D]) (*Engine[D], error) {
	if table == nil || hierarchy == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "rule engine needs a table and a hierarchy")
	}
	for _, fr := range table.Rules() {
		if s, ok := fr.Sealed.From.IsFixed(); ok && !hierarchy.Contains(s) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("field %s seals from %s, which is not part of the hierarchy", fr.Field, s))
		}
		if fr.Required == nil {
			continue
		}
		if s, ok := fr.Required.From.IsFixed(); ok && !hierarchy.Contains(s) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation,
				fmt.Sprintf("field %s is required from %s, which is not part of the hierarchy", fr.Field, s))
		}
	}
	return &Engine[D]{table: table, hierarchy: hierarchy}, nil
}

// MustEngine is NewEngine for package-level wiring.
func MustEngine[D any](table *Table[D], hierarchy *signature.Hierarchy[D]) *Engine[D] {
	e, err := NewEngine(table, hierarchy)
	if err != nil {
		panic(err)
	}
	return e
}

func (e *Engine[D]) Table() *Table[D] {
	return e.table
}

func (e *Engine[D]) Hierarchy() *signature.Hierarchy[D] {
	return e.hierarchy
}

// RuleApplies is true when the rule's resolved stage is one of stages and
// its guard, if any, holds.
func (e *Engine[D]) RuleApplies(rule Rule[D], doc D, stages []signature.Stage, ctx Context[D], target signature.Stage) bool {
	if !slices.Contains(stages, rule.From.Resolve(doc, ctx)) {
		return false
	}
	if rule.When != nil && !rule.When(doc, target) {
		return false
	}
	return rule.WhenScoped == nil || rule.WhenScoped(doc, target, ctx)
}

// SealedFields returns the fields locked on doc given the stages reached.
func (e *Engine[D]) SealedFields(doc D, reached []signature.Stage, ctx Context[D]) FieldSet {
	sealed := FieldSet{}
	if len(reached) == 0 {
		return sealed
	}
	current := reached[len(reached)-1]
	for _, fr := range e.table.Rules() {
		if e.RuleApplies(fr.Sealed, doc, reached, ctx, current) {
			sealed[fr.Field] = fr.Path
		}
	}
	return sealed
}

// SealedFieldsOf is SealedFields over the stages doc itself has reached.
func (e *Engine[D]) SealedFieldsOf(doc D, ctx Context[D]) FieldSet {
	return e.SealedFields(doc, e.hierarchy.Reached(doc), ctx)
}

// UpdatedFields lists the top-level fields whose values differ between the
// two documents, compared structurally.
func (e *Engine[D]) UpdatedFields(persisted, incoming D) ([]string, error) {
	return Diff(persisted, incoming)
}

// CheckNoSealedMutation returns the updated fields, or a
// *issue.SealedFieldError listing every updated field that is sealed on
// persisted. Once the terminal stage is signed every field is sealed,
// including fields the table does not list.
func (e *Engine[D]) CheckNoSealedMutation(persisted, incoming D, ctx Context[D]) ([]string, error) {
	updated, err := e.UpdatedFields(persisted, incoming)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return updated, nil
	}

	sealed := e.SealedFieldsOf(persisted, ctx)
	complete := e.hierarchy.IsComplete(persisted)

	var violations []issue.SealedField
	for _, field := range updated {
		fr, known := e.table.Lookup(field)
		switch {
		case known && sealed.Has(field):
			violations = append(violations, sealedField(fr))
		case !known && complete:
			violations = append(violations, issue.SealedField{Field: field, Path: []string{field}, Label: field})
		}
	}
	if len(violations) > 0 {
		return updated, &issue.SealedFieldError{Fields: violations}
	}
	return updated, nil
}

func sealedField[D any](fr FieldRule[D]) issue.SealedField {
	label := fmt.Sprintf("Le champ %s a été verrouillé via signature et ne peut pas être modifié", fr.Label())
	if fr.Sealed.CustomMessage != "" {
		label += ". " + fr.Sealed.CustomMessage
	}
	return issue.SealedField{Field: fr.Field, Path: fr.Path, Label: label}
}

// RequiredFields returns the rules whose requirement applies for target,
// evaluated over target and all of its ancestors.
func (e *Engine[D]) RequiredFields(doc D, target signature.Stage, ctx Context[D]) []FieldRule[D] {
	stages := e.hierarchy.AncestorsOf(target)
	var out []FieldRule[D]
	for _, fr := range e.table.Rules() {
		if fr.Required == nil {
			continue
		}
		if e.RuleApplies(*fr.Required, doc, stages, ctx, target) {
			out = append(out, fr)
		}
	}
	return out
}

// CheckRequiredFields reports one issue per required field that is absent,
// blank, or an empty list.
func (e *Engine[D]) CheckRequiredFields(doc D, target signature.Stage, ctx Context[D]) ([]issue.Issue, error) {
	required := e.RequiredFields(doc, target, ctx)
	if len(required) == 0 {
		return nil, nil
	}
	values, err := Values(doc)
	if err != nil {
		return nil, err
	}
	var issues []issue.Issue
	for _, fr := range required {
		if Present(values[fr.Field]) {
			continue
		}
		msg := fmt.Sprintf("%s est un champ requis et doit avoir une valeur", fr.Label())
		if fr.Required.CustomMessage != "" {
			msg += ". " + fr.Required.CustomMessage
		}
		issues = append(issues, issue.Required(fr.Field, fr.Path, msg))
	}
	return issues, nil
}

// Names returns the field names of set in a stable order.
func (s FieldSet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
