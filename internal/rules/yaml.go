package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/diegoholiveira/jsonlogic/v3"
	"gopkg.in/yaml.v3"

	"bordereau/internal/signature"
	dErrors "bordereau/pkg/domain-errors"
)

// tableFile is the YAML layout of a declarative rule table.
//
//	fields:
//	  - field: destinationCompanySiret
//	    readableName: Le SIRET de l'entreprise de destination
//	    path: [destination, company, siret]
//	    sealed:
//	      from: EMISSION
//	      overrides:
//	        - when: {"and": [{"var": "roles.isEmitter"}, {"!": [{"var": "doc.transporterTransportSignatureDate"}]}]}
//	          from: TRANSPORT
//	    required:
//	      from: EMISSION
//
// `when` and `overrides[].when` are JSON Logic expressions. Guards see
// {"doc": <document>, "target": <stage>, "roles": <role set>}; overrides see
// {"doc": <document>, "roles": <role set>} and the first match wins.
type tableFile struct {
	Fields []fieldDef `yaml:"fields"`
}

type fieldDef struct {
	Field        string   `yaml:"field"`
	ReadableName string   `yaml:"readableName"`
	Path         []string `yaml:"path"`
	Sealed       ruleDef  `yaml:"sealed"`
	Required     *ruleDef `yaml:"required"`
}

type ruleDef struct {
	From      signature.Stage `yaml:"from"`
	When      any             `yaml:"when"`
	Message   string          `yaml:"message"`
	Overrides []overrideDef  `yaml:"overrides"`
}

type overrideDef struct {
	When any             `yaml:"when"`
	From signature.Stage `yaml:"from"`
}

// LoadTable parses a YAML rule table for documents of type D.
func LoadTable[D any](data []byte) (*Table[D], error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid rule table")
	}
	if len(file.Fields) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "rule table has no fields")
	}

	fieldRules := make([]FieldRule[D], 0, len(file.Fields))
	for _, def := range file.Fields {
		sealed, err := buildRule[D](def.Field, def.Sealed)
		if err != nil {
			return nil, err
		}
		fr := FieldRule[D]{
			Field:        def.Field,
			Sealed:       sealed,
			Path:         def.Path,
			ReadableName: def.ReadableName,
		}
		if def.Required != nil {
			required, err := buildRule[D](def.Field, *def.Required)
			if err != nil {
				return nil, err
			}
			fr.Required = &required
		}
		fieldRules = append(fieldRules, fr)
	}
	return NewTable(fieldRules...)
}

// MustLoadTable is LoadTable for embedded tables.
func MustLoadTable[D any](data []byte) *Table[D] {
	t, err := LoadTable[D](data)
	if err != nil {
		panic(err)
	}
	return t
}

func buildRule[D any](field string, def ruleDef) (Rule[D], error) {
	if !def.From.Valid() {
		return Rule[D]{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %s: unknown stage %q", field, def.From))
	}
	rule := Rule[D]{From: Fixed[D](def.From), CustomMessage: def.Message}

	if def.When != nil {
		expr, err := compileLogic(field, def.When)
		if err != nil {
			return Rule[D]{}, err
		}
		rule.WhenScoped = func(doc D, target signature.Stage, ctx Context[D]) bool {
			return expr.eval(map[string]any{"doc": doc, "target": target, "roles": ctx.Roles})
		}
	}

	if len(def.Overrides) > 0 {
		type override struct {
			expr logicExpr
			from signature.Stage
		}
		overrides := make([]override, 0, len(def.Overrides))
		for _, o := range def.Overrides {
			if !o.From.Valid() {
				return Rule[D]{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %s: unknown override stage %q", field, o.From))
			}
			expr, err := compileLogic(field, o.When)
			if err != nil {
				return Rule[D]{}, err
			}
			overrides = append(overrides, override{expr: expr, from: o.From})
		}
		base := def.From
		rule.From = Computed(func(doc D, ctx Context[D]) signature.Stage {
			data := map[string]any{"doc": doc, "roles": ctx.Roles}
			for _, o := range overrides {
				if o.expr.eval(data) {
					return o.from
				}
			}
			return base
		})
	}
	return rule, nil
}

// logicExpr is a JSON Logic rule encoded once at load time.
type logicExpr []byte

func compileLogic(field string, raw any) (logicExpr, error) {
	if raw == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("field %s: empty condition", field))
	}
	expr, err := json.Marshal(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("field %s: condition is not JSON", field))
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(expr), bytes.NewReader([]byte(`{}`)), &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("field %s: invalid condition", field))
	}
	return expr, nil
}

// eval runs the expression over data. Evaluation failures count as false.
func (e logicExpr) eval(data map[string]any) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(e), bytes.NewReader(raw), &out); err != nil {
		return false
	}
	var result any
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &result); err != nil {
		return false
	}
	return truthy(result)
}

// truthy follows JSON Logic truthiness.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	}
	return true
}
