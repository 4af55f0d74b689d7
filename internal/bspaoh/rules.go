package bspaoh

import (
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"bordereau/internal/issue"
	"bordereau/internal/rules"
	"bordereau/internal/signature"
)

//go:embed rules.yaml
var rulesYAML []byte

//go:embed transporter_rules.yaml
var transporterRulesYAML []byte

// Hierarchy is the BSPAOH signing chain. TRANSPORT is signed once the first
// transporter signed; the following ones sign it in turn.
var Hierarchy = signature.MustHierarchy(
	signature.Step[Bspaoh]{Stage: signature.Emission, IsSigned: func(b Bspaoh) bool {
		return b.EmitterEmissionSignatureDate != nil
	}},
	signature.Step[Bspaoh]{Stage: signature.Transport, IsSigned: Bspaoh.transportSigned},
	signature.Step[Bspaoh]{Stage: signature.Delivery, IsSigned: func(b Bspaoh) bool {
		return b.HandedOverToDestinationSignatureDate != nil
	}},
	signature.Step[Bspaoh]{Stage: signature.Reception, IsSigned: func(b Bspaoh) bool {
		return b.DestinationReceptionSignatureDate != nil
	}},
	signature.Step[Bspaoh]{Stage: signature.Operation, IsSigned: func(b Bspaoh) bool {
		return b.DestinationOperationSignatureDate != nil
	}},
)

// Engine evaluates the slip-level table.
var Engine = rules.MustEngine(rules.MustLoadTable[Bspaoh](rulesYAML), Hierarchy)

// Leg is one transporter seen with the emission signature of its slip, the
// document the transporter engine works on.
type Leg struct {
	Transporter
	EmitterEmissionSignatureDate *time.Time `json:"emitterEmissionSignatureDate"`
}

var legHierarchy = signature.MustHierarchy(
	signature.Step[Leg]{Stage: signature.Emission, IsSigned: func(l Leg) bool {
		return l.EmitterEmissionSignatureDate != nil
	}},
	signature.Step[Leg]{Stage: signature.Transport, IsSigned: func(l Leg) bool {
		return l.Signed()
	}},
)

// TransporterEngine evaluates one transporter entry. TRANSPORT is its
// terminal stage: a signed transporter is sealed as a whole.
var TransporterEngine = rules.MustEngine(rules.MustLoadTable[Leg](transporterRulesYAML), legHierarchy)

func (b Bspaoh) leg(i int) Leg {
	return Leg{Transporter: b.Transporters[i], EmitterEmissionSignatureDate: b.EmitterEmissionSignatureDate}
}

// transporterField is the indexed field name of a transporter issue.
func transporterField(i int, field string) string {
	return fmt.Sprintf("transporters.%d.%s", i, field)
}

func transporterPath(i int, path []string) []string {
	return append([]string{"transporters", strconv.Itoa(i)}, path...)
}

// indexIssues moves transporter issues under transporters.<i>.
func indexIssues(i int, issues []issue.Issue) []issue.Issue {
	out := make([]issue.Issue, 0, len(issues))
	for _, is := range issues {
		is.Field = transporterField(i, is.Field)
		is.Path = transporterPath(i, is.Path)
		out = append(out, is)
	}
	return out
}

func indexSealed(i int, fields []issue.SealedField) []issue.SealedField {
	out := make([]issue.SealedField, 0, len(fields))
	for _, f := range fields {
		f.Field = transporterField(i, f.Field)
		f.Path = transporterPath(i, f.Path)
		f.Label = fmt.Sprintf("Transporteur n°%d : %s", i+1, f.Label)
		out = append(out, f)
	}
	return out
}
