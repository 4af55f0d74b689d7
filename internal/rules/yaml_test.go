package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bordereau/internal/roles"
	"bordereau/internal/signature"
)

const slipYAML = `
fields:
  - field: wasteCode
    readableName: Le code déchet
    path: [waste, code]
    sealed: { from: EMISSION }
    required: { from: EMISSION }
  - field: plates
    readableName: La plaque d'immatriculation
    sealed: { from: TRANSPORT }
    required:
      from: TRANSPORT
      when: {"==": [{"var": "doc.transportMode"}, "ROAD"]}
      message: Indiquez au moins une plaque
  - field: emitterName
    sealed:
      from: EMISSION
      overrides:
        - when: {"and": [{"var": "roles.isEcoOrganisme"}, {"!": [{"var": "doc.transportSignedAt"}]}]}
          from: TRANSPORT
  - field: receptionDate
    sealed: { from: RECEPTION }
    required:
      from: RECEPTION
      when: {"==": [{"var": "target"}, "RECEPTION"]}
  - field: note
    sealed: { from: RECEPTION }
    required:
      from: TRANSPORT
      when: {"var": "roles.isTransporter"}
`

func TestLoadTable(t *testing.T) {
	table, err := LoadTable[slip]([]byte(slipYAML))
	require.NoError(t, err)
	engine := MustEngine(table, slipHierarchy())

	t.Run("guards read the document", func(t *testing.T) {
		doc := slip{WasteCode: strPtr("18 01 03*"), TransportMode: strPtr("ROAD"), Plates: []string{}}
		issues, err := engine.CheckRequiredFields(doc, signature.Transport, Context[slip]{})
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "plates", issues[0].Field)
		assert.Contains(t, issues[0].Message, "Indiquez au moins une plaque")

		doc.TransportMode = strPtr("RAIL")
		issues, err = engine.CheckRequiredFields(doc, signature.Transport, Context[slip]{})
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("guards read the target stage", func(t *testing.T) {
		required := engine.RequiredFields(slip{}, signature.Reception, Context[slip]{})
		var fields []string
		for _, fr := range required {
			fields = append(fields, fr.Field)
		}
		assert.Contains(t, fields, "receptionDate")
	})

	t.Run("guards read the roles", func(t *testing.T) {
		doc := slip{WasteCode: strPtr("18 01 03*"), TransportMode: strPtr("RAIL")}
		issues, err := engine.CheckRequiredFields(doc, signature.Transport, Context[slip]{})
		require.NoError(t, err)
		assert.Empty(t, issues)

		carrier := Context[slip]{Roles: roles.Set{IsTransporter: true}}
		issues, err = engine.CheckRequiredFields(doc, signature.Transport, carrier)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, "note", issues[0].Field)
	})

	t.Run("overrides read the roles", func(t *testing.T) {
		now := time.Now().UTC()
		doc := slip{EmitterSignedAt: &now}

		assert.True(t, engine.SealedFieldsOf(doc, Context[slip]{}).Has("emitterName"))
		eco := Context[slip]{Roles: roles.Set{IsEcoOrganisme: true}}
		assert.False(t, engine.SealedFieldsOf(doc, eco).Has("emitterName"))

		doc.TransportSignedAt = &now
		assert.True(t, engine.SealedFieldsOf(doc, eco).Has("emitterName"))
	})

	t.Run("paths and labels", func(t *testing.T) {
		fr, ok := table.Lookup("wasteCode")
		require.True(t, ok)
		assert.Equal(t, []string{"waste", "code"}, fr.Path)
		assert.Equal(t, "Le code déchet", fr.Label())
	})
}

func TestLoadTableErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "not yaml", yaml: "fields: ["},
		{name: "no fields", yaml: "fields: []"},
		{name: "unknown stage", yaml: "fields:\n  - field: a\n    sealed: { from: SHIPPING }\n"},
		{name: "override without condition", yaml: "fields:\n  - field: a\n    sealed:\n      from: EMISSION\n      overrides:\n        - from: TRANSPORT\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTable[slip]([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
