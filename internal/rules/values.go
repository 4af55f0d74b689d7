package rules

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"

	dErrors "bordereau/pkg/domain-errors"
)

// Values returns the top-level JSON fields of doc. Rule field names are the
// JSON keys of the document.
func Values(doc any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode document")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "document does not encode to a JSON object")
	}
	return values, nil
}

// Present reports whether a decoded JSON value counts as filled in. Null,
// blank strings, empty lists and empty objects do not.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

// Diff returns the sorted top-level keys of the JSON merge patch that turns
// before into after, that is every field whose value changed.
func Diff(before, after any) ([]string, error) {
	a, err := json.Marshal(before)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode persisted document")
	}
	b, err := json.Marshal(after)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode incoming document")
	}
	patch, err := jsonpatch.CreateMergePatch(a, b)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to diff documents")
	}
	var changed map[string]json.RawMessage
	if err := json.Unmarshal(patch, &changed); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode document diff")
	}
	fields := make([]string, 0, len(changed))
	for f := range changed {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields, nil
}
