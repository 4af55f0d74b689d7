package refine

import (
	"slices"
	"strings"

	"bordereau/internal/issue"
	"bordereau/internal/operation"
)

// OperationMode reports an inconsistent code/mode pair.
func OperationMode(catalog *operation.Catalog, field string, path []string, code *string, mode *operation.Mode) []issue.Issue {
	if code == nil {
		return nil
	}
	if msg := catalog.Check(*code, mode); msg != "" {
		return []issue.Issue{issue.CrossField(field, path, msg)}
	}
	return nil
}

// OperationCode reports a code outside allowed.
func OperationCode(field string, path []string, code *string, allowed []string, msg string) []issue.Issue {
	if code == nil || strings.TrimSpace(*code) == "" {
		return nil
	}
	if !slices.Contains(allowed, operation.Normalize(*code)) {
		return []issue.Issue{issue.CrossField(field, path, msg)}
	}
	return nil
}
