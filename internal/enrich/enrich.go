// Package enrich fills document fields from authoritative sources: company
// identity from the registry and receipts from the receipts store. A field
// listed as sealed is never written.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bordereau/internal/company"
	"bordereau/internal/receipt"
	"bordereau/internal/roles"
	"bordereau/internal/rules"
	"bordereau/pkg/platform/sentinel"
	pstrings "bordereau/pkg/platform/strings"
)

// CompanySlot points at the identity fields of one party on a document.
// Field names are the keys checked against Sealed and reported as written.
type CompanySlot struct {
	Role         roles.Role
	OrgID        string
	IDField      string
	NameField    string
	AddressField string
	Name         **string
	Address      **string
	Sealed       rules.FieldSet
}

// ReceiptSlot points at the receipt fields of a transporter, broker or
// trader.
type ReceiptSlot struct {
	Kind            receipt.Kind
	OrgID           string
	NumberField     string
	DepartmentField string
	ValidityField   string
	Number          **string
	Department      **string
	ValidityLimit   **time.Time
	// Exempted transporters declared a receipt exemption.
	Exempted bool
	// Foreign parties are identified by a foreign VAT number only.
	Foreign bool
	// Supplied is set when the caller sent receipt fields in this update.
	Supplied bool
	Sealed   rules.FieldSet
}

// Identity overwrites the name and address of every slot from the registry.
// It returns the fields written. Unknown companies are left untouched.
func Identity(ctx context.Context, registry company.Registry, slots []CompanySlot) ([]string, error) {
	var written []string
	for _, slot := range slots {
		id := pstrings.CompactIdentifier(slot.OrgID)
		if id == "" || slot.Sealed.Has(slot.IDField) {
			continue
		}
		nameOpen := slot.Name != nil && !slot.Sealed.Has(slot.NameField)
		addressOpen := slot.Address != nil && !slot.Sealed.Has(slot.AddressField)
		if !nameOpen && !addressOpen {
			continue
		}

		record, err := registry.FindCompany(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("enrich %s identity: %w", slot.Role, err)
		}

		if nameOpen && set(slot.Name, record.Name) {
			written = append(written, slot.NameField)
		}
		if addressOpen && set(slot.Address, record.Address) {
			written = append(written, slot.AddressField)
		}
	}
	return written, nil
}

// Receipts fills the unset receipt fields of every slot from the store.
func Receipts(ctx context.Context, store receipt.Store, slots []ReceiptSlot) ([]string, error) {
	var written []string
	for _, slot := range slots {
		id := pstrings.CompactIdentifier(slot.OrgID)
		if id == "" || slot.Exempted || slot.Foreign || slot.Supplied {
			continue
		}
		if slot.Sealed.HasAny(slot.NumberField, slot.DepartmentField, slot.ValidityField) {
			continue
		}
		if filled(*slot.Number) && filled(*slot.Department) && *slot.ValidityLimit != nil {
			continue
		}

		rec, err := store.FindReceipt(ctx, id, slot.Kind)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("enrich %s receipt: %w", slot.Kind, err)
		}

		if !filled(*slot.Number) && set(slot.Number, rec.Number) {
			written = append(written, slot.NumberField)
		}
		if !filled(*slot.Department) && set(slot.Department, rec.Department) {
			written = append(written, slot.DepartmentField)
		}
		if *slot.ValidityLimit == nil && rec.ValidityLimit != nil {
			v := *rec.ValidityLimit
			*slot.ValidityLimit = &v
			written = append(written, slot.ValidityField)
		}
	}
	return written, nil
}

// set writes value into dst when it is non-blank and differs, and reports
// whether it wrote.
func set(dst **string, value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	if *dst != nil && **dst == value {
		return false
	}
	v := value
	*dst = &v
	return true
}

func filled(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}
