// Package model holds the ledger entities shared by every layer.
package model

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Uncategorized is the sentinel name used for both categorical dimensions.
const Uncategorized = "Uncategorized"

// Field limits.
const (
	MaxNameLength        = 50
	MaxDescriptionLength = 200
	MaxAccountLength     = 50
)

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-'/&]+$`)

// CostCenter represents a top-level spend grouping such as "Meals".
type CostCenter struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SpendCategory represents a tag applied across cost centers.
type SpendCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Transaction represents a ledger entry. Negative amounts are expenses,
// positive amounts are income or credits.
type Transaction struct {
	ID              int64           `json:"id"`
	Date            Date            `json:"date"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Account         string          `json:"account"`
	CostCenter      *CostCenter     `json:"cost_center"`
	SpendCategories []SpendCategory `json:"spend_categories"`
}

// CostCenterID returns the id of the referenced cost center, or nil.
func (t Transaction) CostCenterID() *int64 {
	if t.CostCenter == nil {
		return nil
	}
	id := t.CostCenter.ID
	return &id
}

// CostCenterLabel returns the cost center name, or Uncategorized when none is set.
func (t Transaction) CostCenterLabel() string {
	if t.CostCenter == nil {
		return Uncategorized
	}
	return t.CostCenter.Name
}

// SpendCategoryIDs returns the ids of the referenced spend categories.
func (t Transaction) SpendCategoryIDs() []int64 {
	ids := make([]int64, 0, len(t.SpendCategories))
	for _, sc := range t.SpendCategories {
		ids = append(ids, sc.ID)
	}
	return ids
}

// SpendCategoryNames returns the names of the referenced spend categories.
func (t Transaction) SpendCategoryNames() []string {
	names := make([]string, 0, len(t.SpendCategories))
	for _, sc := range t.SpendCategories {
		names = append(names, sc.Name)
	}
	return names
}

// Record is a normalized transaction as produced by CSV ingestion. The
// amount sign convention is already applied.
type Record struct {
	Date            Date
	Description     string
	Amount          decimal.Decimal
	Account         string
	CostCenter      *string
	SpendCategories []string
}

// NormalizeName trims a categorical name, mapping blank input to Uncategorized.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return Uncategorized
	}
	return name
}

// ValidateName checks a normalized categorical name against the length and
// charset rules.
func ValidateName(field, name string) error {
	if name == "" {
		return &ValidationError{Field: field, Message: "must not be empty"}
	}
	if len([]rune(name)) > MaxNameLength {
		return &ValidationError{Field: field, Message: "must be at most 50 characters"}
	}
	if !namePattern.MatchString(name) {
		return &ValidationError{Field: field, Message: "may only contain letters, digits, spaces and - ' / &"}
	}
	return nil
}

// CleanNames trims and deduplicates names by exact match, keeping first-seen
// order. It returns [Uncategorized] when nothing is left.
func CleanNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		cleaned = append(cleaned, n)
	}
	if len(cleaned) == 0 {
		return []string{Uncategorized}
	}
	return cleaned
}
