package filter

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

// Predicate is a node of a compiled filter. The set of node types is closed.
type Predicate interface {
	// Match evaluates the predicate against a fully loaded transaction.
	Match(t model.Transaction) bool
	isPredicate()
}

// And matches when every child matches. An empty And matches everything.
type And []Predicate

// Or matches when any child matches. An empty Or matches nothing.
type Or []Predicate

// AccountIn matches transactions whose account is one of the values.
type AccountIn []string

// CostCenterIn matches transactions referencing one of the cost center ids.
type CostCenterIn []int64

// CostCenterNone matches transactions without a cost center.
type CostCenterNone struct{}

// SpendCategoryAny matches transactions tagged with at least one of the ids.
type SpendCategoryAny []int64

// SpendCategoryNone matches transactions without spend categories.
type SpendCategoryNone struct{}

// DateFrom is an inclusive lower date bound.
type DateFrom struct{ Date model.Date }

// DateTo is an inclusive upper date bound.
type DateTo struct{ Date model.Date }

// AmountMin is an inclusive lower amount bound.
type AmountMin struct{ Amount decimal.Decimal }

// AmountMax is an inclusive upper amount bound.
type AmountMax struct{ Amount decimal.Decimal }

// DescriptionContains is a case-insensitive substring match.
type DescriptionContains struct{ Term string }

func (p And) Match(t model.Transaction) bool {
	for _, c := range p {
		if !c.Match(t) {
			return false
		}
	}
	return true
}

func (p Or) Match(t model.Transaction) bool {
	for _, c := range p {
		if c.Match(t) {
			return true
		}
	}
	return false
}

func (p AccountIn) Match(t model.Transaction) bool {
	return slices.Contains(p, t.Account)
}

func (p CostCenterIn) Match(t model.Transaction) bool {
	return t.CostCenter != nil && slices.Contains(p, t.CostCenter.ID)
}

func (CostCenterNone) Match(t model.Transaction) bool {
	return t.CostCenter == nil
}

func (p SpendCategoryAny) Match(t model.Transaction) bool {
	for _, sc := range t.SpendCategories {
		if slices.Contains(p, sc.ID) {
			return true
		}
	}
	return false
}

func (SpendCategoryNone) Match(t model.Transaction) bool {
	return len(t.SpendCategories) == 0
}

func (p DateFrom) Match(t model.Transaction) bool { return !t.Date.Before(p.Date) }

func (p DateTo) Match(t model.Transaction) bool { return !t.Date.After(p.Date) }

func (p AmountMin) Match(t model.Transaction) bool {
	return t.Amount.GreaterThanOrEqual(p.Amount)
}

func (p AmountMax) Match(t model.Transaction) bool {
	return t.Amount.LessThanOrEqual(p.Amount)
}

func (p DescriptionContains) Match(t model.Transaction) bool {
	return strings.Contains(strings.ToLower(t.Description), strings.ToLower(p.Term))
}

func (And) isPredicate()                 {}
func (Or) isPredicate()                  {}
func (AccountIn) isPredicate()           {}
func (CostCenterIn) isPredicate()        {}
func (CostCenterNone) isPredicate()      {}
func (SpendCategoryAny) isPredicate()    {}
func (SpendCategoryNone) isPredicate()   {}
func (DateFrom) isPredicate()            {}
func (DateTo) isPredicate()              {}
func (AmountMin) isPredicate()           {}
func (AmountMax) isPredicate()           {}
func (DescriptionContains) isPredicate() {}
