// Package filter compiles optional transaction criteria into a predicate
// tree that can be rendered as SQL or evaluated in memory.
package filter

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

// SortField names a sortable transaction column.
type SortField string

const (
	SortByDate        SortField = "date"
	SortByAmount      SortField = "amount"
	SortByDescription SortField = "description"
	SortByAccount     SortField = "account"
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Pagination bounds.
const (
	MaxLimit = 1000
	MinYear  = 2000
	MaxYear  = 2100
)

// Criteria holds every optional filter dimension. The zero value matches
// all transactions sorted by date descending.
type Criteria struct {
	Accounts         []string
	CostCenterIDs    []int64
	SpendCategoryIDs []int64

	IncludeUncategorizedCostCenters bool
	IncludeUncategorizedCategories  bool

	Start *model.Date
	End   *model.Date
	// Year restricts to one calendar year. It cannot be combined with
	// Start or End.
	Year *int

	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal

	Search *string

	SortBy    SortField
	SortOrder SortOrder

	Limit  *int
	Offset *int
}

// Dimension identifies a groupable filter dimension.
type Dimension int

const (
	DimensionAccount Dimension = iota
	DimensionCostCenter
	DimensionSpendCategory
)

// Without returns a copy of c with the filters on d removed. Aggregations
// grouped on d use it so that a breakdown is never pre-filtered by itself.
func (c Criteria) Without(d Dimension) Criteria {
	switch d {
	case DimensionAccount:
		c.Accounts = nil
	case DimensionCostCenter:
		c.CostCenterIDs = nil
		c.IncludeUncategorizedCostCenters = false
	case DimensionSpendCategory:
		c.SpendCategoryIDs = nil
		c.IncludeUncategorizedCategories = false
	}
	return c
}

// Unpaged returns a copy of c with pagination removed.
func (c Criteria) Unpaged() Criteria {
	c.Limit = nil
	c.Offset = nil
	return c
}

// Paginated reports whether a limit or an offset was requested.
func (c Criteria) Paginated() bool {
	return c.Limit != nil || c.Offset != nil
}

// Validate checks c against the caller-facing rules. today is the reference
// date for the "no future dates" rule.
func (c Criteria) Validate(today model.Date) error {
	var errs []error

	if c.Start != nil && c.End != nil && c.Start.After(*c.End) {
		errs = append(errs, model.Invalid("start", "start date must be before or equal to end date"))
	}
	if c.Start != nil && c.Start.After(today) {
		errs = append(errs, model.Invalid("start", "start date cannot be in the future"))
	}
	if c.End != nil && c.End.After(today) {
		errs = append(errs, model.Invalid("end", "end date cannot be in the future"))
	}
	if c.Year != nil {
		if c.Start != nil || c.End != nil {
			errs = append(errs, model.Invalid("year", "cannot specify both year and date range"))
		}
		if *c.Year < MinYear || *c.Year > MaxYear {
			errs = append(errs, model.Invalid("year", "must be between %d and %d", MinYear, MaxYear))
		}
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.GreaterThan(*c.MaxAmount) {
		errs = append(errs, model.Invalid("min_amount", "minimum amount must be less than or equal to maximum amount"))
	}
	if c.Search != nil && strings.TrimSpace(*c.Search) == "" {
		errs = append(errs, model.Invalid("search", "search term must not be empty"))
	}
	switch c.SortBy {
	case "", SortByDate, SortByAmount, SortByDescription, SortByAccount:
	default:
		errs = append(errs, model.Invalid("sort_by", "must be one of date, amount, description, account"))
	}
	switch c.SortOrder {
	case "", Asc, Desc:
	default:
		errs = append(errs, model.Invalid("sort_order", "must be asc or desc"))
	}
	if c.Limit != nil && (*c.Limit < 1 || *c.Limit > MaxLimit) {
		errs = append(errs, model.Invalid("limit", "must be between 1 and %d", MaxLimit))
	}
	if c.Offset != nil && *c.Offset < 0 {
		errs = append(errs, model.Invalid("offset", "must not be negative"))
	}

	return errors.Join(errs...)
}
