package filter

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"finance-ledger-backend/internal/model"
)

// Sort is a primary sort key. Transaction id in the same direction is
// always appended as a tiebreaker so pagination is deterministic.
type Sort struct {
	Field SortField
	Order SortOrder
}

// DefaultSort orders newest first.
var DefaultSort = Sort{Field: SortByDate, Order: Desc}

// Compare orders a and b by the sort key, then by id.
func (s Sort) Compare(a, b model.Transaction) int {
	var c int
	switch s.Field {
	case SortByAmount:
		c = a.Amount.Cmp(b.Amount)
	case SortByDescription:
		c = strings.Compare(a.Description, b.Description)
	case SortByAccount:
		c = strings.Compare(a.Account, b.Account)
	default:
		c = a.Date.Compare(b.Date)
	}
	if c == 0 {
		c = cmp.Compare(a.ID, b.ID)
	}
	if s.Order == Desc {
		return -c
	}
	return c
}

// Query is the compiled form of a Criteria.
type Query struct {
	Where  Predicate
	Sort   Sort
	Limit  *int
	Offset *int
}

// Compile maps validated criteria to a query. Dimensions are ANDed,
// values within a dimension are ORed, and an absent or empty dimension
// imposes no constraint.
func Compile(c Criteria) Query {
	q := Query{
		Where:  Where(c),
		Sort:   DefaultSort,
		Limit:  c.Limit,
		Offset: c.Offset,
	}
	if c.SortBy != "" {
		q.Sort.Field = c.SortBy
	}
	if c.SortOrder != "" {
		q.Sort.Order = c.SortOrder
	}
	return q
}

// Where builds only the predicate part of c.
func Where(c Criteria) Predicate {
	var where And

	if len(c.Accounts) > 0 {
		where = append(where, AccountIn(c.Accounts))
	}

	if p := idClause(CostCenterIn(c.CostCenterIDs), CostCenterNone{}, len(c.CostCenterIDs), c.IncludeUncategorizedCostCenters); p != nil {
		where = append(where, p)
	}
	if p := idClause(SpendCategoryAny(c.SpendCategoryIDs), SpendCategoryNone{}, len(c.SpendCategoryIDs), c.IncludeUncategorizedCategories); p != nil {
		where = append(where, p)
	}

	if c.Year != nil {
		where = append(where,
			DateFrom{Date: model.NewDate(*c.Year, time.January, 1)},
			DateTo{Date: model.NewDate(*c.Year, time.December, 31)},
		)
	}
	if c.Start != nil {
		where = append(where, DateFrom{Date: *c.Start})
	}
	if c.End != nil {
		where = append(where, DateTo{Date: *c.End})
	}

	if c.MinAmount != nil {
		where = append(where, AmountMin{Amount: *c.MinAmount})
	}
	if c.MaxAmount != nil {
		where = append(where, AmountMax{Amount: *c.MaxAmount})
	}

	if c.Search != nil && *c.Search != "" {
		where = append(where, DescriptionContains{Term: *c.Search})
	}

	return where
}

// idClause combines an id-set filter with its "has none" counterpart.
// ids and uncategorized together yield their union.
func idClause(in, none Predicate, n int, uncategorized bool) Predicate {
	switch {
	case n > 0 && uncategorized:
		return Or{in, none}
	case n > 0:
		return in
	case uncategorized:
		return none
	default:
		return nil
	}
}

// Apply filters, sorts and pages ts in memory according to q. It returns the
// page and the number of matches before paging.
func Apply(q Query, ts []model.Transaction) ([]model.Transaction, int) {
	matched := make([]model.Transaction, 0, len(ts))
	for _, t := range ts {
		if q.Where == nil || q.Where.Match(t) {
			matched = append(matched, t)
		}
	}
	slices.SortFunc(matched, q.Sort.Compare)
	total := len(matched)

	if q.Offset != nil {
		off := min(*q.Offset, len(matched))
		matched = matched[off:]
	}
	if q.Limit != nil && *q.Limit < len(matched) {
		matched = matched[:*q.Limit]
	}
	return matched, total
}
