package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
)

// criteriaQuery is the query string shared by listing, analytics and
// export. Id and account filters may repeat or be comma-separated.
type criteriaQuery struct {
	Accounts         []string `form:"account"`
	AccountsPlural   []string `form:"accounts"`
	CostCenterIDs    []string `form:"cost_center_ids"`
	SpendCategoryIDs []string `form:"spend_category_ids"`

	IncludeUncategorizedCostCenters bool `form:"include_uncategorized_cost_centers"`
	IncludeUncategorizedCategories  bool `form:"include_uncategorized_categories"`

	Start string `form:"start"`
	End   string `form:"end"`
	Year  *int   `form:"year"`

	MinAmount string  `form:"min_amount"`
	MaxAmount string  `form:"max_amount"`
	Search    *string `form:"search"`

	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order"`
	Limit     *int   `form:"limit"`
	Offset    *int   `form:"offset"`
}

// bindCriteria reads filter criteria from the query string. Range and enum
// checks are left to the ledger so every caller gets the same messages.
func bindCriteria(c *gin.Context) (filter.Criteria, error) {
	var q criteriaQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return filter.Criteria{}, model.Invalid("query", "%v", err)
	}

	var errs []error
	crit := filter.Criteria{
		Accounts:                        splitList(append(q.Accounts, q.AccountsPlural...)),
		IncludeUncategorizedCostCenters: q.IncludeUncategorizedCostCenters,
		IncludeUncategorizedCategories:  q.IncludeUncategorizedCategories,
		Year:                            q.Year,
		Search:                          q.Search,
		SortBy:                          filter.SortField(strings.ToLower(q.SortBy)),
		SortOrder:                       filter.SortOrder(strings.ToLower(q.SortOrder)),
		Limit:                           q.Limit,
		Offset:                          q.Offset,
	}

	var err error
	if crit.CostCenterIDs, err = parseIDs("cost_center_ids", q.CostCenterIDs); err != nil {
		errs = append(errs, err)
	}
	if crit.SpendCategoryIDs, err = parseIDs("spend_category_ids", q.SpendCategoryIDs); err != nil {
		errs = append(errs, err)
	}
	if crit.Start, err = parseDate("start", q.Start); err != nil {
		errs = append(errs, err)
	}
	if crit.End, err = parseDate("end", q.End); err != nil {
		errs = append(errs, err)
	}
	if crit.MinAmount, err = parseAmount("min_amount", q.MinAmount); err != nil {
		errs = append(errs, err)
	}
	if crit.MaxAmount, err = parseAmount("max_amount", q.MaxAmount); err != nil {
		errs = append(errs, err)
	}
	return crit, errors.Join(errs...)
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseIDs(field string, values []string) ([]int64, error) {
	var ids []int64
	for _, v := range splitList(values) {
		id, err := parseID(v)
		if err != nil {
			return nil, model.Invalid(field, "invalid id %q", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseDate(field, v string) (*model.Date, error) {
	if v = strings.TrimSpace(v); v == "" {
		return nil, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return nil, model.Invalid(field, "invalid date %q, want YYYY-MM-DD", v)
	}
	return &d, nil
}

func parseAmount(field, v string) (*decimal.Decimal, error) {
	if v = strings.TrimSpace(v); v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, model.Invalid(field, "invalid amount %q", v)
	}
	return &d, nil
}
