package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finance-ledger-backend/internal/aggregate"
	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// Top-N bounds.
const (
	MinTopN = 1
	MaxTopN = 50
)

// TotalsResult is a breakdown of the matching transactions along one
// dimension.
type TotalsResult struct {
	GroupBy    string           `json:"group_by"`
	Totals     aggregate.Totals `json:"totals"`
	GrandTotal decimal.Decimal  `json:"grand_total"`
	Count      int              `json:"transaction_count"`
	// DrillDown is set when a spend-category breakdown is scoped to a
	// single cost center.
	DrillDown *int64 `json:"drill_down_cost_center_id,omitempty"`
}

// drillDown returns the cost center a spend-category breakdown is scoped
// to, if the criteria select exactly one.
func drillDown(c filter.Criteria) *int64 {
	if len(c.CostCenterIDs) != 1 || c.IncludeUncategorizedCostCenters {
		return nil
	}
	id := c.CostCenterIDs[0]
	return &id
}

func dimensionName(d filter.Dimension) string {
	switch d {
	case filter.DimensionAccount:
		return "account"
	case filter.DimensionCostCenter:
		return string(store.KindCostCenter)
	default:
		return string(store.KindSpendCategory)
	}
}

func group(d filter.Dimension, ts []model.Transaction) aggregate.Totals {
	switch d {
	case filter.DimensionAccount:
		return aggregate.ByAccount(ts)
	case filter.DimensionCostCenter:
		return aggregate.ByCostCenter(ts)
	default:
		return aggregate.BySpendCategory(ts)
	}
}

// Totals groups the transactions matching c by d. The filter on d itself is
// dropped so a breakdown is never pre-filtered by its own dimension. The
// grand total is the plain sum of the matching amounts.
func (s *Service) Totals(ctx context.Context, d filter.Dimension, c filter.Criteria) (TotalsResult, error) {
	if err := c.Validate(s.today()); err != nil {
		return TotalsResult{}, err
	}
	c = c.Without(d)
	ts, err := s.matching(ctx, c)
	if err != nil {
		return TotalsResult{}, fmt.Errorf("totals by %s: %w", dimensionName(d), err)
	}

	res := TotalsResult{
		GroupBy:    dimensionName(d),
		Totals:     group(d, ts),
		GrandTotal: aggregate.Sum(ts),
		Count:      len(ts),
	}
	if d == filter.DimensionSpendCategory {
		res.DrillDown = drillDown(c)
	}
	return res, nil
}

// Comprehensive is every dimension's breakdown computed at once.
type Comprehensive struct {
	ByCostCenter    TotalsResult `json:"cost_centers"`
	BySpendCategory TotalsResult `json:"spend_categories"`
	ByAccount       TotalsResult `json:"accounts"`
}

func (s *Service) Comprehensive(ctx context.Context, c filter.Criteria) (Comprehensive, error) {
	var out Comprehensive
	g, gctx := errgroup.WithContext(ctx)
	for _, job := range []struct {
		dim filter.Dimension
		dst *TotalsResult
	}{
		{filter.DimensionCostCenter, &out.ByCostCenter},
		{filter.DimensionSpendCategory, &out.BySpendCategory},
		{filter.DimensionAccount, &out.ByAccount},
	} {
		g.Go(func() error {
			res, err := s.Totals(gctx, job.dim, c)
			if err != nil {
				return err
			}
			*job.dst = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Comprehensive{}, err
	}
	return out, nil
}

// Top ranks the cost centers or spend categories of the matching
// transactions by total, largest first.
func (s *Service) Top(ctx context.Context, d filter.Dimension, n int, c filter.Criteria) ([]aggregate.Ranked, error) {
	if n < MinTopN || n > MaxTopN {
		return nil, model.Invalid("limit", "must be between %d and %d", MinTopN, MaxTopN)
	}
	if d != filter.DimensionCostCenter && d != filter.DimensionSpendCategory {
		return nil, model.Invalid("by", "must be cost_center or spend_category")
	}
	res, err := s.Totals(ctx, d, c)
	if err != nil {
		return nil, err
	}
	return aggregate.Top(res.Totals, n), nil
}

// CostCenterTotal sums the matching transactions of one cost center.
func (s *Service) CostCenterTotal(ctx context.Context, id int64, c filter.Criteria) (decimal.Decimal, error) {
	if _, err := s.CostCenter(ctx, id); err != nil {
		return decimal.Zero, err
	}
	c = c.Without(filter.DimensionCostCenter)
	c.CostCenterIDs = []int64{id}
	return s.sum(ctx, c)
}

// SpendCategoryTotal sums the matching transactions tagged with one spend
// category.
func (s *Service) SpendCategoryTotal(ctx context.Context, id int64, c filter.Criteria) (decimal.Decimal, error) {
	if _, err := s.SpendCategory(ctx, id); err != nil {
		return decimal.Zero, err
	}
	c = c.Without(filter.DimensionSpendCategory)
	c.SpendCategoryIDs = []int64{id}
	return s.sum(ctx, c)
}

// SearchTotal sums the transactions whose description contains the
// criteria's search term.
func (s *Service) SearchTotal(ctx context.Context, c filter.Criteria) (decimal.Decimal, error) {
	if c.Search == nil {
		return decimal.Zero, model.Invalid("search", "search term is required")
	}
	return s.sum(ctx, c)
}

func (s *Service) sum(ctx context.Context, c filter.Criteria) (decimal.Decimal, error) {
	if err := c.Validate(s.today()); err != nil {
		return decimal.Zero, err
	}
	ts, err := s.matching(ctx, c)
	if err != nil {
		return decimal.Zero, err
	}
	return aggregate.Sum(ts), nil
}

// AccountSummary returns the total and count per account of the matching
// transactions.
func (s *Service) AccountSummary(ctx context.Context, c filter.Criteria) ([]aggregate.AccountSummary, error) {
	if err := c.Validate(s.today()); err != nil {
		return nil, err
	}
	ts, err := s.matching(ctx, c)
	if err != nil {
		return nil, err
	}
	out := aggregate.SummarizeAccounts(ts)
	if out == nil {
		out = []aggregate.AccountSummary{}
	}
	return out, nil
}

// Trend is a time series of the matching transactions, in both map and
// chart form.
type Trend struct {
	GroupBy   aggregate.Bucket    `json:"group_by"`
	Dimension aggregate.Dimension `json:"dimension"`
	Trends    aggregate.Periods   `json:"trends"`
	aggregate.Table
	DrillDown *int64 `json:"drill_down_cost_center_id,omitempty"`
}

// Trends buckets the matching transactions by week or month and groups
// each bucket by dim.
func (s *Service) Trends(ctx context.Context, b aggregate.Bucket, dim aggregate.Dimension, c filter.Criteria) (Trend, error) {
	if !b.Valid() {
		return Trend{}, model.Invalid("group_by", "must be week or month")
	}
	if !dim.Valid() {
		return Trend{}, model.Invalid("dimension", "must be cost_center, spend_category or total")
	}
	if err := c.Validate(s.today()); err != nil {
		return Trend{}, err
	}

	var drill *int64
	switch dim {
	case aggregate.DimCostCenter:
		c = c.Without(filter.DimensionCostCenter)
	case aggregate.DimSpendCategory:
		c = c.Without(filter.DimensionSpendCategory)
		drill = drillDown(c)
	}
	ts, err := s.matching(ctx, c)
	if err != nil {
		return Trend{}, fmt.Errorf("trends by %s: %w", b, err)
	}
	periods := aggregate.Series(ts, b, dim)
	return Trend{
		GroupBy:   b,
		Dimension: dim,
		Trends:    periods,
		Table:     periods.Table(b),
		DrillDown: drill,
	}, nil
}

// Breakdown is a per-period breakdown: by cost center, or by spend
// category within one cost center.
type Breakdown struct {
	BreakdownBy aggregate.Bucket    `json:"breakdown_by"`
	Dimension   aggregate.Dimension `json:"dimension"`
	CostCenter  *model.CostCenter   `json:"cost_center,omitempty"`
	Totals      aggregate.Periods   `json:"totals"`
}

// Breakdown buckets the matching transactions by b. Without a cost center
// id each bucket is totalled by cost center; with one it drills down into
// that cost center's spend categories, ignoring any other cost-center
// filter.
func (s *Service) Breakdown(ctx context.Context, b aggregate.Bucket, costCenterID *int64, c filter.Criteria) (Breakdown, error) {
	if !b.Valid() {
		return Breakdown{}, model.Invalid("breakdown_by", "must be week or month")
	}
	if err := c.Validate(s.today()); err != nil {
		return Breakdown{}, err
	}

	out := Breakdown{BreakdownBy: b, Dimension: aggregate.DimCostCenter}
	c = c.Without(filter.DimensionCostCenter)
	if costCenterID != nil {
		cc, err := s.CostCenter(ctx, *costCenterID)
		if err != nil {
			return Breakdown{}, err
		}
		out.CostCenter = &cc
		out.Dimension = aggregate.DimSpendCategory
		c = c.Without(filter.DimensionSpendCategory)
		c.CostCenterIDs = []int64{cc.ID}
	}
	ts, err := s.matching(ctx, c)
	if err != nil {
		return Breakdown{}, fmt.Errorf("%s breakdown: %w", b, err)
	}
	out.Totals = aggregate.Series(ts, b, out.Dimension)
	return out, nil
}

// MonthlyTotals sums the matching transactions per month name.
func (s *Service) MonthlyTotals(ctx context.Context, c filter.Criteria) (aggregate.Totals, error) {
	if err := c.Validate(s.today()); err != nil {
		return nil, err
	}
	ts, err := s.matching(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("monthly totals: %w", err)
	}
	return aggregate.Series(ts, aggregate.Month, aggregate.DimTotal).Flatten(), nil
}
