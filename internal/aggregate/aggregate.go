// Package aggregate groups and sums transactions. Every function is pure:
// callers fetch the matching transactions first and pass them in.
package aggregate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

// Totals maps a group label to the signed sum of its amounts.
type Totals map[string]decimal.Decimal

func (t Totals) add(label string, amount decimal.Decimal) {
	t[label] = t[label].Add(amount)
}

// Sum returns the sum of all group totals.
func (t Totals) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range t {
		sum = sum.Add(v)
	}
	return sum
}

// ByAccount groups by account name.
func ByAccount(ts []model.Transaction) Totals {
	out := Totals{}
	for _, t := range ts {
		out.add(t.Account, t.Amount)
	}
	return out
}

// ByCostCenter groups by cost center name. Transactions without a cost
// center land in the Uncategorized bucket.
func ByCostCenter(ts []model.Transaction) Totals {
	out := Totals{}
	for _, t := range ts {
		out.add(t.CostCenterLabel(), t.Amount)
	}
	return out
}

// BySpendCategory groups by spend category name. A transaction with several
// categories contributes its full amount to each of them; one with none
// contributes to Uncategorized.
func BySpendCategory(ts []model.Transaction) Totals {
	out := Totals{}
	for _, t := range ts {
		for _, label := range spendCategoryLabels(t) {
			out.add(label, t.Amount)
		}
	}
	return out
}

func spendCategoryLabels(t model.Transaction) []string {
	if len(t.SpendCategories) == 0 {
		return []string{model.Uncategorized}
	}
	return t.SpendCategoryNames()
}

// Bucket is a time bucket size.
type Bucket string

const (
	Week  Bucket = "week"
	Month Bucket = "month"
)

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool { return b == Week || b == Month }

// Label returns the period label of d: "2025-W01" for weeks (ISO-8601
// week-numbering year) and the English month name for months.
func (b Bucket) Label(d model.Date) string {
	if b == Week {
		year, week := d.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	}
	return d.Month().String()
}

// Dimension is what a time series is broken down by.
type Dimension string

const (
	DimCostCenter    Dimension = "cost_center"
	DimSpendCategory Dimension = "spend_category"
	DimTotal         Dimension = "total"
)

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	return d == DimCostCenter || d == DimSpendCategory || d == DimTotal
}

// TotalLabel is the single series name of DimTotal.
const TotalLabel = "Total"

// Periods maps a period label to the totals within that period.
type Periods map[string]Totals

// Series buckets ts by period and groups each period by dim.
func Series(ts []model.Transaction, b Bucket, dim Dimension) Periods {
	out := Periods{}
	for _, t := range ts {
		period := b.Label(t.Date)
		group, ok := out[period]
		if !ok {
			group = Totals{}
			out[period] = group
		}
		switch dim {
		case DimCostCenter:
			group.add(t.CostCenterLabel(), t.Amount)
		case DimSpendCategory:
			for _, label := range spendCategoryLabels(t) {
				group.add(label, t.Amount)
			}
		default:
			group.add(TotalLabel, t.Amount)
		}
	}
	return out
}

// Flatten collapses a DimTotal series to period -> total.
func (p Periods) Flatten() Totals {
	out := Totals{}
	for period, group := range p {
		out[period] = group.Sum()
	}
	return out
}

// Ranked is one entry of a top-N list.
type Ranked struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
}

// Top sorts totals descending and keeps the first n. Ties are broken by
// label so the result is deterministic.
func Top(t Totals, n int) []Ranked {
	out := make([]Ranked, 0, len(t))
	for name, total := range t {
		out = append(out, Ranked{Name: name, Total: total})
	}
	slices.SortFunc(out, func(a, b Ranked) int {
		if c := b.Total.Cmp(a.Total); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if n >= 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// NamedSeries is one line of a chart: a value per period.
type NamedSeries struct {
	Name string            `json:"name"`
	Data []decimal.Decimal `json:"data"`
}

// Table is the chart-ready form of Periods.
type Table struct {
	Periods []string      `json:"time_periods"`
	Series  []NamedSeries `json:"series"`
}

// Table orders periods chronologically and emits one zero-filled series
// per group label, sorted by label.
func (p Periods) Table(b Bucket) Table {
	periods := make([]string, 0, len(p))
	labels := map[string]struct{}{}
	for period, group := range p {
		periods = append(periods, period)
		for label := range group {
			labels[label] = struct{}{}
		}
	}
	slices.SortFunc(periods, func(x, y string) int {
		if b == Month {
			return cmp.Compare(monthIndex(x), monthIndex(y))
		}
		return strings.Compare(x, y)
	})

	names := make([]string, 0, len(labels))
	for label := range labels {
		names = append(names, label)
	}
	slices.Sort(names)

	table := Table{Periods: periods, Series: make([]NamedSeries, 0, len(names))}
	for _, name := range names {
		data := make([]decimal.Decimal, len(periods))
		for i, period := range periods {
			data[i] = p[period][name]
		}
		table.Series = append(table.Series, NamedSeries{Name: name, Data: data})
	}
	return table
}

func monthIndex(name string) int {
	for m := time.January; m <= time.December; m++ {
		if m.String() == name {
			return int(m)
		}
	}
	return 13
}

// AccountSummary is the per-account total and count.
type AccountSummary struct {
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// SummarizeAccounts returns one summary per account, sorted by name.
func SummarizeAccounts(ts []model.Transaction) []AccountSummary {
	idx := map[string]int{}
	var out []AccountSummary
	for _, t := range ts {
		i, ok := idx[t.Account]
		if !ok {
			i = len(out)
			idx[t.Account] = i
			out = append(out, AccountSummary{Name: t.Account})
		}
		out[i].Total = out[i].Total.Add(t.Amount)
		out[i].Count++
	}
	slices.SortFunc(out, func(a, b AccountSummary) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Sum adds up the amounts of ts.
func Sum(ts []model.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range ts {
		sum = sum.Add(t.Amount)
	}
	return sum
}
