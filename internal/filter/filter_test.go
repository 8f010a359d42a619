package filter

import (
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

func ptr[T any](v T) *T { return &v }

func date(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	food      = &model.CostCenter{ID: 1, Name: "Food"}
	car       = &model.CostCenter{ID: 2, Name: "Car"}
	groceries = model.SpendCategory{ID: 10, Name: "Groceries"}
	gas       = model.SpendCategory{ID: 11, Name: "Gas"}
)

func fixtures() []model.Transaction {
	return []model.Transaction{
		{ID: 1, Date: date("2025-01-01"), Description: "Refund", Amount: dec("5.25"), Account: "Discover"},
		{ID: 2, Date: date("2025-01-02"), Description: "Whole Foods", Amount: dec("-50"), Account: "Schwab", CostCenter: food, SpendCategories: []model.SpendCategory{groceries}},
		{ID: 3, Date: date("2025-02-05"), Description: "Shell 100% fuel", Amount: dec("-100"), Account: "Discover", CostCenter: car, SpendCategories: []model.SpendCategory{gas, groceries}},
		{ID: 4, Date: date("2025-02-05"), Description: "Costco", Amount: dec("-20"), Account: "Discover", CostCenter: food},
	}
}

func ids(ts []model.Transaction) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestCompileShape(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
		want Predicate
	}{
		{"empty", Criteria{}, And(nil)},
		{"accounts", Criteria{Accounts: []string{"A", "B"}}, And{AccountIn{"A", "B"}}},
		{"empty id set is absent", Criteria{CostCenterIDs: []int64{}}, And(nil)},
		{"cost centers", Criteria{CostCenterIDs: []int64{1}}, And{CostCenterIn{1}}},
		{
			"cost centers with uncategorized",
			Criteria{CostCenterIDs: []int64{1}, IncludeUncategorizedCostCenters: true},
			And{Or{CostCenterIn{1}, CostCenterNone{}}},
		},
		{
			"only uncategorized categories",
			Criteria{IncludeUncategorizedCategories: true},
			And{SpendCategoryNone{}},
		},
		{
			"year becomes range",
			Criteria{Year: ptr(2025)},
			And{DateFrom{Date: date("2025-01-01")}, DateTo{Date: date("2025-12-31")}},
		},
		{
			"all dimensions",
			Criteria{
				Accounts:         []string{"A"},
				SpendCategoryIDs: []int64{3},
				Start:            ptr(date("2025-01-01")),
				End:              ptr(date("2025-01-31")),
				MinAmount:        ptr(dec("-10")),
				MaxAmount:        ptr(dec("10")),
				Search:           ptr("cafe"),
			},
			And{
				AccountIn{"A"},
				SpendCategoryAny{3},
				DateFrom{Date: date("2025-01-01")},
				DateTo{Date: date("2025-01-31")},
				AmountMin{Amount: dec("-10")},
				AmountMax{Amount: dec("10")},
				DescriptionContains{Term: "cafe"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compile(tt.c)
			if !reflect.DeepEqual(got.Where, tt.want) {
				t.Errorf("Where = %#v, want %#v", got.Where, tt.want)
			}
		})
	}
}

func TestCompileSortDefaults(t *testing.T) {
	q := Compile(Criteria{})
	if q.Sort != DefaultSort {
		t.Errorf("Sort = %+v, want %+v", q.Sort, DefaultSort)
	}
	q = Compile(Criteria{SortBy: SortByAmount, SortOrder: Asc})
	if q.Sort != (Sort{Field: SortByAmount, Order: Asc}) {
		t.Errorf("Sort = %+v", q.Sort)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name      string
		c         Criteria
		wantIDs   []int64
		wantTotal int
	}{
		{"default sort date desc then id desc", Criteria{}, []int64{4, 3, 2, 1}, 4},
		{"account", Criteria{Accounts: []string{"Schwab"}}, []int64{2}, 1},
		{"spend category any", Criteria{SpendCategoryIDs: []int64{10}}, []int64{3, 2}, 2},
		{"uncategorized categories only", Criteria{IncludeUncategorizedCategories: true}, []int64{4, 1}, 2},
		{"search is case-insensitive", Criteria{Search: ptr("WHOLE")}, []int64{2}, 1},
		{"search percent is literal", Criteria{Search: ptr("100%")}, []int64{3}, 1},
		{"amount range inclusive", Criteria{MinAmount: ptr(dec("-50")), MaxAmount: ptr(dec("-20"))}, []int64{4, 2}, 2},
		{"date range inclusive", Criteria{Start: ptr(date("2025-01-02")), End: ptr(date("2025-01-02"))}, []int64{2}, 1},
		{"amount asc", Criteria{SortBy: SortByAmount, SortOrder: Asc}, []int64{3, 2, 4, 1}, 4},
		{"paged", Criteria{Limit: ptr(2), Offset: ptr(1)}, []int64{3, 2}, 4},
		{"offset past end", Criteria{Offset: ptr(10)}, []int64{}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total := Apply(Compile(tt.c), fixtures())
			if !slices.Equal(ids(got), tt.wantIDs) {
				t.Errorf("ids = %v, want %v", ids(got), tt.wantIDs)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}
}

func TestUncategorizedUnion(t *testing.T) {
	ts := fixtures()
	union, _ := Apply(Compile(Criteria{CostCenterIDs: []int64{1}, IncludeUncategorizedCostCenters: true}), ts)
	only, _ := Apply(Compile(Criteria{CostCenterIDs: []int64{1}}), ts)
	none, _ := Apply(Compile(Criteria{IncludeUncategorizedCostCenters: true}), ts)

	want := append(ids(only), ids(none)...)
	slices.Sort(want)
	got := ids(union)
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("union = %v, want %v", got, want)
	}
}

func TestMonotonicity(t *testing.T) {
	ts := fixtures()
	base := Criteria{Accounts: []string{"Discover"}}
	_, n0 := Apply(Compile(base), ts)

	narrowers := []func(Criteria) Criteria{
		func(c Criteria) Criteria { c.CostCenterIDs = []int64{1}; return c },
		func(c Criteria) Criteria { c.SpendCategoryIDs = []int64{11}; return c },
		func(c Criteria) Criteria { c.Start = ptr(date("2025-02-01")); return c },
		func(c Criteria) Criteria { c.MaxAmount = ptr(dec("0")); return c },
		func(c Criteria) Criteria { c.Search = ptr("co"); return c },
	}
	for i, narrow := range narrowers {
		_, n := Apply(Compile(narrow(base)), ts)
		if n > n0 {
			t.Errorf("narrower %d increased count %d -> %d", i, n0, n)
		}
	}
}

func TestValidate(t *testing.T) {
	today := model.NewDate(2025, time.June, 1)
	tests := []struct {
		name    string
		c       Criteria
		wantErr bool
	}{
		{"zero", Criteria{}, false},
		{"start after end", Criteria{Start: ptr(date("2025-02-01")), End: ptr(date("2025-01-01"))}, true},
		{"equal dates", Criteria{Start: ptr(date("2025-01-01")), End: ptr(date("2025-01-01"))}, false},
		{"future start", Criteria{Start: ptr(date("2025-06-02"))}, true},
		{"future end", Criteria{End: ptr(date("2026-01-01"))}, true},
		{"today is fine", Criteria{End: ptr(today)}, false},
		{"min above max", Criteria{MinAmount: ptr(dec("5")), MaxAmount: ptr(dec("1"))}, true},
		{"blank search", Criteria{Search: ptr("  ")}, true},
		{"bad sort", Criteria{SortBy: "id"}, true},
		{"bad order", Criteria{SortOrder: "up"}, true},
		{"year with start", Criteria{Year: ptr(2025), Start: ptr(date("2025-01-01"))}, true},
		{"year out of range", Criteria{Year: ptr(1999)}, true},
		{"limit zero", Criteria{Limit: ptr(0)}, true},
		{"limit too big", Criteria{Limit: ptr(1001)}, true},
		{"negative offset", Criteria{Offset: ptr(-1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.c.Validate(today)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var verr *model.ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("expected ValidationError in %v", err)
			}
		})
	}
}

func TestRender(t *testing.T) {
	c := Criteria{
		Accounts:                        []string{"A", "B"},
		CostCenterIDs:                   []int64{7},
		IncludeUncategorizedCostCenters: true,
		SpendCategoryIDs:                []int64{3},
		Start:                           ptr(date("2025-01-01")),
		Search:                          ptr("50%_off"),
	}
	where := Compile(c).Where

	pg := NewArgs(Postgres)
	got := Render(where, pg)
	want := "(t.account IN ($1, $2) AND (t.cost_center_id IN ($3) OR t.cost_center_id IS NULL) AND " +
		"EXISTS (SELECT 1 FROM transaction_spend_categories tsc WHERE tsc.transaction_id = t.id AND tsc.spend_category_id IN ($4)) AND " +
		"t.date >= $5 AND t.description ILIKE $6 ESCAPE '\\')"
	if got != want {
		t.Errorf("postgres:\n got %s\nwant %s", got, want)
	}
	wantArgs := []any{"A", "B", int64(7), int64(3), "2025-01-01", `%50\%\_off%`}
	if !reflect.DeepEqual(pg.Values(), wantArgs) {
		t.Errorf("args = %#v, want %#v", pg.Values(), wantArgs)
	}

	lite := NewArgs(SQLite)
	got = Render(Or{CostCenterNone{}, DescriptionContains{Term: "x"}}, lite)
	if got != `(t.cost_center_id IS NULL OR fold(t.description) LIKE fold(?) ESCAPE '\')` {
		t.Errorf("sqlite: %s", got)
	}
}

func TestRenderEmpty(t *testing.T) {
	a := NewArgs(Postgres)
	if got := Render(And(nil), a); got != "1=1" {
		t.Errorf("empty And = %s", got)
	}
	if got := Render(Or(nil), a); got != "1=0" {
		t.Errorf("empty Or = %s", got)
	}
	if got := Render(nil, a); got != "1=1" {
		t.Errorf("nil = %s", got)
	}
}

func TestOrderBy(t *testing.T) {
	if got := DefaultSort.OrderBy(); got != "t.date DESC, t.id DESC" {
		t.Errorf("default = %s", got)
	}
	if got := (Sort{Field: SortByAccount, Order: Asc}).OrderBy(); got != "t.account ASC, t.id ASC" {
		t.Errorf("account asc = %s", got)
	}
}

func TestWithout(t *testing.T) {
	c := Criteria{
		Accounts:                        []string{"A"},
		CostCenterIDs:                   []int64{1},
		IncludeUncategorizedCostCenters: true,
		SpendCategoryIDs:                []int64{2},
	}
	got := c.Without(DimensionCostCenter)
	if got.CostCenterIDs != nil || got.IncludeUncategorizedCostCenters {
		t.Errorf("cost center filter kept: %+v", got)
	}
	if len(got.SpendCategoryIDs) != 1 || len(got.Accounts) != 1 {
		t.Errorf("other filters dropped: %+v", got)
	}
}
