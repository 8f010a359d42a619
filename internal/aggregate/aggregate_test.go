package aggregate

import (
	"slices"
	"testing"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

func date(s string) model.Date {
	d, err := model.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenario() []model.Transaction {
	return []model.Transaction{
		{ID: 1, Date: date("2025-01-01"), Description: "Credit", Amount: dec("5.25"), Account: "Discover"},
		{ID: 2, Date: date("2025-01-02"), Description: "Market", Amount: dec("-50.00"), Account: "Schwab",
			SpendCategories: []model.SpendCategory{{ID: 1, Name: "Groceries"}}},
		{ID: 3, Date: date("2025-02-05"), Description: "Cinema", Amount: dec("-100.00"), Account: "Discover",
			SpendCategories: []model.SpendCategory{{ID: 2, Name: "Entertainment"}}},
	}
}

func assertTotals(t *testing.T, got Totals, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d groups %v, want %d %v", len(got), got, len(want), want)
	}
	for label, w := range want {
		g, ok := got[label]
		if !ok {
			t.Errorf("missing group %q", label)
			continue
		}
		if !g.Equal(dec(w)) {
			t.Errorf("%s = %s, want %s", label, g, w)
		}
	}
}

func TestMonthlyTotalScenario(t *testing.T) {
	got := Series(scenario(), Month, DimTotal).Flatten()
	assertTotals(t, got, map[string]string{"January": "-44.75", "February": "-100"})
}

func TestBySpendCategoryScenario(t *testing.T) {
	got := BySpendCategory(scenario())
	assertTotals(t, got, map[string]string{"Groceries": "-50", "Entertainment": "-100", "Uncategorized": "5.25"})
}

func TestByCostCenterAndAccount(t *testing.T) {
	ts := scenario()
	ts[1].CostCenter = &model.CostCenter{ID: 1, Name: "Food"}
	assertTotals(t, ByCostCenter(ts), map[string]string{"Food": "-50", "Uncategorized": "-94.75"})
	assertTotals(t, ByAccount(ts), map[string]string{"Discover": "-94.75", "Schwab": "-50"})
}

func TestFanOut(t *testing.T) {
	ts := []model.Transaction{{
		Date:   date("2025-03-01"),
		Amount: dec("-10"),
		SpendCategories: []model.SpendCategory{
			{ID: 1, Name: "A"}, {ID: 2, Name: "B"},
		},
	}}
	got := BySpendCategory(ts)
	assertTotals(t, got, map[string]string{"A": "-10", "B": "-10"})
	if got.Sum().Abs().LessThan(Sum(ts).Abs()) {
		t.Errorf("fan-out sum %s smaller than amount sum %s", got.Sum(), Sum(ts))
	}
}

func TestSignPreserved(t *testing.T) {
	ts := scenario()
	for name, totals := range map[string]Totals{
		"account":     ByAccount(ts),
		"cost_center": ByCostCenter(ts),
		"category":    BySpendCategory(ts),
	} {
		if !totals.Sum().Equal(dec("-144.75")) {
			t.Errorf("%s sum = %s", name, totals.Sum())
		}
	}
}

func TestUncategorizedEntityMerges(t *testing.T) {
	ts := []model.Transaction{
		{Date: date("2025-01-01"), Amount: dec("-1"), CostCenter: &model.CostCenter{ID: 9, Name: model.Uncategorized}},
		{Date: date("2025-01-01"), Amount: dec("-2")},
	}
	assertTotals(t, ByCostCenter(ts), map[string]string{model.Uncategorized: "-3"})
}

func TestWeekLabel(t *testing.T) {
	tests := []struct {
		date string
		want string
	}{
		{"2025-01-01", "2025-W01"},
		{"2024-12-30", "2025-W01"},
		{"2021-01-03", "2020-W53"},
		{"2025-03-10", "2025-W11"},
	}
	for _, tt := range tests {
		if got := Week.Label(date(tt.date)); got != tt.want {
			t.Errorf("Week.Label(%s) = %s, want %s", tt.date, got, tt.want)
		}
	}
	if got := Month.Label(date("2025-09-15")); got != "September" {
		t.Errorf("Month.Label = %s", got)
	}
}

func TestSeriesByDimension(t *testing.T) {
	ts := scenario()
	weekly := Series(ts, Week, DimSpendCategory)
	assertTotals(t, weekly["2025-W01"], map[string]string{"Uncategorized": "5.25", "Groceries": "-50"})
	assertTotals(t, weekly["2025-W06"], map[string]string{"Entertainment": "-100"})

	monthly := Series(ts, Month, DimCostCenter)
	assertTotals(t, monthly["January"], map[string]string{"Uncategorized": "-44.75"})
}

func TestTop(t *testing.T) {
	totals := Totals{
		"a": dec("-5"),
		"b": dec("10"),
		"c": dec("10"),
		"d": dec("1"),
	}
	got := Top(totals, 3)
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	if !slices.Equal(names, []string{"b", "c", "d"}) {
		t.Errorf("Top = %v", names)
	}
	if len(Top(totals, 10)) != 4 {
		t.Error("Top should not pad")
	}
}

func TestTable(t *testing.T) {
	p := Periods{
		"March":    Totals{"A": dec("1")},
		"January":  Totals{"A": dec("2"), "B": dec("3")},
		"December": Totals{"B": dec("4")},
	}
	table := p.Table(Month)
	if !slices.Equal(table.Periods, []string{"January", "March", "December"}) {
		t.Fatalf("periods = %v", table.Periods)
	}
	if len(table.Series) != 2 || table.Series[0].Name != "A" || table.Series[1].Name != "B" {
		t.Fatalf("series = %+v", table.Series)
	}
	wantA := []string{"2", "1", "0"}
	for i, w := range wantA {
		if !table.Series[0].Data[i].Equal(dec(w)) {
			t.Errorf("A[%d] = %s, want %s", i, table.Series[0].Data[i], w)
		}
	}

	weeks := Periods{"2025-W10": Totals{"T": dec("1")}, "2024-W52": Totals{"T": dec("2")}}
	if got := weeks.Table(Week).Periods; !slices.Equal(got, []string{"2024-W52", "2025-W10"}) {
		t.Errorf("week periods = %v", got)
	}
}

func TestSummarizeAccounts(t *testing.T) {
	got := SummarizeAccounts(scenario())
	if len(got) != 2 || got[0].Name != "Discover" || got[0].Count != 2 || !got[0].Total.Equal(dec("-94.75")) {
		t.Errorf("summary = %+v", got)
	}
}
