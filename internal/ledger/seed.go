package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

type demoRow struct {
	daysAgo     int
	description string
	amount      string
	account     string
	costCenter  string
	categories  []string
}

var demoRows = []demoRow{
	{28, "Monthly Salary", "3200.00", "Schwab Checking", "Income", []string{"Salary"}},
	{25, "Freelance: Landing Page", "850.00", "Schwab Checking", "Income", []string{"Freelance"}},
	{24, "Rent - Apartment", "-1500.00", "Schwab Checking", "Housing", []string{"Rent"}},
	{22, "Utilities - Electricity", "-120.45", "Discover", "Housing", []string{"Utilities"}},
	{20, "Groceries - Whole Foods", "-96.72", "Discover", "Meals", []string{"Groceries"}},
	{19, "Subway Pass", "-45.00", "Discover", "Transportation", []string{"Transit"}},
	{16, "Movie Night", "-28.50", "Discover", "Fun", []string{"Entertainment"}},
	{14, "Groceries - Trader Joes", "-64.11", "Discover", "Meals", []string{"Groceries"}},
	{13, "Freelance: Dashboard Charts", "600.00", "Schwab Checking", "Income", []string{"Freelance"}},
	{11, "Utilities - Internet", "-60.00", "Discover", "Housing", []string{"Utilities", "Work"}},
	{8, "Concert Tickets", "-140.00", "Discover", "Fun", []string{"Entertainment"}},
	{6, "Groceries - Costco", "-132.39", "Discover", "Meals", []string{"Groceries", "Household"}},
	{4, "Rideshare", "-22.30", "Discover", "Transportation", nil},
	{1, "Dinner Out", "-54.80", "Discover", "Meals", []string{"Restaurants", "Entertainment"}},
}

// SeedDemo inserts a small set of demo transactions dated over the last
// month. It only runs when the ledger is empty and returns how many rows it
// inserted.
func (s *Service) SeedDemo(ctx context.Context) (int, error) {
	today := s.now()
	rows := make([]prepared, 0, len(demoRows))
	for _, d := range demoRows {
		cc := d.costCenter
		amount := decimal.RequireFromString(d.amount)
		p, err := NewTransaction{
			Date:            model.DateOf(today.AddDate(0, 0, -d.daysAgo)),
			Description:     d.description,
			Amount:          &amount,
			Account:         d.account,
			CostCenter:      &cc,
			SpendCategories: d.categories,
		}.prepare()
		if err != nil {
			return 0, fmt.Errorf("demo row %q: %w", d.description, err)
		}
		rows = append(rows, p)
	}

	inserted := 0
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		inserted = 0
		n, err := tx.CountTransactions(ctx, filter.And{})
		if err != nil {
			return fmt.Errorf("checking transactions count: %w", err)
		}
		if n > 0 {
			return nil
		}
		for _, p := range rows {
			if _, err := insert(ctx, tx, p); err != nil {
				return fmt.Errorf("seeding demo transactions: %w", err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.logger.Info("demo data seeded", "transactions", inserted)
	}
	return inserted, nil
}
