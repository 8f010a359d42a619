package ledger

import (
	"context"

	"finance-ledger-backend/internal/aggregate"
	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// Accounts lists the distinct account names, sorted.
func (s *Service) Accounts(ctx context.Context) ([]string, error) {
	var out []string
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.Accounts(ctx)
		return err
	})
	if out == nil {
		out = []string{}
	}
	return out, err
}

// DateRange spans the stored transactions. Both ends are nil when the
// ledger is empty.
type DateRange struct {
	Earliest *model.Date `json:"earliest_date"`
	Latest   *model.Date `json:"latest_date"`
}

func (s *Service) DateRange(ctx context.Context) (DateRange, error) {
	var r DateRange
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		r.Earliest, r.Latest, err = tx.DateRange(ctx)
		return err
	})
	return r, err
}

// Stats is the overall transaction count plus per-account totals.
type Stats struct {
	TotalTransactions int                        `json:"total_transactions"`
	Accounts          []aggregate.AccountSummary `json:"accounts"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.store.Read(ctx, func(tx store.Tx) error {
		n, err := tx.CountTransactions(ctx, filter.And{})
		if err != nil {
			return err
		}
		rows, err := tx.AccountStats(ctx)
		if err != nil {
			return err
		}
		st.TotalTransactions = n
		st.Accounts = make([]aggregate.AccountSummary, 0, len(rows))
		for _, r := range rows {
			st.Accounts = append(st.Accounts, aggregate.AccountSummary{Name: r.Account, Total: r.Total, Count: r.Count})
		}
		return nil
	})
	return st, err
}
