// Package ledger is the operation surface of the finance ledger. It owns
// input validation, the categorical entity rules and the orphan cleanup
// that follows every transaction mutation.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

var (
	ErrNotFound = store.ErrNotFound
	ErrConflict = store.ErrConflict
)

// ValidationError reports rejected input. No write has happened when it is
// returned.
type ValidationError = model.ValidationError

// Service runs ledger operations against a store.
type Service struct {
	store       store.Store
	logger      *slog.Logger
	now         func() time.Time
	autoCleanup bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for the "no future dates" rule and the
// demo seed.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAutoCleanup toggles orphan cleanup after updates and deletes. It is
// on by default.
func WithAutoCleanup(enabled bool) Option {
	return func(s *Service) { s.autoCleanup = enabled }
}

// New returns a Service over st.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:       st,
		logger:      logger.With("component", "ledger"),
		now:         time.Now,
		autoCleanup: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping checks that the datastore is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) today() model.Date {
	return model.DateOf(s.now())
}

// matching loads every transaction selected by c, ignoring pagination.
func (s *Service) matching(ctx context.Context, c filter.Criteria) ([]model.Transaction, error) {
	var ts []model.Transaction
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		ts, err = tx.FindTransactions(ctx, filter.Compile(c.Unpaged()))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ts, nil
}
