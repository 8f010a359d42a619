// Package store defines the persistence contract of the ledger. The SQL
// and in-memory backends live in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
)

var (
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a delete is blocked by references.
	ErrConflict = errors.New("conflict")
)

// Kind names a categorical entity table.
type Kind string

const (
	KindCostCenter    Kind = "cost_center"
	KindSpendCategory Kind = "spend_category"
)

// Entity is a row of either categorical table.
type Entity struct {
	Kind Kind   `json:"kind"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Store opens atomic units of work.
type Store interface {
	// Atomic runs fn inside one database transaction. fn's writes commit
	// together when it returns nil and roll back otherwise. fn may be
	// called more than once when the backend retries after a write race,
	// so it must not have side effects outside tx.
	Atomic(ctx context.Context, fn func(tx Tx) error) error
	// Read runs fn against a read-only view.
	Read(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	// EnsureCostCenter returns the cost center called name, creating it
	// when absent. name must already be normalized.
	EnsureCostCenter(ctx context.Context, name string) (model.CostCenter, error)
	EnsureSpendCategory(ctx context.Context, name string) (model.SpendCategory, error)

	CostCenter(ctx context.Context, id int64) (model.CostCenter, error)
	SpendCategory(ctx context.Context, id int64) (model.SpendCategory, error)
	CostCenters(ctx context.Context) ([]model.CostCenter, error)
	SpendCategories(ctx context.Context) ([]model.SpendCategory, error)

	// CostCenterRefs counts transactions referencing the cost center.
	CostCenterRefs(ctx context.Context, id int64) (int, error)
	SpendCategoryRefs(ctx context.Context, id int64) (int, error)

	// DetachCostCenter clears the cost center of every transaction that
	// references it and returns how many were changed.
	DetachCostCenter(ctx context.Context, id int64) (int, error)
	// DeleteCostCenter removes the row. It reports ErrNotFound for a
	// missing id and does not check references.
	DeleteCostCenter(ctx context.Context, id int64) error
	DeleteSpendCategory(ctx context.Context, id int64) error

	// Orphaned returns the entities of kind with zero references.
	Orphaned(ctx context.Context, kind Kind) ([]Entity, error)

	InsertTransaction(ctx context.Context, t model.Transaction) (int64, error)
	// UpdateTransaction writes the scalar columns and the cost center of t.
	UpdateTransaction(ctx context.Context, t model.Transaction) error
	// SetSpendCategories replaces the spend categories of a transaction.
	SetSpendCategories(ctx context.Context, txnID int64, ids []int64) error
	Transaction(ctx context.Context, id int64) (model.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	// FindTransactions returns the page selected by q, fully loaded.
	FindTransactions(ctx context.Context, q filter.Query) ([]model.Transaction, error)
	// CountTransactions counts matches of where, ignoring pagination.
	CountTransactions(ctx context.Context, where filter.Predicate) (int, error)
	// EachTransaction streams the matches of q in order without
	// buffering the whole result.
	EachTransaction(ctx context.Context, q filter.Query, fn func(model.Transaction) error) error

	// Accounts lists distinct account names in ascending order.
	Accounts(ctx context.Context) ([]string, error)
	// DateRange returns the earliest and latest transaction dates; both are
	// nil when there are no transactions.
	DateRange(ctx context.Context) (earliest, latest *model.Date, err error)
	// AccountStats returns the total and count per account.
	AccountStats(ctx context.Context) ([]AccountStat, error)

	// Savepoint runs fn so that its failure undoes only fn's writes.
	Savepoint(ctx context.Context, fn func() error) error
}

// AccountStat is the per-account total and count.
type AccountStat struct {
	Account string
	Total   decimal.Decimal
	Count   int
}
