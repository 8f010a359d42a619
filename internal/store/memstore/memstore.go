// Package memstore is an in-memory store.Store. Writers are serialized by a
// mutex and each unit of work runs on a copy that replaces the live state
// only on success.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

var errReadOnly = errors.New("memstore: write in read-only unit")

type row struct {
	date             model.Date
	description      string
	amount           decimal.Decimal
	account          string
	costCenterID     *int64
	spendCategoryIDs []int64
}

type state struct {
	nextTxn, nextCC, nextSC int64

	txns            map[int64]row
	costCenters     map[int64]string
	spendCategories map[int64]string
}

func newState() *state {
	return &state{
		txns:            map[int64]row{},
		costCenters:     map[int64]string{},
		spendCategories: map[int64]string{},
	}
}

func (s *state) clone() *state {
	c := *s
	c.txns = make(map[int64]row, len(s.txns))
	for id, r := range s.txns {
		if r.costCenterID != nil {
			cc := *r.costCenterID
			r.costCenterID = &cc
		}
		r.spendCategoryIDs = slices.Clone(r.spendCategoryIDs)
		c.txns[id] = r
	}
	c.costCenters = maps.Clone(s.costCenters)
	c.spendCategories = maps.Clone(s.spendCategories)
	return &c
}

type Store struct {
	mu sync.RWMutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) Atomic(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&memTx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) Read(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memTx{st: s.st, readOnly: true})
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

type memTx struct {
	st       *state
	readOnly bool
}

func (tx *memTx) writable() error {
	if tx.readOnly {
		return errReadOnly
	}
	return nil
}

func (tx *memTx) EnsureCostCenter(_ context.Context, name string) (model.CostCenter, error) {
	for id, n := range tx.st.costCenters {
		if n == name {
			return model.CostCenter{ID: id, Name: n}, nil
		}
	}
	if err := tx.writable(); err != nil {
		return model.CostCenter{}, err
	}
	tx.st.nextCC++
	tx.st.costCenters[tx.st.nextCC] = name
	return model.CostCenter{ID: tx.st.nextCC, Name: name}, nil
}

func (tx *memTx) EnsureSpendCategory(_ context.Context, name string) (model.SpendCategory, error) {
	for id, n := range tx.st.spendCategories {
		if n == name {
			return model.SpendCategory{ID: id, Name: n}, nil
		}
	}
	if err := tx.writable(); err != nil {
		return model.SpendCategory{}, err
	}
	tx.st.nextSC++
	tx.st.spendCategories[tx.st.nextSC] = name
	return model.SpendCategory{ID: tx.st.nextSC, Name: name}, nil
}

func (tx *memTx) CostCenter(_ context.Context, id int64) (model.CostCenter, error) {
	name, ok := tx.st.costCenters[id]
	if !ok {
		return model.CostCenter{}, fmt.Errorf("cost center %d: %w", id, store.ErrNotFound)
	}
	return model.CostCenter{ID: id, Name: name}, nil
}

func (tx *memTx) SpendCategory(_ context.Context, id int64) (model.SpendCategory, error) {
	name, ok := tx.st.spendCategories[id]
	if !ok {
		return model.SpendCategory{}, fmt.Errorf("spend category %d: %w", id, store.ErrNotFound)
	}
	return model.SpendCategory{ID: id, Name: name}, nil
}

func (tx *memTx) CostCenters(context.Context) ([]model.CostCenter, error) {
	out := make([]model.CostCenter, 0, len(tx.st.costCenters))
	for id, name := range tx.st.costCenters {
		out = append(out, model.CostCenter{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b model.CostCenter) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (tx *memTx) SpendCategories(context.Context) ([]model.SpendCategory, error) {
	out := make([]model.SpendCategory, 0, len(tx.st.spendCategories))
	for id, name := range tx.st.spendCategories {
		out = append(out, model.SpendCategory{ID: id, Name: name})
	}
	slices.SortFunc(out, func(a, b model.SpendCategory) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (tx *memTx) CostCenterRefs(_ context.Context, id int64) (int, error) {
	n := 0
	for _, r := range tx.st.txns {
		if r.costCenterID != nil && *r.costCenterID == id {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) SpendCategoryRefs(_ context.Context, id int64) (int, error) {
	n := 0
	for _, r := range tx.st.txns {
		if slices.Contains(r.spendCategoryIDs, id) {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) DetachCostCenter(_ context.Context, id int64) (int, error) {
	if err := tx.writable(); err != nil {
		return 0, err
	}
	n := 0
	for tid, r := range tx.st.txns {
		if r.costCenterID != nil && *r.costCenterID == id {
			r.costCenterID = nil
			tx.st.txns[tid] = r
			n++
		}
	}
	return n, nil
}

func (tx *memTx) DeleteCostCenter(_ context.Context, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, ok := tx.st.costCenters[id]; !ok {
		return fmt.Errorf("cost center %d: %w", id, store.ErrNotFound)
	}
	// Mirrors ON DELETE SET NULL.
	for tid, r := range tx.st.txns {
		if r.costCenterID != nil && *r.costCenterID == id {
			r.costCenterID = nil
			tx.st.txns[tid] = r
		}
	}
	delete(tx.st.costCenters, id)
	return nil
}

func (tx *memTx) DeleteSpendCategory(ctx context.Context, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, ok := tx.st.spendCategories[id]; !ok {
		return fmt.Errorf("spend category %d: %w", id, store.ErrNotFound)
	}
	// Mirrors the join table's foreign key, which has no delete action.
	if n, _ := tx.SpendCategoryRefs(ctx, id); n > 0 {
		return fmt.Errorf("spend category %d is referenced by %d transactions: %w", id, n, store.ErrConflict)
	}
	delete(tx.st.spendCategories, id)
	return nil
}

func (tx *memTx) Orphaned(ctx context.Context, kind store.Kind) ([]store.Entity, error) {
	var names map[int64]string
	var refs func(context.Context, int64) (int, error)
	switch kind {
	case store.KindCostCenter:
		names, refs = tx.st.costCenters, tx.CostCenterRefs
	case store.KindSpendCategory:
		names, refs = tx.st.spendCategories, tx.SpendCategoryRefs
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	var out []store.Entity
	for id, name := range names {
		n, _ := refs(ctx, id)
		if n == 0 {
			out = append(out, store.Entity{Kind: kind, ID: id, Name: name})
		}
	}
	slices.SortFunc(out, func(a, b store.Entity) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (tx *memTx) checkRefs(t model.Transaction) error {
	if t.CostCenter != nil {
		if _, ok := tx.st.costCenters[t.CostCenter.ID]; !ok {
			return fmt.Errorf("cost center %d: %w", t.CostCenter.ID, store.ErrNotFound)
		}
	}
	return nil
}

func (tx *memTx) InsertTransaction(_ context.Context, t model.Transaction) (int64, error) {
	if err := tx.writable(); err != nil {
		return 0, err
	}
	if err := tx.checkRefs(t); err != nil {
		return 0, err
	}
	tx.st.nextTxn++
	tx.st.txns[tx.st.nextTxn] = row{
		date:         t.Date,
		description:  t.Description,
		amount:       t.Amount,
		account:      t.Account,
		costCenterID: t.CostCenterID(),
	}
	return tx.st.nextTxn, nil
}

func (tx *memTx) UpdateTransaction(_ context.Context, t model.Transaction) error {
	if err := tx.writable(); err != nil {
		return err
	}
	r, ok := tx.st.txns[t.ID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", t.ID, store.ErrNotFound)
	}
	if err := tx.checkRefs(t); err != nil {
		return err
	}
	r.date = t.Date
	r.description = t.Description
	r.amount = t.Amount
	r.account = t.Account
	r.costCenterID = t.CostCenterID()
	tx.st.txns[t.ID] = r
	return nil
}

func (tx *memTx) SetSpendCategories(_ context.Context, txnID int64, ids []int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	r, ok := tx.st.txns[txnID]
	if !ok {
		return fmt.Errorf("transaction %d: %w", txnID, store.ErrNotFound)
	}
	set := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := tx.st.spendCategories[id]; !ok {
			return fmt.Errorf("spend category %d: %w", id, store.ErrNotFound)
		}
		if !slices.Contains(set, id) {
			set = append(set, id)
		}
	}
	r.spendCategoryIDs = set
	tx.st.txns[txnID] = r
	return nil
}

func (tx *memTx) load(id int64, r row) model.Transaction {
	t := model.Transaction{
		ID:              id,
		Date:            r.date,
		Description:     r.description,
		Amount:          r.amount,
		Account:         r.account,
		SpendCategories: make([]model.SpendCategory, 0, len(r.spendCategoryIDs)),
	}
	if r.costCenterID != nil {
		t.CostCenter = &model.CostCenter{ID: *r.costCenterID, Name: tx.st.costCenters[*r.costCenterID]}
	}
	for _, sid := range r.spendCategoryIDs {
		t.SpendCategories = append(t.SpendCategories, model.SpendCategory{ID: sid, Name: tx.st.spendCategories[sid]})
	}
	slices.SortFunc(t.SpendCategories, func(a, b model.SpendCategory) int {
		return cmp.Or(strings.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return t
}

func (tx *memTx) Transaction(_ context.Context, id int64) (model.Transaction, error) {
	r, ok := tx.st.txns[id]
	if !ok {
		return model.Transaction{}, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	return tx.load(id, r), nil
}

func (tx *memTx) DeleteTransaction(_ context.Context, id int64) error {
	if err := tx.writable(); err != nil {
		return err
	}
	if _, ok := tx.st.txns[id]; !ok {
		return fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	delete(tx.st.txns, id)
	return nil
}

func (tx *memTx) all() []model.Transaction {
	out := make([]model.Transaction, 0, len(tx.st.txns))
	for id, r := range tx.st.txns {
		out = append(out, tx.load(id, r))
	}
	return out
}

func (tx *memTx) FindTransactions(ctx context.Context, q filter.Query) ([]model.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, _ := filter.Apply(q, tx.all())
	return page, nil
}

func (tx *memTx) CountTransactions(ctx context.Context, where filter.Predicate) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, n := filter.Apply(filter.Query{Where: where}, tx.all())
	return n, nil
}

func (tx *memTx) EachTransaction(ctx context.Context, q filter.Query, fn func(model.Transaction) error) error {
	page, err := tx.FindTransactions(ctx, q)
	if err != nil {
		return err
	}
	for _, t := range page {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

func (tx *memTx) Accounts(context.Context) ([]string, error) {
	seen := map[string]struct{}{}
	for _, r := range tx.st.txns {
		seen[r.account] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

func (tx *memTx) DateRange(context.Context) (*model.Date, *model.Date, error) {
	var earliest, latest *model.Date
	for _, r := range tx.st.txns {
		d := r.date
		if earliest == nil || d.Before(*earliest) {
			earliest = &d
		}
		if latest == nil || d.After(*latest) {
			latest = &d
		}
	}
	return earliest, latest, nil
}

func (tx *memTx) AccountStats(context.Context) ([]store.AccountStat, error) {
	byAccount := map[string]*store.AccountStat{}
	for _, r := range tx.st.txns {
		s, ok := byAccount[r.account]
		if !ok {
			s = &store.AccountStat{Account: r.account}
			byAccount[r.account] = s
		}
		s.Total = s.Total.Add(r.amount)
		s.Count++
	}
	out := make([]store.AccountStat, 0, len(byAccount))
	for _, name := range slices.Sorted(maps.Keys(byAccount)) {
		out = append(out, *byAccount[name])
	}
	return out, nil
}

func (tx *memTx) Savepoint(_ context.Context, fn func() error) error {
	if err := tx.writable(); err != nil {
		return err
	}
	saved := tx.st.clone()
	if err := fn(); err != nil {
		*tx.st = *saved
		return err
	}
	return nil
}
