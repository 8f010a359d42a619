package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

type sqlTx struct {
	tx *sql.Tx
	d  filter.Dialect
	sp int
}

// rebind rewrites ? markers to the dialect's placeholders.
func (t *sqlTx) rebind(query string) string {
	if t.d == filter.SQLite {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(t.d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *sqlTx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

// ensure inserts name into table unless present and returns its id. A
// concurrent insert of the same name resolves to a lookup.
func (t *sqlTx) ensure(ctx context.Context, table, name string) (int64, error) {
	var id int64
	err := t.queryRow(ctx, "INSERT INTO "+table+" (name) VALUES (?) ON CONFLICT (name) DO NOTHING RETURNING id", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	if err := t.queryRow(ctx, "SELECT id FROM "+table+" WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", table, name, err)
	}
	return id, nil
}

func (t *sqlTx) EnsureCostCenter(ctx context.Context, name string) (model.CostCenter, error) {
	id, err := t.ensure(ctx, "cost_centers", name)
	if err != nil {
		return model.CostCenter{}, err
	}
	return model.CostCenter{ID: id, Name: name}, nil
}

func (t *sqlTx) EnsureSpendCategory(ctx context.Context, name string) (model.SpendCategory, error) {
	id, err := t.ensure(ctx, "spend_categories", name)
	if err != nil {
		return model.SpendCategory{}, err
	}
	return model.SpendCategory{ID: id, Name: name}, nil
}

func (t *sqlTx) lookupName(ctx context.Context, table, what string, id int64) (string, error) {
	var name string
	err := t.queryRow(ctx, "SELECT name FROM "+table+" WHERE id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get %s %d: %w", what, id, err)
	}
	return name, nil
}

func (t *sqlTx) CostCenter(ctx context.Context, id int64) (model.CostCenter, error) {
	name, err := t.lookupName(ctx, "cost_centers", "cost center", id)
	if err != nil {
		return model.CostCenter{}, err
	}
	return model.CostCenter{ID: id, Name: name}, nil
}

func (t *sqlTx) SpendCategory(ctx context.Context, id int64) (model.SpendCategory, error) {
	name, err := t.lookupName(ctx, "spend_categories", "spend category", id)
	if err != nil {
		return model.SpendCategory{}, err
	}
	return model.SpendCategory{ID: id, Name: name}, nil
}

func (t *sqlTx) listNames(ctx context.Context, query string, args ...any) ([]store.Entity, error) {
	rows, err := t.tx.QueryContext(ctx, t.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Entity
	for rows.Next() {
		var e store.Entity
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *sqlTx) CostCenters(ctx context.Context) ([]model.CostCenter, error) {
	entities, err := t.listNames(ctx, "SELECT id, name FROM cost_centers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	out := make([]model.CostCenter, 0, len(entities))
	for _, e := range entities {
		out = append(out, model.CostCenter{ID: e.ID, Name: e.Name})
	}
	return out, nil
}

func (t *sqlTx) SpendCategories(ctx context.Context) ([]model.SpendCategory, error) {
	entities, err := t.listNames(ctx, "SELECT id, name FROM spend_categories ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list spend categories: %w", err)
	}
	out := make([]model.SpendCategory, 0, len(entities))
	for _, e := range entities {
		out = append(out, model.SpendCategory{ID: e.ID, Name: e.Name})
	}
	return out, nil
}

func (t *sqlTx) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := t.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (t *sqlTx) CostCenterRefs(ctx context.Context, id int64) (int, error) {
	n, err := t.count(ctx, "SELECT COUNT(*) FROM transactions WHERE cost_center_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("count cost center %d references: %w", id, err)
	}
	return n, nil
}

func (t *sqlTx) SpendCategoryRefs(ctx context.Context, id int64) (int, error) {
	n, err := t.count(ctx, "SELECT COUNT(*) FROM transaction_spend_categories WHERE spend_category_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("count spend category %d references: %w", id, err)
	}
	return n, nil
}

func (t *sqlTx) DetachCostCenter(ctx context.Context, id int64) (int, error) {
	res, err := t.exec(ctx, "UPDATE transactions SET cost_center_id = NULL WHERE cost_center_id = ?", id)
	if err != nil {
		return 0, fmt.Errorf("detach cost center %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t *sqlTx) deleteByID(ctx context.Context, table, what string, id int64) error {
	res, err := t.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, store.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) DeleteCostCenter(ctx context.Context, id int64) error {
	return t.deleteByID(ctx, "cost_centers", "cost center", id)
}

func (t *sqlTx) DeleteSpendCategory(ctx context.Context, id int64) error {
	return t.deleteByID(ctx, "spend_categories", "spend category", id)
}

func (t *sqlTx) Orphaned(ctx context.Context, kind store.Kind) ([]store.Entity, error) {
	var query string
	switch kind {
	case store.KindCostCenter:
		query = `SELECT c.id, c.name FROM cost_centers c
			WHERE NOT EXISTS (SELECT 1 FROM transactions t WHERE t.cost_center_id = c.id)
			ORDER BY c.id`
	case store.KindSpendCategory:
		query = `SELECT s.id, s.name FROM spend_categories s
			WHERE NOT EXISTS (SELECT 1 FROM transaction_spend_categories tsc WHERE tsc.spend_category_id = s.id)
			ORDER BY s.id`
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	entities, err := t.listNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("find orphaned %s: %w", kind, err)
	}
	for i := range entities {
		entities[i].Kind = kind
	}
	return entities, nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, txn model.Transaction) (int64, error) {
	var id int64
	err := t.queryRow(ctx, `
		INSERT INTO transactions (date, description, amount, account, cost_center_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		txn.Date.String(), txn.Description, txn.Amount.String(), txn.Account, txn.CostCenterID(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return id, nil
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, txn model.Transaction) error {
	res, err := t.exec(ctx, `
		UPDATE transactions
		SET date = ?, description = ?, amount = ?, account = ?, cost_center_id = ?
		WHERE id = ?`,
		txn.Date.String(), txn.Description, txn.Amount.String(), txn.Account, txn.CostCenterID(), txn.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", txn.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", txn.ID, store.ErrNotFound)
	}
	return nil
}

func (t *sqlTx) SetSpendCategories(ctx context.Context, txnID int64, ids []int64) error {
	if _, err := t.exec(ctx, "DELETE FROM transaction_spend_categories WHERE transaction_id = ?", txnID); err != nil {
		return fmt.Errorf("clear spend categories of %d: %w", txnID, err)
	}
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, err := t.exec(ctx, "INSERT INTO transaction_spend_categories (transaction_id, spend_category_id) VALUES (?, ?)", txnID, id); err != nil {
			return fmt.Errorf("link spend category %d to %d: %w", id, txnID, err)
		}
	}
	return nil
}

func (t *sqlTx) DeleteTransaction(ctx context.Context, id int64) error {
	return t.deleteByID(ctx, "transactions", "transaction", id)
}

const joinedColumns = `t.id, t.date, t.description, t.amount, t.account, t.cost_center_id, cc.name, sc.id, sc.name`

const joinedFrom = `
	LEFT JOIN cost_centers cc ON cc.id = t.cost_center_id
	LEFT JOIN transaction_spend_categories tsc ON tsc.transaction_id = t.id
	LEFT JOIN spend_categories sc ON sc.id = tsc.spend_category_id`

// selectJoined runs inner, a query over transactions aliased t, joins its
// associations and emits one fully loaded transaction per id. Rows of one
// transaction are adjacent because orderBy ends with t.id.
func (t *sqlTx) selectJoined(ctx context.Context, inner, orderBy string, args []any, emit func(model.Transaction) error) error {
	query := "SELECT " + joinedColumns + " FROM (" + inner + ") t" + joinedFrom +
		" ORDER BY " + orderBy + ", sc.name, sc.id"
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var cur *model.Transaction
	for rows.Next() {
		var (
			id     int64
			date   model.Date
			desc   string
			amount decimal.Decimal
			acct   string
			ccID   sql.NullInt64
			ccName sql.NullString
			scID   sql.NullInt64
			scName sql.NullString
		)
		if err := rows.Scan(&id, &date, &desc, &amount, &acct, &ccID, &ccName, &scID, &scName); err != nil {
			return fmt.Errorf("scan transaction: %w", err)
		}
		if cur != nil && cur.ID != id {
			if err := emit(*cur); err != nil {
				return err
			}
			cur = nil
		}
		if cur == nil {
			cur = &model.Transaction{
				ID:              id,
				Date:            date,
				Description:     desc,
				Amount:          amount,
				Account:         acct,
				SpendCategories: []model.SpendCategory{},
			}
			if ccID.Valid {
				cur.CostCenter = &model.CostCenter{ID: ccID.Int64, Name: ccName.String}
			}
		}
		if scID.Valid {
			cur.SpendCategories = append(cur.SpendCategories, model.SpendCategory{ID: scID.Int64, Name: scName.String})
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate transactions: %w", err)
	}
	if cur != nil {
		return emit(*cur)
	}
	return nil
}

func (t *sqlTx) pagedInner(q filter.Query) (string, []any) {
	args := filter.NewArgs(t.d)
	inner := "SELECT t.* FROM transactions t WHERE " + filter.Render(q.Where, args) +
		" ORDER BY " + q.Sort.OrderBy()
	switch {
	case q.Limit != nil:
		inner += " LIMIT " + args.Add(*q.Limit)
		if q.Offset != nil {
			inner += " OFFSET " + args.Add(*q.Offset)
		}
	case q.Offset != nil && t.d == filter.SQLite:
		inner += " LIMIT -1 OFFSET " + args.Add(*q.Offset)
	case q.Offset != nil:
		inner += " OFFSET " + args.Add(*q.Offset)
	}
	return inner, args.Values()
}

func (t *sqlTx) EachTransaction(ctx context.Context, q filter.Query, fn func(model.Transaction) error) error {
	inner, args := t.pagedInner(q)
	return t.selectJoined(ctx, inner, q.Sort.OrderBy(), args, fn)
}

func (t *sqlTx) FindTransactions(ctx context.Context, q filter.Query) ([]model.Transaction, error) {
	out := []model.Transaction{}
	err := t.EachTransaction(ctx, q, func(txn model.Transaction) error {
		out = append(out, txn)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *sqlTx) Transaction(ctx context.Context, id int64) (model.Transaction, error) {
	var (
		found bool
		txn   model.Transaction
	)
	inner := "SELECT t.* FROM transactions t WHERE t.id = " + t.d.Placeholder(1)
	err := t.selectJoined(ctx, inner, "t.id", []any{id}, func(loaded model.Transaction) error {
		txn, found = loaded, true
		return nil
	})
	if err != nil {
		return model.Transaction{}, err
	}
	if !found {
		return model.Transaction{}, fmt.Errorf("transaction %d: %w", id, store.ErrNotFound)
	}
	return txn, nil
}

func (t *sqlTx) CountTransactions(ctx context.Context, where filter.Predicate) (int, error) {
	args := filter.NewArgs(t.d)
	query := "SELECT COUNT(*) FROM transactions t WHERE " + filter.Render(where, args)
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args.Values()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (t *sqlTx) Accounts(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT DISTINCT account FROM transactions ORDER BY account")
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (t *sqlTx) DateRange(ctx context.Context) (*model.Date, *model.Date, error) {
	var earliest, latest *model.Date
	if err := t.tx.QueryRowContext(ctx, "SELECT MIN(date), MAX(date) FROM transactions").Scan(&earliest, &latest); err != nil {
		return nil, nil, fmt.Errorf("date range: %w", err)
	}
	return earliest, latest, nil
}

func (t *sqlTx) AccountStats(ctx context.Context) ([]store.AccountStat, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT account, SUM(amount), COUNT(*)
		FROM transactions
		GROUP BY account
		ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("account stats: %w", err)
	}
	defer rows.Close()

	var out []store.AccountStat
	for rows.Next() {
		var s store.AccountStat
		if err := rows.Scan(&s.Account, &s.Total, &s.Count); err != nil {
			return nil, err
		}
		// SQLite sums NUMERIC columns as floating point.
		s.Total = s.Total.Round(2)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) Savepoint(ctx context.Context, fn func() error) error {
	t.sp++
	name := fmt.Sprintf("sp_%d", t.sp)
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		return err
	}
	if _, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
