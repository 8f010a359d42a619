package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// NewTransaction is the input of Create. A nil cost center and an empty
// category list both resolve to Uncategorized.
type NewTransaction struct {
	Date            model.Date       `json:"date"`
	Description     string           `json:"description"`
	Amount          *decimal.Decimal `json:"amount"`
	Account         string           `json:"account"`
	CostCenter      *string          `json:"cost_center_name"`
	SpendCategories []string         `json:"spend_category_names"`
}

// TransactionPatch is a partial update. Nil fields are left unchanged.
type TransactionPatch struct {
	Date            *model.Date      `json:"date"`
	Description     *string          `json:"description"`
	Amount          *decimal.Decimal `json:"amount"`
	Account         *string          `json:"account"`
	CostCenter      *string          `json:"cost_center_name"`
	SpendCategories *[]string        `json:"spend_category_names"`
}

// Empty reports whether the patch changes nothing.
func (p TransactionPatch) Empty() bool {
	return p.Date == nil && p.Description == nil && p.Amount == nil &&
		p.Account == nil && p.CostCenter == nil && p.SpendCategories == nil
}

func validateText(field, v string, max int) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", model.Invalid(field, "must not be empty or whitespace")
	}
	if len([]rune(v)) > max {
		return "", model.Invalid(field, "must be at most %d characters", max)
	}
	return v, nil
}

// maxAmount bounds amounts to what NUMERIC(12,2) can hold.
var maxAmount = decimal.New(1, 10)

func validateAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(2)) {
		return model.Invalid(field, "must have at most 2 decimal places")
	}
	if d.Abs().GreaterThanOrEqual(maxAmount) {
		return model.Invalid(field, "must be less than %s in absolute value", maxAmount)
	}
	return nil
}

// prepared is a validated, normalized transaction write.
type prepared struct {
	txn             model.Transaction
	costCenter      string
	spendCategories []string
}

func (n NewTransaction) prepare() (prepared, error) {
	var (
		p    prepared
		errs []error
		err  error
	)
	if n.Date.IsZero() {
		errs = append(errs, model.Invalid("date", "is required"))
	}
	p.txn.Date = n.Date
	if n.Amount == nil {
		errs = append(errs, model.Invalid("amount", "is required"))
	} else if err := validateAmount("amount", *n.Amount); err != nil {
		errs = append(errs, err)
	} else {
		p.txn.Amount = *n.Amount
	}
	if p.txn.Description, err = validateText("description", n.Description, model.MaxDescriptionLength); err != nil {
		errs = append(errs, err)
	}
	if p.txn.Account, err = validateText("account", n.Account, model.MaxAccountLength); err != nil {
		errs = append(errs, err)
	}

	p.costCenter = model.Uncategorized
	if n.CostCenter != nil {
		p.costCenter = model.NormalizeName(*n.CostCenter)
	}
	if err := model.ValidateName("cost_center_name", p.costCenter); err != nil {
		errs = append(errs, err)
	}
	if p.spendCategories, err = validateSpendCategoryNames("spend_category_names", n.SpendCategories); err != nil {
		errs = append(errs, err)
	}
	return p, errors.Join(errs...)
}

// normalizedPatch holds a validated patch.
type normalizedPatch struct {
	TransactionPatch
	costCenter      *string
	spendCategories []string
}

func (p TransactionPatch) normalize() (normalizedPatch, error) {
	n := normalizedPatch{TransactionPatch: p}
	var errs []error

	if p.Date != nil && p.Date.IsZero() {
		errs = append(errs, model.Invalid("date", "must be a valid date"))
	}
	if p.Amount != nil {
		if err := validateAmount("amount", *p.Amount); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Description != nil {
		v, err := validateText("description", *p.Description, model.MaxDescriptionLength)
		if err != nil {
			errs = append(errs, err)
		}
		n.Description = &v
	}
	if p.Account != nil {
		v, err := validateText("account", *p.Account, model.MaxAccountLength)
		if err != nil {
			errs = append(errs, err)
		}
		n.Account = &v
	}
	if p.CostCenter != nil {
		name := model.NormalizeName(*p.CostCenter)
		if err := model.ValidateName("cost_center_name", name); err != nil {
			errs = append(errs, err)
		}
		n.costCenter = &name
	}
	if p.SpendCategories != nil {
		names, err := validateSpendCategoryNames("spend_category_names", *p.SpendCategories)
		if err != nil {
			errs = append(errs, err)
		}
		n.spendCategories = names
	}
	return n, errors.Join(errs...)
}

// Create validates and stores a new transaction, creating any named cost
// center or spend category that does not exist yet.
func (s *Service) Create(ctx context.Context, in NewTransaction) (model.Transaction, error) {
	p, err := in.prepare()
	if err != nil {
		return model.Transaction{}, err
	}

	var created model.Transaction
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		created, err = insert(ctx, tx, p)
		return err
	})
	if err != nil {
		return model.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return created, nil
}

func insert(ctx context.Context, tx store.Tx, p prepared) (model.Transaction, error) {
	cc, err := tx.EnsureCostCenter(ctx, p.costCenter)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("ensure cost center %q: %w", p.costCenter, err)
	}
	scs, err := resolveSpendCategories(ctx, tx, p.spendCategories)
	if err != nil {
		return model.Transaction{}, err
	}

	t := p.txn
	t.CostCenter = &cc
	id, err := tx.InsertTransaction(ctx, t)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	ids := make([]int64, 0, len(scs))
	for _, sc := range scs {
		ids = append(ids, sc.ID)
	}
	if err := tx.SetSpendCategories(ctx, id, ids); err != nil {
		return model.Transaction{}, fmt.Errorf("set spend categories: %w", err)
	}
	return tx.Transaction(ctx, id)
}

// Get returns one transaction, or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (model.Transaction, error) {
	var t model.Transaction
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		t, err = tx.Transaction(ctx, id)
		return err
	})
	return t, err
}

// Update applies a partial update. Entities that lost their last reference
// because of it are removed and reported, unless auto cleanup is off.
func (s *Service) Update(ctx context.Context, id int64, patch TransactionPatch) (model.Transaction, CleanupReport, error) {
	p, err := patch.normalize()
	if err != nil {
		return model.Transaction{}, CleanupReport{}, err
	}

	var (
		updated model.Transaction
		report  CleanupReport
	)
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		report = CleanupReport{}
		old, err := tx.Transaction(ctx, id)
		if err != nil {
			return err
		}

		next := old
		if p.Date != nil {
			next.Date = *p.Date
		}
		if p.Description != nil {
			next.Description = *p.Description
		}
		if p.Amount != nil {
			next.Amount = *p.Amount
		}
		if p.Account != nil {
			next.Account = *p.Account
		}
		if p.costCenter != nil {
			cc, err := tx.EnsureCostCenter(ctx, *p.costCenter)
			if err != nil {
				return fmt.Errorf("ensure cost center %q: %w", *p.costCenter, err)
			}
			next.CostCenter = &cc
		}
		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		if p.spendCategories != nil {
			scs, err := resolveSpendCategories(ctx, tx, p.spendCategories)
			if err != nil {
				return err
			}
			next.SpendCategories = scs
			if err := tx.SetSpendCategories(ctx, id, next.SpendCategoryIDs()); err != nil {
				return fmt.Errorf("set spend categories: %w", err)
			}
		}

		if s.autoCleanup {
			report = s.reconcile(ctx, tx, lostReferences(old, next))
		}
		updated, err = tx.Transaction(ctx, id)
		return err
	})
	if err != nil {
		return model.Transaction{}, CleanupReport{}, err
	}
	return updated, report, nil
}

// Delete removes a transaction. Entities left without references are
// removed and reported, unless auto cleanup is off.
func (s *Service) Delete(ctx context.Context, id int64) (CleanupReport, error) {
	var report CleanupReport
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		report = CleanupReport{}
		old, err := tx.Transaction(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if s.autoCleanup {
			report = s.reconcile(ctx, tx, lostReferences(old, model.Transaction{}))
		}
		return nil
	})
	if err != nil {
		return CleanupReport{}, err
	}
	return report, nil
}

// lostReferences lists the entities old referenced and next does not.
// Spend categories are only considered when the set changed, the cost
// center only when its id changed.
func lostReferences(old, next model.Transaction) []store.Entity {
	var lost []store.Entity

	oldIDs, nextIDs := old.SpendCategoryIDs(), next.SpendCategoryIDs()
	slices.Sort(oldIDs)
	slices.Sort(nextIDs)
	if !slices.Equal(oldIDs, nextIDs) {
		for _, sc := range old.SpendCategories {
			if !slices.Contains(nextIDs, sc.ID) {
				lost = append(lost, store.Entity{Kind: store.KindSpendCategory, ID: sc.ID, Name: sc.Name})
			}
		}
	}

	if old.CostCenter != nil && (next.CostCenter == nil || next.CostCenter.ID != old.CostCenter.ID) {
		lost = append(lost, store.Entity{Kind: store.KindCostCenter, ID: old.CostCenter.ID, Name: old.CostCenter.Name})
	}
	return lost
}

// Page is one result of List.
type Page struct {
	Transactions []model.Transaction `json:"transactions"`
	Total        int                 `json:"total"`
	Pagination   *Pagination         `json:"pagination,omitempty"`
}

// Pagination describes a paged List result.
type Pagination struct {
	Limit    *int `json:"limit"`
	Offset   int  `json:"offset"`
	Total    int  `json:"total"`
	Returned int  `json:"returned"`
	HasMore  bool `json:"has_more"`
}

// List returns the transactions matching c and the count of all matches.
// Pagination metadata is only attached when a limit or offset was given.
func (s *Service) List(ctx context.Context, c filter.Criteria) (Page, error) {
	if err := c.Validate(s.today()); err != nil {
		return Page{}, err
	}

	q := filter.Compile(c)
	var page Page
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		if page.Transactions, err = tx.FindTransactions(ctx, q); err != nil {
			return err
		}
		page.Total, err = tx.CountTransactions(ctx, q.Where)
		return err
	})
	if err != nil {
		return Page{}, fmt.Errorf("list transactions: %w", err)
	}
	if page.Transactions == nil {
		page.Transactions = []model.Transaction{}
	}

	if c.Paginated() {
		offset := 0
		if c.Offset != nil {
			offset = *c.Offset
		}
		returned := len(page.Transactions)
		page.Pagination = &Pagination{
			Limit:    c.Limit,
			Offset:   offset,
			Total:    page.Total,
			Returned: returned,
			HasMore:  offset+returned < page.Total,
		}
	}
	return page, nil
}

// MaxRecent bounds Recent.
const MaxRecent = 100

// Recent returns the newest transactions, optionally for one account.
func (s *Service) Recent(ctx context.Context, limit int, account string) ([]model.Transaction, error) {
	if limit < 1 || limit > MaxRecent {
		return nil, model.Invalid("limit", "must be between 1 and %d", MaxRecent)
	}
	c := filter.Criteria{
		SortBy:    filter.SortByDate,
		SortOrder: filter.Desc,
		Limit:     &limit,
	}
	if account = strings.TrimSpace(account); account != "" {
		c.Accounts = []string{account}
	}
	page, err := s.List(ctx, c)
	if err != nil {
		return nil, err
	}
	return page.Transactions, nil
}
