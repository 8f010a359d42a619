package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// CleanupItem is the outcome for one inspected entity. Deleted is false
// when the entity was still referenced or its removal failed; Error holds
// the failure.
type CleanupItem struct {
	Kind    store.Kind `json:"kind"`
	ID      int64      `json:"id"`
	Name    string     `json:"name"`
	Deleted bool       `json:"deleted"`
	Error   string     `json:"error,omitempty"`
}

// CleanupReport lists what a cleanup pass inspected.
type CleanupReport struct {
	Items []CleanupItem
}

// Deleted counts the removed entities of kind.
func (r CleanupReport) Deleted(kind store.Kind) int {
	n := 0
	for _, it := range r.Items {
		if it.Kind == kind && it.Deleted {
			n++
		}
	}
	return n
}

// Failed counts items whose removal failed.
func (r CleanupReport) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Error != "" {
			n++
		}
	}
	return n
}

func (r CleanupReport) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []CleanupItem{}
	}
	sc, cc := r.Deleted(store.KindSpendCategory), r.Deleted(store.KindCostCenter)
	return json.Marshal(struct {
		Items                  []CleanupItem `json:"items"`
		SpendCategoriesDeleted int           `json:"spend_categories_deleted"`
		CostCentersDeleted     int           `json:"cost_centers_deleted"`
		TotalDeleted           int           `json:"total_deleted"`
		Failed                 int           `json:"failed"`
	}{items, sc, cc, sc + cc, r.Failed()})
}

// reconcile deletes every candidate that has no references left. Each
// delete runs in its own savepoint; a failure is recorded on its item and
// the caller's unit of work carries on.
func (s *Service) reconcile(ctx context.Context, tx store.Tx, candidates []store.Entity) CleanupReport {
	var report CleanupReport
	for _, e := range candidates {
		item := CleanupItem{Kind: e.Kind, ID: e.ID, Name: e.Name}
		err := tx.Savepoint(ctx, func() error {
			deleted, err := deleteIfOrphaned(ctx, tx, e)
			item.Deleted = deleted
			return err
		})
		if err != nil {
			item.Deleted = false
			item.Error = err.Error()
			s.logger.Warn("orphan cleanup failed", "kind", e.Kind, "id", e.ID, "name", e.Name, "error", err)
		} else if item.Deleted {
			s.logger.Debug("orphan removed", "kind", e.Kind, "id", e.ID, "name", e.Name)
		}
		report.Items = append(report.Items, item)
	}
	return report
}

func deleteIfOrphaned(ctx context.Context, tx store.Tx, e store.Entity) (bool, error) {
	var (
		refs int
		err  error
	)
	switch e.Kind {
	case store.KindCostCenter:
		refs, err = tx.CostCenterRefs(ctx, e.ID)
	case store.KindSpendCategory:
		refs, err = tx.SpendCategoryRefs(ctx, e.ID)
	default:
		return false, fmt.Errorf("unknown entity kind %q", e.Kind)
	}
	if err != nil || refs > 0 {
		return false, err
	}

	switch e.Kind {
	case store.KindCostCenter:
		err = tx.DeleteCostCenter(ctx, e.ID)
	case store.KindSpendCategory:
		err = tx.DeleteSpendCategory(ctx, e.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// CleanupOrphans scans the entity tables of the given kinds, both when
// none are given, and deletes every entity with no references.
func (s *Service) CleanupOrphans(ctx context.Context, kinds ...store.Kind) (CleanupReport, error) {
	if len(kinds) == 0 {
		kinds = []store.Kind{store.KindSpendCategory, store.KindCostCenter}
	}
	for _, k := range kinds {
		if k != store.KindSpendCategory && k != store.KindCostCenter {
			return CleanupReport{}, model.Invalid("kind", "must be %s or %s", store.KindSpendCategory, store.KindCostCenter)
		}
	}

	var report CleanupReport
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		report = CleanupReport{}
		for _, k := range kinds {
			orphans, err := tx.Orphaned(ctx, k)
			if err != nil {
				return fmt.Errorf("find orphaned %s rows: %w", k, err)
			}
			report.Items = append(report.Items, s.reconcile(ctx, tx, orphans).Items...)
		}
		return nil
	})
	if err != nil {
		return CleanupReport{}, err
	}
	s.logger.Info("orphan cleanup finished",
		"spend_categories_deleted", report.Deleted(store.KindSpendCategory),
		"cost_centers_deleted", report.Deleted(store.KindCostCenter),
		"failed", report.Failed())
	return report, nil
}
