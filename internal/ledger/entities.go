package ledger

import (
	"context"
	"errors"
	"fmt"

	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// GetOrCreateCostCenter returns the cost center called name, creating it if
// needed. Blank names resolve to Uncategorized.
func (s *Service) GetOrCreateCostCenter(ctx context.Context, name string) (model.CostCenter, error) {
	name = model.NormalizeName(name)
	if err := model.ValidateName("name", name); err != nil {
		return model.CostCenter{}, err
	}

	var cc model.CostCenter
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		cc, err = tx.EnsureCostCenter(ctx, name)
		return err
	})
	if err != nil {
		return model.CostCenter{}, fmt.Errorf("get or create cost center %q: %w", name, err)
	}
	return cc, nil
}

// GetOrCreateSpendCategory returns the spend category called name, creating
// it if needed. Blank names resolve to Uncategorized.
func (s *Service) GetOrCreateSpendCategory(ctx context.Context, name string) (model.SpendCategory, error) {
	name = model.NormalizeName(name)
	if err := model.ValidateName("name", name); err != nil {
		return model.SpendCategory{}, err
	}

	var sc model.SpendCategory
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		var err error
		sc, err = tx.EnsureSpendCategory(ctx, name)
		return err
	})
	if err != nil {
		return model.SpendCategory{}, fmt.Errorf("get or create spend category %q: %w", name, err)
	}
	return sc, nil
}

// validateSpendCategoryNames cleans names and checks each survivor.
func validateSpendCategoryNames(field string, names []string) ([]string, error) {
	cleaned := model.CleanNames(names)
	var errs []error
	for _, n := range cleaned {
		if err := model.ValidateName(field, n); err != nil {
			errs = append(errs, err)
		}
	}
	return cleaned, errors.Join(errs...)
}

// resolveSpendCategories ensures every name exists. names must already be
// cleaned and validated.
func resolveSpendCategories(ctx context.Context, tx store.Tx, names []string) ([]model.SpendCategory, error) {
	resolved := make([]model.SpendCategory, 0, len(names))
	for _, n := range names {
		sc, err := tx.EnsureSpendCategory(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("ensure spend category %q: %w", n, err)
		}
		resolved = append(resolved, sc)
	}
	return resolved, nil
}

func (s *Service) CostCenters(ctx context.Context) ([]model.CostCenter, error) {
	var out []model.CostCenter
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.CostCenters(ctx)
		return err
	})
	return out, err
}

func (s *Service) SpendCategories(ctx context.Context) ([]model.SpendCategory, error) {
	var out []model.SpendCategory
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.SpendCategories(ctx)
		return err
	})
	return out, err
}

func (s *Service) CostCenter(ctx context.Context, id int64) (model.CostCenter, error) {
	var cc model.CostCenter
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		cc, err = tx.CostCenter(ctx, id)
		return err
	})
	return cc, err
}

func (s *Service) SpendCategory(ctx context.Context, id int64) (model.SpendCategory, error) {
	var sc model.SpendCategory
	err := s.store.Read(ctx, func(tx store.Tx) error {
		var err error
		sc, err = tx.SpendCategory(ctx, id)
		return err
	})
	return sc, err
}

// DeleteCostCenter removes a cost center. A referenced cost center is only
// removed when cascade is set, in which case its transactions become
// uncategorized first; detached is how many were changed. It returns
// ErrNotFound for an unknown id and ErrConflict when references block the
// delete.
func (s *Service) DeleteCostCenter(ctx context.Context, id int64, cascade bool) (detached int, err error) {
	err = s.store.Atomic(ctx, func(tx store.Tx) error {
		detached = 0
		if _, err := tx.CostCenter(ctx, id); err != nil {
			return err
		}
		refs, err := tx.CostCenterRefs(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			if !cascade {
				return fmt.Errorf("cost center %d is used by %d transactions: %w", id, refs, ErrConflict)
			}
			if detached, err = tx.DetachCostCenter(ctx, id); err != nil {
				return err
			}
		}
		return tx.DeleteCostCenter(ctx, id)
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("cost center deleted", "id", id, "cascade", cascade, "detached", detached)
	return detached, nil
}

// DeleteSpendCategory removes an unreferenced spend category. It returns
// ErrNotFound for an unknown id and ErrConflict while transactions still
// use it.
func (s *Service) DeleteSpendCategory(ctx context.Context, id int64) error {
	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.SpendCategory(ctx, id); err != nil {
			return err
		}
		refs, err := tx.SpendCategoryRefs(ctx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return fmt.Errorf("spend category %d is used by %d transactions: %w", id, refs, ErrConflict)
		}
		return tx.DeleteSpendCategory(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("spend category deleted", "id", id)
	return nil
}
