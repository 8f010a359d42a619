package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

func TestAtomicRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.EnsureCostCenter(ctx, "Food"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	_ = s.Read(ctx, func(tx store.Tx) error {
		ccs, _ := tx.CostCenters(ctx)
		if len(ccs) != 0 {
			t.Errorf("rolled back unit left %v", ccs)
		}
		return nil
	})
}

func TestSavepointUndoesOnlyInnerWrites(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.Atomic(ctx, func(tx store.Tx) error {
		if _, err := tx.EnsureCostCenter(ctx, "Outer"); err != nil {
			return err
		}
		inner := tx.Savepoint(ctx, func() error {
			_, _ = tx.EnsureCostCenter(ctx, "Inner")
			return errors.New("fail")
		})
		if inner == nil {
			t.Error("expected savepoint error")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Read(ctx, func(tx store.Tx) error {
		ccs, _ := tx.CostCenters(ctx)
		if len(ccs) != 1 || ccs[0].Name != "Outer" {
			t.Errorf("cost centers = %v", ccs)
		}
		return nil
	})
}

func TestReadIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Read(ctx, func(tx store.Tx) error {
		_, err := tx.InsertTransaction(ctx, model.Transaction{Amount: decimal.NewFromInt(1)})
		return err
	})
	if err == nil {
		t.Fatal("expected write in Read to fail")
	}
}

func TestEnsureIsIdempotentAndDeleteNullsReferences(t *testing.T) {
	ctx := context.Background()
	s := New()
	var txnID, ccID int64

	err := s.Atomic(ctx, func(tx store.Tx) error {
		a, _ := tx.EnsureCostCenter(ctx, "Car")
		b, _ := tx.EnsureCostCenter(ctx, "Car")
		if a.ID != b.ID {
			t.Errorf("EnsureCostCenter created twice: %d, %d", a.ID, b.ID)
		}
		ccID = a.ID
		var err error
		txnID, err = tx.InsertTransaction(ctx, model.Transaction{
			Date:        model.NewDate(2025, 1, 1),
			Description: "Gas",
			Amount:      decimal.NewFromInt(-30),
			Account:     "Discover",
			CostCenter:  &a,
		})
		if err != nil {
			return err
		}
		return tx.DeleteCostCenter(ctx, ccID)
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = s.Read(ctx, func(tx store.Tx) error {
		got, err := tx.Transaction(ctx, txnID)
		if err != nil {
			t.Fatal(err)
		}
		if got.CostCenter != nil {
			t.Errorf("cost center = %v, want nil", got.CostCenter)
		}
		if _, err := tx.CostCenter(ctx, ccID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		return nil
	})
}
