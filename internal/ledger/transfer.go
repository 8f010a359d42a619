package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"finance-ledger-backend/internal/filter"
	"finance-ledger-backend/internal/model"
	"finance-ledger-backend/internal/store"
)

// maxImportErrors caps how many bad rows a rejected import reports.
const maxImportErrors = 20

// Import stores normalized records as one unit of work: either every record
// is stored or none is. It returns the number of stored transactions.
func (s *Service) Import(ctx context.Context, records []model.Record) (int, error) {
	rows := make([]prepared, 0, len(records))
	var errs []error
	for i, r := range records {
		amount := r.Amount
		p, err := NewTransaction{
			Date:            r.Date,
			Description:     r.Description,
			Amount:          &amount,
			Account:         r.Account,
			CostCenter:      r.CostCenter,
			SpendCategories: r.SpendCategories,
		}.prepare()
		if err != nil {
			if len(errs) < maxImportErrors {
				errs = append(errs, fmt.Errorf("record %d: %w", i+1, err))
			}
			continue
		}
		rows = append(rows, p)
	}
	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}

	err := s.store.Atomic(ctx, func(tx store.Tx) error {
		for i, p := range rows {
			if _, err := insert(ctx, tx, p); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}
	s.logger.Info("transactions imported", "count", len(rows))
	return len(rows), nil
}

// ExportFormat is a serialization of Export.
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// Valid reports whether f is a known format.
func (f ExportFormat) Valid() bool { return f == FormatCSV || f == FormatJSON }

// ContentType is the media type of f.
func (f ExportFormat) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Export streams the transactions matching c to w, row by row. Pagination
// in c is ignored. It returns the number of rows written.
func (s *Service) Export(ctx context.Context, c filter.Criteria, format ExportFormat, w io.Writer) (int, error) {
	if !format.Valid() {
		return 0, model.Invalid("format", "must be one of csv, json")
	}
	if err := c.Validate(s.today()); err != nil {
		return 0, err
	}

	var enc rowEncoder
	if format == FormatJSON {
		enc = &jsonRows{w: w}
	} else {
		enc = &csvRows{w: csv.NewWriter(w)}
	}

	n := 0
	err := s.store.Read(ctx, func(tx store.Tx) error {
		if err := enc.begin(); err != nil {
			return err
		}
		err := tx.EachTransaction(ctx, filter.Compile(c.Unpaged()), func(t model.Transaction) error {
			n++
			return enc.row(t)
		})
		if err != nil {
			return err
		}
		return enc.end()
	})
	if err != nil {
		return n, fmt.Errorf("export: %w", err)
	}
	return n, nil
}

type rowEncoder interface {
	begin() error
	row(t model.Transaction) error
	end() error
}

type csvRows struct {
	w *csv.Writer
}

func (e *csvRows) begin() error { return e.w.Write(model.ExportHeader) }

func (e *csvRows) row(t model.Transaction) error {
	return e.w.Write(model.NewExportRow(t).Strings())
}

func (e *csvRows) end() error {
	e.w.Flush()
	return e.w.Error()
}

// jsonRows writes a JSON array one element at a time.
type jsonRows struct {
	w    io.Writer
	rows int
}

func (e *jsonRows) begin() error {
	_, err := io.WriteString(e.w, "[")
	return err
}

func (e *jsonRows) row(t model.Transaction) error {
	if t.SpendCategories == nil {
		t.SpendCategories = []model.SpendCategory{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if e.rows > 0 {
		if _, err := io.WriteString(e.w, ",\n"); err != nil {
			return err
		}
	}
	e.rows++
	_, err = e.w.Write(b)
	return err
}

func (e *jsonRows) end() error {
	_, err := io.WriteString(e.w, "]\n")
	return err
}
