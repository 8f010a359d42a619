// Package ingest turns bank and card CSV exports into normalized ledger
// records. Amounts come out with the ledger's sign convention applied:
// negative is an expense, positive is income or a credit.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"finance-ledger-backend/internal/model"
)

// Institution names a supported export format.
type Institution string

const (
	Discover Institution = "discover"
	Schwab   Institution = "schwab"
	Custom   Institution = "custom"
)

// Account names assigned by the fixed-account adapters.
const (
	DiscoverAccount = "Discover"
	SchwabAccount   = "Schwab Checking"
)

// Institutions lists the accepted institution names.
func Institutions() []Institution {
	return []Institution{Discover, Schwab, Custom}
}

// ParseInstitution resolves a user-supplied institution name.
func ParseInstitution(name string) (Institution, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "discover":
		return Discover, nil
	case "schwab", "schwab checking":
		return Schwab, nil
	case "custom":
		return Custom, nil
	}
	return "", model.Invalid("institution", "no parser available for %q (want discover, schwab or custom)", name)
}

// RowError is a data row that could not be parsed.
type RowError struct {
	Line int   `json:"line"`
	Err  error `json:"-"`
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *RowError) Unwrap() error { return e.Err }

// Result is the outcome of parsing one file. Skipped is only populated by
// lenient formats; the bank formats fail on the first bad row.
type Result struct {
	Records []model.Record
	Skipped []*RowError
}

// Parse reads a CSV export of the given institution.
func Parse(r io.Reader, inst Institution) (*Result, error) {
	var (
		source   string
		required []string
		row      func(t *table, fields []string) (model.Record, error)
		lenient  bool
	)
	switch inst {
	case Discover:
		source, required, row = "Discover", []string{"Trans. Date", "Description", "Amount", "Category"}, discoverRow
	case Schwab:
		source, required, row = "Schwab Checking", []string{"Date", "Description", "Withdrawal", "Deposit"}, schwabRow
	case Custom:
		source, required, row = "Custom Export", []string{"Date", "Description", "Amount", "Account", "Cost Center", "Spend Categories"}, customRow
		lenient = true
	default:
		return nil, model.Invalid("institution", "no parser available for %q", inst)
	}

	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1

	t, err := readHeader(cr, source, required)
	if err != nil {
		return nil, err
	}

	res := &Result{Records: []model.Record{}}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s csv: %w", source, err)
		}
		line, _ := cr.FieldPos(0)
		if blank(fields) {
			continue
		}
		rec, err := row(t, fields)
		if err != nil {
			rowErr := &RowError{Line: line, Err: err}
			if !lenient {
				return nil, rowErr
			}
			res.Skipped = append(res.Skipped, rowErr)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// table maps cleaned header names to column positions.
type table struct {
	cols map[string]int
}

func (t *table) get(fields []string, header string) string {
	i, ok := t.cols[cleanHeader(header)]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func readHeader(cr *csv.Reader, source string, required []string) (*table, error) {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.Invalid("file", "CSV file appears to be empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", source, err)
	}

	t := &table{cols: make(map[string]int, len(header))}
	for i, h := range header {
		if c := cleanHeader(h); c != "" {
			if _, dup := t.cols[c]; !dup {
				t.cols[c] = i
			}
		}
	}
	var missing []string
	for _, h := range required {
		if _, ok := t.cols[cleanHeader(h)]; !ok {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, model.Invalid("file", "CSV file does not look like a %s export, missing columns: %s (found: %s)",
			source, strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	return t, nil
}

// cleanHeader drops byte order marks and every whitespace character, so
// headers with stray spaces or line breaks still match.
func cleanHeader(h string) string {
	h = strings.NewReplacer("\ufeff", "", "\ufffe", "").Replace(h)
	return strings.Join(strings.Fields(h), "")
}

func blank(fields []string) bool {
	return !slices.ContainsFunc(fields, func(f string) bool { return strings.TrimSpace(f) != "" })
}

var currencyJunk = regexp.MustCompile(`[$,\s]`)

// parseAmount reads a currency cell such as "$1,234.50". Blank cells are
// zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = currencyJunk.ReplaceAllString(s, "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

const usDateLayout = "01/02/2006"

func parseUSDate(s string) (model.Date, error) {
	t, err := time.Parse(usDateLayout, s)
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid date %q, want MM/DD/YYYY", s)
	}
	return model.DateOf(t), nil
}

func discoverRow(t *table, fields []string) (model.Record, error) {
	d, err := parseUSDate(t.get(fields, "Trans. Date"))
	if err != nil {
		return model.Record{}, err
	}
	amount, err := parseAmount(t.get(fields, "Amount"))
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{
		Date:        d,
		Description: t.get(fields, "Description"),
		// Discover reports charges as positive and credits as negative.
		Amount:  amount.Neg(),
		Account: DiscoverAccount,
	}
	if cc := t.get(fields, "Category"); cc != "" {
		rec.CostCenter = &cc
	}
	return rec, nil
}

func schwabRow(t *table, fields []string) (model.Record, error) {
	d, err := parseUSDate(t.get(fields, "Date"))
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{
		Date:        d,
		Description: t.get(fields, "Description"),
		Account:     SchwabAccount,
	}
	if w := t.get(fields, "Withdrawal"); w != "" {
		amount, err := parseAmount(w)
		if err != nil {
			return model.Record{}, err
		}
		rec.Amount = amount.Abs().Neg()
	} else if dep := t.get(fields, "Deposit"); dep != "" {
		amount, err := parseAmount(dep)
		if err != nil {
			return model.Record{}, err
		}
		rec.Amount = amount.Abs()
	}
	return rec, nil
}

func customRow(t *table, fields []string) (model.Record, error) {
	raw := t.get(fields, "Date")
	d, err := model.ParseDate(raw)
	if err != nil {
		if d, err = parseUSDate(raw); err != nil {
			return model.Record{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD or MM/DD/YYYY", raw)
		}
	}
	amount, err := parseAmount(t.get(fields, "Amount"))
	if err != nil {
		return model.Record{}, err
	}
	rec := model.Record{
		Date:        d,
		Description: t.get(fields, "Description"),
		Amount:      amount,
		Account:     t.get(fields, "Account"),
	}
	if cc := t.get(fields, "Cost Center"); cc != "" && !strings.EqualFold(cc, model.Uncategorized) {
		rec.CostCenter = &cc
	}
	if cats := t.get(fields, "Spend Categories"); cats != "" && !strings.EqualFold(cats, model.Uncategorized) {
		for _, c := range strings.Split(cats, ",") {
			if c = strings.TrimSpace(c); c != "" {
				rec.SpendCategories = append(rec.SpendCategories, c)
			}
		}
	}
	return rec, nil
}
