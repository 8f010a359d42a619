package model

import (
	"strconv"
	"strings"
)

// SpendCategorySeparator joins spend category names in flat exports.
const SpendCategorySeparator = ", "

// ExportHeader is the column order of a flat export.
var ExportHeader = []string{"ID", "Date", "Description", "Amount", "Account", "Cost Center", "Spend Categories"}

// ExportRow is the flat, serialization-ready view of a transaction.
type ExportRow struct {
	ID              int64  `json:"id"`
	Date            string `json:"date"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	Account         string `json:"account"`
	CostCenter      string `json:"cost_center"`
	SpendCategories string `json:"spend_categories"`
}

// NewExportRow flattens t. Missing associations become Uncategorized.
func NewExportRow(t Transaction) ExportRow {
	cats := Uncategorized
	if len(t.SpendCategories) > 0 {
		cats = strings.Join(t.SpendCategoryNames(), SpendCategorySeparator)
	}
	return ExportRow{
		ID:              t.ID,
		Date:            t.Date.String(),
		Description:     t.Description,
		Amount:          t.Amount.StringFixed(2),
		Account:         t.Account,
		CostCenter:      t.CostCenterLabel(),
		SpendCategories: cats,
	}
}

// Strings returns the row in ExportHeader order.
func (r ExportRow) Strings() []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Date,
		r.Description,
		r.Amount,
		r.Account,
		r.CostCenter,
		r.SpendCategories,
	}
}
