package model

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCleanNames(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil defaults", nil, []string{Uncategorized}},
		{"blank defaults", []string{" ", ""}, []string{Uncategorized}},
		{"trim and dedupe", []string{" Food", "Food ", "Bar"}, []string{"Food", "Bar"}},
		{"case sensitive", []string{"food", "Food"}, []string{"food", "Food"}},
		{"first seen order", []string{"B", "A", "B"}, []string{"B", "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanNames(tt.in); !slices.Equal(got, tt.want) {
				t.Errorf("CleanNames(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"plain", "Meals", false},
		{"punctuation", "Bob's Car/Gas & Tolls - Misc", false},
		{"empty", "", true},
		{"too long", string(make([]byte, 51)), true},
		{"bad charset", "Food!", true},
		{"exactly fifty", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("name", tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateName(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			var verr *ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("   "); got != Uncategorized {
		t.Errorf("blank name = %q, want %q", got, Uncategorized)
	}
	if got := NormalizeName("  Car "); got != "Car" {
		t.Errorf("NormalizeName = %q, want Car", got)
	}
}

func TestDateScanAndJSON(t *testing.T) {
	var d Date
	if err := d.Scan("2025-02-05"); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if d.String() != "2025-02-05" {
		t.Errorf("got %s", d)
	}
	if err := d.Scan(time.Date(2025, 3, 1, 15, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("scan time: %v", err)
	}
	if d.String() != "2025-03-01" {
		t.Errorf("got %s", d)
	}
	if err := d.Scan([]byte("2025-04-01 00:00:00+00:00")); err != nil {
		t.Fatalf("scan bytes: %v", err)
	}
	if d.String() != "2025-04-01" {
		t.Errorf("got %s", d)
	}
	if err := d.Scan(nil); err == nil {
		t.Error("expected error scanning NULL")
	}

	b, err := json.Marshal(NewDate(2025, time.January, 2))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"2025-01-02"` {
		t.Errorf("marshal = %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.Compare(NewDate(2025, time.January, 2)) != 0 {
		t.Errorf("unmarshal = %s", back)
	}
	if err := json.Unmarshal([]byte(`"01/02/2025"`), &back); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestNewExportRow(t *testing.T) {
	txn := Transaction{
		ID:          7,
		Date:        NewDate(2025, time.January, 2),
		Description: "Whole Foods",
		Amount:      decimal.RequireFromString("-50"),
		Account:     "Schwab Checking",
	}
	row := NewExportRow(txn)
	want := []string{"7", "2025-01-02", "Whole Foods", "-50.00", "Schwab Checking", Uncategorized, Uncategorized}
	if got := row.Strings(); !slices.Equal(got, want) {
		t.Errorf("row = %q, want %q", got, want)
	}

	txn.CostCenter = &CostCenter{ID: 1, Name: "Food"}
	txn.SpendCategories = []SpendCategory{{ID: 1, Name: "Groceries"}, {ID: 2, Name: "Weekly"}}
	row = NewExportRow(txn)
	if row.CostCenter != "Food" || row.SpendCategories != "Groceries, Weekly" {
		t.Errorf("row = %+v", row)
	}
}
