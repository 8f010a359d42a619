package ingest

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"finance-ledger-backend/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParseInstitution(t *testing.T) {
	tests := []struct {
		in   string
		want Institution
		ok   bool
	}{
		{"discover", Discover, true},
		{" Discover ", Discover, true},
		{"Schwab Checking", Schwab, true},
		{"schwab", Schwab, true},
		{"CUSTOM", Custom, true},
		{"chase", "", false},
	}
	for _, tt := range tests {
		got, err := ParseInstitution(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("ParseInstitution(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDiscover(t *testing.T) {
	in := "\ufeffTrans. Date,Post Date,Description,Amount,Category\n" +
		"01/02/2025,01/03/2025,GROCERY OUTLET,\"$1,050.25\",Supermarkets\n" +
		"01/05/2025,01/05/2025,INTERNET PAYMENT - THANK YOU,-200.00,\n" +
		",,,,\n"

	res, err := Parse(strings.NewReader(in), Discover)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %+v", res.Records)
	}

	charge := res.Records[0]
	if charge.Date.String() != "2025-01-02" || charge.Account != DiscoverAccount || charge.Description != "GROCERY OUTLET" {
		t.Errorf("charge = %+v", charge)
	}
	if !charge.Amount.Equal(dec("-1050.25")) {
		t.Errorf("charge amount = %s, want -1050.25", charge.Amount)
	}
	if charge.CostCenter == nil || *charge.CostCenter != "Supermarkets" {
		t.Errorf("cost center = %v", charge.CostCenter)
	}

	payment := res.Records[1]
	if !payment.Amount.Equal(dec("200")) || payment.CostCenter != nil {
		t.Errorf("payment = %+v", payment)
	}
}

func TestSchwab(t *testing.T) {
	in := "\"Date\",\"Status\",\"Type\",\"CheckNumber\",\"Description\",\"Withdrawal\",\"Deposit\",\"RunningBalance\"\n" +
		"\"02/01/2025\",\"Posted\",\"ACH\",\"\",\"RENT\",\"$1,500.00\",\"\",\"$3,000.00\"\n" +
		"\"02/03/2025\",\"Posted\",\"ACH\",\"\",\"PAYROLL\",\"\",\"$2,400.10\",\"$5,400.10\"\n"

	res, err := Parse(strings.NewReader(in), Schwab)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("records = %+v", res.Records)
	}
	if r := res.Records[0]; !r.Amount.Equal(dec("-1500")) || r.Account != SchwabAccount || r.CostCenter != nil {
		t.Errorf("withdrawal = %+v", r)
	}
	if r := res.Records[1]; !r.Amount.Equal(dec("2400.10")) || r.Date.String() != "2025-02-03" {
		t.Errorf("deposit = %+v", r)
	}
}

func TestHeaderWhitespaceIsIgnored(t *testing.T) {
	in := "\"Trans.\nDate\", Description ,Amount,Cate gory\n01/02/2025,X,1.00,Food\n"
	res, err := Parse(strings.NewReader(in), Discover)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("records = %+v", res.Records)
	}
}

func TestMissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("Date,Description,Amount\n"), Schwab)
	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if !strings.Contains(verr.Message, "Withdrawal") || !strings.Contains(verr.Message, "Deposit") {
		t.Errorf("message = %q", verr.Message)
	}

	if _, err := Parse(strings.NewReader(""), Discover); !errors.As(err, &verr) {
		t.Errorf("empty file err = %v", err)
	}
}

func TestBankFormatFailsOnBadRow(t *testing.T) {
	in := "Trans. Date,Description,Amount,Category\n2025-01-02,X,1.00,Food\n"
	_, err := Parse(strings.NewReader(in), Discover)
	var rowErr *RowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("err = %v, want RowError", err)
	}
	if rowErr.Line != 2 {
		t.Errorf("line = %d, want 2", rowErr.Line)
	}
}

func TestCustomRoundTrip(t *testing.T) {
	in := strings.Join(model.ExportHeader, ",") + "\n" +
		"7,2025-03-01,Lunch,-12.50,Discover,Meals,\"Restaurants, Work\"\n" +
		"8,03/02/2025,Refund,4.00,Schwab Checking,uncategorized,Uncategorized\n" +
		"9,not a date,Broken,1.00,Discover,Meals,\n" +
		"10,2025-03-04,Bad amount,abc,Discover,Meals,\n"

	res, err := Parse(strings.NewReader(in), Custom)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 || len(res.Skipped) != 2 {
		t.Fatalf("records = %+v skipped = %v", res.Records, res.Skipped)
	}
	if res.Skipped[0].Line != 4 || res.Skipped[1].Line != 5 {
		t.Errorf("skipped lines = %d, %d", res.Skipped[0].Line, res.Skipped[1].Line)
	}

	lunch := res.Records[0]
	if lunch.CostCenter == nil || *lunch.CostCenter != "Meals" {
		t.Errorf("cost center = %v", lunch.CostCenter)
	}
	if !slices.Equal(lunch.SpendCategories, []string{"Restaurants", "Work"}) {
		t.Errorf("spend categories = %v", lunch.SpendCategories)
	}
	if !lunch.Amount.Equal(dec("-12.5")) || lunch.Account != "Discover" {
		t.Errorf("lunch = %+v", lunch)
	}

	refund := res.Records[1]
	if refund.Date.String() != "2025-03-02" || refund.CostCenter != nil || len(refund.SpendCategories) != 0 {
		t.Errorf("refund = %+v", refund)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"$1,234.56", "1234.56", true},
		{" -7 ", "-7", true},
		{"", "0", true},
		{"$", "0", true},
		{"12abc", "", false},
	}
	for _, tt := range tests {
		got, err := parseAmount(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseAmount(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && !got.Equal(dec(tt.want)) {
			t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
