package sheets

import (
	"strings"
	"testing"
	"time"

	"pjc-registration/internal/models"
)

func TestRegistrationRowColumns(t *testing.T) {
	t.Parallel()

	reg := models.Registration{
		ID:        "REG-1",
		CreatedAt: "2026-10-16T10:00:00Z",
		Draft: models.Draft{
			TeamRepName:   "Asha Rao",
			DateOfBirth:   time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC),
			Categories:    []string{"Under 11 (U11)", "Under 13 (U13)"},
			RulesAccepted: true,
			TermsAccepted: true,
		},
		PaymentAmount: 2000,
		PayStatus:     models.PayStatusUnpaid,
	}
	row := registrationRow(reg)
	if len(row) != len(registrationHeader) {
		t.Fatalf("row has %d cells, header %d", len(row), len(registrationHeader))
	}
	// pay_status, order_id and payment_id are addressed by column letter
	for col, name := range map[string]string{colPayStatus: "pay_status", colOrderID: "order_id", colPayment: "payment_id"} {
		idx := int(col[0] - 'A')
		if registrationHeader[idx] != name {
			t.Fatalf("column %s = %v, want %s", col, registrationHeader[idx], name)
		}
	}

	// values come back from the API as strings
	cells := make([]interface{}, len(row))
	for i := range row {
		cells[i] = get(row, i)
	}
	got := parseRegistration(cells)
	if got.ID != "REG-1" || got.PaymentAmount != 2000 || got.PayStatus != models.PayStatusUnpaid {
		t.Fatalf("parsed = %+v", got)
	}
	if strings.Join(got.Draft.Categories, ",") != "Under 11 (U11),Under 13 (U13)" {
		t.Fatalf("categories = %v", got.Draft.Categories)
	}
	if !got.Draft.DateOfBirth.Equal(reg.Draft.DateOfBirth) {
		t.Fatalf("dob = %v", got.Draft.DateOfBirth)
	}
	if !got.Draft.RulesAccepted || got.Draft.AgreeTerms {
		t.Fatalf("acks = %v/%v", got.Draft.RulesAccepted, got.Draft.AgreeTerms)
	}
}

func TestParsePaidStatus(t *testing.T) {
	t.Parallel()

	row := make([]interface{}, 22)
	row[0] = "REG-2"
	row[19] = "paid"
	row[21] = "pay_1"
	got := parseRegistration(row)
	if got.PayStatus != models.PayStatusPaid || got.PaymentID != "pay_1" {
		t.Fatalf("parsed = %+v", got)
	}
}

func TestFindRow(t *testing.T) {
	t.Parallel()

	values := [][]interface{}{
		{"registration_id"},
		{"REG-1"},
		{},
		{"REG-3"},
	}
	if n := findRow(values, "REG-3"); n != 4 {
		t.Fatalf("findRow = %d, want 4", n)
	}
	if n := findRow(values, "registration_id"); n != 0 {
		t.Fatalf("header matched: %d", n)
	}
	if n := findRow(values, "REG-9"); n != 0 {
		t.Fatalf("missing = %d", n)
	}
}
