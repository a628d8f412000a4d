package pricing

import "testing"

func TestPrice(t *testing.T) {
	t.Parallel()

	c := New(1000)
	cases := []struct {
		name string
		in   []string
		want int64
	}{
		{"empty", nil, 0},
		{"one", []string{"Under 11 (U11)"}, 1000},
		{"two", []string{"Under 11 (U11)", "Under 13 (U13)"}, 2000},
		{"duplicate counts once", []string{"Under 11 (U11)", "Under 11 (U11)"}, 1000},
		{"blank ignored", []string{"", "Under 17 (U17)"}, 1000},
	}
	for _, tc := range cases {
		if got := c.Price(tc.in); got != tc.want {
			t.Fatalf("%s: Price = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestPriceScalesWithUnitFee(t *testing.T) {
	t.Parallel()

	for fee := int64(1); fee <= 5000; fee *= 7 {
		c := New(fee)
		if got := c.Price([]string{"a", "b", "c"}); got != 3*fee {
			t.Fatalf("fee %d: Price = %d, want %d", fee, got, 3*fee)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	t.Parallel()

	if got := ToMinorUnits(2000); got != 200000 {
		t.Fatalf("ToMinorUnits = %d", got)
	}
	if got := FromMinorUnits(150050).String(); got != "1500.5" {
		t.Fatalf("FromMinorUnits = %s", got)
	}
	if got := FormatMinor(200000, "INR"); got != "2000.00 INR" {
		t.Fatalf("FormatMinor = %q", got)
	}
	if got := Format(1000, "INR"); got != "1000.00 INR" {
		t.Fatalf("Format = %q", got)
	}
}
