package eligibility

import (
	"strings"
	"testing"
	"time"

	"pjc-registration/internal/config"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }
}

func newResolver() *Resolver {
	return New(config.DefaultCatalog().Categories, WithClock(fixedClock()))
}

func date(s string) time.Time {
	d, err := config.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEligibleCategoriesBands(t *testing.T) {
	t.Parallel()

	r := newResolver()
	cases := []struct {
		dob  string
		want string
	}{
		{"2015-06-01", "Under 11 (U11),Under 13 (U13)"},
		{"2015-01-01", "Under 11 (U11),Under 13 (U13)"},
		{"2014-12-31", "Under 13 (U13),Under 15 (U15)"},
		{"2013-01-01", "Under 13 (U13),Under 15 (U15)"},
		{"2012-07-15", "Under 15 (U15),Under 17 (U17)"},
		{"2011-01-01", "Under 15 (U15),Under 17 (U17)"},
		{"2010-03-03", "Under 17 (U17)"},
		{"2009-01-01", "Under 17 (U17)"},
		{"2008-12-31", ""},
		{"2008-01-01", ""},
	}
	for _, tc := range cases {
		got := strings.Join(r.EligibleCategories(date(tc.dob)), ",")
		if got != tc.want {
			t.Fatalf("EligibleCategories(%s) = %q, want %q", tc.dob, got, tc.want)
		}
	}
}

func TestEligibleCategoriesAbsentAndFuture(t *testing.T) {
	t.Parallel()

	r := newResolver()
	if got := r.EligibleCategories(time.Time{}); len(got) != 0 {
		t.Fatalf("zero dob = %v, want empty", got)
	}
	if got := r.EligibleCategories(date("2026-10-17")); len(got) != 0 {
		t.Fatalf("future dob = %v, want empty", got)
	}
	if got := r.EligibleCategories(date("2026-10-16")); len(got) != 2 {
		t.Fatalf("today dob = %v, want U11 band", got)
	}
}

func TestEligibleCategoriesIgnoresClockTime(t *testing.T) {
	t.Parallel()

	r := newResolver()
	// 23:30 on 2014-12-31 in UTC+5:30 is still 2014-12-31 on the calendar.
	ist := time.FixedZone("IST", 5*3600+1800)
	dob := time.Date(2014, 12, 31, 23, 30, 0, 0, ist)
	if got := r.EligibleCategories(dob); got[0] != "Under 13 (U13)" {
		t.Fatalf("EligibleCategories = %v, want U13 band", got)
	}
}

func TestNewSortsUnorderedCategories(t *testing.T) {
	t.Parallel()

	cats := []config.Category{
		{Label: "U17", Cutoff: date("2009-01-01")},
		{Label: "U11", Cutoff: date("2015-01-01")},
		{Label: "U13", Cutoff: date("2013-01-01")},
	}
	r := New(cats, WithClock(fixedClock()))
	if got := strings.Join(r.EligibleCategories(date("2015-03-03")), ","); got != "U11,U13" {
		t.Fatalf("EligibleCategories(2015) = %q", got)
	}
	if got := r.EligibleCategories(date("2008-12-31")); len(got) != 0 {
		t.Fatalf("EligibleCategories(2008) = %v", got)
	}
	if !r.IsEligible(date("2013-05-05"), "U17") {
		t.Fatal("expected U17 to be open to a 2013 birth with U15 missing")
	}
}
