// Package eligibility maps a date of birth to the age categories a player may
// enter.
//
// The policy is a two-category band: the youngest category whose cutoff the
// birth date satisfies, plus the next older one when it exists. A player born
// in 2015 or later may enter U11 and U13, one born in 2013-2014 U13 and U15,
// and so on; the oldest category has no upper neighbour. Birth dates before
// the earliest cutoff, or in the future, are not eligible for anything.
//
// Dates are compared on their calendar fields only: the year, month and day of
// the value in its own location are re-anchored to midnight UTC.
package eligibility

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"pjc-registration/internal/config"
)

type Resolver struct {
	categories []config.Category // youngest first
	now        func() time.Time
}

type Option func(*Resolver)

// WithClock replaces time.Now as the source of "today".
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func New(categories []config.Category, opts ...Option) *Resolver {
	sorted := append([]config.Category(nil), categories...)
	for i := range sorted {
		sorted[i].Cutoff = Normalize(sorted[i].Cutoff)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Cutoff.After(sorted[j].Cutoff) })
	r := &Resolver{categories: sorted, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Normalize drops the clock time and location of t, keeping its calendar date.
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// EligibleCategories returns the ordered category labels open to a player
// born on dob. A zero dob yields an empty set.
func (r *Resolver) EligibleCategories(dob time.Time) []string {
	if dob.IsZero() {
		return nil
	}
	d := Normalize(dob)
	if d.After(Normalize(r.now())) {
		return nil
	}
	for i, c := range r.categories {
		if d.Before(c.Cutoff) {
			continue
		}
		band := []string{c.Label}
		if i+1 < len(r.categories) {
			band = append(band, r.categories[i+1].Label)
		}
		return band
	}
	return nil
}

// IsEligible reports whether label is open to a player born on dob.
func (r *Resolver) IsEligible(dob time.Time, label string) bool {
	return lo.Contains(r.EligibleCategories(dob), label)
}
