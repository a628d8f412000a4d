package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DateLayout is the layout used for every date-only value in configuration.
const DateLayout = "2006-01-02"

// Category is an age category and the earliest birth date it admits.
type Category struct {
	Label  string
	Cutoff time.Time
}

// Catalog is the championship reference data injected into the resolver,
// the pricing calculator and the form validator.
type Catalog struct {
	Cities     []string
	Genders    []string
	Categories []Category // youngest first
	UnitFee    int64
	Currency   string

	// DOBEarliest bounds the date of birth accepted by the form.
	DOBEarliest time.Time

	RulesText string
	TermsText string
}

const (
	defaultCities     = "Mumbai,Bangalore,Pune,Gurgao,Jaipur,Jalandar"
	defaultGenders    = "Male,Female"
	defaultCategories = "Under 11 (U11)=2015-01-01;Under 13 (U13)=2013-01-01;Under 15 (U15)=2011-01-01;Under 17 (U17)=2009-01-01"
)

// catalogEnv holds raw env values for the catalog.
type catalogEnv struct {
	Cities      []string `env:"CITIES" envSeparator:"," envDefault:"Mumbai,Bangalore,Pune,Gurgao,Jaipur,Jalandar"`
	Genders     []string `env:"GENDERS" envSeparator:"," envDefault:"Male,Female"`
	Categories  string   `env:"CATEGORIES" envDefault:"Under 11 (U11)=2015-01-01;Under 13 (U13)=2013-01-01;Under 15 (U15)=2011-01-01;Under 17 (U17)=2009-01-01"`
	UnitFee     int64    `env:"UNIT_FEE" envDefault:"1000"`
	Currency    string   `env:"CURRENCY" envDefault:"INR"`
	DOBEarliest string   `env:"DOB_EARLIEST" envDefault:"2005-01-01"`
}

func (raw catalogEnv) build() (Catalog, error) {
	cats, err := ParseCategories(raw.Categories)
	if err != nil {
		return Catalog{}, err
	}
	earliest, err := ParseDate(raw.DOBEarliest)
	if err != nil {
		return Catalog{}, fmt.Errorf("DOB_EARLIEST: %w", err)
	}
	c := Catalog{
		Cities:      trimList(raw.Cities),
		Genders:     trimList(raw.Genders),
		Categories:  cats,
		UnitFee:     raw.UnitFee,
		Currency:    strings.ToUpper(strings.TrimSpace(raw.Currency)),
		DOBEarliest: earliest,
		RulesText:   RulesText,
		TermsText:   TermsText,
	}
	return c, c.validate()
}

func (c Catalog) validate() error {
	var problems []string
	if len(c.Cities) == 0 {
		problems = append(problems, "CITIES is empty")
	}
	if len(c.Genders) == 0 {
		problems = append(problems, "GENDERS is empty")
	}
	if len(c.Categories) == 0 {
		problems = append(problems, "CATEGORIES is empty")
	}
	if c.UnitFee <= 0 {
		problems = append(problems, "UNIT_FEE must be positive")
	}
	if c.Currency == "" {
		problems = append(problems, "CURRENCY is empty")
	}
	if len(problems) > 0 {
		return fmt.Errorf("catalog: %s", strings.Join(problems, ", "))
	}
	return nil
}

// DefaultCatalog returns the championship defaults without reading the environment.
func DefaultCatalog() Catalog {
	c, err := catalogEnv{
		Cities:      strings.Split(defaultCities, ","),
		Genders:     strings.Split(defaultGenders, ","),
		Categories:  defaultCategories,
		UnitFee:     1000,
		Currency:    "INR",
		DOBEarliest: "2005-01-01",
	}.build()
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCategories reads "label=YYYY-MM-DD;label=YYYY-MM-DD" and returns the
// categories sorted youngest first (latest cutoff first).
func ParseCategories(raw string) ([]Category, error) {
	var out []Category
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		label, date, ok := strings.Cut(part, "=")
		label = strings.TrimSpace(label)
		if !ok || label == "" {
			return nil, fmt.Errorf("CATEGORIES: bad entry %q", part)
		}
		cutoff, err := ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("CATEGORIES: %s: %w", label, err)
		}
		if seen[label] {
			return nil, fmt.Errorf("CATEGORIES: duplicate label %q", label)
		}
		seen[label] = true
		out = append(out, Category{Label: label, Cutoff: cutoff})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cutoff.After(out[j].Cutoff) })
	return out, nil
}

// ParseDate parses a date-only value anchored at midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

const RulesText = `Player count: matches are played 6 a side with 3 rolling substitutes.
Substitutes must be listed before the match and enter from the halfway line with the referee's approval.
Players must wear jerseys, shorts, shin guards covered by socks, and cleats.
The referee's decisions are final; dissent may lead to cards or suspension.
Match duration: U11 to U17 play two halves of 8 minutes with a 2 minute break; knockouts play two halves of 10 minutes.
No offside. Throw-ins are replaced by kick-ins.
Yellow card: 2 minutes sidelined. Red card: sent off and suspended for the next game.
Walkover: a 15 minute grace period, then a 3-0 walkover.
If a category has fewer than 8 teams the committee may merge or cancel it; affected teams may upgrade or be refunded.`

const TermsText = `Registration is confirmed only after the payment is verified.
Fees are charged per category and are non-refundable except where a category is cancelled.
The information provided must be true and accurate; false information may lead to disqualification.
Organisers may use match photographs for championship communication.`
