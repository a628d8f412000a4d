package pricing

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// minorPerMajor is the number of gateway minor units (paise) per rupee.
var minorPerMajor = decimal.NewFromInt(100)

type Calculator struct {
	UnitFee int64
}

func New(unitFee int64) Calculator {
	return Calculator{UnitFee: unitFee}
}

// Price is the entry fee for the given categories; duplicates count once.
func (c Calculator) Price(categories []string) int64 {
	n := len(lo.Uniq(lo.Compact(categories)))
	return decimal.NewFromInt(c.UnitFee).Mul(decimal.NewFromInt(int64(n))).IntPart()
}

// ToMinorUnits converts whole currency units to the gateway's minor units.
func ToMinorUnits(amount int64) int64 {
	return decimal.NewFromInt(amount).Mul(minorPerMajor).IntPart()
}

// FromMinorUnits converts gateway minor units back to a decimal amount.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.NewFromInt(minor).Div(minorPerMajor)
}

// Format renders a whole-unit amount for display, e.g. "2000.00 INR".
func Format(amount int64, currency string) string {
	return decimal.NewFromInt(amount).StringFixed(2) + " " + currency
}

// FormatMinor renders a minor-unit amount for display.
func FormatMinor(minor int64, currency string) string {
	return FromMinorUnits(minor).StringFixed(2) + " " + currency
}
