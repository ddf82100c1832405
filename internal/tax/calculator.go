// Package tax computes per-line and document-level amounts.
//
// All arithmetic runs at full decimal precision; values are rounded to two
// decimals only when written back onto lines and totals, and document totals
// are summed over the unrounded per-line amounts so rounding drift cannot
// accumulate across lines.
package tax

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNoChargeableLine = errors.New("no_chargeable_line")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidTaxRate   = errors.New("invalid_tax_rate")
)

// Line is one raw document line before computation.
type Line struct {
	Description string
	Quantity    decimal.Decimal
	Unit        string
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal // percentage, e.g. 20 for 20%
}

// ComputedLine carries the three derived, persisted amounts.
type ComputedLine struct {
	Line

	TotalHT  decimal.Decimal
	TotalTax decimal.Decimal
	TotalTTC decimal.Decimal
}

// Totals are the document-level sums.
type Totals struct {
	TotalHT  decimal.Decimal
	TotalTax decimal.Decimal
	TotalTTC decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Compute validates raw lines and derives line and document amounts.
// Zero-quantity or zero-price lines are allowed and contribute zero, but at
// least one line must carry a positive unit price.
func Compute(lines []Line) ([]ComputedLine, Totals, error) {
	if err := Validate(lines); err != nil {
		return nil, Totals{}, err
	}

	computed := make([]ComputedLine, 0, len(lines))
	sumHT := decimal.Zero
	sumTax := decimal.Zero

	for _, line := range lines {
		lineHT := line.Quantity.Mul(line.UnitPrice)
		lineTax := lineHT.Mul(line.TaxRate).Div(hundred)

		sumHT = sumHT.Add(lineHT)
		sumTax = sumTax.Add(lineTax)

		computed = append(computed, ComputedLine{
			Line:     line,
			TotalHT:  lineHT.Round(2),
			TotalTax: lineTax.Round(2),
			TotalTTC: lineHT.Add(lineTax).Round(2),
		})
	}

	totalHT := sumHT.Round(2)
	totalTax := sumTax.Round(2)
	totals := Totals{
		TotalHT:  totalHT,
		TotalTax: totalTax,
		TotalTTC: totalHT.Add(totalTax),
	}
	return computed, totals, nil
}

// Validate rejects malformed lines without computing anything.
func Validate(lines []Line) error {
	if len(lines) == 0 {
		return ErrNoChargeableLine
	}

	chargeable := false
	for _, line := range lines {
		if line.Quantity.IsNegative() {
			return ErrInvalidQuantity
		}
		if line.UnitPrice.IsNegative() {
			return ErrInvalidUnitPrice
		}
		if line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(hundred) {
			return ErrInvalidTaxRate
		}
		if line.UnitPrice.IsPositive() {
			chargeable = true
		}
	}
	if !chargeable {
		return ErrNoChargeableLine
	}
	return nil
}
