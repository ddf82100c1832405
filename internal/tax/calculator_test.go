package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func TestComputeSingleLine(t *testing.T) {
	lines := []Line{
		{Description: "Développement", Quantity: dec("2"), UnitPrice: dec("100.00"), TaxRate: dec("20")},
	}

	computed, totals, err := Compute(lines)
	require.NoError(t, err)
	require.Len(t, computed, 1)

	require.True(t, computed[0].TotalHT.Equal(dec("200.00")), "got %s", computed[0].TotalHT)
	require.True(t, computed[0].TotalTax.Equal(dec("40.00")))
	require.True(t, computed[0].TotalTTC.Equal(dec("240.00")))

	require.True(t, totals.TotalHT.Equal(dec("200.00")))
	require.True(t, totals.TotalTax.Equal(dec("40.00")))
	require.True(t, totals.TotalTTC.Equal(dec("240.00")))
}

func TestComputeSumsUnroundedLineValues(t *testing.T) {
	// Each line is 0.333... HT before rounding; a sum of rounded lines would
	// drift from the true total.
	lines := []Line{
		{Quantity: dec("0.333"), UnitPrice: dec("1.00"), TaxRate: dec("20")},
		{Quantity: dec("0.333"), UnitPrice: dec("1.00"), TaxRate: dec("20")},
		{Quantity: dec("0.334"), UnitPrice: dec("1.00"), TaxRate: dec("20")},
	}

	_, totals, err := Compute(lines)
	require.NoError(t, err)

	require.True(t, totals.TotalHT.Equal(dec("1.00")), "got %s", totals.TotalHT)
	require.True(t, totals.TotalTax.Equal(dec("0.20")), "got %s", totals.TotalTax)
	require.True(t, totals.TotalTTC.Equal(totals.TotalHT.Add(totals.TotalTax)))
}

func TestComputeZeroLinesContributeNothing(t *testing.T) {
	lines := []Line{
		{Quantity: dec("0"), UnitPrice: dec("50.00"), TaxRate: dec("20")},
		{Quantity: dec("1"), UnitPrice: dec("0"), TaxRate: dec("20")},
		{Quantity: dec("3"), UnitPrice: dec("10.00"), TaxRate: dec("10")},
	}

	computed, totals, err := Compute(lines)
	require.NoError(t, err)
	require.True(t, computed[0].TotalHT.IsZero())
	require.True(t, computed[1].TotalTTC.IsZero())
	require.True(t, totals.TotalHT.Equal(dec("30.00")))
	require.True(t, totals.TotalTax.Equal(dec("3.00")))
	require.True(t, totals.TotalTTC.Equal(dec("33.00")))
}

func TestValidateRejectsEmptyAndFreeDocuments(t *testing.T) {
	require.ErrorIs(t, Validate(nil), ErrNoChargeableLine)

	free := []Line{{Quantity: dec("1"), UnitPrice: dec("0"), TaxRate: dec("0")}}
	require.ErrorIs(t, Validate(free), ErrNoChargeableLine)
}

func TestValidateRejectsNegativeValues(t *testing.T) {
	cases := []struct {
		name string
		line Line
		want error
	}{
		{"negative quantity", Line{Quantity: dec("-1"), UnitPrice: dec("10"), TaxRate: dec("20")}, ErrInvalidQuantity},
		{"negative price", Line{Quantity: dec("1"), UnitPrice: dec("-10"), TaxRate: dec("20")}, ErrInvalidUnitPrice},
		{"negative rate", Line{Quantity: dec("1"), UnitPrice: dec("10"), TaxRate: dec("-1")}, ErrInvalidTaxRate},
		{"rate above 100", Line{Quantity: dec("1"), UnitPrice: dec("10"), TaxRate: dec("120")}, ErrInvalidTaxRate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, Validate([]Line{tc.line}), tc.want)
		})
	}
}
