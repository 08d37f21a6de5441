// Package amount parses user-entered token amounts and converts them to
// on-chain base units.
package amount

import (
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"presale/pkg/models"
)

var decimalComma = regexp.MustCompile(`^\d+,\d+$`)

const invalidAmount = "Enter a valid amount."

// Parse reads a positive amount. "10,5" is read as 10.5; otherwise commas
// are treated as thousands separators and dropped.
func Parse(text string) (decimal.Decimal, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return decimal.Zero, models.ValidationError("amount", invalidAmount)
	}
	if decimalComma.MatchString(s) {
		s = strings.Replace(s, ",", ".", 1)
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, models.NewError(models.KindValidation, "amount", invalidAmount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, models.ValidationError("amount", invalidAmount)
	}
	return d, nil
}

// ToUnits converts d to base units for a token with the given decimals.
func ToUnits(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, models.ValidationError("amount", "Too many decimal places for this token.")
	}
	return scaled.BigInt(), nil
}

// ParseUnits is Parse followed by ToUnits.
func ParseUnits(text string, decimals uint8) (*big.Int, decimal.Decimal, error) {
	d, err := Parse(text)
	if err != nil {
		return nil, decimal.Zero, err
	}
	units, err := ToUnits(d, decimals)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return units, d, nil
}

// FromUnits converts base units back to a token amount.
func FromUnits(units *big.Int, decimals uint8) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -int32(decimals))
}
