package amount

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale/pkg/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10", "10"},
		{" 2.5 ", "2.5"},
		{"1,000.5", "1000.5"},
		{"10,5", "10.5"},
		{"1,000,000", "1000000"},
		{"0.000001", "0.000001"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "abc", "0", "-5", "1.2.3", "NaN", "Inf", "1e400x"} {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, models.IsKind(err, models.KindValidation))
			assert.Equal(t, "Enter a valid amount.", models.Message(err))
		})
	}
}

func TestToUnits(t *testing.T) {
	d, err := Parse("1,000.5")
	require.NoError(t, err)

	units, err := ToUnits(d, 18)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000500000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(units))

	units, err = ToUnits(d, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10005), units.Int64())

	_, err = ToUnits(d, 0)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.KindValidation))
}

func TestFromUnits(t *testing.T) {
	units, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FromUnits(units, 18).String())
	assert.True(t, FromUnits(nil, 18).IsZero())
}

func TestParseUnits(t *testing.T) {
	units, d, err := ParseUnits("10,5", 6)
	require.NoError(t, err)
	assert.Equal(t, "10.5", d.String())
	assert.Equal(t, int64(10500000), units.Int64())
}
