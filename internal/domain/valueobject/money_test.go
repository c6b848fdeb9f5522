package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-engine/internal/pkg/apperror"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNewSplit(t *testing.T) {
	cases := []struct {
		total, pct, commission, rest string
	}{
		{"1000000.00", "10", "100000.00", "900000.00"},
		{"100.00", "0", "0.00", "100.00"},
		{"100.00", "100", "100.00", "0.00"},
		{"0.05", "10", "0.01", "0.04"},
		{"333.33", "7.5", "25.00", "308.33"},
	}

	for _, tc := range cases {
		split := NewSplit(dec(tc.total), dec(tc.pct))
		assert.True(t, dec(tc.commission).Equal(split.Commission), "%s @ %s%%: commission %s", tc.total, tc.pct, split.Commission)
		assert.True(t, dec(tc.rest).Equal(split.Rest), "%s @ %s%%: rest %s", tc.total, tc.pct, split.Rest)
		assert.True(t, dec(tc.total).Equal(split.Commission.Add(split.Rest)))
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("400000.50")
	require.NoError(t, err)
	assert.True(t, dec("400000.5").Equal(d))

	_, err = ParseAmount("1.005")
	assert.True(t, apperror.IsValidation(err))

	_, err = ParseAmount("abc")
	assert.True(t, apperror.IsValidation(err))
}

func TestRequirePositive(t *testing.T) {
	assert.NoError(t, RequirePositive(dec("0.01")))
	assert.True(t, apperror.IsValidation(RequirePositive(decimal.Zero)))
	assert.True(t, apperror.IsValidation(RequirePositive(dec("-5"))))
	assert.True(t, apperror.IsValidation(RequirePositive(dec("0.001"))))
}

func TestValidatePercentage(t *testing.T) {
	assert.NoError(t, ValidatePercentage(decimal.Zero))
	assert.NoError(t, ValidatePercentage(dec("100")))
	assert.NoError(t, ValidatePercentage(dec("12.5")))
	assert.Error(t, ValidatePercentage(dec("100.01")))
	assert.Error(t, ValidatePercentage(dec("-1")))
	assert.Error(t, ValidatePercentage(dec("1.234")))
}
