package utils_test

import (
	"testing"

	"github.com/Attendry/Konzern-sub004/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234567.89", "1.234.567,89 EUR"},
		{"1000", "1.000,00 EUR"},
		{"0", "0,00 EUR"},
		{"-1234.5", "-1.234,50 EUR"},
		{"999", "999,00 EUR"},
		{"0.005", "0,01 EUR"},
	}
	for _, c := range cases {
		d, err := decimal.NewFromString(c.in)
		require.NoError(t, err)
		require.Equal(t, c.want, utils.FormatAmount(d), "input %s", c.in)
	}
}

func TestFormatPercent(t *testing.T) {
	require.Equal(t, "12,50 %", utils.FormatPercent(decimal.NewFromFloat(12.5)))
	require.Equal(t, "-3,33 %", utils.FormatPercent(decimal.NewFromFloat(-3.333)))
}

func TestUniqueSlice(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, utils.UniqueSlice([]string{"a", "b", "a", "c", "b"}))
	require.Empty(t, utils.UniqueSlice([]int{}))
}
