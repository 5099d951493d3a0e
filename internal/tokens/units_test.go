package tokens

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"0.5", 6, "500000"},
		{"123.456789", 6, "123456789"},
		{"0", 18, "0"},
		{" 42 ", 0, "42"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.amount, tc.decimals)
		require.NoError(t, err, tc.amount)
		assert.Equal(t, tc.want, got.String(), tc.amount)
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, amount := range []string{"", "abc", "-1", "1.0000001"} {
		_, err := ParseUnits(amount, 6)
		assert.Error(t, err, amount)
	}
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, "1.5", FormatUnits(v, 18))
	assert.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestPercentToBps(t *testing.T) {
	got, err := PercentToBps("0.5")
	require.NoError(t, err)
	assert.Equal(t, uint32(50), got)

	got, err = PercentToBps("1.234")
	require.NoError(t, err)
	assert.Equal(t, uint32(123), got)

	_, err = PercentToBps("100")
	assert.Error(t, err)
	_, err = PercentToBps("-1")
	assert.Error(t, err)
}
