package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundsHalfUpOnce(t *testing.T) {
	require.Equal(t, Amount(38), MustParse("0.25").Mul(decimal.RequireFromString("1.5")))
	require.Equal(t, Amount(75), MustParse("0.25").Mul(decimal.NewFromInt(3)))
	require.Equal(t, Amount(3), MustParse("0.02").Mul(decimal.RequireFromString("1.5")))
	require.Equal(t, Amount(1), MustParse("0.02").Mul(decimal.RequireFromString("0.5")))
	require.Equal(t, Amount(13), MustParse("0.25").Mul(decimal.RequireFromString("0.5")))
	require.Equal(t, Amount(101), FromDecimal(decimal.RequireFromString("1.005")))
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Pending Amount `json:"pending"`
	}{Pending: 1000})
	require.NoError(t, err)
	require.JSONEq(t, `{"pending":"10.00"}`, string(b))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"0.75"`), &a))
	require.Equal(t, Amount(75), a)
	require.NoError(t, json.Unmarshal([]byte(`1.2`), &a))
	require.Equal(t, Amount(120), a)
	require.Error(t, json.Unmarshal([]byte(`"abc"`), &a))
}

func TestMinMax(t *testing.T) {
	require.Equal(t, Amount(10), Min(10, 75))
	require.Equal(t, Amount(75), Max(10, 75))
	require.Equal(t, "-0.25", Amount(-25).String())
}
