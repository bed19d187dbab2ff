package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{amount: "2.70", currency: "USD", want: 270},
		{amount: "0.012", currency: "usd", want: 1},
		{amount: "1.005", currency: "EUR", want: 101},
		{amount: "1500", currency: "JPY", want: 1500},
		{amount: "1500.6", currency: "JPY", want: 1501},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToMinorUnits(decimal.RequireFromString(tc.amount), tc.currency), tc.amount)
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("2.70").Equal(FromMinorUnits(270, "USD")))
	assert.True(t, decimal.NewFromInt(1500).Equal(FromMinorUnits(1500, "JPY")))
}
