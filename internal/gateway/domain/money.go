package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// MinorUnitExponent returns the number of decimal places the gateway expects.
func MinorUnitExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return 0
	}
	return 2
}

// ToMinorUnits rounds amount half away from zero into minor units.
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(MinorUnitExponent(currency)).Round(0).IntPart()
}

func FromMinorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(amount).Shift(-MinorUnitExponent(currency))
}
