package models

import "github.com/shopspring/decimal"

// AmountPlaces is the number of decimal places amounts are stored with.
const AmountPlaces = 2

// RoundAmount rounds half away from zero to AmountPlaces.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// ConvertAmount applies an exchange rate and rounds the result.
func ConvertAmount(amount, rate decimal.Decimal) decimal.Decimal {
	return RoundAmount(amount.Mul(rate))
}
