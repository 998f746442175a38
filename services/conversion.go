package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/malusev998/currency-rates"
)

const conversionPrecision = 6

type ConversionService struct {
	Rates currency.RateReader
}

func (c ConversionService) Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, currency.Rate, error) {
	if amount.IsNegative() {
		return decimal.Zero, currency.Rate{}, currency.NewError(currency.KindInvalidArgument, nil, "amount must not be negative")
	}

	rate, err := c.Rates.GetRate(ctx, from, to)

	if err != nil {
		return decimal.Zero, currency.Rate{}, err
	}

	return convert(amount, rate.Rate), rate, nil
}

func convert(value decimal.Decimal, rate float64) decimal.Decimal {
	return value.Mul(decimal.NewFromFloat(rate)).Round(conversionPrecision)
}
