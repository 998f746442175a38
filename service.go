package currency

import (
	"context"

	"github.com/shopspring/decimal"
)

type (
	Updater interface {
		RunUpdate(ctx context.Context, sourceFilter string) (UpdateResult, error)
	}

	ListFilter struct {
		Currency string
		Base     string
		Top      int
	}

	RateReader interface {
		GetRate(ctx context.Context, from, to string) (Rate, error)
		ListCached(filter ListFilter) ([]CachedRate, error)
	}

	Conversion interface {
		Convert(ctx context.Context, from, to string, amount decimal.Decimal) (decimal.Decimal, Rate, error)
	}
)
