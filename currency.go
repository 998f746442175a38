package currency

import "context"

type (
	// Fetcher is implemented once per Provider.
	Fetcher interface {
		Name() Provider
		Fetch(ctx context.Context) ([]RateSample, error)
	}
)
