package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/storage"
)

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) RunUpdate(ctx context.Context, sourceFilter string) (currency.UpdateResult, error) {
	args := m.Called(sourceFilter)

	return args.Get(0).(currency.UpdateResult), args.Error(1)
}

func newGate(t *testing.T, ttl time.Duration, pairs map[string]currency.PairEntry) (*StalenessGate, *MockUpdater, *storage.FileStorage) {
	st := newFileStorage(t)

	if pairs != nil {
		require.NoError(t, st.WriteSnapshot(pairs, "2025-10-10T12:00:00Z"))
	}

	updater := &MockUpdater{}
	gate := NewStalenessGate(st, updater, ttl, nil)
	gate.Now = func() time.Time { return t0 }

	return gate, updater, st
}

func TestStalenessGate_SameCurrency(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, time.Hour, nil)

	rate, err := gate.GetRate(context.Background(), "usd", "USD")

	asserts.NoError(err)
	asserts.Equal(1.0, rate.Rate)
	asserts.Equal("USD", rate.From)
	asserts.Equal("2025-10-10T12:00:00Z", rate.UpdatedAt)
	updater.AssertNotCalled(t, "RunUpdate", mock.Anything)
}

func TestStalenessGate_InvalidCodes(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, _, _ := newGate(t, time.Hour, nil)

	_, err := gate.GetRate(context.Background(), " ", "USD")
	asserts.True(errors.Is(err, currency.ErrInvalidArgument))
}

func TestStalenessGate_FreshHitAndReciprocal(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, time.Hour, map[string]currency.PairEntry{
		"EUR_USD": {Rate: 1.25, UpdatedAt: "2025-10-10T11:50:00Z", Source: "ExchangeRate-API"},
	})

	direct, err := gate.GetRate(context.Background(), "EUR", "USD")
	asserts.NoError(err)
	asserts.Equal(1.25, direct.Rate)
	asserts.False(direct.Inverted)
	asserts.False(direct.Refreshed)
	asserts.Equal("ExchangeRate-API", direct.Source)

	inverse, err := gate.GetRate(context.Background(), "usd", "eur")
	asserts.NoError(err)
	asserts.InDelta(0.8, inverse.Rate, 1e-12)
	asserts.True(inverse.Inverted)
	asserts.Equal("USD", inverse.From)
	asserts.Equal("EUR", inverse.To)

	updater.AssertNotCalled(t, "RunUpdate", mock.Anything)
}

func TestStalenessGate_StaleEntryIsRefreshed(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, st := newGate(t, time.Hour, map[string]currency.PairEntry{
		"EUR_USD": {Rate: 1.05, UpdatedAt: "2025-10-10T10:00:00Z", Source: "ExchangeRate-API"},
	})

	updater.On("RunUpdate", "").
		Run(func(mock.Arguments) {
			asserts.NoError(st.WriteSnapshot(map[string]currency.PairEntry{
				"EUR_USD": {Rate: 1.09, UpdatedAt: "2025-10-10T11:59:00Z", Source: "CoinGecko"},
			}, "2025-10-10T11:59:00Z"))
		}).
		Return(currency.UpdateResult{UpdatedPairs: []string{"EUR_USD"}}, nil).
		Once()

	rate, err := gate.GetRate(context.Background(), "EUR", "USD")

	asserts.NoError(err)
	asserts.Equal(1.09, rate.Rate)
	asserts.True(rate.Refreshed)
	asserts.Equal("2025-10-10T11:59:00Z", rate.UpdatedAt)
	updater.AssertExpectations(t)
}

func TestStalenessGate_StaleEntryAndRefreshFails(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, time.Hour, map[string]currency.PairEntry{
		"EUR_USD": {Rate: 1.05, UpdatedAt: "2025-10-10T10:00:00Z", Source: "ExchangeRate-API"},
	})

	refreshErr := currency.NewError(currency.KindAllProvidersFailed, nil, "could not fetch rates from any provider")
	updater.On("RunUpdate", "").Return(currency.UpdateResult{}, refreshErr).Once()

	_, err := gate.GetRate(context.Background(), "EUR", "USD")

	asserts.True(errors.Is(err, currency.ErrStaleData))
	asserts.True(errors.Is(err, currency.ErrAllProvidersFailed))
	asserts.Equal(currency.KindStaleData, currency.KindOf(err))
	updater.AssertExpectations(t)
}

func TestStalenessGate_UnparsableTimestampIsStale(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, time.Hour, map[string]currency.PairEntry{
		"EUR_USD": {Rate: 1.05, UpdatedAt: "yesterday", Source: "legacy"},
	})

	updater.On("RunUpdate", "").Return(currency.UpdateResult{}, nil).Once()

	_, err := gate.GetRate(context.Background(), "EUR", "USD")

	asserts.True(errors.Is(err, currency.ErrStaleData))
	updater.AssertExpectations(t)
}

func TestStalenessGate_NonPositiveTTLNeverRefreshes(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, 0, map[string]currency.PairEntry{
		"EUR_USD": {Rate: 1.05, UpdatedAt: "2020-01-01T00:00:00Z", Source: "ExchangeRate-API"},
	})

	rate, err := gate.GetRate(context.Background(), "EUR", "USD")

	asserts.NoError(err)
	asserts.Equal(1.05, rate.Rate)
	updater.AssertNotCalled(t, "RunUpdate", mock.Anything)
}

func TestStalenessGate_MissingPair(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, st := newGate(t, time.Hour, nil)

	updater.On("RunUpdate", "").Return(currency.UpdateResult{}, nil).Once()

	_, err := gate.GetRate(context.Background(), "CHF", "JPY")
	asserts.True(errors.Is(err, currency.ErrRateUnavailable))
	asserts.EqualError(err, "rate CHF->JPY is unavailable")

	updater.On("RunUpdate", "").
		Run(func(mock.Arguments) {
			asserts.NoError(st.WriteSnapshot(map[string]currency.PairEntry{
				"JPY_CHF": {Rate: 0.005, UpdatedAt: "2025-10-10T12:00:00Z", Source: "ExchangeRate-API"},
			}, "2025-10-10T12:00:00Z"))
		}).
		Return(currency.UpdateResult{}, nil).
		Once()

	rate, err := gate.GetRate(context.Background(), "CHF", "JPY")
	asserts.NoError(err)
	asserts.InDelta(200.0, rate.Rate, 1e-9)
	asserts.True(rate.Inverted)
	asserts.True(rate.Refreshed)
	updater.AssertExpectations(t)
}

func TestStalenessGate_ListCached(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	gate, updater, _ := newGate(t, time.Hour, map[string]currency.PairEntry{
		"BTC_USD": {Rate: 59000, UpdatedAt: "2000-01-01T00:00:00Z", Source: "CoinGecko"},
		"ETH_USD": {Rate: 2500, UpdatedAt: "2025-10-10T12:00:00Z", Source: "CoinGecko"},
		"EUR_USD": {Rate: 1.08, UpdatedAt: "2025-10-10T12:00:00Z", Source: "ExchangeRate-API"},
		"BTC_EUR": {Rate: 54000, UpdatedAt: "2025-10-10T12:00:00Z", Source: "CoinGecko"},
	})

	all, err := gate.ListCached(currency.ListFilter{})
	asserts.NoError(err)
	asserts.Len(all, 4)
	asserts.Equal([]string{"BTC_EUR", "BTC_USD", "ETH_USD", "EUR_USD"}, pairsOf(all))

	byBase, err := gate.ListCached(currency.ListFilter{Base: "usd"})
	asserts.NoError(err)
	asserts.Equal([]string{"BTC_USD", "ETH_USD", "EUR_USD"}, pairsOf(byBase))

	byCurrency, err := gate.ListCached(currency.ListFilter{Currency: "BTC"})
	asserts.NoError(err)
	asserts.Equal([]string{"BTC_EUR", "BTC_USD"}, pairsOf(byCurrency))

	top, err := gate.ListCached(currency.ListFilter{Base: "USD", Top: 2})
	asserts.NoError(err)
	asserts.Equal([]string{"BTC_USD", "ETH_USD"}, pairsOf(top))
	asserts.Equal("BTC", top[0].From)
	asserts.Equal("USD", top[0].To)
	asserts.Equal(59000.0, top[0].Rate)

	_, err = gate.ListCached(currency.ListFilter{Top: -1})
	asserts.True(errors.Is(err, currency.ErrInvalidArgument))

	updater.AssertNotCalled(t, "RunUpdate", mock.Anything)
}

func pairsOf(rates []currency.CachedRate) []string {
	pairs := make([]string, 0, len(rates))
	for _, r := range rates {
		pairs = append(pairs, r.Pair)
	}

	return pairs
}
