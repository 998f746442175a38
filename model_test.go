package currency_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	expected := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

	for _, value := range []string{
		"2025-10-10T12:00:00Z",
		"2025-10-10T12:00:00+00:00",
		"2025-10-10T14:00:00+02:00",
		"2025-10-10T12:00:00",
		"2025-10-10T12:00:00.000000",
	} {
		parsed, err := currency.ParseTimestamp(value)
		asserts.NoError(err, value)
		asserts.True(expected.Equal(parsed), value)
	}

	for _, value := range []string{"", "yesterday", "10/10/2025"} {
		_, err := currency.ParseTimestamp(value)
		asserts.Error(err, value)
	}
}

func TestFormatTimestamp_KeepsMicroseconds(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	ts := time.Date(2025, 10, 10, 12, 0, 0, 123456789, time.UTC)

	formatted := currency.FormatTimestamp(ts)
	asserts.Equal("2025-10-10T12:00:00.123456Z", formatted)

	parsed, err := currency.ParseTimestamp(formatted)
	asserts.NoError(err)
	asserts.True(ts.Truncate(time.Microsecond).Equal(parsed))
	asserts.True(parsed.After(ts.Truncate(time.Second)))
}

func TestRateSample_HistoryRecord(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	sample := currency.RateSample{
		From:      "BTC",
		To:        "USD",
		Rate:      59000,
		Source:    currency.CoinGeckoProvider,
		Timestamp: time.Date(2025, 10, 10, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
		Meta:      currency.Meta{"raw_id": "bitcoin"},
	}

	record := sample.HistoryRecord()
	asserts.Equal("BTC_USD", sample.Pair())
	asserts.Equal("BTC_USD_2025-10-10T11:00:00.000000Z", record.ID)
	asserts.Equal("2025-10-10T11:00:00.000000Z", record.Timestamp)
	asserts.Equal("CoinGecko", record.Source)
	asserts.Equal("bitcoin", record.Meta["raw_id"])

	record.Meta["raw_id"] = "changed"
	asserts.Equal("bitcoin", sample.Meta["raw_id"])
}

func TestSplitPair(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)

	from, to, ok := currency.SplitPair("EUR_USD")
	asserts.True(ok)
	asserts.Equal("EUR", from)
	asserts.Equal("USD", to)

	for _, key := range []string{"EURUSD", "_USD", "EUR_", ""} {
		_, _, ok = currency.SplitPair(key)
		asserts.False(ok, key)
	}
}

func TestErrorKinds(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	cause := errors.New("connection refused")

	err := currency.NewProviderError(currency.CoinGeckoProvider, cause, "HTTP %d", 503)
	wrapped := fmt.Errorf("cycle failed: %w", err)

	asserts.True(errors.Is(wrapped, currency.ErrProvider))
	asserts.True(errors.Is(wrapped, cause))
	asserts.False(errors.Is(wrapped, currency.ErrStaleData))
	asserts.True(errors.Is(wrapped, &currency.Error{Kind: currency.KindProvider, Source: currency.CoinGeckoProvider}))
	asserts.False(errors.Is(wrapped, &currency.Error{Kind: currency.KindProvider, Source: currency.ExchangeRateAPIProvider}))
	asserts.Equal("CoinGecko: HTTP 503", err.Error())
	asserts.Equal(currency.KindProvider, currency.KindOf(wrapped))
	asserts.Equal("HTTP 503", currency.DetailOf(wrapped))

	asserts.Equal(currency.Kind(""), currency.KindOf(cause))
	asserts.Equal("connection refused", currency.DetailOf(cause))
	asserts.Equal("stale_data", currency.ErrStaleData.Error())
}
