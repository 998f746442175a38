package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates"
)

type (
	providerMock struct {
		coinGecko    *httptest.Server
		exchangeRate *httptest.Server

		coinGeckoCalls    int64
		exchangeRateCalls int64
		exchangeRateFails int32
	}

	syncBuffer struct {
		mu  sync.Mutex
		buf bytes.Buffer
	}

	environment struct {
		dir       string
		config    string
		providers *providerMock
	}
)

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func newProviderMock(t *testing.T) *providerMock {
	p := &providerMock{}

	p.coinGecko = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&p.coinGeckoCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":59000},"ethereum":{"usd":2500}}`))
	}))

	p.exchangeRate = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&p.exchangeRateCalls, 1)

		if atomic.LoadInt32(&p.exchangeRateFails) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if r.URL.Path != "/v6/test-key/latest/USD" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		payload, _ := json.Marshal(map[string]interface{}{
			"result":               "success",
			"time_last_update_utc": time.Now().UTC().Format(time.RFC1123Z),
			"conversion_rates":     map[string]float64{"USD": 1, "EUR": 0.8, "GBP": 0.5},
		})

		_, _ = w.Write(payload)
	}))

	t.Cleanup(p.coinGecko.Close)
	t.Cleanup(p.exchangeRate.Close)

	return p
}

func newEnvironment(t *testing.T, extra string) environment {
	dir := t.TempDir()
	providers := newProviderMock(t)
	path := filepath.Join(dir, "config.yml")

	content := fmt.Sprintf(`
base_currency: USD
fiat_currencies: [EUR, GBP]
crypto_currencies: [BTC, ETH]
coingecko_url: %s/simple/price
exchangerate_api_url: %s/v6
exchangerate_api_key: test-key
data_dir: %s
parser_log_file: %s
request_timeout: 2s
rates_ttl_seconds: 3600
%s
`, providers.coinGecko.URL, providers.exchangeRate.URL, filepath.Join(dir, "data"), filepath.Join(dir, "logs", "parser.log"), extra)

	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return environment{dir: dir, config: path, providers: providers}
}

func (e environment) run(args ...string) (string, error) {
	out := &bytes.Buffer{}
	err := Execute(context.Background(), append(args, "--config", e.config), out, io.Discard)

	return out.String(), err
}

func (e environment) snapshot(t *testing.T) currency.Snapshot {
	content, err := os.ReadFile(filepath.Join(e.dir, "data", "rates.json"))
	require.NoError(t, err)

	var snapshot currency.Snapshot
	require.NoError(t, json.Unmarshal(content, &snapshot))

	return snapshot
}

func TestUpdateRates(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	out, err := env.run("update-rates")

	asserts.NoError(err)
	asserts.Contains(out, "Updated 4 pairs")
	asserts.Contains(out, "CoinGecko: 2 samples")
	asserts.Contains(out, "ExchangeRate-API: 2 samples")
	asserts.Contains(out, "Last refresh: ")

	snapshot := env.snapshot(t)
	asserts.Len(snapshot.Pairs, 4)
	asserts.Equal(59000.0, snapshot.Pairs["BTC_USD"].Rate)
	asserts.Equal(1.25, snapshot.Pairs["EUR_USD"].Rate)
	asserts.Equal(2.0, snapshot.Pairs["GBP_USD"].Rate)
	asserts.NotNil(snapshot.LastRefresh)

	content, err := os.ReadFile(filepath.Join(env.dir, "data", "exchange_rates.json"))
	asserts.NoError(err)

	var records []currency.HistoryRecord
	asserts.NoError(json.Unmarshal(content, &records))
	asserts.Len(records, 4)

	_, err = os.Stat(filepath.Join(env.dir, "logs", "parser.log"))
	asserts.NoError(err)
}

func TestUpdateRates_SourceFilter(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	out, err := env.run("update-rates", "--source", "gecko")

	asserts.NoError(err)
	asserts.Contains(out, "Updated 2 pairs")
	asserts.Equal(int64(1), atomic.LoadInt64(&env.providers.coinGeckoCalls))
	asserts.Equal(int64(0), atomic.LoadInt64(&env.providers.exchangeRateCalls))

	_, err = env.run("update-rates", "--source", "yahoo")
	asserts.Error(err)
	asserts.Contains(err.Error(), "available sources: coin, coingecko")
}

func TestUpdateRates_PartialFailure(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")
	atomic.StoreInt32(&env.providers.exchangeRateFails, 1)

	out, err := env.run("fetch")

	asserts.NoError(err)
	asserts.Contains(out, "Updated 2 pairs")
	asserts.Contains(out, "Error from ExchangeRate-API: HTTP 500")
	asserts.Contains(out, "ExchangeRate-API: 0 samples")
}

func TestGetRate_RefreshesMissingPair(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	out, err := env.run("get-rate", "--from", "usd", "--to", "eur")

	asserts.NoError(err)
	asserts.Contains(out, "1 USD = 0.80000000 EUR")
	asserts.Contains(out, "1 EUR = 1.25000000 USD")
	asserts.Contains(out, "Source: ExchangeRate-API")

	calls := atomic.LoadInt64(&env.providers.exchangeRateCalls)

	_, err = env.run("get-rate", "--from", "EUR", "--to", "USD")
	asserts.NoError(err)
	asserts.Equal(calls, atomic.LoadInt64(&env.providers.exchangeRateCalls))

	_, err = env.run("get-rate", "--from", "EUR", "--to", "XYZ")
	asserts.Error(err)
	asserts.Equal(currency.KindRateUnavailable, currency.KindOf(err))
}

func TestShowRates(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	out, err := env.run("show-rates")
	asserts.NoError(err)
	asserts.Contains(out, "No cached rates")

	_, err = env.run("update-rates")
	asserts.NoError(err)

	out, err = env.run("show-rates", "--base", "usd", "--top", "2")
	asserts.NoError(err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	asserts.Len(lines, 3)
	asserts.True(strings.HasPrefix(lines[1], "BTC_USD"))
	asserts.True(strings.HasPrefix(lines[2], "ETH_USD"))

	out, err = env.run("show-rates", "--currency", "GBP")
	asserts.NoError(err)
	asserts.Contains(out, "GBP_USD")
	asserts.NotContains(out, "BTC_USD")

	_, err = env.run("show-rates", "--top", "0")
	asserts.ErrorIs(err, errTopNotPositive)
}

func TestConvertCommand(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	out, err := env.run("convert", "--from", "EUR", "--to", "USD", "--amount", "10")
	asserts.NoError(err)
	asserts.Contains(out, "10 EUR = 12.5 USD")

	_, err = env.run("convert", "--from", "EUR", "--to", "USD", "--amount", "-1")
	asserts.Equal(currency.KindInvalidArgument, currency.KindOf(err))

	_, err = env.run("convert", "--from", "EUR", "--to", "USD", "--amount", "ten")
	asserts.Equal(currency.KindInvalidArgument, currency.KindOf(err))
}

func TestHistoryCommand(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")

	_, err := env.run("update-rates")
	asserts.NoError(err)

	out, err := env.run("history", "--pair", "btc_usd")
	asserts.NoError(err)
	asserts.Contains(out, "BTC_USD")
	asserts.Contains(out, "CoinGecko")
	asserts.NotContains(out, "ETH_USD")

	out, err = env.run("history", "--limit", "1")
	asserts.NoError(err)
	asserts.Len(strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = env.run("history", "--limit", "0")
	asserts.Error(err)
}

func TestScheduleCommand(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)

	go func() {
		done <- Execute(ctx, []string{"schedule", "--every", "1h", "--config", env.config}, out, io.Discard)
	}()

	asserts.Eventually(func() bool {
		content, err := os.ReadFile(filepath.Join(env.dir, "data", "rates.json"))
		return err == nil && strings.Contains(string(content), "GBP_USD") && strings.Contains(string(content), "BTC_USD")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		asserts.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop")
	}

	asserts.Contains(out.String(), `schedule "1h"`)
	asserts.Contains(out.String(), "Scheduler stopped")
	asserts.Len(env.snapshot(t).Pairs, 4)
}

func TestServeCommand(t *testing.T) {
	t.Parallel()
	asserts := require.New(t)
	env := newEnvironment(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)

	go func() {
		done <- Execute(ctx, []string{"serve", "--addr", "127.0.0.1:0", "--no-scheduler", "--config", env.config}, out, io.Discard)
	}()

	asserts.Eventually(func() bool {
		return strings.Contains(out.String(), "Listening on ")
	}, 5*time.Second, 10*time.Millisecond)

	addr := strings.TrimSpace(strings.TrimPrefix(out.String(), "Listening on "))

	res, err := http.Get("http://" + addr + "/rates/BTC/USD")
	asserts.NoError(err)

	var body struct {
		Success bool          `json:"success"`
		Data    currency.Rate `json:"data"`
	}
	asserts.NoError(json.NewDecoder(res.Body).Decode(&body))
	_ = res.Body.Close()

	asserts.Equal(http.StatusOK, res.StatusCode)
	asserts.True(body.Success)
	asserts.Equal(59000.0, body.Data.Rate)
	asserts.True(body.Data.Refreshed)

	cancel()

	select {
	case err := <-done:
		asserts.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
