package fetchers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/metrics"
)

const (
	CoinGeckoURL       = "https://api.coingecko.com/api/v3/simple/price"
	ExchangeRateAPIURL = "https://v6.exchangerate-api.com/v6"

	DefaultTimeout = 10 * time.Second
)

var (
	ErrUnAuthorized      = errors.New("unauthorized, API key is not provided")
	ErrClient            = errors.New("client error")
	ErrServer            = errors.New("server error")
	ErrUnknown           = errors.New("unknown error")
	ErrAPILimitReached   = errors.New("API limit reached")
	ErrUnexpectedPayload = errors.New("unexpected payload")
)

type response struct {
	statusCode int
	etag       string
	took       time.Duration
	body       []byte
}

// NewHTTPClient returns the client shared by every fetcher.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{Timeout: timeout}
}

func handleHTTPStatusCodeError(statusCode int) error {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return nil
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ErrUnAuthorized
	case statusCode == http.StatusTooManyRequests:
		return ErrAPILimitReached
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return ErrClient
	case statusCode >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrUnknown
	}
}

func joinCurrencies(currencies []string) string {
	var builder strings.Builder

	for _, c := range currencies {
		builder.WriteString(c)
		builder.WriteRune(',')
	}

	return strings.TrimRight(builder.String(), ",")
}

func getData(ctx context.Context, client *http.Client, provider currency.Provider, url string, query map[string]string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)

	if err != nil {
		return response{}, currency.NewProviderError(provider, err, "cannot build request: %v", err)
	}

	req.Header.Add("Accept", "application/json")

	if len(query) > 0 {
		q := req.URL.Query()
		for key, value := range query {
			q.Add(key, value)
		}

		req.URL.RawQuery = q.Encode()
	}

	started := time.Now()
	res, err := client.Do(req)
	took := time.Since(started)

	if err != nil {
		metrics.ObserveProviderRequest(string(provider), "transport_error", took)
		return response{}, currency.NewProviderError(provider, err, "request failed: %v", err)
	}

	defer res.Body.Close()

	metrics.ObserveProviderRequest(string(provider), strconv.Itoa(res.StatusCode), took)

	if err := handleHTTPStatusCodeError(res.StatusCode); err != nil {
		return response{}, currency.NewProviderError(provider, err, "HTTP %d: %v", res.StatusCode, err)
	}

	body, err := io.ReadAll(res.Body)

	if err != nil {
		return response{}, currency.NewProviderError(provider, err, "cannot read response body: %v", err)
	}

	return response{
		statusCode: res.StatusCode,
		etag:       res.Header.Get("ETag"),
		took:       took,
		body:       body,
	}, nil
}

func (r response) meta() currency.Meta {
	meta := currency.Meta{
		"status_code": r.statusCode,
		"request_ms":  r.took.Milliseconds(),
	}

	if r.etag != "" {
		meta["etag"] = r.etag
	}

	return meta
}

func unexpectedPayload(provider currency.Provider, format string, args ...interface{}) error {
	return currency.NewProviderError(provider, ErrUnexpectedPayload, "%s", fmt.Sprintf(format, args...))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}

	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}
