package fetchers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/malusev998/currency-rates"
)

type (
	// ExchangeRateAPIFetcher reads the whole conversion table for Base and
	// inverts it, so every sample is quoted as CODE -> Base.
	ExchangeRateAPIFetcher struct {
		Client     *http.Client
		URL        string
		Timeout    time.Duration
		APIKey     string
		Base       string
		Currencies []string
		Now        func() time.Time
	}

	exchangeRateAPIResponse struct {
		Result            string                 `json:"result"`
		ErrorType         string                 `json:"error-type"`
		TimeLastUpdateUTC string                 `json:"time_last_update_utc"`
		ConversionRates   map[string]interface{} `json:"conversion_rates"`
	}
)

func (e ExchangeRateAPIFetcher) Name() currency.Provider {
	return currency.ExchangeRateAPIProvider
}

func (e ExchangeRateAPIFetcher) buildURL() (string, error) {
	if strings.TrimSpace(e.APIKey) == "" {
		return "", currency.NewProviderError(e.Name(), ErrUnAuthorized, "api key is missing, set EXCHANGERATE_API_KEY")
	}

	url := e.URL
	if url == "" {
		url = ExchangeRateAPIURL
	}

	return fmt.Sprintf("%s/%s/latest/%s", strings.TrimRight(url, "/"), e.APIKey, e.Base), nil
}

func (e ExchangeRateAPIFetcher) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}

	return time.Now().UTC()
}

// normalizeTimestamp reads the provider's RFC 1123 update time. The second
// return value is false when the raw value could not be used.
func (e ExchangeRateAPIFetcher) normalizeTimestamp(raw string) (time.Time, bool) {
	if raw == "" {
		return e.now(), true
	}

	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), true
		}
	}

	return e.now(), false
}

func (e ExchangeRateAPIFetcher) Fetch(ctx context.Context) ([]currency.RateSample, error) {
	url, err := e.buildURL()

	if err != nil {
		return nil, err
	}

	client := e.Client
	if client == nil {
		client = NewHTTPClient(e.Timeout)
	}

	ctx, cancel := withTimeout(ctx, e.Timeout)
	defer cancel()

	res, err := getData(ctx, client, e.Name(), url, nil)

	if err != nil {
		return nil, err
	}

	var data exchangeRateAPIResponse

	if err := json.Unmarshal(res.body, &data); err != nil {
		return nil, unexpectedPayload(e.Name(), "cannot decode response: %v", err)
	}

	if data.Result != "success" {
		errorType := data.ErrorType
		if errorType == "" {
			errorType = "unknown"
		}

		return nil, currency.NewProviderError(e.Name(), ErrClient, "API responded with error %s", errorType)
	}

	if data.ConversionRates == nil {
		return nil, unexpectedPayload(e.Name(), "field 'conversion_rates' is missing or not an object")
	}

	timestamp, ok := e.normalizeTimestamp(data.TimeLastUpdateUTC)
	samples := make([]currency.RateSample, 0, len(e.Currencies))

	for _, code := range e.Currencies {
		rate, isNumber := data.ConversionRates[code].(float64)

		if !isNumber || rate <= 0 {
			continue
		}

		meta := res.meta()
		if !ok {
			meta["provider_time"] = data.TimeLastUpdateUTC
		}

		samples = append(samples, currency.RateSample{
			From:      code,
			To:        e.Base,
			Rate:      1.0 / rate,
			Source:    e.Name(),
			Timestamp: timestamp,
			Meta:      meta,
		})
	}

	return samples, nil
}
