package fetchers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/malusev998/currency-rates"
)

// CoinGeckoFetcher prices a fixed set of crypto assets against the base currency.
type CoinGeckoFetcher struct {
	Client  *http.Client
	URL     string
	Timeout time.Duration
	Base    string
	Assets  []string
	IDs     map[string]string
	Now     func() time.Time
}

func (c CoinGeckoFetcher) Name() currency.Provider {
	return currency.CoinGeckoProvider
}

func (c CoinGeckoFetcher) assetID(code string) string {
	if id, ok := c.IDs[code]; ok && id != "" {
		return id
	}

	return strings.ToLower(code)
}

func (c CoinGeckoFetcher) Fetch(ctx context.Context) ([]currency.RateSample, error) {
	if len(c.Assets) == 0 {
		return []currency.RateSample{}, nil
	}

	ids := make([]string, 0, len(c.Assets))
	for _, code := range c.Assets {
		ids = append(ids, c.assetID(code))
	}

	url := c.URL
	if url == "" {
		url = CoinGeckoURL
	}

	client := c.Client
	if client == nil {
		client = NewHTTPClient(c.Timeout)
	}

	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	res, err := getData(ctx, client, c.Name(), url, map[string]string{
		"ids":           joinCurrencies(ids),
		"vs_currencies": strings.ToLower(c.Base),
	})

	if err != nil {
		return nil, err
	}

	var payload map[string]json.RawMessage

	if err := json.Unmarshal(res.body, &payload); err != nil {
		return nil, unexpectedPayload(c.Name(), "response is not a JSON object: %v", err)
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	timestamp := now().UTC()
	baseKey := strings.ToLower(c.Base)
	samples := make([]currency.RateSample, 0, len(c.Assets))

	for _, code := range c.Assets {
		id := c.assetID(code)
		raw, ok := payload[id]

		if !ok {
			continue
		}

		var prices map[string]interface{}
		if err := json.Unmarshal(raw, &prices); err != nil {
			continue
		}

		rate, ok := prices[baseKey].(float64)
		if !ok || rate <= 0 {
			continue
		}

		meta := res.meta()
		meta["raw_id"] = id

		samples = append(samples, currency.RateSample{
			From:      code,
			To:        c.Base,
			Rate:      rate,
			Source:    c.Name(),
			Timestamp: timestamp,
			Meta:      meta,
		})
	}

	return samples, nil
}
