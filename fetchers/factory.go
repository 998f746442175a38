package fetchers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/malusev998/currency-rates"
)

type (
	BaseConfig struct {
		Client  *http.Client
		URL     string
		Timeout time.Duration
		Base    string
	}
	CoinGeckoConfig struct {
		BaseConfig
		Assets []string
		IDs    map[string]string
	}
	ExchangeRateAPIConfig struct {
		BaseConfig
		APIKey     string
		Currencies []string
	}
)

func NewCurrencyFetcher(provider currency.Provider, config interface{}) (currency.Fetcher, error) {
	switch provider {
	case currency.CoinGeckoProvider:
		c, ok := config.(CoinGeckoConfig)
		if !ok {
			return nil, fmt.Errorf("fetcher %s expects CoinGeckoConfig, got %T", provider, config)
		}

		return CoinGeckoFetcher{
			Client:  c.Client,
			URL:     c.URL,
			Timeout: c.Timeout,
			Base:    c.Base,
			Assets:  c.Assets,
			IDs:     c.IDs,
		}, nil
	case currency.ExchangeRateAPIProvider:
		c, ok := config.(ExchangeRateAPIConfig)
		if !ok {
			return nil, fmt.Errorf("fetcher %s expects ExchangeRateAPIConfig, got %T", provider, config)
		}

		return ExchangeRateAPIFetcher{
			Client:     c.Client,
			URL:        c.URL,
			Timeout:    c.Timeout,
			APIKey:     c.APIKey,
			Base:       c.Base,
			Currencies: c.Currencies,
		}, nil
	}

	return nil, &currency.Error{Kind: currency.KindNoProvider, Detail: fmt.Sprintf("fetcher %s does not exist", provider)}
}
