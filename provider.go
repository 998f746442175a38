package currency

import (
	"fmt"
	"sort"
	"strings"
)

type Provider string

const (
	CoinGeckoProvider       Provider = "CoinGecko"
	ExchangeRateAPIProvider Provider = "ExchangeRate-API"
	EmptyProvider           Provider = ""
)

var providerAliases = map[string]Provider{
	"coingecko":        CoinGeckoProvider,
	"coin":             CoinGeckoProvider,
	"gecko":            CoinGeckoProvider,
	"exchangerate":     ExchangeRateAPIProvider,
	"exchange":         ExchangeRateAPIProvider,
	"exchange-rate":    ExchangeRateAPIProvider,
	"exchangerate-api": ExchangeRateAPIProvider,
}

// Providers lists every supported rate source.
func Providers() []Provider {
	return []Provider{CoinGeckoProvider, ExchangeRateAPIProvider}
}

// ProviderAliases returns the accepted spellings, sorted.
func ProviderAliases() []string {
	aliases := make([]string, 0, len(providerAliases))
	for alias := range providerAliases {
		aliases = append(aliases, alias)
	}

	sort.Strings(aliases)

	return aliases
}

func ConvertToProvidersFromStringSlice(strings []string) ([]Provider, error) {
	providers := make([]Provider, 0, len(strings))

	for _, str := range strings {
		provider, err := ConvertToProviderFromString(str)
		if err != nil {
			return nil, err
		}

		providers = append(providers, provider)
	}

	return providers, nil
}

func ConvertToProviderFromString(str string) (Provider, error) {
	if provider, ok := providerAliases[strings.ToLower(strings.TrimSpace(str))]; ok {
		return provider, nil
	}

	return EmptyProvider, &Error{
		Kind:   KindNoProvider,
		Detail: fmt.Sprintf("value %s is not valid Provider", str),
	}
}

func (p *Provider) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var str string
	if err := unmarshal(&str); err != nil {
		return err
	}

	provider, err := ConvertToProviderFromString(str)

	if err != nil {
		return err
	}

	*p = provider

	return nil
}

func (p Provider) MarshalYAML() (interface{}, error) {
	return string(p), nil
}
