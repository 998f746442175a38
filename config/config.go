package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/fetchers"
	"github.com/malusev998/currency-rates/storage"
)

const (
	EnvPrefix    = "CURRENCY_RATES"
	APIKeyEnv    = "EXCHANGERATE_API_KEY"
	DefaultBase  = "USD"
	DefaultFile  = "./config.yml"
	DefaultAddr  = ":8080"
	DefaultTTL   = 3600
	DefaultCron  = "1h"
	DefaultLevel = "info"
)

var (
	DefaultFiatCurrencies   = []string{"USD", "EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "CNY"}
	DefaultCryptoCurrencies = []string{"BTC", "ETH", "XRP", "LTC"}
	DefaultCryptoIDs        = map[string]string{
		"BTC": "bitcoin",
		"ETH": "ethereum",
		"SOL": "solana",
		"XRP": "ripple",
		"LTC": "litecoin",
	}
	DefaultSources = []string{"coingecko", "exchangerate"}

	ErrEmptyBaseCurrency = errors.New("base_currency must not be empty")
)

type (
	MySQLConfig struct {
		User     string
		Password string
		Addr     string
		DB       string
		Table    string
	}

	MongoDBConfig struct {
		URI        string
		Database   string
		Collection string
	}

	// Config is resolved once at startup and passed by value.
	Config struct {
		BaseCurrency     string
		FiatCurrencies   []string
		CryptoCurrencies []string
		CryptoIDs        map[string]string

		Sources            []currency.Provider
		CoinGeckoURL       string
		ExchangeRateAPIURL string
		ExchangeRateAPIKey string
		RequestTimeout     time.Duration

		RatesTTL          time.Duration
		DataDir           string
		RatesFile         string
		ExchangeRatesFile string
		ParserLogFile     string
		LogLevel          string
		Schedule          string

		HistorySinks []storage.Provider
		Migrate      bool
		MySQL        MySQLConfig
		MongoDB      MongoDBConfig

		HTTPAddr string
	}
)

// DSN formats the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	mysqlDriverConfig := mysql.NewConfig()
	mysqlDriverConfig.User = c.User
	mysqlDriverConfig.Passwd = c.Password
	mysqlDriverConfig.Addr = c.Addr
	mysqlDriverConfig.Net = "tcp"
	mysqlDriverConfig.DBName = c.DB

	return mysqlDriverConfig.FormatDSN()
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("base_currency", DefaultBase)
	v.SetDefault("fiat_currencies", DefaultFiatCurrencies)
	v.SetDefault("crypto_currencies", DefaultCryptoCurrencies)
	v.SetDefault("crypto_id_map", map[string]string{})
	v.SetDefault("sources", DefaultSources)
	v.SetDefault("coingecko_url", fetchers.CoinGeckoURL)
	v.SetDefault("exchangerate_api_url", fetchers.ExchangeRateAPIURL)
	v.SetDefault("exchangerate_api_key", "")
	v.SetDefault("request_timeout", fetchers.DefaultTimeout.String())
	v.SetDefault("rates_ttl_seconds", DefaultTTL)
	v.SetDefault("data_dir", "data")
	v.SetDefault("rates_file", "rates.json")
	v.SetDefault("exchange_rates_file", "exchange_rates.json")
	v.SetDefault("parser_log_file", filepath.Join("logs", "parser.log"))
	v.SetDefault("log_level", DefaultLevel)
	v.SetDefault("schedule", DefaultCron)
	v.SetDefault("history_sinks", []string{})
	v.SetDefault("migrate", false)
	v.SetDefault("databases.mysql.user", "")
	v.SetDefault("databases.mysql.password", "")
	v.SetDefault("databases.mysql.addr", "localhost:3306")
	v.SetDefault("databases.mysql.db", "")
	v.SetDefault("databases.mysql.table", storage.DefaultTableName)
	v.SetDefault("databases.mongodb.uri", "")
	v.SetDefault("databases.mongodb.database", "")
	v.SetDefault("databases.mongodb.collection", storage.DefaultTableName)
	v.SetDefault("http.addr", DefaultAddr)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("error while loading %s: %w", path, err)
	}

	return nil
}

// Load layers defaults, the config file at path, a .env file next to it and
// the environment. A missing config file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}

	SetDefaults(v)

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}

	if err := loadDotEnv(envFile); err != nil {
		return Config{}, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("exchangerate_api_key", EnvPrefix+"_"+APIKeyEnv, APIKeyEnv); err != nil {
		return Config{}, err
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)

			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("error while reading in the config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	base := strings.ToUpper(strings.TrimSpace(v.GetString("base_currency")))
	if base == "" {
		return Config{}, ErrEmptyBaseCurrency
	}

	sources, err := currency.ConvertToProvidersFromStringSlice(dedupe(splitList(v.Get("sources")), strings.ToLower))
	if err != nil {
		return Config{}, err
	}

	if len(sources) == 0 {
		sources, _ = currency.ConvertToProvidersFromStringSlice(DefaultSources)
	}

	sinks, err := storage.ConvertToProvidersFromStringSlice(dedupe(splitList(v.Get("history_sinks")), strings.ToLower))
	if err != nil {
		return Config{}, err
	}

	timeout, err := duration(v.GetString("request_timeout"))
	if err != nil {
		return Config{}, fmt.Errorf("error while parsing request_timeout: %w", err)
	}

	dataDir := v.GetString("data_dir")

	return Config{
		BaseCurrency:       base,
		FiatCurrencies:     NormalizeCurrencyList(v.Get("fiat_currencies"), base, DefaultFiatCurrencies),
		CryptoCurrencies:   NormalizeCurrencyList(v.Get("crypto_currencies"), base, DefaultCryptoCurrencies),
		CryptoIDs:          cryptoIDs(v.GetStringMapString("crypto_id_map")),
		Sources:            uniqueProviders(sources),
		CoinGeckoURL:       v.GetString("coingecko_url"),
		ExchangeRateAPIURL: v.GetString("exchangerate_api_url"),
		ExchangeRateAPIKey: strings.TrimSpace(v.GetString("exchangerate_api_key")),
		RequestTimeout:     timeout,
		RatesTTL:           time.Duration(v.GetInt64("rates_ttl_seconds")) * time.Second,
		DataDir:            dataDir,
		RatesFile:          underDir(dataDir, v.GetString("rates_file")),
		ExchangeRatesFile:  underDir(dataDir, v.GetString("exchange_rates_file")),
		ParserLogFile:      v.GetString("parser_log_file"),
		LogLevel:           v.GetString("log_level"),
		Schedule:           v.GetString("schedule"),
		HistorySinks:       sinks,
		Migrate:            v.GetBool("migrate"),
		MySQL: MySQLConfig{
			User:     v.GetString("databases.mysql.user"),
			Password: v.GetString("databases.mysql.password"),
			Addr:     v.GetString("databases.mysql.addr"),
			DB:       v.GetString("databases.mysql.db"),
			Table:    v.GetString("databases.mysql.table"),
		},
		MongoDB: MongoDBConfig{
			URI:        v.GetString("databases.mongodb.uri"),
			Database:   v.GetString("databases.mongodb.database"),
			Collection: v.GetString("databases.mongodb.collection"),
		},
		HTTPAddr: v.GetString("http.addr"),
	}, nil
}

// NormalizeCurrencyList accepts a list or a string separated by "," or ";".
// Codes are uppercased and deduplicated in first seen order, the base
// currency is dropped and an empty result falls back to defaults.
func NormalizeCurrencyList(value interface{}, base string, defaults []string) []string {
	base = strings.ToUpper(strings.TrimSpace(base))
	codes := dedupe(splitList(value), strings.ToUpper)

	if len(codes) == 0 {
		codes = dedupe(defaults, strings.ToUpper)
	}

	result := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != base {
			result = append(result, code)
		}
	}

	return result
}

func splitList(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';'
		})
	case []string:
		return v
	case []interface{}:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}

		return items
	}

	return []string{fmt.Sprint(value)}
}

func dedupe(items []string, normalize func(string) string) []string {
	seen := make(map[string]struct{}, len(items))
	result := make([]string, 0, len(items))

	for _, item := range items {
		item = normalize(strings.TrimSpace(item))
		if item == "" {
			continue
		}

		if _, ok := seen[item]; ok {
			continue
		}

		seen[item] = struct{}{}
		result = append(result, item)
	}

	return result
}

func uniqueProviders(providers []currency.Provider) []currency.Provider {
	seen := make(map[currency.Provider]struct{}, len(providers))
	result := make([]currency.Provider, 0, len(providers))

	for _, p := range providers {
		if _, ok := seen[p]; ok {
			continue
		}

		seen[p] = struct{}{}
		result = append(result, p)
	}

	return result
}

func cryptoIDs(configured map[string]string) map[string]string {
	ids := make(map[string]string, len(DefaultCryptoIDs)+len(configured))

	for code, id := range DefaultCryptoIDs {
		ids[code] = id
	}

	// viper lowercases keys
	for code, id := range configured {
		code = strings.ToUpper(strings.TrimSpace(code))
		id = strings.TrimSpace(id)

		if code != "" && id != "" {
			ids[code] = id
		}
	}

	return ids
}

// duration reads a Go duration or a bare number of seconds.
func duration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	if value == "" {
		return fetchers.DefaultTimeout, nil
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}

	return time.ParseDuration(value)
}

func underDir(dir, file string) string {
	if file == "" || filepath.IsAbs(file) || dir == "" {
		return file
	}

	return filepath.Join(dir, file)
}
