package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/config"
	"github.com/malusev998/currency-rates/fetchers"
	"github.com/malusev998/currency-rates/services"
	"github.com/malusev998/currency-rates/storage"
)

type (
	FetchersConfig map[currency.Provider]interface{}
	StorageConfig  map[storage.Provider]interface{}

	// App holds everything a command needs. There is exactly one updater per
	// process so the gate and the scheduler share its lock.
	App struct {
		Config     config.Config
		Logger     *slog.Logger
		Files      *storage.FileStorage
		Sinks      []currency.HistorySink
		Updater    *services.RateUpdater
		Gate       *services.StalenessGate
		Conversion services.ConversionService
	}
)

func fetchersConfig(cfg config.Config, client *http.Client) FetchersConfig {
	return FetchersConfig{
		currency.CoinGeckoProvider: fetchers.CoinGeckoConfig{
			BaseConfig: fetchers.BaseConfig{
				Client:  client,
				URL:     cfg.CoinGeckoURL,
				Timeout: cfg.RequestTimeout,
				Base:    cfg.BaseCurrency,
			},
			Assets: cfg.CryptoCurrencies,
			IDs:    cfg.CryptoIDs,
		},
		currency.ExchangeRateAPIProvider: fetchers.ExchangeRateAPIConfig{
			BaseConfig: fetchers.BaseConfig{
				Client:  client,
				URL:     cfg.ExchangeRateAPIURL,
				Timeout: cfg.RequestTimeout,
				Base:    cfg.BaseCurrency,
			},
			APIKey:     cfg.ExchangeRateAPIKey,
			Currencies: cfg.FiatCurrencies,
		},
	}
}

func storageConfig(ctx context.Context, cfg config.Config) StorageConfig {
	storageBaseConfig := storage.BaseConfig{
		Ctx:     ctx,
		Migrate: cfg.Migrate,
	}

	return StorageConfig{
		storage.MySQL: storage.MySQLConfig{
			BaseConfig:       storageBaseConfig,
			ConnectionString: cfg.MySQL.DSN(),
			TableName:        cfg.MySQL.Table,
		},
		storage.MongoDB: storage.MongoDBConfig{
			BaseConfig:       storageBaseConfig,
			ConnectionString: cfg.MongoDB.URI,
			Database:         cfg.MongoDB.Database,
			Collection:       cfg.MongoDB.Collection,
		},
	}
}

func createFetchers(cfg config.Config, client *http.Client) ([]currency.Fetcher, error) {
	configs := fetchersConfig(cfg, client)
	list := make([]currency.Fetcher, 0, len(cfg.Sources))

	for _, f := range cfg.Sources {
		c, ok := configs[f]
		if !ok {
			return nil, fmt.Errorf("fetcher %s does not exist", f)
		}

		fetcher, err := fetchers.NewCurrencyFetcher(f, c)
		if err != nil {
			return nil, err
		}

		list = append(list, fetcher)
	}

	return list, nil
}

func createSinks(ctx context.Context, cfg config.Config) ([]currency.HistorySink, error) {
	configs := storageConfig(ctx, cfg)
	sinks := make([]currency.HistorySink, 0, len(cfg.HistorySinks))

	for _, s := range cfg.HistorySinks {
		c, ok := configs[s]
		if !ok {
			return nil, fmt.Errorf("storage %s does not exist", s)
		}

		sink, err := storage.NewStorage(s, c)
		if err != nil {
			_ = closeSinks(sinks)
			return nil, err
		}

		sinks = append(sinks, sink)
	}

	return sinks, nil
}

func closeSinks(sinks []currency.HistorySink) error {
	var errs []error

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", sink.GetStorageProviderName(), err))
		}
	}

	return errors.Join(errs...)
}

func NewApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	files, err := storage.NewFileStorage(cfg.RatesFile, cfg.ExchangeRatesFile)
	if err != nil {
		return nil, err
	}

	list, err := createFetchers(cfg, fetchers.NewHTTPClient(cfg.RequestTimeout))
	if err != nil {
		return nil, err
	}

	sinks, err := createSinks(ctx, cfg)
	if err != nil {
		return nil, err
	}

	updater := services.NewRateUpdater(files, list, sinks, cfg.RequestTimeout, logger.With("component", "updater"))
	gate := services.NewStalenessGate(files, updater, cfg.RatesTTL, logger.With("component", "gate"))

	return &App{
		Config:     cfg,
		Logger:     logger,
		Files:      files,
		Sinks:      sinks,
		Updater:    updater,
		Gate:       gate,
		Conversion: services.ConversionService{Rates: gate},
	}, nil
}

func (a *App) Close() error {
	return closeSinks(a.Sinks)
}
