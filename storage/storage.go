package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/malusev998/currency-rates"
)

const DefaultTableName = "exchange_rate_history"

type (
	Provider   string
	BaseConfig struct {
		Ctx     context.Context
		Migrate bool
	}
	MySQLConfig struct {
		BaseConfig
		ConnectionString string
		TableName        string
		IDGenerator      IDGenerator
	}
	MongoDBConfig struct {
		BaseConfig
		ConnectionString string
		Database         string
		Collection       string
	}
)

const (
	MySQL   Provider = "mysql"
	MongoDB Provider = "mongodb"
)

var (
	ErrStorageNotFound = errors.New("storage is not found")
)

func (b BaseConfig) getContext() context.Context {
	if b.Ctx == nil {
		return context.Background()
	}

	return b.Ctx
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
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "mysql":
		return MySQL, nil
	case "mongodb", "mongo":
		return MongoDB, nil
	}

	return "", fmt.Errorf("value %s is not valid Provider", str)
}

// NewStorage builds a history sink for provider.
func NewStorage(provider Provider, config interface{}) (currency.HistorySink, error) {
	switch provider {
	case MySQL:
		c, ok := config.(MySQLConfig)
		if !ok {
			return nil, fmt.Errorf("storage %s expects MySQLConfig, got %T", provider, config)
		}

		return NewMySQLStorage(c)
	case MongoDB:
		c, ok := config.(MongoDBConfig)
		if !ok {
			return nil, fmt.Errorf("storage %s expects MongoDBConfig, got %T", provider, config)
		}

		return NewMongoStorage(c)
	}

	return nil, ErrStorageNotFound
}
