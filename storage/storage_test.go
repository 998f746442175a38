package storage_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates/storage"
)

func TestConvertToProvidersFromStringSlice(t *testing.T) {
	asserts := require.New(t)

	providers, err := storage.ConvertToProvidersFromStringSlice([]string{"MySQL", "mongodb", "mongo"})
	asserts.NoError(err)
	asserts.Equal([]storage.Provider{storage.MySQL, storage.MongoDB, storage.MongoDB}, providers)

	providers, err = storage.ConvertToProvidersFromStringSlice([]string{"postgres"})
	asserts.Nil(providers)
	asserts.Equal(errors.New("value postgres is not valid Provider"), err)
}

func TestNewStorage(t *testing.T) {
	asserts := require.New(t)

	_, err := storage.NewStorage("redis", nil)
	asserts.True(errors.Is(err, storage.ErrStorageNotFound))

	_, err = storage.NewStorage(storage.MySQL, storage.MongoDBConfig{})
	asserts.Error(err)

	_, err = storage.NewStorage(storage.MongoDB, storage.MySQLConfig{})
	asserts.Error(err)
}
