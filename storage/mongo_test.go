package storage

import (
	"context"
	"os"
	"testing"

	"github.com/bxcodec/faker/v3"
	"github.com/stretchr/testify/require"

	"github.com/malusev998/currency-rates"
)

func TestStoreInMongo(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI is not set")
	}

	t.Parallel()
	ctx := context.Background()
	asserts := require.New(t)

	sink, err := NewMongoStorage(MongoDBConfig{
		BaseConfig:       BaseConfig{Ctx: ctx, Migrate: true},
		ConnectionString: uri,
		Database:         "currency_rates_test",
		Collection:       "history_" + faker.Word(),
	})
	asserts.NoError(err)
	defer sink.Close()
	defer sink.(mongoStorage).collection.Drop(ctx)

	records := []currency.HistoryRecord{
		{ID: "EUR_USD_2025-10-10T12:00:00Z", From: "EUR", To: "USD", Rate: 1.08, Timestamp: "2025-10-10T12:00:00Z", Source: "ExchangeRate-API"},
	}

	inserted, err := sink.Store(ctx, records)
	asserts.NoError(err)
	asserts.Equal(1, inserted)

	inserted, err = sink.Store(ctx, records)
	asserts.NoError(err)
	asserts.Equal(0, inserted)
	asserts.Equal("mongodb", sink.GetStorageProviderName())
}
