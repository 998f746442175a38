package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/malusev998/currency-rates"
)

type mongoStorage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStorage(c MongoDBConfig) (currency.HistorySink, error) {
	ctx := c.getContext()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.ConnectionString))

	if err != nil {
		return nil, fmt.Errorf("cannot connect to mongodb: %w", err)
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultTableName
	}

	storage := mongoStorage{
		client:     client,
		collection: client.Database(c.Database).Collection(collection),
	}

	if c.Migrate {
		if err := storage.Migrate(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
	}

	return storage, nil
}

func (m mongoStorage) Migrate(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "currency", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	})

	return err
}

// Store upserts by history id, so repeating a batch never duplicates documents.
func (m mongoStorage) Store(ctx context.Context, records []currency.HistoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	models := make([]mongo.WriteModel, 0, len(records))

	for _, record := range records {
		observedAt, err := currency.ParseTimestamp(record.Timestamp)
		if err != nil {
			observedAt = time.Now().UTC()
		}

		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": record.ID}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{
				"currency":  record.Pair(),
				"from":      record.From,
				"to":        record.To,
				"rate":      record.Rate,
				"provider":  record.Source,
				"meta":      record.Meta,
				"timestamp": observedAt,
				"createdAt": time.Now().UTC(),
			}}).
			SetUpsert(true))
	}

	result, err := m.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))

	if err != nil {
		return 0, err
	}

	return int(result.UpsertedCount), nil
}

func (m mongoStorage) GetStorageProviderName() string {
	return string(MongoDB)
}

func (m mongoStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}
