package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/malusev998/currency-rates"
)

const MySQLTimeFormat = "2006-01-02 15:04:05.000000"

var ErrNotEnoughBytesInGenerator = errors.New("id generator must produce 16 bytes")

type (
	IDGenerator interface {
		Generate() []byte
	}

	uuidGenerator struct{}

	mysqlStorage struct {
		db          *sql.DB
		idGenerator IDGenerator
		tableName   string
	}
)

func (uuidGenerator) Generate() []byte {
	id := uuid.New()
	return id[:]
}

// NewSQLStorage wraps an already opened database handle.
func NewSQLStorage(ctx context.Context, db *sql.DB, idGenerator IDGenerator, tableName string, migrate bool) (currency.HistorySink, error) {
	if idGenerator == nil {
		idGenerator = uuidGenerator{}
	}

	storage := mysqlStorage{
		db:          db,
		idGenerator: idGenerator,
		tableName:   tableName,
	}

	if migrate {
		if err := storage.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	return storage, nil
}

func NewMySQLStorage(config MySQLConfig) (currency.HistorySink, error) {
	if _, err := mysql.ParseDSN(config.ConnectionString); err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}

	db, err := sql.Open("mysql", config.ConnectionString)

	if err != nil {
		return nil, err
	}

	tableName := config.TableName
	if tableName == "" {
		tableName = DefaultTableName
	}

	return NewSQLStorage(config.getContext(), db, config.IDGenerator, tableName, config.Migrate)
}

func (m mysqlStorage) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s(
	id BINARY(16) PRIMARY KEY,
	record_id VARCHAR(191) NOT NULL UNIQUE,
	currency VARCHAR(32) NOT NULL,
	provider VARCHAR(64) NOT NULL,
	rate DOUBLE NOT NULL,
	meta JSON NULL,
	observed_at DATETIME(6) NOT NULL,
	created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	INDEX idx_%s_currency_observed (currency, observed_at)
);`, m.tableName, m.tableName))

	return err
}

// Store inserts records, ignoring ids that already exist, and returns how
// many rows were actually written.
func (m mysqlStorage) Store(ctx context.Context, records []currency.HistoryRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := m.db.BeginTx(ctx, nil)

	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT IGNORE INTO %s(id, record_id, currency, provider, rate, meta, observed_at) VALUES (?,?,?,?,?,?,?);", m.tableName))

	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	defer stmt.Close()

	inserted := 0

	for _, record := range records {
		id := m.idGenerator.Generate()

		if len(id) != 16 {
			_ = tx.Rollback()
			return 0, ErrNotEnoughBytesInGenerator
		}

		meta, err := json.Marshal(record.Meta)
		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}

		observedAt, err := currency.ParseTimestamp(record.Timestamp)
		if err != nil {
			observedAt = time.Now().UTC()
		}

		res, err := stmt.ExecContext(ctx, id, record.ID, record.Pair(), record.Source, record.Rate, string(meta), observedAt.Format(MySQLTimeFormat))

		if err != nil {
			_ = tx.Rollback()
			return 0, err
		}

		if affected, err := res.RowsAffected(); err == nil {
			inserted += int(affected)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return inserted, nil
}

func (m mysqlStorage) GetStorageProviderName() string {
	return string(MySQL)
}

func (m mysqlStorage) Close() error {
	return m.db.Close()
}
