package currency

import "context"

type (
	// Storage persists the current snapshot and the history log.
	Storage interface {
		LoadSnapshot() Snapshot
		WriteSnapshot(pairs map[string]PairEntry, lastRefresh string) error
		LoadHistory() []HistoryRecord
		AppendHistory(records []HistoryRecord) error
	}

	// HistorySink mirrors history records into an external database.
	// Store must be idempotent on HistoryRecord.ID.
	HistorySink interface {
		Store(ctx context.Context, records []HistoryRecord) (int, error)
		GetStorageProviderName() string
		Migrate(ctx context.Context) error
		Close() error
	}
)
