package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/malusev998/currency-rates"
)

// FileStorage keeps the snapshot and the history log as JSON documents.
// Every write goes through a temp file and a rename, so readers never see
// a partially written document.
type FileStorage struct {
	RatesPath   string
	HistoryPath string
}

func NewFileStorage(ratesPath, historyPath string) (*FileStorage, error) {
	for _, path := range []string{ratesPath, historyPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directory for %s: %w", path, err)
		}
	}

	return &FileStorage{RatesPath: ratesPath, HistoryPath: historyPath}, nil
}

func writeFileAtomically(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

func writeJSON(path string, payload interface{}) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomically(path, bytes.NewReader(data))
}

func decodePairEntry(raw json.RawMessage) (currency.PairEntry, bool) {
	var fields map[string]interface{}

	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return currency.PairEntry{}, false
	}

	rate, ok := fields["rate"].(float64)
	if !ok {
		return currency.PairEntry{}, false
	}

	entry := currency.PairEntry{Rate: rate}
	entry.UpdatedAt, _ = fields["updated_at"].(string)
	entry.Source, _ = fields["source"].(string)

	return entry, true
}

// LoadSnapshot never fails: a missing or corrupt file reads as an empty table.
// Tables written in the older flat layout, with pair entries at the top
// level, are normalized.
func (f *FileStorage) LoadSnapshot() currency.Snapshot {
	snapshot := currency.EmptySnapshot()
	data, err := os.ReadFile(f.RatesPath)

	if err != nil {
		return snapshot
	}

	var document map[string]json.RawMessage

	if err := json.Unmarshal(data, &document); err != nil || document == nil {
		return snapshot
	}

	var rawPairs map[string]json.RawMessage

	if p, ok := document["pairs"]; !ok || json.Unmarshal(p, &rawPairs) != nil || rawPairs == nil {
		rawPairs = make(map[string]json.RawMessage, len(document))

		for key, value := range document {
			if key == "last_refresh" {
				continue
			}

			rawPairs[key] = value
		}
	}

	for key, value := range rawPairs {
		if entry, ok := decodePairEntry(value); ok {
			snapshot.Pairs[key] = entry
		}
	}

	if raw, ok := document["last_refresh"]; ok {
		var lastRefresh *string
		if json.Unmarshal(raw, &lastRefresh) == nil {
			snapshot.LastRefresh = lastRefresh
		}
	}

	return snapshot
}

func (f *FileStorage) WriteSnapshot(pairs map[string]currency.PairEntry, lastRefresh string) error {
	if pairs == nil {
		pairs = make(map[string]currency.PairEntry)
	}

	snapshot := currency.Snapshot{Pairs: pairs}
	if lastRefresh != "" {
		snapshot.LastRefresh = &lastRefresh
	}

	if err := writeJSON(f.RatesPath, snapshot); err != nil {
		return fmt.Errorf("cannot write snapshot %s: %w", f.RatesPath, err)
	}

	return nil
}

func (f *FileStorage) LoadHistory() []currency.HistoryRecord {
	data, err := os.ReadFile(f.HistoryPath)

	if err != nil {
		return []currency.HistoryRecord{}
	}

	var history []currency.HistoryRecord

	if err := json.Unmarshal(data, &history); err != nil || history == nil {
		return []currency.HistoryRecord{}
	}

	return history
}

// AppendHistory adds the records whose id is not yet present and rewrites the
// whole log.
func (f *FileStorage) AppendHistory(records []currency.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	history := f.LoadHistory()
	existing := make(map[string]struct{}, len(history)+len(records))

	for _, record := range history {
		if record.ID != "" {
			existing[record.ID] = struct{}{}
		}
	}

	for _, record := range records {
		if _, ok := existing[record.ID]; ok && record.ID != "" {
			continue
		}

		if record.Meta == nil {
			record.Meta = currency.Meta{}
		}

		history = append(history, record)

		if record.ID != "" {
			existing[record.ID] = struct{}{}
		}
	}

	if err := writeJSON(f.HistoryPath, history); err != nil {
		return fmt.Errorf("cannot write history %s: %w", f.HistoryPath, err)
	}

	return nil
}
