package currency

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampFormat is the layout of every timestamp persisted by the engine.
// Microseconds are kept so that two observations of the same second stay ordered.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

type (
	Meta map[string]interface{}

	// RateSample is one normalized observation produced by a Fetcher.
	RateSample struct {
		From      string
		To        string
		Rate      float64
		Source    Provider
		Timestamp time.Time
		Meta      Meta
	}

	PairEntry struct {
		Rate      float64 `json:"rate"`
		UpdatedAt string  `json:"updated_at"`
		Source    string  `json:"source"`
	}

	Snapshot struct {
		Pairs       map[string]PairEntry `json:"pairs"`
		LastRefresh *string              `json:"last_refresh"`
	}

	HistoryRecord struct {
		ID        string  `json:"id"`
		From      string  `json:"from_currency"`
		To        string  `json:"to_currency"`
		Rate      float64 `json:"rate"`
		Timestamp string  `json:"timestamp"`
		Source    string  `json:"source"`
		Meta      Meta    `json:"meta"`
	}

	ProviderFailure struct {
		Source  Provider `json:"source"`
		Message string   `json:"message"`
	}

	UpdateResult struct {
		ID           uuid.UUID         `json:"id"`
		UpdatedPairs []string          `json:"updated_pairs"`
		Errors       []ProviderFailure `json:"errors"`
		LastRefresh  string            `json:"last_refresh"`
		SourceStats  map[Provider]int  `json:"source_stats"`
	}

	Rate struct {
		From      string  `json:"from"`
		To        string  `json:"to"`
		Rate      float64 `json:"rate"`
		UpdatedAt string  `json:"updated_at"`
		Source    string  `json:"source,omitempty"`
		Inverted  bool    `json:"inverted"`
		Refreshed bool    `json:"refreshed"`
	}

	CachedRate struct {
		Pair string `json:"pair"`
		From string `json:"from"`
		To   string `json:"to"`
		PairEntry
	}
)

func PairKey(from, to string) string {
	return fmt.Sprintf("%s_%s", from, to)
}

// SplitPair is the inverse of PairKey.
func SplitPair(key string) (from, to string, ok bool) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	return parts[0], parts[1], true
}

// TimestampPrecision is the resolution of TimestampFormat.
const TimestampPrecision = time.Microsecond

func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(TimestampPrecision).Format(TimestampFormat)
}

// ParseTimestamp reads RFC 3339 values and zone-less ISO values, the latter as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}

	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("value %q is not a valid timestamp", value)
}

func (s RateSample) Pair() string {
	return PairKey(s.From, s.To)
}

func (s RateSample) HistoryRecord() HistoryRecord {
	timestamp := FormatTimestamp(s.Timestamp)
	meta := make(Meta, len(s.Meta))

	for k, v := range s.Meta {
		meta[k] = v
	}

	return HistoryRecord{
		ID:        s.Pair() + "_" + timestamp,
		From:      s.From,
		To:        s.To,
		Rate:      s.Rate,
		Timestamp: timestamp,
		Source:    string(s.Source),
		Meta:      meta,
	}
}

func (r HistoryRecord) Pair() string {
	return PairKey(r.From, r.To)
}

func EmptySnapshot() Snapshot {
	return Snapshot{Pairs: make(map[string]PairEntry)}
}
