package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/malusev998/currency-rates"
	"github.com/malusev998/currency-rates/metrics"
)

type (
	// RateUpdater merges provider samples into the snapshot. Runs are
	// serialized by mu for the load, merge and write phase only.
	RateUpdater struct {
		Fetchers []currency.Fetcher
		Storage  currency.Storage
		Sinks    []currency.HistorySink
		Timeout  time.Duration
		Logger   *slog.Logger
		Now      func() time.Time

		mu sync.Mutex
	}

	fetchResult struct {
		samples []currency.RateSample
		err     error
	}
)

func NewRateUpdater(storage currency.Storage, fetchers []currency.Fetcher, sinks []currency.HistorySink, timeout time.Duration, logger *slog.Logger) *RateUpdater {
	return &RateUpdater{
		Fetchers: fetchers,
		Storage:  storage,
		Sinks:    sinks,
		Timeout:  timeout,
		Logger:   logger,
	}
}

func (u *RateUpdater) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}

	return u.Logger
}

func (u *RateUpdater) now() time.Time {
	if u.Now != nil {
		return u.Now().UTC()
	}

	return time.Now().UTC()
}

func (u *RateUpdater) activeFetchers(sourceFilter string) ([]currency.Fetcher, error) {
	sourceFilter = strings.TrimSpace(sourceFilter)

	if sourceFilter == "" {
		if len(u.Fetchers) == 0 {
			return nil, currency.NewError(currency.KindNoProvider, nil, "no rate providers are configured")
		}

		return u.Fetchers, nil
	}

	active := make([]currency.Fetcher, 0, 1)

	for _, f := range u.Fetchers {
		if strings.EqualFold(string(f.Name()), sourceFilter) {
			active = append(active, f)
		}
	}

	if len(active) == 0 {
		return nil, currency.NewError(currency.KindNoProvider, nil, "no configured provider matches source %q", sourceFilter)
	}

	return active, nil
}

func (u *RateUpdater) fetch(ctx context.Context, wg *sync.WaitGroup, f currency.Fetcher, result *fetchResult) {
	defer wg.Done()

	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}

	result.samples, result.err = f.Fetch(ctx)
}

// merge applies last-writer-wins by timestamp. It returns the pairs that were
// overwritten, in the order they were first accepted.
func merge(pairs map[string]currency.PairEntry, samples []currency.RateSample) []string {
	updated := make([]string, 0, len(samples))
	seen := make(map[string]struct{}, len(samples))

	for _, sample := range samples {
		key := sample.Pair()
		sampleTs := sample.Timestamp.UTC().Truncate(currency.TimestampPrecision)

		if current, ok := pairs[key]; ok {
			currentTs, err := currency.ParseTimestamp(current.UpdatedAt)

			if err == nil && sampleTs.Before(currentTs) {
				continue
			}
		}

		pairs[key] = currency.PairEntry{
			Rate:      sample.Rate,
			UpdatedAt: currency.FormatTimestamp(sampleTs),
			Source:    string(sample.Source),
		}

		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			updated = append(updated, key)
		}
	}

	return updated
}

func (u *RateUpdater) RunUpdate(ctx context.Context, sourceFilter string) (currency.UpdateResult, error) {
	active, err := u.activeFetchers(sourceFilter)

	if err != nil {
		metrics.UpdateCyclesTotal.WithLabelValues("no_provider").Inc()
		return currency.UpdateResult{}, err
	}

	cycleID := uuid.New()
	logger := u.logger().With("cycle", cycleID.String())

	names := make([]string, 0, len(active))
	for _, f := range active {
		names = append(names, string(f.Name()))
	}

	logger.Info("rate update started", "sources", strings.Join(names, ","))

	var wg sync.WaitGroup
	results := make([]fetchResult, len(active))

	wg.Add(len(active))
	for i, f := range active {
		go u.fetch(ctx, &wg, f, &results[i])
	}
	wg.Wait()

	samples := make([]currency.RateSample, 0)
	failures := make([]currency.ProviderFailure, 0)
	stats := make(map[currency.Provider]int, len(active))
	messages := make([]string, 0)

	for i, f := range active {
		name := f.Name()
		res := results[i]

		if res.err != nil {
			message := currency.DetailOf(res.err)
			failures = append(failures, currency.ProviderFailure{Source: name, Message: message})
			messages = append(messages, string(name)+": "+message)
			stats[name] = 0
			metrics.ProviderSamples.WithLabelValues(string(name)).Set(0)
			logger.Error("provider fetch failed", "source", name, "error", message)

			continue
		}

		samples = append(samples, res.samples...)
		stats[name] = len(res.samples)
		metrics.ProviderSamples.WithLabelValues(string(name)).Set(float64(len(res.samples)))
		logger.Info("provider fetch succeeded", "source", name, "samples", len(res.samples))
	}

	if len(failures) == len(active) && len(samples) == 0 {
		metrics.UpdateCyclesTotal.WithLabelValues("all_providers_failed").Inc()
		logger.Error("rate update failed, no provider returned data", "errors", len(failures))

		return currency.UpdateResult{}, &currency.Error{
			Kind:   currency.KindAllProvidersFailed,
			Detail: "could not fetch rates from any provider: " + strings.Join(messages, "; "),
			Err:    firstError(results),
		}
	}

	records := make([]currency.HistoryRecord, 0, len(samples))
	for _, sample := range samples {
		records = append(records, sample.HistoryRecord())
	}

	updated, lastRefresh, err := u.persist(samples, records)

	if err != nil {
		metrics.UpdateCyclesTotal.WithLabelValues("storage_error").Inc()
		logger.Error("rate update could not be persisted", "error", err)

		return currency.UpdateResult{}, err
	}

	u.mirrorHistory(ctx, logger, records)

	result := "success"
	if len(failures) > 0 {
		result = "partial"
	}

	metrics.UpdateCyclesTotal.WithLabelValues(result).Inc()
	logger.Info("rate update finished", "updated_pairs", len(updated), "samples", len(samples), "errors", len(failures), "last_refresh", lastRefresh)

	return currency.UpdateResult{
		ID:           cycleID,
		UpdatedPairs: updated,
		Errors:       failures,
		LastRefresh:  lastRefresh,
		SourceStats:  stats,
	}, nil
}

func firstError(results []fetchResult) error {
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}

	return nil
}

func (u *RateUpdater) persist(samples []currency.RateSample, records []currency.HistoryRecord) ([]string, string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	snapshot := u.Storage.LoadSnapshot()
	pairs := make(map[string]currency.PairEntry, len(snapshot.Pairs)+len(samples))

	for key, entry := range snapshot.Pairs {
		pairs[key] = entry
	}

	updated := merge(pairs, samples)

	var newest time.Time
	for _, sample := range samples {
		if sample.Timestamp.After(newest) {
			newest = sample.Timestamp
		}
	}

	if newest.IsZero() {
		newest = u.now()
	}

	lastRefresh := currency.FormatTimestamp(newest)

	if err := u.Storage.WriteSnapshot(pairs, lastRefresh); err != nil {
		return nil, "", err
	}

	if err := u.Storage.AppendHistory(records); err != nil {
		return nil, "", err
	}

	return updated, lastRefresh, nil
}

func saveToSink(
	ctx context.Context,
	wg *sync.WaitGroup,
	logger *slog.Logger,
	records []currency.HistoryRecord,
	sink currency.HistorySink,
) {
	defer wg.Done()

	inserted, err := sink.Store(ctx, records)

	if err != nil {
		metrics.HistorySinkFailuresTotal.WithLabelValues(sink.GetStorageProviderName()).Inc()
		logger.Warn("history mirror failed", "sink", sink.GetStorageProviderName(), "error", err)

		return
	}

	logger.Debug("history mirrored", "sink", sink.GetStorageProviderName(), "inserted", inserted)
}

func (u *RateUpdater) mirrorHistory(ctx context.Context, logger *slog.Logger, records []currency.HistoryRecord) {
	if len(u.Sinks) == 0 || len(records) == 0 {
		return
	}

	var wg sync.WaitGroup

	wg.Add(len(u.Sinks))
	for _, sink := range u.Sinks {
		go saveToSink(ctx, &wg, logger, records, sink)
	}

	wg.Wait()
}
