package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/malusev998/currency-rates"
)

// StalenessGate is the consumer read path. It serves a cached rate only while
// it is younger than TTL and refreshes synchronously otherwise.
type StalenessGate struct {
	Storage currency.Storage
	Updater currency.Updater
	TTL     time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func NewStalenessGate(storage currency.Storage, updater currency.Updater, ttl time.Duration, logger *slog.Logger) *StalenessGate {
	return &StalenessGate{
		Storage: storage,
		Updater: updater,
		TTL:     ttl,
		Logger:  logger,
	}
}

func (g *StalenessGate) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}

	return time.Now().UTC()
}

func (g *StalenessGate) logger() *slog.Logger {
	if g.Logger == nil {
		return slog.Default()
	}

	return g.Logger
}

func lookup(snapshot currency.Snapshot, from, to string) (currency.Rate, bool) {
	if entry, ok := snapshot.Pairs[currency.PairKey(from, to)]; ok {
		return currency.Rate{
			From:      from,
			To:        to,
			Rate:      entry.Rate,
			UpdatedAt: entry.UpdatedAt,
			Source:    entry.Source,
		}, true
	}

	if entry, ok := snapshot.Pairs[currency.PairKey(to, from)]; ok && entry.Rate != 0 {
		return currency.Rate{
			From:      from,
			To:        to,
			Rate:      1.0 / entry.Rate,
			UpdatedAt: entry.UpdatedAt,
			Source:    entry.Source,
			Inverted:  true,
		}, true
	}

	return currency.Rate{}, false
}

// isStale treats an unparsable updated_at as infinitely old.
func (g *StalenessGate) isStale(rate currency.Rate) bool {
	if g.TTL <= 0 {
		return false
	}

	updatedAt, err := currency.ParseTimestamp(rate.UpdatedAt)
	if err != nil {
		return true
	}

	return g.now().Sub(updatedAt) > g.TTL
}

func (g *StalenessGate) refresh(ctx context.Context, from, to string) error {
	if g.Updater == nil {
		return errors.New("no updater configured")
	}

	_, err := g.Updater.RunUpdate(ctx, "")

	if err != nil {
		g.logger().Warn("on-demand refresh failed", "from", from, "to", to, "error", err)
	}

	return err
}

func (g *StalenessGate) GetRate(ctx context.Context, from, to string) (currency.Rate, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == "" || to == "" {
		return currency.Rate{}, currency.NewError(currency.KindInvalidArgument, nil, "currency codes must not be empty")
	}

	if from == to {
		return currency.Rate{
			From:      from,
			To:        to,
			Rate:      1.0,
			UpdatedAt: currency.FormatTimestamp(g.now()),
		}, nil
	}

	rate, found := lookup(g.Storage.LoadSnapshot(), from, to)

	if found && !g.isStale(rate) {
		return rate, nil
	}

	refreshErr := g.refresh(ctx, from, to)
	refreshed, foundAfter := lookup(g.Storage.LoadSnapshot(), from, to)

	switch {
	case !found && !foundAfter:
		return currency.Rate{}, currency.NewError(currency.KindRateUnavailable, refreshErr, "rate %s->%s is unavailable", from, to)
	case !foundAfter || g.isStale(refreshed):
		return currency.Rate{}, currency.NewError(currency.KindStaleData, refreshErr, "rate %s->%s is older than %s and could not be refreshed", from, to, g.TTL)
	}

	refreshed.Refreshed = true

	return refreshed, nil
}

// ListCached projects the snapshot without refreshing it.
func (g *StalenessGate) ListCached(filter currency.ListFilter) ([]currency.CachedRate, error) {
	if filter.Top < 0 {
		return nil, currency.NewError(currency.KindInvalidArgument, nil, "top must be a positive integer")
	}

	currencyFilter := strings.ToUpper(strings.TrimSpace(filter.Currency))
	baseFilter := strings.ToUpper(strings.TrimSpace(filter.Base))
	snapshot := g.Storage.LoadSnapshot()
	rates := make([]currency.CachedRate, 0, len(snapshot.Pairs))

	for key, entry := range snapshot.Pairs {
		from, to, ok := currency.SplitPair(key)
		if !ok {
			continue
		}

		if currencyFilter != "" && from != currencyFilter {
			continue
		}

		if baseFilter != "" && to != baseFilter {
			continue
		}

		rates = append(rates, currency.CachedRate{Pair: key, From: from, To: to, PairEntry: entry})
	}

	if filter.Top > 0 {
		sort.Slice(rates, func(i, j int) bool {
			if rates[i].Rate == rates[j].Rate {
				return rates[i].Pair < rates[j].Pair
			}

			return rates[i].Rate > rates[j].Rate
		})

		if len(rates) > filter.Top {
			rates = rates[:filter.Top]
		}

		return rates, nil
	}

	sort.Slice(rates, func(i, j int) bool {
		return rates[i].Pair < rates[j].Pair
	})

	return rates, nil
}
