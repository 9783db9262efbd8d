// Package monitor re-checks watched listings on a cron schedule and records
// price and availability changes.
package monitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/resellkit/pricescope/internal/metrics"
	"github.com/resellkit/pricescope/internal/model"
	"github.com/resellkit/pricescope/internal/resilience"
	"github.com/resellkit/pricescope/internal/source"
	"github.com/resellkit/pricescope/internal/store"
)

// DefaultSchedule re-checks every 30 minutes.
const DefaultSchedule = "*/30 * * * *"

// MinRecheckAge keeps a freshly checked watch from being re-fetched by the
// next tick.
const MinRecheckAge = 10 * time.Minute

// Change describes one observed difference on a watched listing.
type Change struct {
	Watch        model.WatchItem
	NewPrice     int
	NewAvailable bool
	PriceDelta   int
}

type Monitor struct {
	store   store.Store
	sources map[model.Source]source.Client
	cron    *cron.Cron
	// OnChange, when set, is invoked for every detected change.
	OnChange func(Change)
}

func New(st store.Store, clients []source.Client) *Monitor {
	sources := make(map[model.Source]source.Client, len(clients))
	for _, c := range clients {
		sources[c.Source()] = c
	}
	return &Monitor{
		store:   st,
		sources: sources,
		cron:    cron.New(),
	}
}

// Start schedules periodic checks. spec is a standard cron expression;
// empty means DefaultSchedule.
func (m *Monitor) Start(spec string) error {
	if spec == "" {
		spec = DefaultSchedule
	}
	_, err := m.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := m.CheckAll(ctx); err != nil {
			zap.L().Warn("watch check run failed", zap.Error(err))
		}
	})
	if err != nil {
		return eris.Wrapf(err, "monitor: schedule %q", spec)
	}
	m.cron.Start()
	zap.L().Info("stock monitor started", zap.String("schedule", spec))
	return nil
}

// Stop halts the schedule and waits for a running check to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// CheckAll re-fetches every stale watch once and persists the new state.
// Returns the changes observed.
func (m *Monitor) CheckAll(ctx context.Context) ([]Change, error) {
	watches, err := m.store.ListWatches(ctx, store.WatchFilter{
		StaleBefore: time.Now().UTC().Add(-MinRecheckAge),
		Limit:       500,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitor: list watches")
	}

	var changes []Change
	for _, w := range watches {
		change, err := m.checkOne(ctx, w)
		if err != nil {
			metrics.WatchChecks.WithLabelValues("error").Inc()
			zap.L().Warn("watch check failed",
				zap.String("watch_id", w.ID),
				zap.String("source", string(w.Source)),
				zap.String("marketplace_id", w.MarketplaceID),
				zap.Error(err))
			continue
		}
		if change != nil {
			changes = append(changes, *change)
			if m.OnChange != nil {
				m.OnChange(*change)
			}
		}
	}
	return changes, nil
}

func (m *Monitor) checkOne(ctx context.Context, w model.WatchItem) (*Change, error) {
	client, ok := m.sources[w.Source]
	if !ok {
		return nil, eris.Errorf("monitor: no client for source %s", w.Source)
	}

	rec, err := client.FetchByID(ctx, w.MarketplaceID)
	if err != nil {
		// a listing that disappeared is a change, not a fault
		if resilience.IsNotFound(err) {
			return m.applyChange(ctx, w, 0, false)
		}
		return nil, err
	}

	return m.applyChange(ctx, w, rec.Price, rec.Availability)
}

func (m *Monitor) applyChange(ctx context.Context, w model.WatchItem, price int, available bool) (*Change, error) {
	priceChanged := price != w.LastPrice
	availChanged := available != w.LastAvailable

	if err := m.store.UpdateWatchState(ctx, w.ID, price, available); err != nil {
		return nil, eris.Wrap(err, "monitor: update watch state")
	}

	switch {
	case priceChanged:
		metrics.WatchChecks.WithLabelValues("price_changed").Inc()
	case availChanged:
		metrics.WatchChecks.WithLabelValues("availability_changed").Inc()
	default:
		metrics.WatchChecks.WithLabelValues("unchanged").Inc()
		return nil, nil
	}

	zap.L().Info("watched listing changed",
		zap.String("watch_id", w.ID),
		zap.String("source", string(w.Source)),
		zap.String("marketplace_id", w.MarketplaceID),
		zap.Int("old_price", w.LastPrice),
		zap.Int("new_price", price),
		zap.Bool("available", available))

	return &Change{
		Watch:        w,
		NewPrice:     price,
		NewAvailable: available,
		PriceDelta:   price - w.LastPrice,
	}, nil
}
