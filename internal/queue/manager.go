// Package queue implements the debounced domain-event queue worker: it
// collects domain events over a debounce window, hands the batch to the
// planner, runs the resulting portfolio job in-line, and spawns asset
// enrichment and broker sync as fire-and-forget tasks.
package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/money"
)

// busyRetryInterval is how soon the worker rechecks is_processing when the
// debounce timer fires mid-batch, the same cadence the shutdown path polls
// at, so a busy worker doesn't wait a full debounce window longer than
// necessary before trying again.
const busyRetryInterval = 50 * time.Millisecond

// Deps bundles the collaborators the worker needs to run a batch: the
// planner plus the market-sync, snapshot, valuation, enrichment, and
// broker-sync steps.
type Deps struct {
	Bus          *events.ServerEventBus
	Planner      Planner
	MarketSync   MarketSyncer
	Snapshots    SnapshotRecalculator
	Valuation    Valuator
	Enrichment   AssetEnricher
	BrokerSync   BrokerSyncer
	BaseCurrency money.Currency
	Debounce     time.Duration
}

// Manager runs the single debounce/collect/process loop. One Manager owns
// the domain-event receiver for the whole process; senders are cloneable.
type Manager struct {
	rx   events.DomainEventRx
	deps Deps
	log  zerolog.Logger

	isProcessing atomic.Bool
}

// NewManager builds a queue worker reading from rx.
func NewManager(rx events.DomainEventRx, deps Deps, log zerolog.Logger) *Manager {
	if deps.Debounce <= 0 {
		deps.Debounce = 1000 * time.Millisecond
	}
	return &Manager{rx: rx, deps: deps, log: log.With().Str("component", "queue").Logger()}
}

// Run executes the worker loop until ctx is cancelled or the domain-event
// channel is closed. On channel closure it waits for any in-flight batch,
// processes any pending events one final time, and returns.
func (m *Manager) Run(ctx context.Context) {
	var pending []events.DomainEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	resetTimer := func(d time.Duration) {
		if timer != nil {
			timer.Stop()
		}
		timer = time.NewTimer(d)
		timerC = timer.C
	}

	for {
		select {
		case event, ok := <-m.rx.Chan():
			if !ok {
				m.waitForIdle()
				if len(pending) > 0 {
					m.processBatch(context.Background(), pending)
				}
				return
			}
			pending = append(pending, event)
			resetTimer(m.deps.Debounce)

		case <-timerC:
			timerC = nil
			if len(pending) == 0 {
				continue
			}
			if m.isProcessing.Load() {
				// A batch is already running; keep collecting and recheck
				// soon rather than waiting a full debounce window again.
				resetTimer(busyRetryInterval)
				continue
			}
			batch := pending
			pending = nil
			m.isProcessing.Store(true)
			go func() {
				defer m.isProcessing.Store(false)
				m.processBatch(ctx, batch)
			}()

		case <-ctx.Done():
			return
		}
	}
}

// waitForIdle blocks until no batch is in flight, polling every 50ms.
func (m *Manager) waitForIdle() {
	for m.isProcessing.Load() {
		time.Sleep(busyRetryInterval)
	}
}

// processBatch runs one collected batch: plan, run the
// portfolio job synchronously, then spawn enrichment and broker sync.
// A panic in one batch is caught and logged so it cannot poison the worker.
func (m *Manager) processBatch(ctx context.Context, batch []events.DomainEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("batch processing panicked")
		}
	}()

	views := toPlannerViews(batch)

	m.log.Debug().Int("batch_size", len(batch)).Msg("processing domain-event batch")

	plan := m.deps.Planner.Plan(views, m.deps.BaseCurrency)

	if plan.PortfolioJob != nil {
		m.runPortfolioJob(ctx, *plan.PortfolioJob)
	}

	if len(plan.EnrichAssetIDs) > 0 {
		go m.deps.Enrichment.Enrich(context.Background(), plan.EnrichAssetIDs)
	}
	if len(plan.BrokerSyncAccountIDs) > 0 {
		go m.deps.BrokerSync.SyncAccounts(context.Background(), plan.BrokerSyncAccountIDs)
	}
}

// runPortfolioJob runs the synchronous leg: market sync, then snapshot
// recalculation, then valuation, each emitting start/complete/error on the
// server-event bus.
func (m *Manager) runPortfolioJob(ctx context.Context, job PortfolioJobConfig) {
	bus := m.deps.Bus

	if job.Mode != MarketSyncNone {
		bus.Publish(events.ServerEvent{Topic: events.TopicMarketSyncStart, EmittedAt: time.Now()})
		failed, err := m.deps.MarketSync.SyncMarket(ctx, job.Mode, job.AssetIDs)
		if err != nil {
			bus.Publish(events.ServerEvent{Topic: events.TopicMarketSyncError, Payload: err.Error(), EmittedAt: time.Now()})
		} else {
			bus.Publish(events.ServerEvent{Topic: events.TopicMarketSyncComplete, Payload: failed, EmittedAt: time.Now()})
		}
	}

	bus.Publish(events.ServerEvent{Topic: events.TopicPortfolioUpdateStart, EmittedAt: time.Now()})

	if err := m.deps.Snapshots.Recalculate(ctx, job.AccountIDs, job.ForceFullRecalculation); err != nil {
		bus.Publish(events.ServerEvent{Topic: events.TopicPortfolioUpdateError, Payload: err.Error(), EmittedAt: time.Now()})
		m.log.Error().Err(err).Msg("snapshot recalculation failed")
		return
	}

	if err := m.deps.Valuation.Revalue(ctx, job.AccountIDs); err != nil {
		bus.Publish(events.ServerEvent{Topic: events.TopicPortfolioUpdateError, Payload: err.Error(), EmittedAt: time.Now()})
		m.log.Error().Err(err).Msg("valuation failed")
		return
	}

	bus.Publish(events.ServerEvent{Topic: events.TopicPortfolioUpdateComplete, EmittedAt: time.Now()})
}

func toPlannerViews(batch []events.DomainEvent) []DomainEventView {
	views := make([]DomainEventView, len(batch))
	for i, e := range batch {
		views[i] = DomainEventView{Kind: string(e.Kind), AccountIDs: e.AccountIDs, AssetIDs: e.AssetIDs}
	}
	return views
}
