package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/money"
)

type recordingPlanner struct {
	mu    sync.Mutex
	calls [][]DomainEventView
	plan  Plan
}

func (p *recordingPlanner) Plan(views []DomainEventView, baseCurrency money.Currency) Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, views)
	return p.plan
}

func (p *recordingPlanner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type recordingMarketSyncer struct{ called atomicCounter }

func (s *recordingMarketSyncer) SyncMarket(ctx context.Context, mode MarketSyncMode, assetIDs []string) ([]string, error) {
	s.called.inc()
	return nil, nil
}

type recordingSnapshots struct {
	called     atomicCounter
	accountIDs []string
}

func (s *recordingSnapshots) Recalculate(ctx context.Context, accountIDs []string, forceFull bool) error {
	s.called.inc()
	s.accountIDs = accountIDs
	return nil
}

type recordingValuation struct{ called atomicCounter }

func (v *recordingValuation) Revalue(ctx context.Context, accountIDs []string) error {
	v.called.inc()
	return nil
}

type recordingEnricher struct{ called atomicCounter }

func (e *recordingEnricher) Enrich(ctx context.Context, assetIDs []string) { e.called.inc() }

type recordingBrokerSyncer struct{ called atomicCounter }

func (b *recordingBrokerSyncer) SyncAccounts(ctx context.Context, accountIDs []string) { b.called.inc() }

// atomicCounter avoids a data race between the manager's background batch
// goroutine and test assertions, without pulling in sync/atomic.Int64
// boilerplate per field.
type atomicCounter struct {
	mu sync.Mutex
	n  int
}

func (c *atomicCounter) inc() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func (c *atomicCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestManager(planner *recordingPlanner, snapshots *recordingSnapshots, valuation *recordingValuation, market *recordingMarketSyncer, enricher *recordingEnricher, broker *recordingBrokerSyncer) (*Manager, events.DomainEventTx, func()) {
	tx, rx, closer := events.NewDomainEventChannel(16)
	mgr := NewManager(rx, Deps{
		Bus:          events.NewServerEventBus(),
		Planner:      planner,
		MarketSync:   market,
		Snapshots:    snapshots,
		Valuation:    valuation,
		Enrichment:   enricher,
		BrokerSync:   broker,
		BaseCurrency: "USD",
		Debounce:     20 * time.Millisecond,
	}, zerolog.Nop())
	return mgr, tx, closer
}

func TestManagerDebouncesBurstIntoOneBatch(t *testing.T) {
	planner := &recordingPlanner{plan: Plan{PortfolioJob: &PortfolioJobConfig{Mode: MarketSyncNone, AccountIDs: []string{"acct-1"}}}}
	snapshots := &recordingSnapshots{}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	mgr, tx, closer := newTestManager(planner, snapshots, valuation, market, enricher, broker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mgr.Run(ctx)
		close(done)
	}()

	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})

	require.Eventually(t, func() bool { return planner.callCount() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, planner.callCount(), "a burst within the debounce window must coalesce into one batch")

	require.Eventually(t, func() bool { return snapshots.called.get() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, valuation.called.get())
	assert.Equal(t, []string{"acct-1"}, snapshots.accountIDs)

	cancel()
	closer()
	<-done
}

func TestManagerSkipsMarketSyncWhenModeNone(t *testing.T) {
	planner := &recordingPlanner{plan: Plan{PortfolioJob: &PortfolioJobConfig{Mode: MarketSyncNone, AccountIDs: []string{"acct-1"}}}}
	snapshots := &recordingSnapshots{}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	mgr, tx, closer := newTestManager(planner, snapshots, valuation, market, enricher, broker)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { mgr.Run(ctx); close(done) }()

	tx.Send(events.DomainEvent{Kind: events.QuotesChanged, AssetIDs: []string{"AAPL"}})

	require.Eventually(t, func() bool { return snapshots.called.get() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, market.called.get(), "MarketSyncNone must not call the market syncer")

	cancel()
	closer()
	<-done
}

func TestManagerSpawnsEnrichmentAndBrokerSync(t *testing.T) {
	planner := &recordingPlanner{plan: Plan{
		PortfolioJob:         nil,
		EnrichAssetIDs:       []string{"AAPL"},
		BrokerSyncAccountIDs: []string{"acct-1"},
	}}
	snapshots := &recordingSnapshots{}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	mgr, tx, closer := newTestManager(planner, snapshots, valuation, market, enricher, broker)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { mgr.Run(ctx); close(done) }()

	tx.Send(events.DomainEvent{Kind: events.AssetsCreated, AssetIDs: []string{"AAPL"}})

	require.Eventually(t, func() bool { return enricher.called.get() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return broker.called.get() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, snapshots.called.get(), "no portfolio job means snapshots are never recalculated")

	cancel()
	closer()
	<-done
}

func TestManagerDrainsPendingOnChannelClose(t *testing.T) {
	planner := &recordingPlanner{plan: Plan{PortfolioJob: &PortfolioJobConfig{Mode: MarketSyncNone, AccountIDs: []string{"acct-1"}}}}
	snapshots := &recordingSnapshots{}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	// Use a long debounce so the only way the pending event is processed is
	// via the channel-close drain path, not the timer.
	tx, rx, closer := events.NewDomainEventChannel(16)
	mgr := NewManager(rx, Deps{
		Bus:          events.NewServerEventBus(),
		Planner:      planner,
		MarketSync:   market,
		Snapshots:    snapshots,
		Valuation:    valuation,
		Enrichment:   enricher,
		BrokerSync:   broker,
		BaseCurrency: "USD",
		Debounce:     time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { mgr.Run(ctx); close(done) }()

	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
	closer()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
	assert.Equal(t, 1, planner.callCount(), "the pending event must be processed once on close")
	assert.Equal(t, 1, snapshots.called.get())
}

// slowSnapshots blocks inside Recalculate long enough for later batches to
// collide with the in-flight one, tracking the maximum overlap observed.
type slowSnapshots struct {
	mu         sync.Mutex
	inFlight   int
	maxOverlap int
	delay      time.Duration
}

func (s *slowSnapshots) Recalculate(ctx context.Context, accountIDs []string, forceFull bool) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxOverlap {
		s.maxOverlap = s.inFlight
	}
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return nil
}

func (s *slowSnapshots) observedOverlap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxOverlap
}

func TestManagerNeverRunsTwoBatchesConcurrently(t *testing.T) {
	planner := &recordingPlanner{plan: Plan{PortfolioJob: &PortfolioJobConfig{Mode: MarketSyncNone, AccountIDs: []string{"acct-1"}}}}
	snapshots := &slowSnapshots{delay: 60 * time.Millisecond}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	tx, rx, closer := events.NewDomainEventChannel(64)
	mgr := NewManager(rx, Deps{
		Bus:          events.NewServerEventBus(),
		Planner:      planner,
		MarketSync:   market,
		Snapshots:    snapshots,
		Valuation:    valuation,
		Enrichment:   enricher,
		BrokerSync:   broker,
		BaseCurrency: "USD",
		Debounce:     10 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { mgr.Run(ctx); close(done) }()

	// Keep feeding events while the first batch is still running so the
	// debounce timer repeatedly fires against a busy worker.
	for i := 0; i < 6; i++ {
		tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
		time.Sleep(25 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return planner.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, snapshots.observedOverlap(), "batches must be serialized, never overlapping")

	cancel()
	closer()
	<-done
}

// panickingPlanner blows up on the first batch only.
type panickingPlanner struct {
	mu    sync.Mutex
	calls int
	plan  Plan
}

func (p *panickingPlanner) Plan(views []DomainEventView, baseCurrency money.Currency) Plan {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.mu.Unlock()
	if n == 1 {
		panic("planner exploded")
	}
	return p.plan
}

func (p *panickingPlanner) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestManagerSurvivesPanicInBatch(t *testing.T) {
	planner := &panickingPlanner{plan: Plan{PortfolioJob: &PortfolioJobConfig{Mode: MarketSyncNone, AccountIDs: []string{"acct-1"}}}}
	snapshots := &recordingSnapshots{}
	valuation := &recordingValuation{}
	market := &recordingMarketSyncer{}
	enricher := &recordingEnricher{}
	broker := &recordingBrokerSyncer{}

	tx, rx, closer := events.NewDomainEventChannel(16)
	mgr := NewManager(rx, Deps{
		Bus:          events.NewServerEventBus(),
		Planner:      planner,
		MarketSync:   market,
		Snapshots:    snapshots,
		Valuation:    valuation,
		Enrichment:   enricher,
		BrokerSync:   broker,
		BaseCurrency: "USD",
		Debounce:     10 * time.Millisecond,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { mgr.Run(ctx); close(done) }()

	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
	require.Eventually(t, func() bool { return planner.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// The worker must still be alive and process the next batch normally.
	time.Sleep(20 * time.Millisecond)
	tx.Send(events.DomainEvent{Kind: events.ActivitiesChanged, AccountIDs: []string{"acct-1"}})
	require.Eventually(t, func() bool { return snapshots.called.get() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	closer()
	<-done
}
