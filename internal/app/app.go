// Package app wires every component into one running process: a single
// place that constructs every repository, service, and engine in dependency
// order (database -> repositories -> quote -> fx -> snapshot -> valuation ->
// provider -> events -> planner -> queue and health sweep -> cron ->
// backup -> transport) and hands back a ready-to-run Services value.
package app

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/backup"
	"github.com/aristath/ledgercore/internal/config"
	"github.com/aristath/ledgercore/internal/cron"
	"github.com/aristath/ledgercore/internal/database"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/events"
	"github.com/aristath/ledgercore/internal/fx"
	"github.com/aristath/ledgercore/internal/money"
	"github.com/aristath/ledgercore/internal/planner"
	"github.com/aristath/ledgercore/internal/provider"
	"github.com/aristath/ledgercore/internal/queue"
	"github.com/aristath/ledgercore/internal/quote"
	"github.com/aristath/ledgercore/internal/snapshot"
	"github.com/aristath/ledgercore/internal/store"
	"github.com/aristath/ledgercore/internal/transport"
	"github.com/aristath/ledgercore/internal/valuation"
)

// Services holds every wired component the process needs to run and shut
// down cleanly.
type Services struct {
	DB        *database.DB
	Accounts  *store.AccountRepository
	Assets    *store.AssetRepository
	Bus       *events.ServerEventBus
	QueueMgr  *queue.Manager
	Sweeps    *queue.Scheduler
	Cron      *cron.Scheduler
	Transport *transport.Server
	Backup    *backup.Service

	domainTx    events.DomainEventTx
	domainClose func()
	cfg         *config.Config
	log         zerolog.Logger
}

// New wires every component in dependency order and returns a Services ready
// for Run. It does not start anything (no goroutines, no listeners) so
// callers can inspect/override before Run.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DataDir + "/ledger.db",
		Profile: database.ProfileStandard,
		Name:    "core",
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		return nil, err
	}

	accounts := store.NewAccountRepository(db, log)
	assets := store.NewAssetRepository(db, log)
	activities := store.NewActivityRepository(db, log)
	quotesRepo := store.NewQuoteRepository(db, log)
	syncStateRepo := store.NewSyncStateRepository(db, log)
	snapshotsRepo := store.NewSnapshotRepository(db, log)
	valuationsRepo := store.NewValuationRepository(db, log)

	quoteStore := quote.New(quotesRepo, syncStateRepo, log)
	fxService := fx.New(quoteStore, assets, log)

	accountList, err := accounts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	accountsByID := make(map[string]domain.Account, len(accountList))
	for _, a := range accountList {
		accountsByID[a.ID] = a
	}

	assetCurrency := snapshot.AssetCurrencyLookup(func(assetID string) money.Currency {
		a, ok, err := assets.Get(ctx, assetID)
		if err != nil || !ok {
			return ""
		}
		return a.Currency
	})
	snapshotEngine := snapshot.New(activities, snapshotsRepo, accountList, log).
		WithCostConversion(fxService, assetCurrency)
	valuationEngine := valuation.New(quoteStore, fxService, valuationsRepo, money.Currency(cfg.BaseCurrency), log)

	registry := provider.New(nil, provider.NewRulesResolver(), log).
		WithTimeout(time.Duration(cfg.ProviderTimeoutMillis) * time.Millisecond)

	bus := events.NewServerEventBus()
	domainTx, domainRx, domainClose := events.NewDomainEventChannel(64)

	// Repositories publish identifier-only domain events after successful
	// writes; the queue worker owns the receiving end.
	accounts.WithEvents(domainTx.Clone())
	assets.WithEvents(domainTx.Clone())
	activities.WithEvents(domainTx.Clone())

	planLookup := planner.ProfileLookup(func(assetID string) bool {
		a, ok, err := assets.Get(ctx, assetID)
		if err != nil || !ok {
			return true
		}
		return len(a.Profile) == 0
	})
	plan := planner.New(planLookup)

	queueDeps := queue.Deps{
		Bus:     bus,
		Planner: plan,
		MarketSync: &marketSyncAdapter{
			registry: registry,
			assets:   assets,
			quotes:   quoteStore,
			log:      log,
		},
		Snapshots: &snapshotAdapter{
			engine:         snapshotEngine,
			quotes:         quoteStore,
			baseCurrency:   money.Currency(cfg.BaseCurrency),
			totalAccountID: cfg.PortfolioTotalAccountID,
		},
		Valuation: &valuationAdapter{
			engine:         valuationEngine,
			snapshots:      snapshotsRepo,
			assets:         assets,
			accounts:       accountsByID,
			baseCurrency:   money.Currency(cfg.BaseCurrency),
			totalAccountID: cfg.PortfolioTotalAccountID,
		},
		Enrichment:   &enrichAdapter{log: log},
		BrokerSync:   &brokerSyncAdapter{log: log},
		BaseCurrency: money.Currency(cfg.BaseCurrency),
		Debounce:     time.Duration(cfg.DebounceMillis) * time.Millisecond,
	}
	queueMgr := queue.NewManager(domainRx, queueDeps, log)

	sweeps := queue.NewScheduler(log)
	sweeper := newHealthSweeper(quoteStore, syncStateRepo, cfg, log)
	if err := sweeps.Register("health_check", "*/15 * * * *", sweeper.Run); err != nil {
		return nil, err
	}

	cronScheduler := cron.New(log)
	if err := cronScheduler.AddJob("0 0 3 * * *", &cron.FullRecalcJob{
		Tx:       domainTx,
		Accounts: accountListerAdapter{accounts: accounts},
	}); err != nil {
		return nil, err
	}

	var backupSvc *backup.Service
	if cfg.BackupEnabled && cfg.BackupS3Bucket != "" {
		backupSvc, err = backup.New(ctx, cfg.BackupS3Bucket, db, cfg.DataDir, log)
		if err != nil {
			return nil, err
		}
		if err := cronScheduler.AddJob(backupSchedule(cfg.BackupIntervalHours), &cron.BackupJob{
			Service:       backupSvc,
			RetentionDays: cfg.BackupRetentionDays,
		}); err != nil {
			return nil, err
		}
	}

	transportSrv := transport.New(transport.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		Bus:     bus,
		DevMode: cfg.DevMode,
	})

	return &Services{
		DB:          db,
		Accounts:    accounts,
		Assets:      assets,
		Bus:         bus,
		QueueMgr:    queueMgr,
		Sweeps:      sweeps,
		Cron:        cronScheduler,
		Transport:   transportSrv,
		Backup:      backupSvc,
		domainTx:    domainTx,
		domainClose: domainClose,
		cfg:         cfg,
		log:         log,
	}, nil
}

// Run starts every background loop (queue worker, sweep scheduler, cron
// scheduler, HTTP/WebSocket transport) and blocks until ctx is cancelled.
func (s *Services) Run(ctx context.Context) error {
	go s.QueueMgr.Run(ctx)
	s.Sweeps.Start()
	s.Cron.Start()

	err := s.Transport.ListenAndServe(ctx)

	s.Cron.Stop()
	s.Sweeps.Stop()
	s.domainClose()
	return err
}

// backupSchedule maps the configured interval onto a cron expression: every
// N hours for sub-daily intervals, otherwise once a day at 04:00.
func backupSchedule(hours int) string {
	if hours > 0 && hours < 24 {
		return "0 0 */" + strconv.Itoa(hours) + " * * *"
	}
	return "0 0 4 * * *"
}
