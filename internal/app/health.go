package app

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/aristath/ledgercore/internal/config"
	"github.com/aristath/ledgercore/internal/domain"
	"github.com/aristath/ledgercore/internal/health"
	"github.com/aristath/ledgercore/internal/quote"
	"github.com/aristath/ledgercore/internal/store"
)

// healthSweeper runs the health/diagnostics evaluator as a periodic sweep,
// logging every derived issue rather than storing
// it: no dismissal/ack store is in scope, so DataHash-stable issue ids exist
// for future clients to key off of, not for this sweep to persist.
type healthSweeper struct {
	quotes     *quote.Store
	syncStates *store.SyncStateRepository
	gatherer   *health.ProcessGatherer
	check      *health.QuoteSyncCheck
	baseCcy    string
	mvThresh   float64
	graceDays  int
	bufferDays int
	marginDays int
	log        zerolog.Logger
}

func newHealthSweeper(quotes *quote.Store, syncStates *store.SyncStateRepository, cfg *config.Config, log zerolog.Logger) *healthSweeper {
	return &healthSweeper{
		quotes:     quotes,
		syncStates: syncStates,
		gatherer:   health.NewProcessGatherer(int32(os.Getpid()), log),
		check:      health.NewQuoteSyncCheck(),
		baseCcy:    cfg.BaseCurrency,
		mvThresh:   cfg.MVEscalationThreshold,
		graceDays:  cfg.ClosedGracePeriodDays,
		bufferDays: cfg.QuoteHistoryBufferDays,
		marginDays: cfg.BackfillSafetyMarginDays,
		log:        log.With().Str("component", "health_sweep").Logger(),
	}
}

func (h *healthSweeper) Run(ctx context.Context) {
	facts := h.gatherer.Gather(ctx)
	h.log.Debug().
		Float64("cpu_percent", facts.CPUPercent).
		Float64("memory_rss_mb", facts.MemoryRSSMB).
		Msg("process health facts")

	plan, err := h.quotes.PendingSyncPlan(ctx, h.graceDays, h.bufferDays, h.marginDays, civilToday())
	if err != nil {
		h.log.Warn().Err(err).Msg("health sweep: could not load sync plan")
		return
	}

	states, err := h.syncStates.ListSyncStates(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("health sweep: could not load sync states")
		return
	}
	bySymbol := make(map[string]quote.SyncState, len(states))
	for _, s := range states {
		bySymbol[s.Symbol] = s
	}

	var errInfos []health.SyncErrorInfo
	for _, entry := range plan {
		s, ok := bySymbol[entry.Symbol]
		if !ok || s.ErrorCount == 0 {
			continue
		}
		msg := ""
		if s.LastError != nil {
			msg = *s.LastError
		}
		errInfos = append(errInfos, health.SyncErrorInfo{
			AssetID:         s.Symbol,
			Symbol:          s.Symbol,
			PricingMode:     domain.PricingModeMarket,
			ErrorCount:      s.ErrorCount,
			LastError:       msg,
			HasSyncedBefore: s.LastSyncedAt != nil,
		})
	}

	issues := h.check.Analyze(errInfos, health.Context{
		BaseCurrency:          h.baseCcy,
		MVEscalationThreshold: h.mvThresh,
	})
	for _, issue := range issues {
		h.log.Warn().
			Str("severity", string(issue.Severity)).
			Str("category", string(issue.Category)).
			Str("title", issue.Title).
			Int("affected_count", issue.AffectedCount).
			Msg(issue.Message)
	}
}
