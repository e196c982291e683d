package health

import (
	"fmt"
	"strings"

	"github.com/aristath/ledgercore/internal/domain"
)

const (
	warningThreshold = 3
	errorThreshold   = 6
)

// SyncErrorInfo is one asset's sync-error facts, gathered by the caller
// from the quote sync-state repository and asset repository.
type SyncErrorInfo struct {
	AssetID         string
	Symbol          string
	PricingMode     domain.PricingMode
	ErrorCount      int
	LastError       string
	MarketValue     float64
	HasSyncedBefore bool
}

// QuoteSyncCheck derives quote-sync HealthIssues from a batch of
// sync-error facts.
type QuoteSyncCheck struct{}

// NewQuoteSyncCheck builds a quote-sync check. It carries no state: all
// inputs are passed to Analyze.
func NewQuoteSyncCheck() *QuoteSyncCheck { return &QuoteSyncCheck{} }

// Analyze partitions sync errors into never-synced/persistent/warning tiers
// and emits one HealthIssue per non-empty tier.
func (c *QuoteSyncCheck) Analyze(errors []SyncErrorInfo, ctx Context) []HealthIssue {
	var issues []HealthIssue
	if len(errors) == 0 {
		return issues
	}

	relevant := make([]SyncErrorInfo, 0, len(errors))
	for _, e := range errors {
		if e.PricingMode == domain.PricingModeManual {
			continue
		}
		relevant = append(relevant, e)
	}
	if len(relevant) == 0 {
		return issues
	}

	var neverSynced, warning, persistent []SyncErrorInfo
	for _, e := range relevant {
		switch {
		case !e.HasSyncedBefore && e.ErrorCount >= 1:
			neverSynced = append(neverSynced, e)
		case e.HasSyncedBefore && e.ErrorCount >= warningThreshold && e.ErrorCount < errorThreshold:
			warning = append(warning, e)
		case e.HasSyncedBefore && e.ErrorCount >= errorThreshold:
			persistent = append(persistent, e)
		}
	}

	if issue, ok := c.buildNeverSyncedIssue(neverSynced, ctx); ok {
		issues = append(issues, issue)
	}
	if issue, ok := c.buildPersistentIssue(persistent, ctx); ok {
		issues = append(issues, issue)
	}
	if issue, ok := c.buildWarningIssue(warning, ctx); ok {
		issues = append(issues, issue)
	}
	return issues
}

func (c *QuoteSyncCheck) buildNeverSyncedIssue(errs []SyncErrorInfo, ctx Context) (HealthIssue, bool) {
	if len(errs) == 0 {
		return HealthIssue{}, false
	}
	mvPct := marketValuePct(errs, ctx.TotalPortfolioValue)
	severity := escalate(SeverityError, mvPct, ctx.MVEscalationThreshold)

	title := "No market data for " + errs[0].Symbol
	if len(errs) > 1 {
		title = fmt.Sprintf("No market data for %d assets", len(errs))
	}

	ids := assetIDs(errs)
	hash := DataHash(ids, severity)
	return HealthIssue{
		ID:            "quote_sync:never_synced:" + hash,
		Severity:      severity,
		Category:      CategoryPriceStaleness,
		Title:         title,
		Message:       "Unable to fetch market data for these assets. Click on an asset to edit its market data settings and configure the correct provider symbol.",
		Details:       buildDetails(errs),
		AffectedCount: len(errs),
		AffectedMVPct: mvPct,
		AffectedItems: affectedItems(errs),
		RetrySyncIDs:  ids,
	}, true
}

func (c *QuoteSyncCheck) buildPersistentIssue(errs []SyncErrorInfo, ctx Context) (HealthIssue, bool) {
	if len(errs) == 0 {
		return HealthIssue{}, false
	}
	mvPct := marketValuePct(errs, ctx.TotalPortfolioValue)
	severity := escalate(SeverityError, mvPct, ctx.MVEscalationThreshold)

	title := "Quotes sync failing for " + errs[0].Symbol
	if len(errs) > 1 {
		title = fmt.Sprintf("Quotes sync failing for %d assets", len(errs))
	}

	ids := assetIDs(errs)
	hash := DataHash(ids, severity)
	return HealthIssue{
		ID:            "quote_sync:error:" + hash,
		Severity:      severity,
		Category:      CategoryPriceStaleness,
		Title:         title,
		Message:       "These assets have repeatedly failed to sync prices. Check the symbols or data provider settings.",
		Details:       buildDetails(errs),
		AffectedCount: len(errs),
		AffectedMVPct: mvPct,
		AffectedItems: affectedItems(errs),
		RetrySyncIDs:  ids,
	}, true
}

func (c *QuoteSyncCheck) buildWarningIssue(errs []SyncErrorInfo, ctx Context) (HealthIssue, bool) {
	if len(errs) == 0 {
		return HealthIssue{}, false
	}
	mvPct := marketValuePct(errs, ctx.TotalPortfolioValue)

	title := "Sync issues for " + errs[0].Symbol
	if len(errs) > 1 {
		title = fmt.Sprintf("Sync issues for %d assets", len(errs))
	}

	ids := assetIDs(errs)
	hash := DataHash(ids, SeverityWarning)
	return HealthIssue{
		ID:            "quote_sync:warning:" + hash,
		Severity:      SeverityWarning,
		Category:      CategoryPriceStaleness,
		Title:         title,
		Message:       "Some assets are having trouble syncing prices. This may resolve automatically.",
		Details:       buildDetails(errs),
		AffectedCount: len(errs),
		AffectedMVPct: mvPct,
		AffectedItems: affectedItems(errs),
		RetrySyncIDs:  ids,
	}, true
}

// escalate bumps Error to Critical once the affected market-value fraction
// exceeds the configured threshold.
func escalate(base Severity, mvPct, threshold float64) Severity {
	if mvPct > threshold {
		return SeverityCritical
	}
	return base
}

func marketValuePct(errs []SyncErrorInfo, totalPortfolioValue float64) float64 {
	if totalPortfolioValue <= 0 {
		return 0
	}
	var sum float64
	for _, e := range errs {
		sum += e.MarketValue
	}
	return sum / totalPortfolioValue
}

func assetIDs(errs []SyncErrorInfo) []string {
	ids := make([]string, len(errs))
	for i, e := range errs {
		ids[i] = e.AssetID
	}
	return ids
}

func affectedItems(errs []SyncErrorInfo) []AffectedItem {
	items := make([]AffectedItem, len(errs))
	for i, e := range errs {
		items[i] = AffectedItem{AssetID: e.AssetID, Symbol: e.Symbol}
	}
	return items
}

// buildDetails renders up to 5 lines of per-asset detail, matching the
// original's truncate-and-summarize idiom.
func buildDetails(errs []SyncErrorInfo) string {
	lines := make([]string, 0, 6)
	limit := len(errs)
	if limit > 5 {
		limit = 5
	}
	for i := 0; i < limit; i++ {
		e := errs[i]
		msg := e.LastError
		if msg == "" {
			msg = "Unknown error"
		}
		if len(msg) > 80 {
			msg = msg[:80]
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %d failures: %s", i+1, e.Symbol, e.ErrorCount, msg))
	}
	if len(errs) > 5 {
		lines = append(lines, fmt.Sprintf("... and %d more", len(errs)-5))
	}
	return strings.Join(lines, "\n")
}
