package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/ledgercore/internal/queue"
)

func TestPlanOnlyQuotesChangedIsMarketSyncNone(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "QUOTES_CHANGED", AssetIDs: []string{"AAPL"}},
	}, "USD")

	require.NotNil(t, plan.PortfolioJob)
	assert.Equal(t, queue.MarketSyncNone, plan.PortfolioJob.Mode)
}

func TestPlanAccountsChangedIsMarketSyncFull(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "ACCOUNTS_CHANGED", AccountIDs: []string{"acct-1"}},
	}, "USD")

	require.NotNil(t, plan.PortfolioJob)
	assert.Equal(t, queue.MarketSyncFull, plan.PortfolioJob.Mode)
	assert.False(t, plan.PortfolioJob.ForceFullRecalculation)
}

func TestPlanAccountTrackingModeChangedForcesFullRecalc(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "ACCOUNT_TRACKING_MODE_CHANGED", AccountIDs: []string{"acct-1"}},
	}, "USD")

	require.NotNil(t, plan.PortfolioJob)
	assert.Equal(t, queue.MarketSyncFull, plan.PortfolioJob.Mode)
	assert.True(t, plan.PortfolioJob.ForceFullRecalculation)
	assert.Equal(t, []string{"acct-1"}, plan.BrokerSyncAccountIDs)
}

func TestPlanActivitiesChangedWithAssetsIsTargeted(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "ACTIVITIES_CHANGED", AccountIDs: []string{"acct-1"}, AssetIDs: []string{"AAPL", "MSFT"}},
	}, "USD")

	require.NotNil(t, plan.PortfolioJob)
	assert.Equal(t, queue.MarketSyncTargeted, plan.PortfolioJob.Mode)
	assert.Equal(t, []string{"acct-1"}, plan.PortfolioJob.AccountIDs)
	assert.Equal(t, []string{"AAPL", "MSFT"}, plan.PortfolioJob.AssetIDs)
}

func TestPlanNoRelevantEventsProducesNoPortfolioJob(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "FX_RATES_CHANGED"},
	}, "USD")

	assert.Nil(t, plan.PortfolioJob)
}

func TestPlanEnrichFiltersByEmptyProfile(t *testing.T) {
	empty := map[string]bool{"AAPL": true, "MSFT": false}
	p := New(func(assetID string) bool { return empty[assetID] })

	plan := p.Plan([]queue.DomainEventView{
		{Kind: "ASSETS_CREATED", AssetIDs: []string{"AAPL", "MSFT"}},
	}, "USD")

	assert.Equal(t, []string{"AAPL"}, plan.EnrichAssetIDs)
}

func TestPlanEnrichIncludesEverythingWhenLookupNil(t *testing.T) {
	p := New(nil)
	plan := p.Plan([]queue.DomainEventView{
		{Kind: "ASSETS_CHANGED", AssetIDs: []string{"AAPL"}},
	}, "USD")

	assert.Equal(t, []string{"AAPL"}, plan.EnrichAssetIDs)
}

func TestPlanIsDeterministicForSameInput(t *testing.T) {
	p := New(nil)
	events := []queue.DomainEventView{
		{Kind: "ACTIVITIES_CHANGED", AccountIDs: []string{"acct-2", "acct-1"}, AssetIDs: []string{"MSFT", "AAPL"}},
	}

	first := p.Plan(events, "USD")
	second := p.Plan(events, "USD")
	assert.Equal(t, first, second)
	assert.Equal(t, []string{"acct-1", "acct-2"}, first.PortfolioJob.AccountIDs, "account ids are sorted for determinism")
}
