// Package health implements the health/diagnostics evaluator: quote-sync
// issue derivation plus supplemental process-health facts.
package health

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Severity is a HealthIssue's urgency level.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Category groups related issues for display.
type Category string

const (
	CategoryPriceStaleness Category = "PRICE_STALENESS"
	CategorySystem         Category = "SYSTEM"
)

// AffectedItem is one entity a HealthIssue names.
type AffectedItem struct {
	AssetID string
	Symbol  string
}

// HealthIssue is one derived diagnostic.
type HealthIssue struct {
	ID            string
	Severity      Severity
	Category      Category
	Title         string
	Message       string
	Details       string
	AffectedCount int
	AffectedMVPct float64
	AffectedItems []AffectedItem
	RetrySyncIDs  []string
}

// Context carries the facts an evaluator needs beyond the raw sync states.
type Context struct {
	BaseCurrency          string
	TotalPortfolioValue   float64
	MVEscalationThreshold float64
}

// DataHash computes the stable issue identity: a hash of the sorted
// affected asset ids plus severity. Two runs that would produce the same
// issue produce the same id, so user-dismissed issues remain dismissed
// until the underlying data changes.
func DataHash(assetIDs []string, severity Severity) string {
	sorted := make([]string, len(assetIDs))
	copy(sorted, assetIDs)
	sort.Strings(sorted)

	h := sha256.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write([]byte(severity))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
