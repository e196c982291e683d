package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/ledgercore/internal/money"
)

// ActivityType enumerates the kinds of ledger-affecting events.
type ActivityType string

const (
	ActivityBuy           ActivityType = "BUY"
	ActivitySell          ActivityType = "SELL"
	ActivityDeposit       ActivityType = "DEPOSIT"
	ActivityWithdrawal    ActivityType = "WITHDRAWAL"
	ActivityDividend      ActivityType = "DIVIDEND"
	ActivityInterest      ActivityType = "INTEREST"
	ActivityFee           ActivityType = "FEE"
	ActivityTax           ActivityType = "TAX"
	ActivityTransferIn    ActivityType = "TRANSFER_IN"
	ActivityTransferOut   ActivityType = "TRANSFER_OUT"
	ActivityConversionIn  ActivityType = "CONVERSION_IN"
	ActivityConversionOut ActivityType = "CONVERSION_OUT"
	ActivitySplit         ActivityType = "SPLIT"
	ActivityAddHolding    ActivityType = "ADD_HOLDING"
	ActivityRemoveHolding ActivityType = "REMOVE_HOLDING"
)

// ActivitySubtype further qualifies an ActivityType.
type ActivitySubtype string

const (
	SubtypeDRIP           ActivitySubtype = "DRIP"
	SubtypeStakingReward  ActivitySubtype = "STAKING_REWARD"
	SubtypeDividendInKind ActivitySubtype = "DIVIDEND_IN_KIND"
)

// ActivityStatus is the lifecycle status of an Activity. Only
// Posted activities affect holdings.
type ActivityStatus string

const (
	StatusPosted  ActivityStatus = "POSTED"
	StatusPending ActivityStatus = "PENDING"
	StatusDraft   ActivityStatus = "DRAFT"
	StatusVoid    ActivityStatus = "VOID"
)

// ProviderSource identifies the upstream record an Activity was sourced from,
// used to de-duplicate broker-synced activities:
// (source_system, source_record_id) is unique when both present.
type ProviderSource struct {
	SourceSystem   *string
	SourceRecordID *string
	SourceGroupID  *string
	IdempotencyKey *string
}

// Activity is a user- or broker-sourced event.
type Activity struct {
	ID               string
	AccountID        string
	AssetID          *string // null only for pure cash events
	Type             ActivityType
	Subtype          *ActivitySubtype
	UserOverrideType *ActivityType
	Status           ActivityStatus
	ActivityAt       time.Time
	SettlementDate   *time.Time

	Quantity  *decimal.Decimal
	UnitPrice *decimal.Decimal
	Amount    *decimal.Decimal
	Fee       *decimal.Decimal
	FxRate    *decimal.Decimal
	Currency  money.Currency

	Source ProviderSource

	// Metadata carries activity-kind-specific side data not otherwise
	// modeled, e.g. the DIVIDEND_IN_KIND compiler rule's
	// "received_asset_id" key.
	Metadata json.RawMessage

	NeedsReview    bool
	IsUserModified bool
}

// MetaString extracts a string-valued top-level metadata key.
func (a Activity) MetaString(key string) (string, bool) {
	if len(a.Metadata) == 0 {
		return "", false
	}
	var m map[string]any
	if err := json.Unmarshal(a.Metadata, &m); err != nil {
		return "", false
	}
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// EffectiveType returns the user override type if present, otherwise the
// stored type.
func (a Activity) EffectiveType() ActivityType {
	if a.UserOverrideType != nil {
		return *a.UserOverrideType
	}
	return a.Type
}

// Clone returns a deep-enough copy of a for the compiler to mutate safely
// when building a derived leg (decimal.Decimal and time.Time are values, the
// only reference fields are pointers which callers must not share across legs).
func (a Activity) Clone() Activity {
	clone := a
	return clone
}
