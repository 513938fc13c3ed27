// Package domain holds the canonical transaction schema, the per-source raw
// record shapes, sync watermarks, and the store interfaces the rest of the
// system is written against.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Domain is the origin category of a canonical record.
type Domain string

const (
	DomainExchange Domain = "exchange"
	DomainOnchain  Domain = "onchain"
)

// Action categorizes the economic event a canonical record describes.
type Action string

const (
	ActionTradeBuy    Action = "trade-buy"
	ActionTradeSell   Action = "trade-sell"
	ActionDeposit     Action = "deposit"
	ActionWithdrawal  Action = "withdrawal"
	ActionTransferIn  Action = "transfer-in"
	ActionTransferOut Action = "transfer-out"
	ActionApprove     Action = "approve"
	ActionSwap        Action = "swap"
	ActionUnknown     Action = "unknown"
)

// Transaction is the canonical record all sources normalize into, one per
// discrete economic event. Within a source, (ExternalID, LogIndex) is unique;
// re-ingesting the same pair replaces the stored row wholesale.
type Transaction struct {
	Domain           Domain
	Source           string // provider identifier, e.g. "kraken" or "debank_eth"
	OccurredAt       time.Time
	ExternalID       string // trade id or transaction hash
	LogIndex         int64  // on-chain only, 0 otherwise
	BaseAsset        string
	QuoteAsset       string // empty for transfers
	Action           Action
	Amount           decimal.Decimal // absolute magnitude, asset-native units
	Price            *decimal.Decimal
	FeeAsset         string
	FeeAmount        *decimal.Decimal
	CounterpartyFrom string
	CounterpartyTo   string
	Chain            string // populated for the onchain domain only
	RawPayload       string // opaque original record, never parsed downstream
}

// NaturalKey is the uniqueness tuple for a stored transaction.
type NaturalKey struct {
	Source     string
	ExternalID string
	LogIndex   int64
}

// Key returns the transaction's natural key.
func (t Transaction) Key() NaturalKey {
	return NaturalKey{Source: t.Source, ExternalID: t.ExternalID, LogIndex: t.LogIndex}
}

// Period returns the (year, month) partition the transaction belongs to.
func (t Transaction) Period() Period {
	return PeriodOf(t.OccurredAt)
}

// Validate reports whether the transaction is storable. Invalid records are
// filtered and logged before a batch reaches the store.
func (t Transaction) Validate() error {
	if t.Source == "" {
		return fmt.Errorf("transaction: %w: empty source", ErrInvalidRecord)
	}
	if t.ExternalID == "" {
		return fmt.Errorf("transaction: %w: empty external id", ErrInvalidRecord)
	}
	if t.OccurredAt.IsZero() {
		return fmt.Errorf("transaction %s: %w: zero timestamp", t.ExternalID, ErrInvalidRecord)
	}
	if t.Amount.IsNegative() {
		return fmt.Errorf("transaction %s: %w: negative amount %s", t.ExternalID, ErrInvalidRecord, t.Amount)
	}
	return nil
}

// Period is a (year, month) partition bucket.
type Period struct {
	Year  int
	Month int
}

// PeriodOf derives the partition period from a timestamp, in UTC.
func PeriodOf(ts time.Time) Period {
	u := ts.UTC()
	return Period{Year: u.Year(), Month: int(u.Month())}
}

// String renders the period as "YYYY-MM", the form used in partition filenames.
func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}
