package domain

import "github.com/shopspring/decimal"

// Timestamp carries a source timestamp in whichever encoding the upstream API
// used. Exactly one field is expected to be set: Unix holds epoch seconds or
// epoch milliseconds (distinguished by magnitude during normalization), ISO
// holds an RFC 3339 / ISO-8601 string.
type Timestamp struct {
	Unix float64
	ISO  string
}

// UnixSeconds builds a Timestamp from epoch seconds.
func UnixSeconds(sec int64) Timestamp {
	return Timestamp{Unix: float64(sec)}
}

// TransferKind is the calling-context side of an exchange money movement.
type TransferKind string

const (
	KindDeposit    TransferKind = "deposit"
	KindWithdrawal TransferKind = "withdrawal"
)

// RawExchangeTrade is a trade row as returned by an exchange trade-history
// API, before normalization. Absent fields stay zero-valued.
type RawExchangeTrade struct {
	Exchange    string
	Account     string
	TradeID     string
	OrderID     string
	Timestamp   Timestamp
	Symbol      string // "BASE/QUOTE", single-separator form
	Side        string // "buy" or "sell", taken verbatim
	Amount      decimal.Decimal
	Price       decimal.Decimal
	FeeCurrency string
	FeeAmount   decimal.Decimal
	Payload     string // serialized original record
}

// RawExchangeTransfer is a deposit or withdrawal row from an exchange
// transfer-history API. The kind is supplied by the calling context, not the
// record itself.
type RawExchangeTransfer struct {
	Exchange    string
	Account     string
	TransferID  string
	Timestamp   Timestamp
	Currency    string
	Amount      decimal.Decimal
	FeeCurrency string
	FeeAmount   decimal.Decimal
	Address     string
	Tag         string
	Status      string
	Payload     string
}

// ChainLeg is one asset movement (outgoing or incoming) within a single
// on-chain transaction. When InBaseUnits is set, Amount is in raw integer
// base units and must be scaled by the token's decimals.
type ChainLeg struct {
	AssetID     string // contract address, or a chain-native token id
	Amount      decimal.Decimal
	InBaseUnits bool
	LogIndex    int64
}

// ChainApproval is an ERC-20 style allowance grant found in a transaction.
type ChainApproval struct {
	AssetID     string
	Spender     string
	Amount      decimal.Decimal
	InBaseUnits bool
}

// RawChainActivity is one on-chain transaction as reported by an indexing
// provider, with its transfer legs already separated into sends and receives.
type RawChainActivity struct {
	Chain        string
	TxHash       string
	Timestamp    Timestamp
	CategoryHint string // provider's own category id, advisory only
	FromAddr     string
	ToAddr       string
	Sends        []ChainLeg
	Receives     []ChainLeg
	Approval     *ChainApproval
	GasFee       decimal.Decimal // native units; zero when unknown
	GasFeeAsset  string
	IsScam       bool // provider's spam/scam flag
	Payload      string
}
