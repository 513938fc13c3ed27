package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// ChainNormalizer maps on-chain activity records to canonical transactions.
// It owns no state beyond the run-scoped token cache handed to it.
type ChainNormalizer struct {
	tokens     *TokenCache
	filterScam bool
	logger     *slog.Logger
}

// ChainBatchStats reports what happened to a batch during normalization.
type ChainBatchStats struct {
	Dropped      int // unmappable, logged individually
	ScamFiltered int // dropped by the scam filter before normalization
}

// NewChainNormalizer creates a normalizer using the given run-scoped cache.
func NewChainNormalizer(tokens *TokenCache, filterScam bool, logger *slog.Logger) *ChainNormalizer {
	return &ChainNormalizer{tokens: tokens, filterScam: filterScam, logger: logger}
}

// Normalize maps one activity record. The category is inferred from the
// record's transfer legs:
//
//   - outgoing and incoming legs of different assets -> swap, keyed on the
//     first outgoing leg (multi-leg swaps keep this attribution even when it
//     is imperfect; that is the defined policy)
//   - an approval grant -> approve
//   - only outgoing legs -> transfer-out, or deposit when the provider's
//     category hint says so
//   - only incoming legs -> transfer-in
//   - neither -> unknown, recorded with zero amount for auditability
func (n *ChainNormalizer) Normalize(ctx context.Context, source string, act domain.RawChainActivity) (domain.Transaction, error) {
	if act.TxHash == "" {
		return domain.Transaction{}, fmt.Errorf("normalize: activity on %s: %w: missing tx hash", act.Chain, domain.ErrUnmappable)
	}

	occurredAt, err := Time(act.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("normalize: activity %s: %w", act.TxHash, err)
	}

	tx := domain.Transaction{
		Domain:           domain.DomainOnchain,
		Source:           source,
		OccurredAt:       occurredAt,
		ExternalID:       act.TxHash,
		Chain:            act.Chain,
		CounterpartyFrom: act.FromAddr,
		CounterpartyTo:   act.ToAddr,
		Amount:           decimal.Zero,
		RawPayload:       act.Payload,
	}
	if act.GasFee.IsPositive() {
		fee := act.GasFee
		tx.FeeAsset = act.GasFeeAsset
		tx.FeeAmount = &fee
	}

	switch {
	case isSwap(act):
		out := act.Sends[0]
		in := act.Receives[0]
		outInfo := n.tokens.Lookup(ctx, act.Chain, out.AssetID)
		inInfo := n.tokens.Lookup(ctx, act.Chain, in.AssetID)
		tx.Action = domain.ActionSwap
		tx.BaseAsset = outInfo.Symbol
		tx.QuoteAsset = inInfo.Symbol
		tx.Amount = n.legAmount(out, outInfo)
		tx.LogIndex = out.LogIndex

	case act.Approval != nil:
		info := n.tokens.Lookup(ctx, act.Chain, act.Approval.AssetID)
		tx.Action = domain.ActionApprove
		tx.BaseAsset = info.Symbol
		tx.Amount = n.legAmount(domain.ChainLeg{
			AssetID:     act.Approval.AssetID,
			Amount:      act.Approval.Amount,
			InBaseUnits: act.Approval.InBaseUnits,
		}, info)
		tx.CounterpartyTo = act.Approval.Spender

	case len(act.Sends) > 0 && len(act.Receives) == 0:
		out := act.Sends[0]
		info := n.tokens.Lookup(ctx, act.Chain, out.AssetID)
		tx.Action = domain.ActionTransferOut
		if act.CategoryHint == "deposit" {
			tx.Action = domain.ActionDeposit
		}
		tx.BaseAsset = info.Symbol
		tx.Amount = n.legAmount(out, info)
		tx.LogIndex = out.LogIndex

	case len(act.Receives) > 0 && len(act.Sends) == 0:
		in := act.Receives[0]
		info := n.tokens.Lookup(ctx, act.Chain, in.AssetID)
		tx.Action = domain.ActionTransferIn
		tx.BaseAsset = info.Symbol
		tx.Amount = n.legAmount(in, info)
		tx.LogIndex = in.LogIndex

	default:
		tx.Action = domain.ActionUnknown
	}

	return tx, nil
}

// NormalizeBatch maps a batch, applying the scam filter first and dropping
// unmappable records with a logged reason.
func (n *ChainNormalizer) NormalizeBatch(ctx context.Context, source string, acts []domain.RawChainActivity) ([]domain.Transaction, ChainBatchStats) {
	var stats ChainBatchStats
	txs := make([]domain.Transaction, 0, len(acts))
	for _, act := range acts {
		if n.filterScam && act.IsScam {
			stats.ScamFiltered++
			continue
		}
		tx, err := n.Normalize(ctx, source, act)
		if err != nil {
			stats.Dropped++
			n.logger.Warn("dropping unmappable chain activity",
				slog.String("source", source),
				slog.String("tx_hash", act.TxHash),
				slog.String("reason", err.Error()),
			)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, stats
}

// isSwap reports whether the record has both outgoing and incoming legs
// involving different assets. Asset ids are compared directly: resolved
// symbols are lossy (unresolved contracts collapse to placeholder names)
// and must not decide swap-ness.
func isSwap(act domain.RawChainActivity) bool {
	if len(act.Sends) == 0 || len(act.Receives) == 0 {
		return false
	}
	out := act.Sends[0].AssetID
	for _, in := range act.Receives {
		if !strings.EqualFold(in.AssetID, out) {
			return true
		}
	}
	return false
}

// legAmount returns the leg's absolute amount in asset-native units, scaling
// raw base units by the token's decimals when needed.
func (n *ChainNormalizer) legAmount(leg domain.ChainLeg, info TokenInfo) decimal.Decimal {
	amt := leg.Amount.Abs()
	if leg.InBaseUnits {
		amt = amt.Shift(int32(-info.Decimals))
	}
	return amt
}
