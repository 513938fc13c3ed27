package normalize

import (
	"fmt"
	"log/slog"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// ExchangeTransfer maps one raw deposit or withdrawal to a canonical record.
// The kind comes from the calling context (which endpoint was queried), not
// from the record. Transfers carry no quote asset and no price.
func ExchangeTransfer(kind domain.TransferKind, raw domain.RawExchangeTransfer) (domain.Transaction, error) {
	if raw.TransferID == "" {
		return domain.Transaction{}, fmt.Errorf("normalize: %s on %s: %w: missing transfer id", kind, raw.Exchange, domain.ErrUnmappable)
	}

	occurredAt, err := Time(raw.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("normalize: %s %s: %w", kind, raw.TransferID, err)
	}

	action := domain.ActionDeposit
	if kind == domain.KindWithdrawal {
		action = domain.ActionWithdrawal
	}

	tx := domain.Transaction{
		Domain:     domain.DomainExchange,
		Source:     raw.Exchange,
		OccurredAt: occurredAt,
		ExternalID: raw.TransferID,
		BaseAsset:  raw.Currency,
		Action:     action,
		Amount:     raw.Amount.Abs(),
		RawPayload: raw.Payload,
	}

	// The external address is the sender for deposits and the recipient for
	// withdrawals; the exchange account is the other end.
	switch kind {
	case domain.KindWithdrawal:
		tx.CounterpartyTo = raw.Address
	default:
		tx.CounterpartyFrom = raw.Address
	}

	if raw.FeeCurrency != "" && !raw.FeeAmount.IsZero() {
		fee := raw.FeeAmount.Abs()
		tx.FeeAsset = raw.FeeCurrency
		tx.FeeAmount = &fee
	}
	return tx, nil
}

// ExchangeTransfers maps a batch of one kind, dropping unmappable records
// with a logged reason.
func ExchangeTransfers(logger *slog.Logger, kind domain.TransferKind, raws []domain.RawExchangeTransfer) ([]domain.Transaction, int) {
	txs := make([]domain.Transaction, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		tx, err := ExchangeTransfer(kind, raw)
		if err != nil {
			dropped++
			logger.Warn("dropping unmappable transfer",
				slog.String("exchange", raw.Exchange),
				slog.String("kind", string(kind)),
				slog.String("transfer_id", raw.TransferID),
				slog.String("reason", err.Error()),
			)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, dropped
}
