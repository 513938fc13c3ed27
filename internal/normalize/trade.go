package normalize

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// symbolSeparator splits an exchange pair symbol into base and quote.
const symbolSeparator = "/"

// ExchangeTrade maps one raw exchange trade to a canonical record. The side
// is taken verbatim from the source; the symbol is decomposed by a single
// separator. Records without a trade id, a usable timestamp, or a known side
// are unmappable.
func ExchangeTrade(raw domain.RawExchangeTrade) (domain.Transaction, error) {
	if raw.TradeID == "" {
		return domain.Transaction{}, fmt.Errorf("normalize: trade on %s: %w: missing trade id", raw.Exchange, domain.ErrUnmappable)
	}

	occurredAt, err := Time(raw.Timestamp)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("normalize: trade %s: %w", raw.TradeID, err)
	}

	var action domain.Action
	switch strings.ToLower(raw.Side) {
	case "buy":
		action = domain.ActionTradeBuy
	case "sell":
		action = domain.ActionTradeSell
	default:
		return domain.Transaction{}, fmt.Errorf("normalize: trade %s: %w: unknown side %q", raw.TradeID, domain.ErrUnmappable, raw.Side)
	}

	base, quote := splitSymbol(raw.Symbol)

	tx := domain.Transaction{
		Domain:     domain.DomainExchange,
		Source:     raw.Exchange,
		OccurredAt: occurredAt,
		ExternalID: raw.TradeID,
		BaseAsset:  base,
		QuoteAsset: quote,
		Action:     action,
		Amount:     raw.Amount.Abs(),
		RawPayload: raw.Payload,
	}
	if raw.Price.IsPositive() {
		p := raw.Price
		tx.Price = &p
	}
	if raw.FeeCurrency != "" && !raw.FeeAmount.IsZero() {
		fee := raw.FeeAmount.Abs()
		tx.FeeAsset = raw.FeeCurrency
		tx.FeeAmount = &fee
	}
	return tx, nil
}

// ExchangeTrades maps a batch, dropping unmappable records with a logged
// reason. It returns the canonical records and the dropped count.
func ExchangeTrades(logger *slog.Logger, raws []domain.RawExchangeTrade) ([]domain.Transaction, int) {
	txs := make([]domain.Transaction, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		tx, err := ExchangeTrade(raw)
		if err != nil {
			dropped++
			logger.Warn("dropping unmappable trade",
				slog.String("exchange", raw.Exchange),
				slog.String("trade_id", raw.TradeID),
				slog.String("reason", err.Error()),
			)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, dropped
}

func splitSymbol(symbol string) (base, quote string) {
	base, quote, found := strings.Cut(symbol, symbolSeparator)
	if !found {
		return symbol, ""
	}
	return base, quote
}
