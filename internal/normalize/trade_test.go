package normalize

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExchangeTradeBuy(t *testing.T) {
	raw := domain.RawExchangeTrade{
		Exchange:    "kraken",
		TradeID:     "T-1001",
		Timestamp:   domain.UnixSeconds(1700000000),
		Symbol:      "ETH/USDT",
		Side:        "buy",
		Amount:      decimal.RequireFromString("1.5"),
		Price:       decimal.RequireFromString("2100.25"),
		FeeCurrency: "USDT",
		FeeAmount:   decimal.RequireFromString("3.15"),
	}

	tx, err := ExchangeTrade(raw)
	if err != nil {
		t.Fatalf("ExchangeTrade failed: %v", err)
	}
	if tx.Domain != domain.DomainExchange {
		t.Errorf("domain = %q", tx.Domain)
	}
	if tx.Source != "kraken" || tx.ExternalID != "T-1001" {
		t.Errorf("identity = (%q, %q)", tx.Source, tx.ExternalID)
	}
	if tx.BaseAsset != "ETH" || tx.QuoteAsset != "USDT" {
		t.Errorf("pair = (%q, %q)", tx.BaseAsset, tx.QuoteAsset)
	}
	if tx.Action != domain.ActionTradeBuy {
		t.Errorf("action = %q", tx.Action)
	}
	if tx.Price == nil || !tx.Price.Equal(decimal.RequireFromString("2100.25")) {
		t.Errorf("price = %v", tx.Price)
	}
	if tx.FeeAsset != "USDT" || tx.FeeAmount == nil || !tx.FeeAmount.Equal(decimal.RequireFromString("3.15")) {
		t.Errorf("fee = (%q, %v)", tx.FeeAsset, tx.FeeAmount)
	}
}

func TestExchangeTradeNegativeAmountAbs(t *testing.T) {
	raw := domain.RawExchangeTrade{
		Exchange:  "kraken",
		TradeID:   "T-2",
		Timestamp: domain.UnixSeconds(1700000000),
		Symbol:    "BTC/USD",
		Side:      "sell",
		Amount:    decimal.RequireFromString("-0.25"),
	}

	tx, err := ExchangeTrade(raw)
	if err != nil {
		t.Fatalf("ExchangeTrade failed: %v", err)
	}
	if tx.Action != domain.ActionTradeSell {
		t.Errorf("action = %q", tx.Action)
	}
	if tx.Amount.IsNegative() {
		t.Errorf("amount not absolute: %s", tx.Amount)
	}
	if !tx.Amount.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("amount = %s", tx.Amount)
	}
	if tx.Price != nil {
		t.Errorf("expected nil price, got %v", tx.Price)
	}
}

func TestExchangeTradeUnmappable(t *testing.T) {
	tests := []struct {
		name string
		raw  domain.RawExchangeTrade
	}{
		{"missing trade id", domain.RawExchangeTrade{
			Exchange: "kraken", Timestamp: domain.UnixSeconds(1700000000), Side: "buy",
		}},
		{"unknown side", domain.RawExchangeTrade{
			Exchange: "kraken", TradeID: "T-3", Timestamp: domain.UnixSeconds(1700000000), Side: "short",
		}},
		{"bad timestamp", domain.RawExchangeTrade{
			Exchange: "kraken", TradeID: "T-4", Side: "buy",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExchangeTrade(tt.raw)
			if !errors.Is(err, domain.ErrUnmappable) {
				t.Errorf("error %v is not ErrUnmappable", err)
			}
		})
	}
}

func TestExchangeTradesDropsBadRecords(t *testing.T) {
	raws := []domain.RawExchangeTrade{
		{Exchange: "kraken", TradeID: "T-1", Timestamp: domain.UnixSeconds(1700000000), Symbol: "ETH/USD", Side: "buy", Amount: decimal.NewFromInt(1)},
		{Exchange: "kraken", Timestamp: domain.UnixSeconds(1700000000), Side: "buy"},
		{Exchange: "kraken", TradeID: "T-2", Timestamp: domain.UnixSeconds(1700000100), Symbol: "ETH/USD", Side: "sell", Amount: decimal.NewFromInt(2)},
	}

	txs, dropped := ExchangeTrades(discardLogger(), raws)
	if len(txs) != 2 {
		t.Fatalf("got %d records, want 2", len(txs))
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}
