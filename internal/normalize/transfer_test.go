package normalize

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

func TestExchangeTransferKinds(t *testing.T) {
	raw := domain.RawExchangeTransfer{
		Exchange:   "coinbase",
		TransferID: "D-77",
		Timestamp:  domain.UnixSeconds(1700000000),
		Currency:   "BTC",
		Amount:     decimal.RequireFromString("0.5"),
		Address:    "bc1qexample",
	}

	tests := []struct {
		name       string
		kind       domain.TransferKind
		wantAction domain.Action
		wantFrom   string
		wantTo     string
	}{
		{"deposit", domain.KindDeposit, domain.ActionDeposit, "bc1qexample", ""},
		{"withdrawal", domain.KindWithdrawal, domain.ActionWithdrawal, "", "bc1qexample"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := ExchangeTransfer(tt.kind, raw)
			if err != nil {
				t.Fatalf("ExchangeTransfer failed: %v", err)
			}
			if tx.Action != tt.wantAction {
				t.Errorf("action = %q, want %q", tx.Action, tt.wantAction)
			}
			if tx.CounterpartyFrom != tt.wantFrom || tx.CounterpartyTo != tt.wantTo {
				t.Errorf("counterparty = (%q, %q), want (%q, %q)",
					tx.CounterpartyFrom, tx.CounterpartyTo, tt.wantFrom, tt.wantTo)
			}
			if tx.BaseAsset != "BTC" || tx.QuoteAsset != "" {
				t.Errorf("assets = (%q, %q)", tx.BaseAsset, tx.QuoteAsset)
			}
			if tx.Price != nil {
				t.Errorf("transfers carry no price, got %v", tx.Price)
			}
		})
	}
}

func TestExchangeTransferMissingID(t *testing.T) {
	raw := domain.RawExchangeTransfer{
		Exchange:  "coinbase",
		Timestamp: domain.UnixSeconds(1700000000),
		Currency:  "BTC",
	}
	_, err := ExchangeTransfer(domain.KindDeposit, raw)
	if !errors.Is(err, domain.ErrUnmappable) {
		t.Errorf("error %v is not ErrUnmappable", err)
	}
}

func TestExchangeTransfersDropsBadRecords(t *testing.T) {
	raws := []domain.RawExchangeTransfer{
		{Exchange: "coinbase", TransferID: "W-1", Timestamp: domain.UnixSeconds(1700000000), Currency: "ETH", Amount: decimal.NewFromInt(1)},
		{Exchange: "coinbase", Currency: "ETH"},
	}

	txs, dropped := ExchangeTransfers(discardLogger(), domain.KindWithdrawal, raws)
	if len(txs) != 1 || dropped != 1 {
		t.Fatalf("got %d records, %d dropped; want 1, 1", len(txs), dropped)
	}
}
