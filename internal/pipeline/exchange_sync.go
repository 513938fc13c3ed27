package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
	"github.com/crazysoldier/CryptoBookKeeper/internal/normalize"
	"github.com/crazysoldier/CryptoBookKeeper/internal/platform"
)

// TradeFetcher retrieves raw trades from an exchange trade-history API.
type TradeFetcher interface {
	FetchMyTrades(ctx context.Context, account string, since time.Time, limit int) ([]domain.RawExchangeTrade, error)
}

// TransferFetcher retrieves raw deposits or withdrawals for one currency.
type TransferFetcher interface {
	FetchTransfers(ctx context.Context, account, currency string, kind domain.TransferKind, since time.Time, limit int) ([]domain.RawExchangeTransfer, error)
}

// ExchangeAPI is the full fetch surface of one exchange.
type ExchangeAPI interface {
	TradeFetcher
	TransferFetcher
}

// ExchangeSyncer syncs one exchange: trade history plus deposit and
// withdrawal history probed per configured currency. The probe list exists
// because some providers cannot answer asset-less transfer queries; a
// failing currency is skipped, never fatal to the run.
type ExchangeSyncer struct {
	name       string
	account    string
	api        ExchangeAPI
	currencies []string
	pageSize   int
	retry      platform.RetryPolicy
	logger     *slog.Logger
}

// NewExchangeSyncer creates a syncer for one configured exchange.
func NewExchangeSyncer(name, account string, api ExchangeAPI, currencies []string, pageSize int, retry platform.RetryPolicy, logger *slog.Logger) *ExchangeSyncer {
	return &ExchangeSyncer{
		name:       name,
		account:    account,
		api:        api,
		currencies: currencies,
		pageSize:   pageSize,
		retry:      retry,
		logger:     logger,
	}
}

// Source implements Syncer.
func (s *ExchangeSyncer) Source() string { return s.name }

// Domain implements Syncer.
func (s *ExchangeSyncer) Domain() domain.Domain { return domain.DomainExchange }

// Fetch implements Syncer.
func (s *ExchangeSyncer) Fetch(ctx context.Context, since time.Time) ([]domain.Transaction, FetchStats, error) {
	var stats FetchStats

	var rawTrades []domain.RawExchangeTrade
	err := s.retry.Do(ctx, s.logger, "fetch trades", func(ctx context.Context) error {
		var err error
		rawTrades, err = s.api.FetchMyTrades(ctx, s.account, since, s.pageSize)
		return err
	})
	if err != nil {
		return nil, stats, fmt.Errorf("exchange %s: %w", s.name, err)
	}
	stats.Fetched += len(rawTrades)

	txs, dropped := normalize.ExchangeTrades(s.logger, rawTrades)
	stats.DroppedUnmappable += dropped

	for _, kind := range []domain.TransferKind{domain.KindDeposit, domain.KindWithdrawal} {
		transfers, tStats := s.fetchTransfers(ctx, kind, since)
		stats.Fetched += tStats.Fetched
		stats.DroppedUnmappable += tStats.DroppedUnmappable
		stats.SkippedCurrencies += tStats.SkippedCurrencies
		txs = append(txs, transfers...)
	}

	return txs, stats, nil
}

// fetchTransfers probes every configured currency for one transfer kind.
func (s *ExchangeSyncer) fetchTransfers(ctx context.Context, kind domain.TransferKind, since time.Time) ([]domain.Transaction, FetchStats) {
	var (
		stats FetchStats
		txs   []domain.Transaction
	)
	for _, currency := range s.currencies {
		var raws []domain.RawExchangeTransfer
		err := s.retry.Do(ctx, s.logger, fmt.Sprintf("fetch %s %s", currency, kind), func(ctx context.Context) error {
			var err error
			raws, err = s.api.FetchTransfers(ctx, s.account, currency, kind, since, s.pageSize)
			return err
		})
		if err != nil {
			stats.SkippedCurrencies++
			s.logger.Warn("skipping currency after transfer fetch failure",
				slog.String("exchange", s.name),
				slog.String("currency", currency),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
			continue
		}
		stats.Fetched += len(raws)

		mapped, dropped := normalize.ExchangeTransfers(s.logger, kind, raws)
		stats.DroppedUnmappable += dropped
		txs = append(txs, mapped...)
	}
	return txs, stats
}
