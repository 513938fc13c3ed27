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

// ActivityFetcher retrieves raw on-chain activity for one address on one
// chain, paginated until exhaustion or the page safety limit.
type ActivityFetcher interface {
	ListHistory(ctx context.Context, address, chainID string, since time.Time, pageSize, pageLimit int) ([]domain.RawChainActivity, error)
}

// ChainSyncer syncs one (provider, chain) pair across the configured address
// allow-list. Its source identifier is "<provider>_<chain>".
type ChainSyncer struct {
	provider  string
	chain     string
	addresses []string
	api       ActivityFetcher
	norm      *normalize.ChainNormalizer
	pageSize  int
	pageLimit int
	retry     platform.RetryPolicy
	logger    *slog.Logger
}

// NewChainSyncer creates a syncer for one chain of one provider.
func NewChainSyncer(provider, chain string, addresses []string, api ActivityFetcher, norm *normalize.ChainNormalizer, pageSize, pageLimit int, retry platform.RetryPolicy, logger *slog.Logger) *ChainSyncer {
	return &ChainSyncer{
		provider:  provider,
		chain:     chain,
		addresses: addresses,
		api:       api,
		norm:      norm,
		pageSize:  pageSize,
		pageLimit: pageLimit,
		retry:     retry,
		logger:    logger,
	}
}

// Source implements Syncer.
func (s *ChainSyncer) Source() string { return s.provider + "_" + s.chain }

// Domain implements Syncer.
func (s *ChainSyncer) Domain() domain.Domain { return domain.DomainOnchain }

// Fetch implements Syncer. A failing address is skipped with a warning; the
// source as a whole fails only when every address fails.
func (s *ChainSyncer) Fetch(ctx context.Context, since time.Time) ([]domain.Transaction, FetchStats, error) {
	var (
		stats  FetchStats
		acts   []domain.RawChainActivity
		failed int
	)

	for _, address := range s.addresses {
		var batch []domain.RawChainActivity
		err := s.retry.Do(ctx, s.logger, fmt.Sprintf("fetch history %s", address), func(ctx context.Context) error {
			var err error
			batch, err = s.api.ListHistory(ctx, address, s.chain, since, s.pageSize, s.pageLimit)
			return err
		})
		if err != nil {
			failed++
			s.logger.Warn("skipping address after history fetch failure",
				slog.String("source", s.Source()),
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
			continue
		}
		acts = append(acts, batch...)
	}

	if len(s.addresses) > 0 && failed == len(s.addresses) {
		return nil, stats, fmt.Errorf("chain %s: %w: all %d addresses failed", s.Source(), domain.ErrTransient, failed)
	}
	stats.Fetched = len(acts)

	txs, batchStats := s.norm.NormalizeBatch(ctx, s.Source(), acts)
	stats.DroppedUnmappable = batchStats.Dropped
	stats.DroppedScam = batchStats.ScamFiltered
	return txs, stats, nil
}
