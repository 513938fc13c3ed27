package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/crazysoldier/CryptoBookKeeper/internal/blob/s3"
	"github.com/crazysoldier/CryptoBookKeeper/internal/config"
	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
	"github.com/crazysoldier/CryptoBookKeeper/internal/normalize"
	"github.com/crazysoldier/CryptoBookKeeper/internal/partition"
	"github.com/crazysoldier/CryptoBookKeeper/internal/pipeline"
	"github.com/crazysoldier/CryptoBookKeeper/internal/platform"
	"github.com/crazysoldier/CryptoBookKeeper/internal/platform/debank"
	"github.com/crazysoldier/CryptoBookKeeper/internal/platform/evm"
	"github.com/crazysoldier/CryptoBookKeeper/internal/platform/exchange"
	"github.com/crazysoldier/CryptoBookKeeper/internal/store/duckdb"
)

// Dependencies bundles everything a run needs: the runner, the set of
// configured source jobs, and the report store for post-run queries. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Runner  *pipeline.Runner
	Jobs    []pipeline.Syncer
	Reports domain.ReportStore
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
//
// Sources missing credentials are skipped with a warning rather than
// failing the whole process; a bookkeeping run should still cover the
// sources it can reach.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	start, err := cfg.Start()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// --- DuckDB ---
	db, err := duckdb.New(ctx, cfg.Storage.DuckDBPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: duckdb: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })

	ledger := duckdb.NewLedgerStore(db, logger)
	syncs := duckdb.NewSyncStore(db)
	reports := duckdb.NewReportStore(db)
	exporter := duckdb.NewPartitionStore(db)
	partitions := partition.NewManager(exporter, cfg.Storage.CuratedDir, logger)

	// --- Optional S3 archive ---
	var blob domain.BlobWriter
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		blob = s3blob.NewWriter(s3Client)
	}

	retry := platform.RetryPolicy{
		MaxAttempts:    cfg.Sync.MaxRetries,
		InitialBackoff: cfg.Sync.RetryBackoff.Duration,
		MaxBackoff:     platform.DefaultRetryPolicy.MaxBackoff,
	}

	// --- Exchange sources ---
	var jobs []pipeline.Syncer
	for _, ex := range cfg.Exchanges {
		if ex.APIKey == "" || ex.APISecret == "" {
			logger.Warn("skipping exchange, missing credentials",
				slog.String("exchange", ex.Name),
			)
			continue
		}
		client := exchange.NewClient(ex.Name, ex.BaseURL, exchange.HMACAuth{
			Key:    ex.APIKey,
			Secret: ex.APISecret,
		}, logger)
		jobs = append(jobs, pipeline.NewExchangeSyncer(
			ex.Name, ex.Account, client, ex.ProbeCurrencies,
			cfg.Sync.PageSize, retry, logger,
		))
	}

	// --- On-chain sources ---
	if cfg.Onchain.APIKey == "" || len(cfg.Onchain.Addresses) == 0 {
		logger.Warn("skipping on-chain sources, missing api key or addresses",
			slog.String("provider", cfg.Onchain.Provider),
		)
	} else {
		var resolver normalize.TokenResolver
		if len(cfg.Onchain.RPCURLs) > 0 {
			evmResolver, err := evm.NewResolver(ctx, cfg.Onchain.RPCURLs)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: evm resolver: %w", err)
			}
			closers = append(closers, evmResolver.Close)
			resolver = evmResolver
		}
		tokens := normalize.NewTokenCache(resolver, logger)
		norm := normalize.NewChainNormalizer(tokens, cfg.Onchain.ScamFilter, logger)
		api := debank.NewClient(cfg.Onchain.BaseURL, cfg.Onchain.APIKey, logger)

		for _, chain := range cfg.Onchain.Chains {
			jobs = append(jobs, pipeline.NewChainSyncer(
				cfg.Onchain.Provider, chain, cfg.Onchain.Addresses,
				api, norm, cfg.Sync.PageSize, cfg.Sync.PageLimit, retry, logger,
			))
		}
	}

	runner := pipeline.NewRunner(
		ledger, syncs, partitions, reports, exporter, blob,
		cfg.Storage.CuratedDir,
		pipeline.Options{
			Start:       start,
			Overlap:     cfg.Sync.Overlap.Duration,
			Parallelism: cfg.Sync.Parallelism,
		},
		logger,
	)

	return &Dependencies{
		Runner:  runner,
		Jobs:    jobs,
		Reports: reports,
	}, cleanup, nil
}
