package normalize

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// TokenInfo is resolved token metadata for one (chain, asset) pair.
type TokenInfo struct {
	Symbol   string
	Decimals int
}

// TokenResolver looks up token metadata from an external collaborator
// (typically an EVM JSON-RPC endpoint). Resolution failures degrade to a
// placeholder; they are never fatal.
type TokenResolver interface {
	Resolve(ctx context.Context, chain, assetID string) (TokenInfo, error)
}

// wellKnownTokens short-circuits resolution for the assets that dominate
// real portfolios. Keys are "chain|asset_id" with lowercased asset ids.
var wellKnownTokens = map[string]TokenInfo{
	"eth|eth": {Symbol: "ETH", Decimals: 18},
	"eth|0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2": {Symbol: "WETH", Decimals: 18},
	"eth|0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48": {Symbol: "USDC", Decimals: 6},
	"eth|0xdac17f958d2ee523a2206206994597c13d831ec7": {Symbol: "USDT", Decimals: 6},
	"eth|0x6b175474e89094c44da98b954eedeac495271d0f": {Symbol: "DAI", Decimals: 18},
	"eth|0x2260fac5e5542a773aa44fbcfedf7c193bc2c599": {Symbol: "WBTC", Decimals: 8},
	"eth|0x514910771af9ca656af840dff83e8264ecf986ca": {Symbol: "LINK", Decimals: 18},
	"matic|matic": {Symbol: "MATIC", Decimals: 18},
	"bsc|bnb":     {Symbol: "BNB", Decimals: 18},
}

// TokenCache resolves token metadata with a cache scoped to one ingestion
// run. Lookup order: well-known table, cache, resolver, deterministic
// placeholder. Lookup never fails.
type TokenCache struct {
	resolver TokenResolver // may be nil when no RPC endpoint is configured
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]TokenInfo
}

// NewTokenCache creates an empty run-scoped cache over the given resolver.
func NewTokenCache(resolver TokenResolver, logger *slog.Logger) *TokenCache {
	return &TokenCache{
		resolver: resolver,
		logger:   logger,
		entries:  make(map[string]TokenInfo),
	}
}

// Lookup returns metadata for (chain, assetID), consulting the resolver at
// most once per pair per run.
func (c *TokenCache) Lookup(ctx context.Context, chain, assetID string) TokenInfo {
	key := strings.ToLower(chain) + "|" + strings.ToLower(assetID)

	if info, ok := wellKnownTokens[key]; ok {
		return info
	}

	c.mu.Lock()
	if info, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return info
	}
	c.mu.Unlock()

	info := placeholderInfo(assetID)
	if c.resolver != nil {
		resolved, err := c.resolver.Resolve(ctx, chain, assetID)
		if err != nil {
			c.logger.Debug("token metadata resolution failed, using placeholder",
				slog.String("chain", chain),
				slog.String("asset_id", assetID),
				slog.String("error", err.Error()),
			)
		} else {
			info = resolved
		}
	}

	c.mu.Lock()
	c.entries[key] = info
	c.mu.Unlock()
	return info
}

// placeholderInfo is the deterministic fallback for unresolvable tokens:
// the first 8 characters of the asset identifier and 18 decimals.
func placeholderInfo(assetID string) TokenInfo {
	sym := assetID
	if len(sym) > 8 {
		sym = sym[:8]
	}
	return TokenInfo{Symbol: sym, Decimals: 18}
}
