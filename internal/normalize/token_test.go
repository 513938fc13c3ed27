package normalize

import (
	"context"
	"fmt"
	"testing"
)

type stubResolver struct {
	info  TokenInfo
	err   error
	calls int
}

func (r *stubResolver) Resolve(ctx context.Context, chain, assetID string) (TokenInfo, error) {
	r.calls++
	if r.err != nil {
		return TokenInfo{}, r.err
	}
	return r.info, nil
}

func TestTokenCacheWellKnown(t *testing.T) {
	resolver := &stubResolver{info: TokenInfo{Symbol: "WRONG", Decimals: 1}}
	cache := NewTokenCache(resolver, discardLogger())

	info := cache.Lookup(context.Background(), "eth", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	if info.Symbol != "USDC" || info.Decimals != 6 {
		t.Errorf("got %+v, want USDC/6", info)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver consulted for a well-known token")
	}
}

func TestTokenCacheResolvesOncePerPair(t *testing.T) {
	resolver := &stubResolver{info: TokenInfo{Symbol: "PEPE", Decimals: 18}}
	cache := NewTokenCache(resolver, discardLogger())

	for i := 0; i < 3; i++ {
		info := cache.Lookup(context.Background(), "eth", "0x6982508145454ce325ddbe47a25d4ec3d2311933")
		if info.Symbol != "PEPE" {
			t.Fatalf("got %+v", info)
		}
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestTokenCachePlaceholderOnFailure(t *testing.T) {
	resolver := &stubResolver{err: fmt.Errorf("rpc timeout")}
	cache := NewTokenCache(resolver, discardLogger())

	info := cache.Lookup(context.Background(), "eth", "0xdeadbeefcafe")
	if info.Symbol != "0xdeadbe" || info.Decimals != 18 {
		t.Errorf("got %+v, want first-8-chars placeholder with 18 decimals", info)
	}
	// Failures are cached too; the resolver is not retried within a run.
	cache.Lookup(context.Background(), "eth", "0xdeadbeefcafe")
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1", resolver.calls)
	}
}

func TestTokenCacheNilResolver(t *testing.T) {
	cache := NewTokenCache(nil, discardLogger())

	info := cache.Lookup(context.Background(), "matic", "0x1234")
	if info.Symbol != "0x1234" || info.Decimals != 18 {
		t.Errorf("got %+v", info)
	}
}
