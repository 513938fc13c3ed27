// Package evm resolves ERC-20 token metadata (symbol, decimals) over JSON-RPC.
// It is the token-metadata collaborator behind the normalizer's run-scoped
// cache; any failure here degrades to a placeholder upstream.
package evm

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/crazysoldier/CryptoBookKeeper/internal/normalize"
)

// ERC-20 function selectors.
var (
	symbolSelector   = []byte{0x95, 0xd8, 0x9b, 0x41} // symbol()
	decimalsSelector = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
)

// Resolver implements normalize.TokenResolver over one RPC client per chain.
type Resolver struct {
	clients map[string]*ethclient.Client
}

// NewResolver dials each configured chain's RPC endpoint.
func NewResolver(ctx context.Context, rpcURLs map[string]string) (*Resolver, error) {
	clients := make(map[string]*ethclient.Client, len(rpcURLs))
	for chain, rpcURL := range rpcURLs {
		client, err := ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("evm: dial %s rpc: %w", chain, err)
		}
		clients[chain] = client
	}
	return &Resolver{clients: clients}, nil
}

// Close releases all RPC connections.
func (r *Resolver) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}

// Resolve looks up symbol and decimals for a token contract. Non-contract
// asset ids (native coins) and chains without an RPC client resolve with an
// error, leaving the fallback to the caller.
func (r *Resolver) Resolve(ctx context.Context, chain, assetID string) (normalize.TokenInfo, error) {
	client, ok := r.clients[chain]
	if !ok {
		return normalize.TokenInfo{}, fmt.Errorf("evm: no rpc client for chain %q", chain)
	}
	if !common.IsHexAddress(assetID) {
		return normalize.TokenInfo{}, fmt.Errorf("evm: asset %q is not a contract address", assetID)
	}
	addr := common.HexToAddress(assetID)

	symbolRet, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: symbolSelector}, nil)
	if err != nil {
		return normalize.TokenInfo{}, fmt.Errorf("evm: symbol() on %s/%s: %w", chain, assetID, err)
	}
	symbol, err := decodeSymbol(symbolRet)
	if err != nil {
		return normalize.TokenInfo{}, fmt.Errorf("evm: symbol() on %s/%s: %w", chain, assetID, err)
	}

	decimalsRet, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: decimalsSelector}, nil)
	if err != nil {
		return normalize.TokenInfo{}, fmt.Errorf("evm: decimals() on %s/%s: %w", chain, assetID, err)
	}
	decimals, err := decodeDecimals(decimalsRet)
	if err != nil {
		return normalize.TokenInfo{}, fmt.Errorf("evm: decimals() on %s/%s: %w", chain, assetID, err)
	}

	return normalize.TokenInfo{Symbol: symbol, Decimals: decimals}, nil
}

// decodeSymbol handles both ABI-encoded dynamic strings and the bytes32
// variant some older tokens return.
func decodeSymbol(ret []byte) (string, error) {
	if len(ret) == 32 {
		return string(bytes.TrimRight(ret, "\x00")), nil
	}
	if len(ret) < 64 {
		return "", fmt.Errorf("short return data (%d bytes)", len(ret))
	}
	// Bounds checks stay in uint64: contracts return arbitrary bytes, and a
	// length that wraps int arithmetic must not slip past the comparison.
	size := uint64(len(ret))
	offset := binary.BigEndian.Uint64(ret[24:32])
	if offset > size-32 {
		return "", fmt.Errorf("string offset out of range")
	}
	length := binary.BigEndian.Uint64(ret[offset+24 : offset+32])
	start := offset + 32
	if length > size-start {
		return "", fmt.Errorf("string length out of range")
	}
	return string(ret[start : start+length]), nil
}

func decodeDecimals(ret []byte) (int, error) {
	if len(ret) < 32 {
		return 0, fmt.Errorf("short return data (%d bytes)", len(ret))
	}
	return int(ret[31]), nil
}
