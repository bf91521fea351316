// Package names resolves donor addresses to ENS names for alert display.
// Resolution is best-effort: any failure yields an empty name and the overlay
// falls back to the shortened address.
package names

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// ensRegistry is the canonical ENS registry, same address on mainnet and the
// test networks that deploy ENS.
var ensRegistry = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

var (
	resolverSelector = crypto.Keccak256([]byte("resolver(bytes32)"))[:4]
	nameSelector     = crypto.Keccak256([]byte("name(bytes32)"))[:4]
)

const lookupTimeout = 5 * time.Second

// Resolver performs reverse ENS lookups against a single RPC endpoint.
type Resolver struct {
	rpcURL string
	logger *zap.Logger
}

// NewResolver creates a resolver. An empty rpcURL disables lookups.
func NewResolver(rpcURL string, logger *zap.Logger) *Resolver {
	return &Resolver{rpcURL: rpcURL, logger: logger}
}

// ReverseLookup returns the ENS name registered for address, or "" when the
// address has no reverse record or the lookup fails for any reason.
func (r *Resolver) ReverseLookup(ctx context.Context, address string) string {
	if r.rpcURL == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	client, err := rpc.DialContext(ctx, r.rpcURL)
	if err != nil {
		r.logger.Debug("ENS RPC dial failed", zap.Error(err))
		return ""
	}
	defer client.Close()

	node := reverseNode(address)

	resolverAddr, err := r.callForAddress(ctx, client, ensRegistry, resolverSelector, node)
	if err != nil || resolverAddr == (common.Address{}) {
		return ""
	}

	name, err := r.callForString(ctx, client, resolverAddr, nameSelector, node)
	if err != nil {
		r.logger.Debug("ENS name call failed", zap.String("address", address), zap.Error(err))
		return ""
	}
	return name
}

// reverseNode computes the namehash of "<addr>.addr.reverse".
func reverseNode(address string) common.Hash {
	addr := strings.ToLower(strings.TrimPrefix(address, "0x"))

	// namehash("addr.reverse")
	node := make([]byte, 32)
	for _, label := range []string{"reverse", "addr"} {
		node = crypto.Keccak256(node, crypto.Keccak256([]byte(label)))
	}
	node = crypto.Keccak256(node, crypto.Keccak256([]byte(addr)))
	return common.BytesToHash(node)
}

func (r *Resolver) ethCall(ctx context.Context, client *rpc.Client, to common.Address, selector []byte, node common.Hash) ([]byte, error) {
	data := make([]byte, 0, 36)
	data = append(data, selector...)
	data = append(data, node.Bytes()...)

	var result hexutil.Bytes
	err := client.CallContext(ctx, &result, "eth_call", map[string]any{
		"to":   to,
		"data": hexutil.Encode(data),
	}, "latest")
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Resolver) callForAddress(ctx context.Context, client *rpc.Client, to common.Address, selector []byte, node common.Hash) (common.Address, error) {
	out, err := r.ethCall(ctx, client, to, selector, node)
	if err != nil {
		return common.Address{}, err
	}
	if len(out) < 32 {
		return common.Address{}, fmt.Errorf("short address return: %s", hex.EncodeToString(out))
	}
	return common.BytesToAddress(out[12:32]), nil
}

func (r *Resolver) callForString(ctx context.Context, client *rpc.Client, to common.Address, selector []byte, node common.Hash) (string, error) {
	out, err := r.ethCall(ctx, client, to, selector, node)
	if err != nil {
		return "", err
	}
	return decodeString(out)
}

// decodeString unpacks a solo ABI-encoded string return value.
func decodeString(out []byte) (string, error) {
	if len(out) < 64 {
		return "", fmt.Errorf("short string return: %d bytes", len(out))
	}
	// Compare before adding: a hostile response can carry values that
	// wrap uint64 addition.
	offset := new(big.Int).SetBytes(out[:32]).Uint64()
	if offset > uint64(len(out))-32 {
		return "", fmt.Errorf("string offset out of range")
	}
	length := new(big.Int).SetBytes(out[offset : offset+32]).Uint64()
	if length > uint64(len(out))-offset-32 {
		return "", fmt.Errorf("string length out of range")
	}
	return string(out[offset+32 : offset+32+length]), nil
}
