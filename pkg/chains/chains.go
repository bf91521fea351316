// Package chains holds the registry of supported source testnets and their
// CCTP v2 wiring (domain ids, USDC and TokenMessengerV2 addresses, RPC
// endpoints).
package chains

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ArcDomain is the CCTP domain id of the destination chain all donations
// settle on.
const ArcDomain = 26

// ForwardingHookData is the hook payload that tells the forwarding relayer to
// auto-forward the minted USDC on the destination chain.
const ForwardingHookData = "0x636374702d666f72776172640000000000000000000000000000000000000000"

// Chain describes one supported source chain.
type Chain struct {
	ChainID          int64  `yaml:"chain_id"`
	Name             string `yaml:"name"`
	ShortName        string `yaml:"short_name"`
	Domain           uint32 `yaml:"domain"`
	TokenMessengerV2 string `yaml:"token_messenger_v2"`
	USDC             string `yaml:"usdc"`
	RPCURL           string `yaml:"rpc_url"`
}

// Registry resolves chains by name or CCTP domain.
type Registry struct {
	byName   map[string]*Chain
	byDomain map[uint32]*Chain
	chains   []*Chain
}

// NewRegistry builds a registry from the given chains. Duplicate names or
// domains are rejected.
func NewRegistry(chains []Chain) (*Registry, error) {
	r := &Registry{
		byName:   make(map[string]*Chain, len(chains)),
		byDomain: make(map[uint32]*Chain, len(chains)),
	}
	for i := range chains {
		c := &chains[i]
		if c.Name == "" || c.RPCURL == "" {
			return nil, fmt.Errorf("chain %q: name and rpc_url are required", c.Name)
		}
		key := normalizeName(c.Name)
		if _, ok := r.byName[key]; ok {
			return nil, fmt.Errorf("duplicate chain name %q", c.Name)
		}
		if _, ok := r.byDomain[c.Domain]; ok {
			return nil, fmt.Errorf("duplicate chain domain %d", c.Domain)
		}
		r.byName[key] = c
		r.byDomain[c.Domain] = c
		r.chains = append(r.chains, c)
	}
	return r, nil
}

// LoadFile reads a registry from a YAML file of the form {chains: [...]}.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain registry: %w", err)
	}
	var doc struct {
		Chains []Chain `yaml:"chains"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse chain registry: %w", err)
	}
	if len(doc.Chains) == 0 {
		return nil, fmt.Errorf("chain registry %s contains no chains", path)
	}
	return NewRegistry(doc.Chains)
}

// Default returns the built-in registry of supported testnets.
func Default() *Registry {
	r, err := NewRegistry(defaultChains())
	if err != nil {
		// defaultChains is static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// normalizeName folds a chain name to its lookup key, so "Base Sepolia" and
// "base-sepolia" resolve to the same chain.
func normalizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// ByName resolves a chain by its name ("Ethereum Sepolia" or "ethereum-sepolia").
func (r *Registry) ByName(name string) (*Chain, bool) {
	c, ok := r.byName[normalizeName(name)]
	return c, ok
}

// ByDomain resolves a chain by its CCTP domain id.
func (r *Registry) ByDomain(domain uint32) (*Chain, bool) {
	c, ok := r.byDomain[domain]
	return c, ok
}

// All returns every registered chain in registration order.
func (r *Registry) All() []*Chain {
	return r.chains
}

// PadAddress left-pads a 20-byte hex address to the 32-byte form the
// TokenMessengerV2 mintRecipient parameter expects.
func PadAddress(address string) string {
	cleaned := strings.TrimPrefix(strings.ToLower(address), "0x")
	return "0x" + strings.Repeat("0", 64-len(cleaned)) + cleaned
}

func defaultChains() []Chain {
	return []Chain{
		{
			ChainID:          11155111,
			Name:             "Ethereum Sepolia",
			ShortName:        "Ethereum",
			Domain:           0,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
			RPCURL:           "https://rpc.sepolia.org",
		},
		{
			ChainID:          421614,
			Name:             "Arbitrum Sepolia",
			ShortName:        "Arbitrum",
			Domain:           3,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
			RPCURL:           "https://sepolia-rollup.arbitrum.io/rpc",
		},
		{
			ChainID:          43113,
			Name:             "Avalanche Fuji",
			ShortName:        "Avalanche",
			Domain:           1,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x5425890298aed601595a70AB815c96711a31Bc65",
			RPCURL:           "https://api.avax-test.network/ext/bc/C/rpc",
		},
		{
			ChainID:          84532,
			Name:             "Base Sepolia",
			ShortName:        "Base",
			Domain:           6,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			RPCURL:           "https://sepolia.base.org",
		},
		{
			ChainID:          11155420,
			Name:             "OP Sepolia",
			ShortName:        "Optimism",
			Domain:           2,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x5fd84259d66Cd46123540766Be93DFE6D43130D7",
			RPCURL:           "https://sepolia.optimism.io",
		},
		{
			ChainID:          80002,
			Name:             "Polygon Amoy",
			ShortName:        "Polygon",
			Domain:           7,
			TokenMessengerV2: "0x8FE6B999Dc680CcFDD5Bf7EB0974218be2542DAA",
			USDC:             "0x41E94Eb019C0762f9Bfcf9Fb1E58725BfB0e7582",
			RPCURL:           "https://rpc-amoy.polygon.technology",
		},
	}
}
