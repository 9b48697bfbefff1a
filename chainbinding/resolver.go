// Package chainbinding resolves the contract address set for a connected network.
package chainbinding

import (
	"fmt"
	"os"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// Entry is one row of the binding table as written in the YAML override file.
type Entry struct {
	Registry         string `yaml:"registry"`
	Token            string `yaml:"token"`
	InsuranceGateway string `yaml:"insurance_gateway"`
}

// Table maps chain id to its contract addresses.
type Table map[uint64]Entry

// DefaultTable is compiled in. Chains with an all-zero address are known but not deployed.
var DefaultTable = Table{
	// local hardhat node, default deployment addresses
	31337: {
		Registry:         "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Token:            "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
		InsuranceGateway: "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0",
	},
	// sepolia
	11155111: {
		Registry:         "0x0000000000000000000000000000000000000000",
		Token:            "0x0000000000000000000000000000000000000000",
		InsuranceGateway: "0x0000000000000000000000000000000000000000",
	},
}

// Resolver looks up chain bindings in a static table. It has no side effects
// and never touches the network.
type Resolver struct {
	table Table
}

// NewResolver creates a resolver over a copy of table.
func NewResolver(table Table) *Resolver {
	copied := make(Table, len(table))
	for id, e := range table {
		copied[id] = e
	}
	return &Resolver{table: copied}
}

// Resolve returns the binding for chainID. It fails with ErrUnsupportedNetwork when
// the chain is not in the table and ErrIncompleteBinding when any address is
// malformed or the zero placeholder.
func (r *Resolver) Resolve(chainID uint64) (*interfaces.ChainBinding, error) {
	entry, ok := r.table[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %d", interfaces.ErrUnsupportedNetwork, chainID)
	}

	registry, err := bindingAddress(chainID, "registry", entry.Registry)
	if err != nil {
		return nil, err
	}
	token, err := bindingAddress(chainID, "token", entry.Token)
	if err != nil {
		return nil, err
	}
	gateway, err := bindingAddress(chainID, "insurance_gateway", entry.InsuranceGateway)
	if err != nil {
		return nil, err
	}

	return &interfaces.ChainBinding{
		ChainID:                 chainID,
		RegistryAddress:         registry,
		TokenAddress:            token,
		InsuranceGatewayAddress: gateway,
	}, nil
}

// SupportedChains returns the chain ids whose bindings are complete, ascending.
func (r *Resolver) SupportedChains() []uint64 {
	var ids []uint64
	for id := range r.table {
		if _, err := r.Resolve(id); err == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func bindingAddress(chainID uint64, name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: chain id %d has malformed %s address %q", interfaces.ErrIncompleteBinding, chainID, name, raw)
	}
	addr := common.HexToAddress(raw)
	if interfaces.IsZeroAddress(addr) {
		return common.Address{}, fmt.Errorf("%w: %s not deployed on chain id %d", interfaces.ErrIncompleteBinding, name, chainID)
	}
	return addr, nil
}

// LoadTable reads a YAML binding file and merges it over base. Entries in the
// file replace base entries with the same chain id.
//
//	31337:
//	  registry: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
//	  token: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
//	  insurance_gateway: "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0"
func LoadTable(path string, base Table) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read chain binding file: %w", err)
	}
	return ParseTable(data, base)
}

// ParseTable parses YAML binding data and merges it over base.
func ParseTable(data []byte, base Table) (Table, error) {
	var overrides Table
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("could not parse chain binding file: %w", err)
	}

	merged := make(Table, len(base)+len(overrides))
	for id, e := range base {
		merged[id] = e
	}
	for id, e := range overrides {
		merged[id] = e
	}
	return merged, nil
}
