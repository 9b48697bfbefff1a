package interfaces

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// IdentityRegistry is the shared registry contract that maps wallets to their identity records.
type IdentityRegistry interface {
	// GetIndividualWalletInfoAddress returns the wallet's identity-record address,
	// or the zero address if none exists.
	GetIndividualWalletInfoAddress(ctx context.Context, wallet common.Address) (common.Address, error)

	// RegisterAndCreateIndividualWalletInfo submits the identity-creation transaction
	// for the sending wallet and returns its hash.
	RegisterAndCreateIndividualWalletInfo(ctx context.Context) (common.Hash, error)
}

// IdentityRecord is a per-wallet identity-record contract.
type IdentityRecord interface {
	GetWalletType(ctx context.Context) (Role, error)
	SetWalletType(ctx context.Context, role Role) (common.Hash, error)
	AddSmartInsuranceContract(ctx context.Context, policy common.Address) (common.Hash, error)
	GetSmartInsuranceContracts(ctx context.Context) ([]common.Address, error)
}

// PolicyContract is the read surface of a deployed policy.
type PolicyContract interface {
	// Deployed reports whether code exists at the policy address.
	Deployed(ctx context.Context) (bool, error)
	Detail(ctx context.Context) (*PolicyDetail, error)
}

// InsuranceGateway exposes the batch expiry transition.
type InsuranceGateway interface {
	MarkExpiredPolicies(ctx context.Context, policies []common.Address) (common.Hash, error)
}

// Token is the read surface of the ERC-20 premium/payout token.
type Token interface {
	Decimals(ctx context.Context) (uint8, error)
}

// PolicyDeployer submits policy contract creation transactions.
type PolicyDeployer interface {
	DeployPolicy(ctx context.Context, params *PolicyParams) (common.Hash, error)
}

// ContractFactory creates contract handles bound to one chain, reader and sender.
type ContractFactory interface {
	Registry(address common.Address) (IdentityRegistry, error)
	IdentityRecord(address common.Address) (IdentityRecord, error)
	Policy(address common.Address) (PolicyContract, error)
	Gateway(address common.Address) (InsuranceGateway, error)
	Token(address common.Address) (Token, error)
	PolicyDeployer() (PolicyDeployer, error)
}
