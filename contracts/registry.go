package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// IdentityRegistry is a client of the shared registry contract.
type IdentityRegistry struct {
	*boundContract
}

// NewIdentityRegistry binds the registry at address. Writes are sent from `from` through sender.
func NewIdentityRegistry(address common.Address, caller bind.ContractCaller, sender interfaces.TxSender, from common.Address, chainID uint64) (*IdentityRegistry, error) {
	bc, err := newBoundContract(IdentityRegistryMetaData, address, caller, sender, from, chainID)
	if err != nil {
		return nil, err
	}
	return &IdentityRegistry{boundContract: bc}, nil
}

func (r *IdentityRegistry) GetIndividualWalletInfoAddress(ctx context.Context, wallet common.Address) (common.Address, error) {
	out, err := r.call(ctx, "getIndividualWalletInfoAddress", wallet)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// RegisterAndCreateIndividualWalletInfo creates the identity record of the sending wallet.
func (r *IdentityRegistry) RegisterAndCreateIndividualWalletInfo(ctx context.Context) (common.Hash, error) {
	return r.transact(ctx, "registerAndCreateIndividualWalletInfo")
}
