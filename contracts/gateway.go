package contracts

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// InsuranceGateway is a client of the gateway contract.
type InsuranceGateway struct {
	*boundContract
}

func NewInsuranceGateway(address common.Address, caller bind.ContractCaller, sender interfaces.TxSender, from common.Address, chainID uint64) (*InsuranceGateway, error) {
	bc, err := newBoundContract(InsuranceGatewayMetaData, address, caller, sender, from, chainID)
	if err != nil {
		return nil, err
	}
	return &InsuranceGateway{boundContract: bc}, nil
}

// MarkExpiredPolicies transitions every listed policy past its expiration into Expired.
// Policies that are not yet expired are left unchanged by the contract.
func (g *InsuranceGateway) MarkExpiredPolicies(ctx context.Context, policies []common.Address) (common.Hash, error) {
	return g.transact(ctx, "markExpiredPolicies", policies)
}

// ERC20 reads token metadata.
type ERC20 struct {
	*boundContract
}

func NewERC20(address common.Address, caller bind.ContractCaller) (*ERC20, error) {
	bc, err := newBoundContract(ERC20MetaData, address, caller, nil, common.Address{}, 0)
	if err != nil {
		return nil, err
	}
	return &ERC20{boundContract: bc}, nil
}

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	out, err := t.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}
