package contracts

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// Policy reads a deployed policy contract.
type Policy struct {
	*boundContract
	caller bind.ContractCaller
}

func NewPolicy(address common.Address, caller bind.ContractCaller) (*Policy, error) {
	bc, err := newBoundContract(PolicyMetaData, address, caller, nil, common.Address{}, 0)
	if err != nil {
		return nil, err
	}
	return &Policy{boundContract: bc, caller: caller}, nil
}

// Deployed reports whether any code exists at the policy address.
func (p *Policy) Deployed(ctx context.Context) (bool, error) {
	code, err := p.caller.CodeAt(ctx, p.address, nil)
	if err != nil {
		return false, err
	}
	return len(code) > 0, nil
}

// Detail reads every policy field in a single call.
func (p *Policy) Detail(ctx context.Context) (*interfaces.PolicyDetail, error) {
	out, err := p.call(ctx, "getPolicyDetails")
	if err != nil {
		return nil, err
	}
	details := abi.ConvertType(out[0], new(PolicyDetailsTuple)).(*PolicyDetailsTuple)
	return details.ToDetail(p.address)
}

// CurrentStatus reads only the status code.
func (p *Policy) CurrentStatus(ctx context.Context) (interfaces.PolicyStatus, error) {
	out, err := p.call(ctx, "currentStatus")
	if err != nil {
		return 0, err
	}
	return interfaces.PolicyStatus(*abi.ConvertType(out[0], new(uint8)).(*uint8)), nil
}

// expirationArg converts an expiration to the uint256 constructor argument.
func expirationArg(params *interfaces.PolicyParams) *big.Int {
	return big.NewInt(params.Expiration.Unix())
}
