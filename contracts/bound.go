package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// boundContract reads through a bind.BoundContract and writes by packing calldata
// and handing it to the wallet's TxSender, so signing never leaves the wallet.
type boundContract struct {
	address  common.Address
	abi      *abi.ABI
	contract *bind.BoundContract
	sender   interfaces.TxSender
	from     common.Address
	chainID  uint64
}

func newBoundContract(meta *bind.MetaData, address common.Address, caller bind.ContractCaller, sender interfaces.TxSender, from common.Address, chainID uint64) (*boundContract, error) {
	parsed, err := meta.GetAbi()
	if err != nil {
		return nil, err
	}
	if parsed == nil {
		return nil, fmt.Errorf("contract ABI is empty")
	}

	return &boundContract{
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, *parsed, caller, nil, nil),
		sender:   sender,
		from:     from,
		chainID:  chainID,
	}, nil
}

// Address returns the contract address.
func (b *boundContract) Address() common.Address {
	return b.address
}

func (b *boundContract) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := b.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return out, nil
}

func (b *boundContract) transact(ctx context.Context, method string, params ...interface{}) (common.Hash, error) {
	if b.sender == nil {
		return common.Hash{}, interfaces.ErrNoSigner
	}

	data, err := b.abi.Pack(method, params...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not pack %s: %w", method, err)
	}

	to := b.address
	hash, err := b.sender.SendTransaction(ctx, interfaces.TxRequest{
		From:    b.from,
		To:      &to,
		Data:    data,
		ChainID: b.chainID,
	})
	if err != nil {
		return common.Hash{}, err
	}

	interfaces.NotifyTxSubmitted(ctx, method, hash)
	return hash, nil
}
