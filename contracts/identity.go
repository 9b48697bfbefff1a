package contracts

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// IdentityRecord is a client of one wallet's identity record contract.
type IdentityRecord struct {
	*boundContract
}

func NewIdentityRecord(address common.Address, caller bind.ContractCaller, sender interfaces.TxSender, from common.Address, chainID uint64) (*IdentityRecord, error) {
	bc, err := newBoundContract(IdentityRecordMetaData, address, caller, sender, from, chainID)
	if err != nil {
		return nil, err
	}
	return &IdentityRecord{boundContract: bc}, nil
}

func (r *IdentityRecord) GetWalletType(ctx context.Context) (interfaces.Role, error) {
	out, err := r.call(ctx, "getWalletType")
	if err != nil {
		return interfaces.RoleNone, err
	}
	role := interfaces.Role(*abi.ConvertType(out[0], new(uint8)).(*uint8))
	if !role.Valid() {
		return interfaces.RoleNone, fmt.Errorf("identity record %s returned unknown wallet type %d", r.address.Hex(), uint8(role))
	}
	return role, nil
}

func (r *IdentityRecord) SetWalletType(ctx context.Context, role interfaces.Role) (common.Hash, error) {
	return r.transact(ctx, "setWalletType", uint8(role))
}

func (r *IdentityRecord) AddSmartInsuranceContract(ctx context.Context, policy common.Address) (common.Hash, error) {
	return r.transact(ctx, "addSmartInsuranceContract", policy)
}

func (r *IdentityRecord) GetSmartInsuranceContracts(ctx context.Context) ([]common.Address, error) {
	out, err := r.call(ctx, "getSmartInsuranceContracts")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}
