package contracts

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// Revert is a decoded contract revert. Name is the custom error name, or
// "Error" for a plain require() string.
type Revert struct {
	Name   string
	Reason string
	Args   []interface{}
}

func (r *Revert) Error() string {
	if r.Reason != "" {
		return fmt.Sprintf("execution reverted: %s", r.Reason)
	}
	return fmt.Sprintf("execution reverted: %s%v", r.Name, r.Args)
}

// revertABIs are searched in order for a matching custom error selector.
var revertABIs = []*bind.MetaData{IdentityRegistryMetaData, IdentityRecordMetaData}

// RevertData extracts raw revert bytes from an RPC error, if present.
func RevertData(err error) ([]byte, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}

	switch data := dataErr.ErrorData().(type) {
	case string:
		raw, decErr := hexutil.Decode(data)
		if decErr != nil {
			return nil, false
		}
		return raw, true
	case []byte:
		return data, true
	default:
		return nil, false
	}
}

// DecodeRevert decodes err into a Revert when it carries revert data that
// matches a known custom error or the standard Error(string).
func DecodeRevert(err error) (*Revert, bool) {
	data, ok := RevertData(err)
	if !ok || len(data) < 4 {
		return nil, false
	}

	if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
		return &Revert{Name: "Error", Reason: reason}, true
	}

	var selector [4]byte
	copy(selector[:], data[:4])
	for _, meta := range revertABIs {
		parsed, abiErr := meta.GetAbi()
		if abiErr != nil {
			continue
		}
		abiError, lookupErr := parsed.ErrorByID(selector)
		if lookupErr != nil {
			continue
		}
		args, unpackErr := abiError.Inputs.Unpack(data[4:])
		if unpackErr != nil {
			continue
		}
		return &Revert{Name: abiError.Name, Args: args}, true
	}
	return nil, false
}

// WalletTypeAlreadySet reports whether err is the identity record refusing a
// second role assignment, and the role it already holds when the contract said so.
func WalletTypeAlreadySet(err error) (interfaces.Role, bool) {
	revert, ok := DecodeRevert(err)
	if !ok {
		return interfaces.RoleNone, false
	}
	switch revert.Name {
	case "WalletTypeAlreadySet":
		if len(revert.Args) == 1 {
			if v, isUint := revert.Args[0].(uint8); isUint {
				return interfaces.Role(v), true
			}
		}
		return interfaces.RoleNone, true
	case "Error":
		return interfaces.RoleNone, revert.Reason == "Wallet type already set"
	}
	return interfaces.RoleNone, false
}

// WalletInfoAlreadyExists reports whether err is the registry refusing to
// create a second identity record for the same wallet.
func WalletInfoAlreadyExists(err error) (common.Address, bool) {
	revert, ok := DecodeRevert(err)
	if !ok {
		return common.Address{}, false
	}
	switch revert.Name {
	case "WalletInfoAlreadyExists":
		if len(revert.Args) == 1 {
			if addr, isAddr := revert.Args[0].(common.Address); isAddr {
				return addr, true
			}
		}
		return common.Address{}, true
	case "Error":
		return common.Address{}, revert.Reason == "Wallet info already exists"
	}
	return common.Address{}, false
}
