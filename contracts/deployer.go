package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// Artifact is a compiled policy contract: ABI plus creation bytecode.
type Artifact struct {
	ABI      abi.ABI
	Bytecode []byte
}

type artifactJSON struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode string          `json:"bytecode"`
}

// ParseArtifact parses a Hardhat/Foundry style {"abi": [...], "bytecode": "0x..."} document.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw artifactJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid artifact json: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("invalid artifact abi: %w", err)
	}

	bytecode, err := hexutil.Decode(raw.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact bytecode: %w", err)
	}
	if len(bytecode) == 0 {
		return nil, errors.New("artifact has empty bytecode")
	}

	return &Artifact{ABI: parsed, Bytecode: bytecode}, nil
}

// PolicyDeployer creates policy contracts from an artifact.
type PolicyDeployer struct {
	artifact *Artifact
	sender   interfaces.TxSender
	from     common.Address
	chainID  uint64
}

func NewPolicyDeployer(artifact *Artifact, sender interfaces.TxSender, from common.Address, chainID uint64) *PolicyDeployer {
	return &PolicyDeployer{
		artifact: artifact,
		sender:   sender,
		from:     from,
		chainID:  chainID,
	}
}

// PackConstructor encodes the creation calldata for params.
func (d *PolicyDeployer) PackConstructor(params *interfaces.PolicyParams) ([]byte, error) {
	conditions, err := SensorConditionsToTuples(params.SensorConditions)
	if err != nil {
		return nil, err
	}

	packed, err := d.artifact.ABI.Pack("",
		params.InsuredWallet,
		params.IssuerWallet,
		params.PremiumScaled,
		params.PayoutScaled,
		params.TokenAddress,
		conditions,
		GeofenceToTuple(params.Geofence),
		expirationArg(params),
	)
	if err != nil {
		return nil, fmt.Errorf("could not pack policy constructor: %w", err)
	}

	data := make([]byte, 0, len(d.artifact.Bytecode)+len(packed))
	data = append(data, d.artifact.Bytecode...)
	return append(data, packed...), nil
}

// DeployPolicy submits the creation transaction. The policy address is read
// from the receipt once mined.
func (d *PolicyDeployer) DeployPolicy(ctx context.Context, params *interfaces.PolicyParams) (common.Hash, error) {
	if d.sender == nil {
		return common.Hash{}, interfaces.ErrNoSigner
	}

	data, err := d.PackConstructor(params)
	if err != nil {
		return common.Hash{}, err
	}

	hash, err := d.sender.SendTransaction(ctx, interfaces.TxRequest{
		From:    d.from,
		Data:    data,
		ChainID: d.chainID,
	})
	if err != nil {
		return common.Hash{}, err
	}

	interfaces.NotifyTxSubmitted(ctx, "deployPolicy", hash)
	return hash, nil
}
