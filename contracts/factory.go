package contracts

import (
	"errors"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// ErrNoArtifact is returned by PolicyDeployer when no policy artifact was configured.
var ErrNoArtifact = errors.New("no policy contract artifact configured")

// Factory creates contract handles that read through one caller and write
// through one wallet sender on one chain.
type Factory struct {
	caller   bind.ContractCaller
	sender   interfaces.TxSender
	from     common.Address
	chainID  uint64
	artifact *Artifact
}

// NewFactory creates a factory for a connected wallet. artifact may be nil
// when the caller never deploys policies.
func NewFactory(conn *interfaces.WalletConnection, artifact *Artifact) *Factory {
	return &Factory{
		caller:   conn.Reader,
		sender:   conn.Sender,
		from:     conn.Address,
		chainID:  conn.ChainID,
		artifact: artifact,
	}
}

func (f *Factory) Registry(address common.Address) (interfaces.IdentityRegistry, error) {
	return NewIdentityRegistry(address, f.caller, f.sender, f.from, f.chainID)
}

func (f *Factory) IdentityRecord(address common.Address) (interfaces.IdentityRecord, error) {
	return NewIdentityRecord(address, f.caller, f.sender, f.from, f.chainID)
}

func (f *Factory) Policy(address common.Address) (interfaces.PolicyContract, error) {
	return NewPolicy(address, f.caller)
}

func (f *Factory) Gateway(address common.Address) (interfaces.InsuranceGateway, error) {
	return NewInsuranceGateway(address, f.caller, f.sender, f.from, f.chainID)
}

func (f *Factory) Token(address common.Address) (interfaces.Token, error) {
	return NewERC20(address, f.caller)
}

func (f *Factory) PolicyDeployer() (interfaces.PolicyDeployer, error) {
	if f.artifact == nil {
		return nil, ErrNoArtifact
	}
	return NewPolicyDeployer(f.artifact, f.sender, f.from, f.chainID), nil
}

var _ interfaces.ContractFactory = (*Factory)(nil)
