package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// MockIdentityRegistry mocks the IdentityRegistry interface
type MockIdentityRegistry struct {
	mock.Mock
}

func (m *MockIdentityRegistry) GetIndividualWalletInfoAddress(ctx context.Context, wallet common.Address) (common.Address, error) {
	args := m.Called(ctx, wallet)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *MockIdentityRegistry) RegisterAndCreateIndividualWalletInfo(ctx context.Context) (common.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Hash), args.Error(1)
}

// MockIdentityRecord mocks the IdentityRecord interface
type MockIdentityRecord struct {
	mock.Mock
}

func (m *MockIdentityRecord) GetWalletType(ctx context.Context) (interfaces.Role, error) {
	args := m.Called(ctx)
	return args.Get(0).(interfaces.Role), args.Error(1)
}

func (m *MockIdentityRecord) SetWalletType(ctx context.Context, role interfaces.Role) (common.Hash, error) {
	args := m.Called(ctx, role)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockIdentityRecord) AddSmartInsuranceContract(ctx context.Context, policy common.Address) (common.Hash, error) {
	args := m.Called(ctx, policy)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockIdentityRecord) GetSmartInsuranceContracts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	policies, _ := args.Get(0).([]common.Address)
	return policies, args.Error(1)
}

// MockPolicyContract mocks the PolicyContract interface
type MockPolicyContract struct {
	mock.Mock
}

func (m *MockPolicyContract) Deployed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockPolicyContract) Detail(ctx context.Context) (*interfaces.PolicyDetail, error) {
	args := m.Called(ctx)
	detail, _ := args.Get(0).(*interfaces.PolicyDetail)
	return detail, args.Error(1)
}

// MockInsuranceGateway mocks the InsuranceGateway interface
type MockInsuranceGateway struct {
	mock.Mock
}

func (m *MockInsuranceGateway) MarkExpiredPolicies(ctx context.Context, policies []common.Address) (common.Hash, error) {
	args := m.Called(ctx, policies)
	return args.Get(0).(common.Hash), args.Error(1)
}

// MockToken mocks the Token interface
type MockToken struct {
	mock.Mock
}

func (m *MockToken) Decimals(ctx context.Context) (uint8, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint8), args.Error(1)
}

// MockPolicyDeployer mocks the PolicyDeployer interface
type MockPolicyDeployer struct {
	mock.Mock
}

func (m *MockPolicyDeployer) DeployPolicy(ctx context.Context, params *interfaces.PolicyParams) (common.Hash, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(common.Hash), args.Error(1)
}

// MockTxSender mocks the TxSender interface
type MockTxSender struct {
	mock.Mock
}

func (m *MockTxSender) SendTransaction(ctx context.Context, req interfaces.TxRequest) (common.Hash, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockTxSender) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

// MockContractFactory mocks the ContractFactory interface
type MockContractFactory struct {
	mock.Mock
}

func (m *MockContractFactory) Registry(address common.Address) (interfaces.IdentityRegistry, error) {
	args := m.Called(address)
	reg, _ := args.Get(0).(interfaces.IdentityRegistry)
	return reg, args.Error(1)
}

func (m *MockContractFactory) IdentityRecord(address common.Address) (interfaces.IdentityRecord, error) {
	args := m.Called(address)
	record, _ := args.Get(0).(interfaces.IdentityRecord)
	return record, args.Error(1)
}

func (m *MockContractFactory) Policy(address common.Address) (interfaces.PolicyContract, error) {
	args := m.Called(address)
	policy, _ := args.Get(0).(interfaces.PolicyContract)
	return policy, args.Error(1)
}

func (m *MockContractFactory) Gateway(address common.Address) (interfaces.InsuranceGateway, error) {
	args := m.Called(address)
	gateway, _ := args.Get(0).(interfaces.InsuranceGateway)
	return gateway, args.Error(1)
}

func (m *MockContractFactory) Token(address common.Address) (interfaces.Token, error) {
	args := m.Called(address)
	token, _ := args.Get(0).(interfaces.Token)
	return token, args.Error(1)
}

func (m *MockContractFactory) PolicyDeployer() (interfaces.PolicyDeployer, error) {
	args := m.Called()
	deployer, _ := args.Get(0).(interfaces.PolicyDeployer)
	return deployer, args.Error(1)
}
