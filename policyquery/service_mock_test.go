package policyquery

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	coordcommon "github.com/ruteri/parametric-insurance-coordinator/common"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/registry"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

type mockLister struct {
	mock.Mock
}

func (m *mockLister) GetIdentityAddress(ctx context.Context, wallet common.Address) (*common.Address, error) {
	args := m.Called(ctx, wallet)
	addr, _ := args.Get(0).(*common.Address)
	return addr, args.Error(1)
}

func (m *mockLister) Policies(ctx context.Context, identity common.Address) ([]common.Address, error) {
	args := m.Called(ctx, identity)
	policies, _ := args.Get(0).([]common.Address)
	return policies, args.Error(1)
}

func newMockedService(factory *registry.MockContractFactory, lister PolicyLister, sender *registry.MockTxSender) *Service {
	executor := wallet.NewExecutor(time.Second, coordcommon.DiscardLogger())
	return NewService(factory, lister, registry.LedgerGatewayAddress, sender, executor, coordcommon.DiscardLogger())
}

func TestGetPolicyDetailWithoutCode(t *testing.T) {
	address := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	policy := new(registry.MockPolicyContract)
	policy.On("Deployed", mock.Anything).Return(false, nil)
	factory := new(registry.MockContractFactory)
	factory.On("Policy", address).Return(policy, nil)

	s := newMockedService(factory, new(mockLister), new(registry.MockTxSender))
	detail, err := s.GetPolicyDetail(context.Background(), address)
	require.NoError(t, err)
	assert.Nil(t, detail)
	policy.AssertNotCalled(t, "Detail", mock.Anything)
}

func TestUpdateExpiredSubmitsOpenPoliciesOnly(t *testing.T) {
	identity := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	open := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	closed := common.HexToAddress("0x00000000000000000000000000000000000000d2")
	hash := common.HexToHash("0x0e")

	lister := new(mockLister)
	lister.On("GetIdentityAddress", mock.Anything, issuer).Return(&identity, nil)
	lister.On("Policies", mock.Anything, identity).Return([]common.Address{open, closed}, nil)

	openPolicy := new(registry.MockPolicyContract)
	openPolicy.On("Deployed", mock.Anything).Return(true, nil)
	openPolicy.On("Detail", mock.Anything).Return(&interfaces.PolicyDetail{Address: open, Status: interfaces.StatusActive}, nil)
	closedPolicy := new(registry.MockPolicyContract)
	closedPolicy.On("Deployed", mock.Anything).Return(true, nil)
	closedPolicy.On("Detail", mock.Anything).Return(&interfaces.PolicyDetail{Address: closed, Status: interfaces.StatusClaimed}, nil)

	gateway := new(registry.MockInsuranceGateway)
	gateway.On("MarkExpiredPolicies", mock.Anything, []common.Address{open}).Return(hash, nil)

	factory := new(registry.MockContractFactory)
	factory.On("Policy", open).Return(openPolicy, nil)
	factory.On("Policy", closed).Return(closedPolicy, nil)
	factory.On("Gateway", registry.LedgerGatewayAddress).Return(gateway, nil)

	sender := new(registry.MockTxSender)
	sender.On("WaitForTransaction", mock.Anything, hash).
		Return(&types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash}, nil)

	s := newMockedService(factory, lister, sender)
	res, err := s.UpdateExpired(context.Background(), issuer)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{open}, res.Candidates)
	require.NotNil(t, res.TxHash)
	assert.Equal(t, hash, *res.TxHash)
	gateway.AssertExpectations(t)
}

func TestBatchMarkExpiredSubmissionFailure(t *testing.T) {
	policy := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	gateway := new(registry.MockInsuranceGateway)
	gateway.On("MarkExpiredPolicies", mock.Anything, []common.Address{policy}).Return(common.Hash{}, assert.AnError)
	factory := new(registry.MockContractFactory)
	factory.On("Gateway", registry.LedgerGatewayAddress).Return(gateway, nil)
	sender := new(registry.MockTxSender)

	s := newMockedService(factory, new(mockLister), sender)
	hash, err := s.BatchMarkExpired(context.Background(), []common.Address{policy})
	assert.Nil(t, hash)
	assert.ErrorIs(t, err, interfaces.ErrTransactionFailure)
	assert.ErrorIs(t, err, assert.AnError)
	sender.AssertNotCalled(t, "WaitForTransaction", mock.Anything, mock.Anything)
}
