package policyquery

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	coordcommon "github.com/ruteri/parametric-insurance-coordinator/common"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/registry"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

var (
	issuer  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	insured = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	now     = time.Unix(1_700_000_000, 0)
)

func newService(t *testing.T, ledger *registry.Ledger, from common.Address) *Service {
	t.Helper()
	conn := ledger.Connect(from, 31337)
	factory := ledger.Factory(conn)
	executor := wallet.NewExecutor(time.Second, coordcommon.DiscardLogger())
	client, err := registry.NewClient(registry.LedgerRegistryAddress, factory, conn.Sender, executor, coordcommon.DiscardLogger())
	require.NoError(t, err)
	return NewService(factory, client, registry.LedgerGatewayAddress, conn.Sender, executor, coordcommon.DiscardLogger())
}

func seedPolicy(ledger *registry.Ledger, status interfaces.PolicyStatus, expiration time.Time) common.Address {
	policy := ledger.SeedPolicy(interfaces.PolicyDetail{
		IssuerWallet:  issuer,
		InsuredWallet: insured,
		PremiumAmount: big.NewInt(1),
		PayoutAmount:  big.NewInt(10),
		Expiration:    expiration,
		Status:        status,
	})
	ledger.BindSeeded(issuer, policy)
	return policy
}

type fixture struct {
	ledger    *registry.Ledger
	active    common.Address
	pending   common.Address
	expired   common.Address
	claimed   common.Address
	cancelled common.Address
}

func newFixture() *fixture {
	ledger := registry.NewLedger()
	ledger.Now = func() time.Time { return now }
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)

	return &fixture{
		ledger:    ledger,
		active:    seedPolicy(ledger, interfaces.StatusActive, now.Add(-time.Hour)),
		pending:   seedPolicy(ledger, interfaces.StatusPending, now.Add(time.Hour)),
		expired:   seedPolicy(ledger, interfaces.StatusExpired, now.Add(-time.Hour)),
		claimed:   seedPolicy(ledger, interfaces.StatusClaimed, now.Add(-time.Hour)),
		cancelled: seedPolicy(ledger, interfaces.StatusCancelled, now.Add(time.Hour)),
	}
}

func TestListPolicies(t *testing.T) {
	f := newFixture()
	s := newService(t, f.ledger, issuer)
	ctx := context.Background()

	all, err := s.ListPolicies(ctx, issuer, interfaces.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{f.active, f.pending, f.expired, f.claimed, f.cancelled}, all)

	active, err := s.ListPolicies(ctx, issuer, interfaces.FilterActive)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{f.active, f.pending}, active)

	closed, err := s.ListPolicies(ctx, issuer, interfaces.FilterClosed)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{f.expired, f.claimed, f.cancelled}, closed)
}

func TestListPoliciesWithoutIdentity(t *testing.T) {
	s := newService(t, registry.NewLedger(), insured)

	policies, err := s.ListPolicies(context.Background(), insured, interfaces.FilterActive)
	require.NoError(t, err)
	assert.Empty(t, policies)
}

func TestGetPolicyDetail(t *testing.T) {
	f := newFixture()
	s := newService(t, f.ledger, issuer)

	detail, err := s.GetPolicyDetail(context.Background(), f.pending)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, interfaces.StatusPending, detail.Status)
	assert.Equal(t, insured, detail.InsuredWallet)

	detail, err = s.GetPolicyDetail(context.Background(), common.HexToAddress("0x00000000000000000000000000000000000000ff"))
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestPartition(t *testing.T) {
	f := newFixture()
	s := newService(t, f.ledger, issuer)

	p, err := s.Partition(context.Background(), issuer)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{f.expired}, Addresses(p.Expired))
	assert.Equal(t, []common.Address{f.active, f.pending}, Addresses(p.ActiveOrPending))
	assert.Equal(t, []common.Address{f.claimed, f.cancelled}, Addresses(p.Other))
}

func TestUpdateExpired(t *testing.T) {
	f := newFixture()
	s := newService(t, f.ledger, issuer)

	res, err := s.UpdateExpired(context.Background(), issuer)
	require.NoError(t, err)
	require.NotNil(t, res.TxHash)
	assert.Equal(t, []common.Address{f.active, f.pending}, res.Candidates)
	assert.Equal(t, 1, f.ledger.TxCount("markExpiredPolicies"))

	// The gateway only expires policies past their expiration.
	status, _ := f.ledger.PolicyStatus(f.active)
	assert.Equal(t, interfaces.StatusExpired, status)
	status, _ = f.ledger.PolicyStatus(f.pending)
	assert.Equal(t, interfaces.StatusPending, status)
}

func TestUpdateExpiredWithNoCandidates(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	seedPolicy(ledger, interfaces.StatusExpired, now.Add(-time.Hour))
	seedPolicy(ledger, interfaces.StatusClaimed, now.Add(-time.Hour))
	s := newService(t, ledger, issuer)

	res, err := s.UpdateExpired(context.Background(), issuer)
	require.NoError(t, err)
	assert.Nil(t, res.TxHash)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, 0, ledger.TxCount("markExpiredPolicies"))
}

func TestBatchMarkExpiredEmptyListSubmitsNothing(t *testing.T) {
	factory := new(registry.MockContractFactory)
	s := NewService(factory, nil, registry.LedgerGatewayAddress, new(registry.MockTxSender), wallet.NewExecutor(time.Second, coordcommon.DiscardLogger()), coordcommon.DiscardLogger())

	hash, err := s.BatchMarkExpired(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, hash)
	factory.AssertNotCalled(t, "Gateway", mock.Anything)
}
