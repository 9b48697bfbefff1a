package deployment

import (
	"context"
	"errors"
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
)

type memoryArchive struct {
	stored [][]byte
	err    error
}

func (a *memoryArchive) Store(_ context.Context, data []byte, _ interfaces.ContentType) (interfaces.ContentID, error) {
	if a.err != nil {
		return interfaces.ContentID{}, a.err
	}
	a.stored = append(a.stored, data)
	return interfaces.ComputeID(data), nil
}

func newOrchestrator(t *testing.T, ledger *registry.Ledger, archive TermsArchive) *Orchestrator {
	t.Helper()
	conn := ledger.Connect(issuer, 31337)
	factory := ledger.Factory(conn)
	executor := wallet.NewExecutor(time.Second, coordcommon.DiscardLogger())

	client, err := registry.NewClient(registry.LedgerRegistryAddress, factory, conn.Sender, executor, coordcommon.DiscardLogger())
	require.NoError(t, err)

	o := NewOrchestrator(issuer, factory, client, conn.Sender, executor, archive, coordcommon.DiscardLogger())
	o.Now = func() time.Time { return testNow }
	return o
}

func bindOps(ledger *registry.Ledger) []registry.LedgerTx {
	var out []registry.LedgerTx
	for _, tx := range ledger.Transactions() {
		if tx.Op == "addSmartInsuranceContract" {
			out = append(out, tx)
		}
	}
	return out
}

func TestDeployBindsBothParties(t *testing.T) {
	ledger := registry.NewLedger()
	issuerIdentity := ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	insuredIdentity := ledger.SeedIdentity(insured, interfaces.RoleUser)
	archive := &memoryArchive{}
	o := newOrchestrator(t, ledger, archive)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NoError(t, err)

	policy := res.Outcome.PolicyAddress
	assert.True(t, res.Outcome.Complete())
	assert.NotNil(t, res.DeployTxHash)
	assert.Equal(t, []common.Address{policy}, ledger.PoliciesOf(issuer))
	assert.Equal(t, []common.Address{policy}, ledger.PoliciesOf(insured))

	binds := bindOps(ledger)
	require.Len(t, binds, 2)
	assert.Equal(t, issuerIdentity, binds[0].Target)
	assert.Equal(t, insuredIdentity, binds[1].Target)
	assert.Equal(t, "deployPolicy", ledger.Transactions()[0].Op)

	require.Len(t, archive.stored, 1)
	assert.Equal(t, interfaces.ComputeID(archive.stored[0]).String(), res.TermsID)
}

func TestDeployScalesAmountsWithTokenDecimals(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	ledger.SeedIdentity(insured, interfaces.RoleUser)
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NoError(t, err)

	detail, err := ledger.Factory(ledger.Connect(issuer, 31337)).Policy(res.Outcome.PolicyAddress)
	require.NoError(t, err)
	d, err := detail.Detail(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "100000000", d.PremiumAmount.String())
	assert.Equal(t, "2500500000", d.PayoutAmount.String())
	assert.Equal(t, issuer, d.IssuerWallet)
}

func TestDeploySelfInsuredBindsOnce(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	o := newOrchestrator(t, ledger, nil)

	req := validRequest()
	req.InsuredWallet = issuer.Hex()
	res, err := o.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, interfaces.DeploymentOutcome{PolicyAddress: res.Outcome.PolicyAddress, IssuerBound: true, InsuredBound: true}, res.Outcome)
	assert.Equal(t, 1, ledger.TxCount("addSmartInsuranceContract"))
}

func TestDeployValidationBeforeNetwork(t *testing.T) {
	factory := new(registry.MockContractFactory)
	binder := new(mockBinder)
	o := NewOrchestrator(issuer, factory, binder, new(registry.MockTxSender), wallet.NewExecutor(time.Second, coordcommon.DiscardLogger()), nil, coordcommon.DiscardLogger())
	o.Now = func() time.Time { return testNow }

	req := validRequest()
	req.PremiumAmount = "0"
	_, err := o.Deploy(context.Background(), req)

	var verr *interfaces.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "premiumAmount", verr.Field)

	req = validRequest()
	req.SensorConditions = []interfaces.SensorConditionRequest{
		{Topic: "saref:Temperature", Operator: "at_least", Threshold: "35"},
		{Topic: "saref:Temperature", Operator: "at_most", Threshold: "0"},
	}
	_, err = o.Deploy(context.Background(), req)
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	factory.AssertNotCalled(t, "Token", mock.Anything)
	factory.AssertNotCalled(t, "PolicyDeployer")
	binder.AssertNotCalled(t, "GetIdentityAddress", mock.Anything, mock.Anything)
}

func TestDeployRejectsTokenPrecision(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	o := newOrchestrator(t, ledger, nil)

	req := validRequest()
	req.PremiumAmount = "1.0000001"
	_, err := o.Deploy(context.Background(), req)

	var verr *interfaces.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "premiumAmount", verr.Field)
	assert.Empty(t, ledger.Transactions())
}

func TestDeployRequiresCompanyIssuer(t *testing.T) {
	t.Run("no identity", func(t *testing.T) {
		ledger := registry.NewLedger()
		o := newOrchestrator(t, ledger, nil)
		_, err := o.Deploy(context.Background(), validRequest())
		assert.ErrorIs(t, err, interfaces.ErrIssuerNotRegistered)
		assert.Empty(t, ledger.Transactions())
	})

	t.Run("user role", func(t *testing.T) {
		ledger := registry.NewLedger()
		ledger.SeedIdentity(issuer, interfaces.RoleUser)
		o := newOrchestrator(t, ledger, nil)
		_, err := o.Deploy(context.Background(), validRequest())
		assert.ErrorIs(t, err, interfaces.ErrIssuerNotRegistered)
		assert.Empty(t, ledger.Transactions())
	})
}

func TestDeployFailureIsTerminal(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	ledger.SeedIdentity(insured, interfaces.RoleUser)
	ledger.RevertNext("deployPolicy")
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, interfaces.ErrDeploymentFailed)
	assert.Equal(t, "deployment_failed", interfaces.ErrorKind(err))
	assert.Equal(t, 0, ledger.TxCount("addSmartInsuranceContract"))
}

func TestDeployIssuerBindingFailure(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	ledger.SeedIdentity(insured, interfaces.RoleUser)
	ledger.FailNext("addSmartInsuranceContract", errors.New("nonce too low"))
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NotNil(t, res)

	var partial *interfaces.PartialRegistrationError
	require.ErrorAs(t, err, &partial)
	assert.False(t, partial.Outcome.IssuerBound)
	assert.False(t, partial.Outcome.InsuredBound)
	assert.Equal(t, res.Outcome.PolicyAddress, partial.Outcome.PolicyAddress)
	assert.Empty(t, ledger.PoliciesOf(insured))
}

func TestDeployInsuredBindingFailureThenRetry(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	insuredIdentity := ledger.SeedIdentity(insured, interfaces.RoleUser)
	ledger.PassNext("addSmartInsuranceContract")
	ledger.FailNext("addSmartInsuranceContract", errors.New("user rejected transaction"))
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NotNil(t, res)

	var partial *interfaces.PartialRegistrationError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, interfaces.DeploymentOutcome{PolicyAddress: res.Outcome.PolicyAddress, IssuerBound: true, InsuredBound: false}, partial.Outcome)
	assert.Equal(t, insured, partial.InsuredWallet)
	assert.Equal(t, "partial_registration_failure", interfaces.ErrorKind(err))

	before := len(ledger.Transactions())
	retry, err := o.RetryBinding(context.Background(), res.Outcome.PolicyAddress)
	require.NoError(t, err)
	assert.True(t, retry.Outcome.Complete())

	after := ledger.Transactions()[before:]
	require.Len(t, after, 1)
	assert.Equal(t, "addSmartInsuranceContract", after[0].Op)
	assert.Equal(t, insuredIdentity, after[0].Target)
	assert.Equal(t, 1, ledger.TxCount("deployPolicy"))
}

func TestDeployInsuredNotRegistered(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NotNil(t, res)
	assert.ErrorIs(t, err, interfaces.ErrInsuredIdentityNotFound)
	assert.ErrorIs(t, err, interfaces.ErrPartialRegistration)
	assert.True(t, res.Outcome.IssuerBound)
	assert.False(t, res.Outcome.InsuredBound)
	assert.Equal(t, 0, ledger.TxCount("registerAndCreateIndividualWalletInfo"))

	ledger.SeedIdentity(insured, interfaces.RoleUser)
	retry, err := o.RetryBinding(context.Background(), res.Outcome.PolicyAddress)
	require.NoError(t, err)
	assert.True(t, retry.Outcome.Complete())
	assert.Equal(t, 2, ledger.TxCount("addSmartInsuranceContract"))
}

func TestRetryBindingCompleteIsNoop(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	ledger.SeedIdentity(insured, interfaces.RoleUser)
	o := newOrchestrator(t, ledger, nil)

	res, err := o.Deploy(context.Background(), validRequest())
	require.NoError(t, err)

	before := len(ledger.Transactions())
	retry, err := o.RetryBinding(context.Background(), res.Outcome.PolicyAddress)
	require.NoError(t, err)
	assert.True(t, retry.Outcome.Complete())
	assert.Len(t, ledger.Transactions(), before)
}

func TestRetryBindingRejectsUnknownPolicy(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	o := newOrchestrator(t, ledger, nil)

	_, err := o.RetryBinding(context.Background(), common.HexToAddress("0x00000000000000000000000000000000000000ff"))
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestArchiveFailureIsNotFatal(t *testing.T) {
	ledger := registry.NewLedger()
	ledger.SeedIdentity(issuer, interfaces.RoleCompany)
	ledger.SeedIdentity(insured, interfaces.RoleUser)
	o := newOrchestrator(t, ledger, &memoryArchive{err: errors.New("bucket unavailable")})

	res, err := o.Deploy(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Empty(t, res.TermsID)
	assert.True(t, res.Outcome.Complete())
}

type mockBinder struct {
	mock.Mock
}

func (m *mockBinder) GetIdentityAddress(ctx context.Context, wallet common.Address) (*common.Address, error) {
	args := m.Called(ctx, wallet)
	addr, _ := args.Get(0).(*common.Address)
	return addr, args.Error(1)
}

func (m *mockBinder) GetRole(ctx context.Context, identity common.Address) (interfaces.Role, error) {
	args := m.Called(ctx, identity)
	return args.Get(0).(interfaces.Role), args.Error(1)
}

func (m *mockBinder) AddPolicy(ctx context.Context, identity, policy common.Address) error {
	return m.Called(ctx, identity, policy).Error(0)
}

func (m *mockBinder) HasPolicy(ctx context.Context, identity, policy common.Address) (bool, error) {
	args := m.Called(ctx, identity, policy)
	return args.Bool(0), args.Error(1)
}
