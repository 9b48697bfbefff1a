package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coordcommon "github.com/ruteri/parametric-insurance-coordinator/common"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// alwaysRevertInitCode deploys runtime code PUSH1 0 PUSH1 0 REVERT.
var alwaysRevertInitCode = common.FromHex("0x6460006000fd6000526005601bf3")

func newSimulatedWallet(t *testing.T) (*simulated.Backend, *ecdsa.PrivateKey, *KeyedProvider) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	balance := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	backend := simulated.NewBackend(types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: balance},
	})
	t.Cleanup(func() { _ = backend.Close() })

	provider := NewKeyedProvider(backend.Client(), HexKey(common.Bytes2Hex(crypto.FromECDSA(key))), coordcommon.DiscardLogger())
	provider.SetPollInterval(10 * time.Millisecond)
	return backend, key, provider
}

func TestKeyedProviderConnect(t *testing.T) {
	_, key, provider := newSimulatedWallet(t)

	conn, err := provider.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), conn.Address)
	assert.Equal(t, uint64(1337), conn.ChainID)
	assert.True(t, provider.Connected())

	require.NoError(t, provider.Disconnect(context.Background()))
	assert.False(t, provider.Connected())
}

func TestKeyedProviderRejectsBadKey(t *testing.T) {
	backend := simulated.NewBackend(types.GenesisAlloc{})
	t.Cleanup(func() { _ = backend.Close() })

	provider := NewKeyedProvider(backend.Client(), HexKey("not-a-key"), coordcommon.DiscardLogger())
	_, err := provider.Connect(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrConnectionRejected)
}

func TestKeyedSenderTransferAndWait(t *testing.T) {
	backend, _, provider := newSimulatedWallet(t)
	ctx := context.Background()

	conn, err := provider.Connect(ctx)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	hash, err := conn.Sender.SendTransaction(ctx, interfaces.TxRequest{
		From:    conn.Address,
		To:      &to,
		Value:   big.NewInt(1000),
		ChainID: conn.ChainID,
	})
	require.NoError(t, err)
	backend.Commit()

	receipt, err := conn.Sender.WaitForTransaction(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	balance, err := backend.Client().BalanceAt(ctx, to, nil)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1000), balance)
}

func TestKeyedSenderDeployAndRevert(t *testing.T) {
	backend, _, provider := newSimulatedWallet(t)
	ctx := context.Background()

	conn, err := provider.Connect(ctx)
	require.NoError(t, err)

	hash, err := conn.Sender.SendTransaction(ctx, interfaces.TxRequest{Data: alwaysRevertInitCode})
	require.NoError(t, err)
	backend.Commit()

	receipt, err := conn.Sender.WaitForTransaction(ctx, hash)
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, receipt.ContractAddress)

	code, err := conn.Reader.CodeAt(ctx, receipt.ContractAddress, nil)
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x60006000fd"), code)

	target := receipt.ContractAddress
	_, err = conn.Sender.SendTransaction(ctx, interfaces.TxRequest{To: &target, Data: []byte{0x01}})
	assert.ErrorContains(t, err, "gas estimation failed")
}

func TestKeyedSenderRejectsForeignRequests(t *testing.T) {
	_, _, provider := newSimulatedWallet(t)
	ctx := context.Background()

	conn, err := provider.Connect(ctx)
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000b0")
	_, err = conn.Sender.SendTransaction(ctx, interfaces.TxRequest{From: to, To: &to})
	assert.ErrorIs(t, err, ErrWrongSender)

	_, err = conn.Sender.SendTransaction(ctx, interfaces.TxRequest{To: &to, ChainID: 1})
	assert.ErrorIs(t, err, ErrWrongChain)
}

func TestKeyedSenderWaitHonoursContext(t *testing.T) {
	_, _, provider := newSimulatedWallet(t)

	conn, err := provider.Connect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Sender.WaitForTransaction(ctx, common.HexToHash("0x1234"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	encoded := common.Bytes2Hex(crypto.FromECDSA(key))

	for _, input := range []string{encoded, "0x" + encoded, " " + encoded + "\n"} {
		parsed, err := ParsePrivateKey(input)
		require.NoError(t, err)
		assert.Equal(t, key.D, parsed.D)
	}

	_, err = ParsePrivateKey("")
	assert.Error(t, err)
	_, err = ParsePrivateKey("0xzz")
	assert.Error(t, err)
}

type fakeProvider struct {
	connect    func(ctx context.Context) (*interfaces.WalletConnection, error)
	disconnect error
}

func (p *fakeProvider) Connect(ctx context.Context) (*interfaces.WalletConnection, error) {
	return p.connect(ctx)
}

func (p *fakeProvider) Disconnect(context.Context) error {
	return p.disconnect
}

func connectedTo(address common.Address, chainID uint64) func(context.Context) (*interfaces.WalletConnection, error) {
	return func(context.Context) (*interfaces.WalletConnection, error) {
		return &interfaces.WalletConnection{Address: address, ChainID: chainID}, nil
	}
}

func TestSessionConnect(t *testing.T) {
	address := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	t.Run("success", func(t *testing.T) {
		session := NewSession(&fakeProvider{connect: connectedTo(address, 31337)}, time.Second, coordcommon.DiscardLogger())

		state, err := session.Connect(context.Background())
		require.NoError(t, err)
		assert.True(t, state.Connected)
		assert.Equal(t, address, *state.Address)
		assert.Equal(t, uint64(31337), *state.ChainID)

		conn, err := session.Connection()
		require.NoError(t, err)
		assert.Equal(t, address, conn.Address)
	})

	t.Run("timeout", func(t *testing.T) {
		session := NewSession(&fakeProvider{connect: func(ctx context.Context) (*interfaces.WalletConnection, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}, 20*time.Millisecond, coordcommon.DiscardLogger())

		_, err := session.Connect(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrConnectionTimeout)
		assert.False(t, session.State().Connected)
	})

	t.Run("provider ignores context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		session := NewSession(&fakeProvider{connect: func(context.Context) (*interfaces.WalletConnection, error) {
			<-release
			return nil, nil
		}}, 20*time.Millisecond, coordcommon.DiscardLogger())

		_, err := session.Connect(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrConnectionTimeout)
	})

	t.Run("rejected", func(t *testing.T) {
		session := NewSession(&fakeProvider{connect: func(context.Context) (*interfaces.WalletConnection, error) {
			return nil, errors.New("user denied account access")
		}}, time.Second, coordcommon.DiscardLogger())

		_, err := session.Connect(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrConnectionRejected)
	})

	t.Run("no account", func(t *testing.T) {
		session := NewSession(&fakeProvider{connect: connectedTo(common.Address{}, 1)}, time.Second, coordcommon.DiscardLogger())

		_, err := session.Connect(context.Background())
		assert.ErrorIs(t, err, interfaces.ErrConnectionRejected)
	})
}

func TestSessionDisconnectAlwaysClears(t *testing.T) {
	address := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	provider := &fakeProvider{connect: connectedTo(address, 31337), disconnect: errors.New("provider gone")}
	session := NewSession(provider, time.Second, coordcommon.DiscardLogger())

	var changes []interfaces.WalletSession
	session.OnChange(func(_, next interfaces.WalletSession) {
		changes = append(changes, next)
	})

	_, err := session.Connect(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Disconnect(context.Background()))
	assert.False(t, session.State().Connected)

	_, err = session.Connection()
	assert.ErrorIs(t, err, interfaces.ErrNotConnected)

	require.Len(t, changes, 2)
	assert.True(t, changes[0].Connected)
	assert.False(t, changes[1].Connected)
}

type fakeSender struct {
	receipt *types.Receipt
	waitErr error
}

func (s *fakeSender) SendTransaction(context.Context, interfaces.TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (s *fakeSender) WaitForTransaction(context.Context, common.Hash) (*types.Receipt, error) {
	return s.receipt, s.waitErr
}

func TestExecutorRun(t *testing.T) {
	executor := NewExecutor(time.Second, coordcommon.DiscardLogger())
	hash := common.HexToHash("0xabc")
	submit := func(context.Context) (common.Hash, error) { return hash, nil }

	t.Run("confirmed", func(t *testing.T) {
		sender := &fakeSender{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(7)}}
		receipt, err := executor.Run(context.Background(), sender, "op", submit)
		require.NoError(t, err)
		assert.Equal(t, uint64(7), receipt.BlockNumber.Uint64())
	})

	t.Run("wait failure carries hash", func(t *testing.T) {
		sender := &fakeSender{waitErr: ErrTransactionReverted}
		_, err := executor.Run(context.Background(), sender, "op", submit)

		var txErr *interfaces.TransactionError
		require.ErrorAs(t, err, &txErr)
		assert.Equal(t, hash, txErr.TxHash)
		assert.ErrorIs(t, err, ErrTransactionReverted)
		assert.ErrorIs(t, err, interfaces.ErrTransactionFailure)
	})

	t.Run("submit failure", func(t *testing.T) {
		cause := errors.New("nonce too low")
		_, err := executor.Run(context.Background(), &fakeSender{}, "op", func(context.Context) (common.Hash, error) {
			return common.Hash{}, cause
		})
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, interfaces.ErrTransactionFailure)
	})

	t.Run("no signer passes through", func(t *testing.T) {
		_, err := executor.Run(context.Background(), &fakeSender{}, "op", func(context.Context) (common.Hash, error) {
			return common.Hash{}, interfaces.ErrNoSigner
		})
		assert.ErrorIs(t, err, interfaces.ErrNoSigner)
	})
}

func TestSignerLock(t *testing.T) {
	lock := NewSignerLock()

	releaseRead, err := lock.RLock(context.Background())
	require.NoError(t, err)
	releaseRead2, err := lock.RLock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lock.Lock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	releaseRead()
	releaseRead2()

	releaseWrite, err := lock.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lock.RLock(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		release, err := lock.Lock(context.Background())
		if err == nil {
			release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the lock while the first still holds it")
	case <-time.After(20 * time.Millisecond):
	}

	releaseWrite()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}
