package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

var (
	// ErrTransactionReverted is returned by WaitForTransaction for a mined transaction with failed status.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrWrongSender is returned when a request names a sender other than the wallet's own address.
	ErrWrongSender = errors.New("transaction sender does not match wallet")

	// ErrWrongChain is returned when a request targets a chain other than the wallet's.
	ErrWrongChain = errors.New("transaction chain id does not match wallet")
)

const defaultPollInterval = time.Second

// KeyedSender signs and submits transactions with a local key.
// Submissions are serialized so nonces are assigned in order.
type KeyedSender struct {
	backend      Backend
	key          *ecdsa.PrivateKey
	address      common.Address
	chainID      *big.Int
	pollInterval time.Duration
	log          *slog.Logger

	mu sync.Mutex
}

func NewKeyedSender(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, log *slog.Logger) *KeyedSender {
	return &KeyedSender{
		backend:      backend,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		chainID:      new(big.Int).Set(chainID),
		pollInterval: defaultPollInterval,
		log:          log,
	}
}

// SetPollInterval changes how often WaitForTransaction polls for a receipt.
func (s *KeyedSender) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

func (s *KeyedSender) Address() common.Address {
	return s.address
}

func (s *KeyedSender) SendTransaction(ctx context.Context, req interfaces.TxRequest) (common.Hash, error) {
	if req.From != (common.Address{}) && req.From != s.address {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrWrongSender, req.From.Hex())
	}
	if req.ChainID != 0 && req.ChainID != s.chainID.Uint64() {
		return common.Hash{}, fmt.Errorf("%w: %d", ErrWrongChain, req.ChainID)
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not get nonce: %w", err)
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.address,
		To:    req.To,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas estimation failed: %w", err)
	}
	gas += gas / 5

	tx, err := s.buildTx(ctx, nonce, gas, req.To, value, req.Data)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("could not sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("could not send transaction: %w", err)
	}

	s.log.Debug("Transaction submitted",
		slog.String("txHash", signed.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gas))
	return signed.Hash(), nil
}

func (s *KeyedSender) buildTx(ctx context.Context, nonce, gas uint64, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	head, err := s.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not get latest header: %w", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := s.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not get gas price: %w", err)
		}
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       to,
			Value:    value,
			Data:     data,
		}), nil
	}

	tip, err := s.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get gas tip: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      data,
	}), nil
}

// WaitForTransaction polls for the receipt until it is found or ctx is done.
func (s *KeyedSender) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("%w: %s", ErrTransactionReverted, hash.Hex())
			}
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			return nil, fmt.Errorf("could not get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ interfaces.TxSender = (*KeyedSender)(nil)
