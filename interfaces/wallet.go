package interfaces

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest is what the wallet transport needs to build and sign a transaction.
// A nil To creates a contract.
type TxRequest struct {
	From    common.Address
	To      *common.Address
	Data    []byte
	Value   *big.Int
	ChainID uint64
}

// TxSender is the wallet's signing capability: submit a transaction and await its receipt.
type TxSender interface {
	// SendTransaction signs and submits req, returning the transaction hash.
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)

	// WaitForTransaction blocks until the transaction is mined. It returns an error
	// if the transaction reverted or ctx is done first.
	WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// WalletConnection is what a wallet provider hands back on a successful connect.
type WalletConnection struct {
	Address common.Address
	ChainID uint64
	Sender  TxSender
	Reader  bind.ContractCaller
}

// WalletProvider is the external wallet (browser extension, WalletConnect, local key).
type WalletProvider interface {
	Connect(ctx context.Context) (*WalletConnection, error)
	Disconnect(ctx context.Context) error
}

type txObserverKey struct{}

// TxObserver is notified of every transaction hash submitted under a context.
type TxObserver func(op string, hash common.Hash)

// WithTxObserver returns a context whose submitted transactions are reported to fn.
func WithTxObserver(ctx context.Context, fn TxObserver) context.Context {
	return context.WithValue(ctx, txObserverKey{}, fn)
}

// NotifyTxSubmitted reports a submitted transaction to the observer in ctx, if any.
func NotifyTxSubmitted(ctx context.Context, op string, hash common.Hash) {
	if fn, ok := ctx.Value(txObserverKey{}).(TxObserver); ok && fn != nil {
		fn(op, hash)
	}
}
