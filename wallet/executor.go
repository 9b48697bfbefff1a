package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/metrics"
)

// DefaultReceiptTimeout bounds each receipt wait when no timeout is configured.
const DefaultReceiptTimeout = 5 * time.Minute

// SubmitFunc submits one transaction and returns its hash.
type SubmitFunc func(ctx context.Context) (common.Hash, error)

// Executor submits a transaction and waits for its receipt.
type Executor struct {
	receiptTimeout time.Duration
	log            *slog.Logger
}

func NewExecutor(receiptTimeout time.Duration, log *slog.Logger) *Executor {
	if receiptTimeout <= 0 {
		receiptTimeout = DefaultReceiptTimeout
	}
	return &Executor{receiptTimeout: receiptTimeout, log: log}
}

// Run calls submit, then waits for the receipt through sender. Every failure
// is returned as *interfaces.TransactionError carrying op and, once known, the hash.
func (e *Executor) Run(ctx context.Context, sender interfaces.TxSender, op string, submit SubmitFunc) (*types.Receipt, error) {
	hash, err := submit(ctx)
	if err != nil {
		metrics.RecordTransaction(op, metrics.ResultFailure)
		e.log.Warn("Transaction submission failed", slog.String("op", op), "err", err)
		if errors.Is(err, interfaces.ErrNoSigner) {
			return nil, err
		}
		return nil, &interfaces.TransactionError{Op: op, Cause: err}
	}

	e.log.Info("Transaction submitted", slog.String("op", op), slog.String("txHash", hash.Hex()))

	waitCtx, cancel := context.WithTimeout(ctx, e.receiptTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := sender.WaitForTransaction(waitCtx, hash)
	metrics.RecordReceiptWait(op, time.Since(start))
	if err != nil {
		metrics.RecordTransaction(op, metrics.ResultFailure)
		e.log.Warn("Transaction not confirmed",
			slog.String("op", op),
			slog.String("txHash", hash.Hex()),
			"err", err)
		return receipt, &interfaces.TransactionError{Op: op, TxHash: hash, Cause: err}
	}

	metrics.RecordTransaction(op, metrics.ResultSuccess)
	log := e.log.With(slog.String("op", op), slog.String("txHash", hash.Hex()))
	if receipt != nil && receipt.BlockNumber != nil {
		log = log.With(slog.Uint64("block", receipt.BlockNumber.Uint64()))
	}
	log.Info("Transaction confirmed")
	return receipt, nil
}
