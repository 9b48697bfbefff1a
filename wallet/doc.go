/*
Package wallet implements the wallet session and the transaction transport used
by every on-chain write.

A Session wraps an interfaces.WalletProvider. Connect suspends until the provider
returns an address and chain id, or fails with ErrConnectionRejected or
ErrConnectionTimeout. Disconnect always clears local state, even when the
provider's own disconnect fails, and notifies change listeners so that dependent
handles can be dropped.

KeyedProvider is a provider backed by a local ECDSA key and an Ethereum JSON-RPC
backend (ethclient or the simulated backend in tests). Its KeyedSender signs
EIP-1559 transactions under a mutex so that no two submissions from this process
race for a nonce. Keys come from a hex string, a key file, or a Vault KV v2 secret.

Executor is the single path through which writes are submitted and confirmed:

	receipt, err := executor.Run(ctx, conn.Sender, "setWalletType", func(ctx context.Context) (common.Hash, error) {
		return record.SetWalletType(ctx, interfaces.RoleUser)
	})

It logs the transaction hash, bounds the receipt wait with a timeout, records
Prometheus metrics, and wraps failures as *interfaces.TransactionError.
*/
package wallet
