// Package registry provides the client side of the identity registry: resolving
// a wallet's identity record, creating it, reading and setting its role, and
// binding policies to it.
//
// Every write follows the read-before-write pattern. EnsureIdentity reads the
// registry before submitting registerAndCreateIndividualWalletInfo, and SetRole
// reads getWalletType before submitting setWalletType, so repeated calls issue
// no redundant transactions. The read is advisory only: two clients can still
// race, and the contract rejects the loser. Client decodes that rejection
// (WalletInfoAlreadyExists, WalletTypeAlreadySet) and re-reads chain state, so
// a lost race surfaces as the existing identity or as a RoleConflictError
// carrying the role the contract actually holds.
//
// # Testing support
//
// mock.go holds testify mocks for every contract interface. Ledger is an
// in-memory chain that implements the contract factory and the transaction
// sender, counts transactions per method, and can inject submission failures,
// reverted receipts and missing side effects:
//
//	ledger := registry.NewLedger()
//	conn := ledger.Connect(wallet, 31337)
//	client, _ := registry.NewClient(registry.LedgerRegistryAddress, ledger.Factory(conn), conn.Sender, executor, log)
//	identity, _ := client.EnsureIdentity(ctx, wallet)
//	ledger.TxCount("registerAndCreateIndividualWalletInfo") // 1
package registry
