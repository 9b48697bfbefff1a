// Package interfaces defines core interfaces and types for the insurance
// coordinator, separating interface definitions from implementations.
//
// # Contract Interfaces
//
// IdentityRegistry: the shared registry contract mapping a wallet to its identity record.
//
// IdentityRecord: the per-wallet contract holding the wallet's role and the list of
// policies bound to it.
//
// PolicyContract, InsuranceGateway, Token: the policy read surface, the batch expiry
// call and the ERC-20 decimals read.
//
// ContractFactory builds all of the above for one chain, reader and sender.
//
// # Wallet Interfaces
//
// WalletProvider connects to an external wallet and returns a WalletConnection carrying
// the connected address, chain id, a TxSender (submit transaction, await receipt) and a
// read-only contract caller.
//
// # Storage
//
// StorageBackend stores content-addressed blobs (contract artifacts, policy terms).
//
// # Errors
//
// errors.go holds the error taxonomy shared by every component. Typed errors
// (ValidationError, RoleConflictError, PartialRegistrationError, TransactionError)
// match their sentinel with errors.Is, and UserMessage maps each kind to a distinct
// message.
package interfaces
