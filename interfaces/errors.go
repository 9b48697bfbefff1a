package interfaces

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnsupportedNetwork is returned when no chain binding exists for the connected chain id.
	ErrUnsupportedNetwork = errors.New("unsupported network")

	// ErrIncompleteBinding is returned when a chain binding has a zero/placeholder address.
	ErrIncompleteBinding = errors.New("incomplete chain binding")

	// ErrConnectionRejected is returned when the wallet provider refuses the connection.
	ErrConnectionRejected = errors.New("wallet connection rejected")

	// ErrConnectionTimeout is returned when the wallet provider does not answer in time.
	ErrConnectionTimeout = errors.New("wallet connection timed out")

	// ErrNotConnected is returned when an operation needs a connected wallet session.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrIdentityCreationFailed is returned when the identity record is still absent
	// after a successful creation transaction.
	ErrIdentityCreationFailed = errors.New("identity creation failed")

	// ErrRoleConflict is matched by every *RoleConflictError.
	ErrRoleConflict = errors.New("role conflict")

	// ErrRegistrationInProgress is returned when a registration for the same wallet is already running.
	ErrRegistrationInProgress = errors.New("registration already in progress")

	// ErrIssuerNotRegistered is returned when a wallet without a company identity tries to deploy a policy.
	ErrIssuerNotRegistered = errors.New("issuer is not registered as a company")

	// ErrDeploymentFailed is returned when the policy contract could not be deployed.
	ErrDeploymentFailed = errors.New("policy deployment failed")

	// ErrPartialRegistration is matched by every *PartialRegistrationError.
	ErrPartialRegistration = errors.New("partial registration failure")

	// ErrInsuredIdentityNotFound is returned when the insured wallet has no identity record.
	ErrInsuredIdentityNotFound = errors.New("insured identity not found")

	// ErrTransactionFailure is matched by every *TransactionError.
	ErrTransactionFailure = errors.New("transaction failure")

	// ErrNoSigner is returned when a write is attempted without a transaction sender.
	ErrNoSigner = errors.New("no transaction signer available")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// RoleConflictError carries the role actually stored on-chain.
type RoleConflictError struct {
	Actual    Role
	Requested Role
}

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("wallet role already set to %s, cannot set %s", e.Actual, e.Requested)
}

func (e *RoleConflictError) Is(target error) bool {
	return target == ErrRoleConflict
}

// PartialRegistrationError reports a deployed policy that is not bound to both parties.
// Outcome says exactly which side is bound so only the missing step is retried.
type PartialRegistrationError struct {
	Outcome       DeploymentOutcome
	InsuredWallet common.Address
	Cause         error
}

func (e *PartialRegistrationError) Error() string {
	return fmt.Sprintf("policy %s deployed but not fully bound (issuer bound: %t, insured bound: %t): %v",
		e.Outcome.PolicyAddress.Hex(), e.Outcome.IssuerBound, e.Outcome.InsuredBound, e.Cause)
}

func (e *PartialRegistrationError) Is(target error) bool {
	return target == ErrPartialRegistration
}

func (e *PartialRegistrationError) Unwrap() error {
	return e.Cause
}

// TransactionError wraps a failed submission or receipt wait.
type TransactionError struct {
	Op     string
	TxHash common.Hash
	Cause  error
}

func (e *TransactionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("%s transaction %s failed: %v", e.Op, e.TxHash.Hex(), e.Cause)
	}
	return fmt.Sprintf("%s transaction failed: %v", e.Op, e.Cause)
}

func (e *TransactionError) Is(target error) bool {
	return target == ErrTransactionFailure
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// ErrorKind returns a stable machine-readable name for an error in the taxonomy.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedNetwork):
		return "unsupported_network"
	case errors.Is(err, ErrIncompleteBinding):
		return "incomplete_binding"
	case errors.Is(err, ErrConnectionRejected):
		return "connection_rejected"
	case errors.Is(err, ErrConnectionTimeout):
		return "connection_timeout"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrRegistrationInProgress):
		return "registration_in_progress"
	case errors.Is(err, ErrRoleConflict):
		return "role_conflict"
	case errors.Is(err, ErrIdentityCreationFailed):
		return "identity_creation_failed"
	case errors.Is(err, ErrIssuerNotRegistered):
		return "issuer_not_registered"
	case errors.Is(err, ErrDeploymentFailed):
		return "deployment_failed"
	// Partial registration is checked before its causes so callers see the retryable kind.
	case errors.Is(err, ErrPartialRegistration) && errors.Is(err, ErrInsuredIdentityNotFound):
		return "insured_identity_not_found"
	case errors.Is(err, ErrPartialRegistration):
		return "partial_registration_failure"
	case errors.Is(err, ErrInsuredIdentityNotFound):
		return "insured_identity_not_found"
	case errors.Is(err, ErrTransactionFailure):
		return "transaction_failure"
	default:
		return "internal_error"
	}
}

// UserMessage maps an error to a distinct, actionable message for the person driving the wallet.
func UserMessage(err error) string {
	var verr *ValidationError
	var rerr *RoleConflictError
	var perr *PartialRegistrationError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return fmt.Sprintf("Please correct the %s field: %s.", verr.Field, verr.Reason)
	case errors.As(err, &rerr):
		return fmt.Sprintf("This wallet is already registered as %s. Continue as %s or switch wallets.", rerr.Actual, rerr.Actual)
	case errors.Is(err, ErrIdentityCreationFailed) && errors.Is(err, ErrTransactionFailure):
		return "Creating the identity record failed because its transaction was not confirmed. Check your wallet activity, then register again."
	case errors.As(err, &perr):
		if errors.Is(err, ErrInsuredIdentityNotFound) {
			return fmt.Sprintf("Policy %s was created, but the insured wallet %s has not registered yet. Ask them to register, then retry binding.",
				perr.Outcome.PolicyAddress.Hex(), perr.InsuredWallet.Hex())
		}
		if !perr.Outcome.IssuerBound {
			return fmt.Sprintf("Policy %s was created but could not be added to your account. Retry binding; do not deploy again.",
				perr.Outcome.PolicyAddress.Hex())
		}
		return fmt.Sprintf("Policy %s was added to your account but not to the insured wallet %s. Retry binding for the insured side.",
			perr.Outcome.PolicyAddress.Hex(), perr.InsuredWallet.Hex())
	}

	switch ErrorKind(err) {
	case "unsupported_network":
		return "Your wallet is connected to a network this app does not support. Switch networks and reconnect."
	case "incomplete_binding":
		return "The contracts are not fully deployed on this network yet. Switch to a supported network."
	case "connection_rejected":
		return "The wallet connection was rejected. Approve the connection in your wallet to continue."
	case "connection_timeout":
		return "The wallet did not respond in time. Check your wallet app and try connecting again."
	case "not_connected":
		return "Connect a wallet first."
	case "registration_in_progress":
		return "A registration for this wallet is already in progress. Wait for it to finish."
	case "identity_creation_failed":
		return "The identity record was not created even though the transaction succeeded. Contact support before retrying."
	case "issuer_not_registered":
		return "Register this wallet as a company before issuing policies."
	case "deployment_failed":
		return "The policy contract could not be deployed. Nothing was created; you can try again."
	case "insured_identity_not_found":
		return "The insured wallet has not registered yet. Ask them to register first."
	case "transaction_failure":
		return "A transaction failed or was not confirmed. Check your wallet activity before retrying."
	default:
		return "Something went wrong. Please try again."
	}
}
