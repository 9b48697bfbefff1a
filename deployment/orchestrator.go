// Package deployment validates policy requests, deploys policy contracts and
// binds them to the issuer's and the insured's identity records.
package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/metrics"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

// Binder is the subset of the registry client used for binding.
type Binder interface {
	GetIdentityAddress(ctx context.Context, wallet common.Address) (*common.Address, error)
	GetRole(ctx context.Context, identity common.Address) (interfaces.Role, error)
	AddPolicy(ctx context.Context, identity, policy common.Address) error
	HasPolicy(ctx context.Context, identity, policy common.Address) (bool, error)
}

// TermsArchive stores the canonical policy terms document.
type TermsArchive interface {
	Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error)
}

// Result describes a deployment or bind retry.
type Result struct {
	AttemptID    string                       `json:"attempt_id"`
	Outcome      interfaces.DeploymentOutcome `json:"outcome"`
	DeployTxHash *common.Hash                 `json:"deploy_tx_hash,omitempty"`
	TermsID      string                       `json:"terms_id,omitempty"`
}

// Orchestrator runs the deploy-and-bind protocol for the connected issuer.
// Deploy and RetryBinding never overlap. Callers that share the wallet with
// other writers also hold its wallet.SignerLock.
type Orchestrator struct {
	issuer   common.Address
	factory  interfaces.ContractFactory
	binder   Binder
	sender   interfaces.TxSender
	executor *wallet.Executor
	archive  TermsArchive
	log      *slog.Logger

	// Now is the clock used for expiration validation.
	Now func() time.Time

	mu sync.Mutex
}

// NewOrchestrator creates an orchestrator for issuer. archive may be nil.
func NewOrchestrator(issuer common.Address, factory interfaces.ContractFactory, binder Binder, sender interfaces.TxSender, executor *wallet.Executor, archive TermsArchive, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		issuer:   issuer,
		factory:  factory,
		binder:   binder,
		sender:   sender,
		executor: executor,
		archive:  archive,
		log:      log.With(slog.String("issuer", issuer.Hex())),
		Now:      time.Now,
	}
}

// Deploy validates req, deploys the policy and binds it to both parties.
// A non-nil Result is returned whenever a policy was deployed, including with
// a *interfaces.PartialRegistrationError.
func (o *Orchestrator) Deploy(ctx context.Context, req *interfaces.PolicyRequest) (*Result, error) {
	validated, err := Validate(req, o.Now())
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	res := &Result{AttemptID: uuid.NewString()}
	log := o.log.With(slog.String("attemptId", res.AttemptID))

	params, err := o.prepare(ctx, validated)
	if err != nil {
		return nil, err
	}

	issuerIdentity, err := o.issuerIdentity(ctx)
	if err != nil {
		return nil, err
	}

	res.TermsID = o.archiveTerms(ctx, params, log)

	deployer, err := o.factory.PolicyDeployer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrDeploymentFailed, err)
	}

	receipt, err := o.executor.Run(ctx, o.sender, "deployPolicy", func(ctx context.Context) (common.Hash, error) {
		return deployer.DeployPolicy(ctx, params)
	})
	if err != nil {
		metrics.RecordDeployment(metrics.ResultFailure)
		return nil, fmt.Errorf("%w: %w", interfaces.ErrDeploymentFailed, err)
	}
	if interfaces.IsZeroAddress(receipt.ContractAddress) {
		metrics.RecordDeployment(metrics.ResultFailure)
		return nil, fmt.Errorf("%w: receipt has no contract address", interfaces.ErrDeploymentFailed)
	}

	txHash := receipt.TxHash
	res.DeployTxHash = &txHash
	res.Outcome.PolicyAddress = receipt.ContractAddress
	log = log.With(slog.String("policy", res.Outcome.PolicyAddress.Hex()))
	log.Info("Policy deployed")

	if err := o.bind(ctx, &res.Outcome, *issuerIdentity, params.InsuredWallet, log); err != nil {
		metrics.RecordDeployment(metrics.ResultPartial)
		return res, err
	}

	metrics.RecordDeployment(metrics.ResultSuccess)
	log.Info("Policy bound to both parties")
	return res, nil
}

// RetryBinding completes the binding of an already deployed policy. Which
// sides are bound is re-read from chain, so only missing steps are submitted
// and nothing is redeployed.
func (o *Orchestrator) RetryBinding(ctx context.Context, policy common.Address) (*Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	res := &Result{AttemptID: uuid.NewString(), Outcome: interfaces.DeploymentOutcome{PolicyAddress: policy}}
	log := o.log.With(slog.String("attemptId", res.AttemptID), slog.String("policy", policy.Hex()))

	handle, err := o.factory.Policy(policy)
	if err != nil {
		return nil, err
	}
	deployed, err := handle.Deployed(ctx)
	if err != nil {
		return nil, err
	}
	if !deployed {
		return nil, interfaces.NewValidationError("policyAddress", "no policy deployed at %s", policy.Hex())
	}
	detail, err := handle.Detail(ctx)
	if err != nil {
		return nil, err
	}
	if detail.IssuerWallet != o.issuer {
		return nil, interfaces.NewValidationError("policyAddress", "policy was not issued by %s", o.issuer.Hex())
	}

	issuerIdentity, err := o.issuerIdentity(ctx)
	if err != nil {
		return nil, err
	}

	res.Outcome.IssuerBound, err = o.binder.HasPolicy(ctx, *issuerIdentity, policy)
	if err != nil {
		return nil, err
	}
	if detail.InsuredWallet == o.issuer {
		res.Outcome.InsuredBound = res.Outcome.IssuerBound
	} else if insuredIdentity, err := o.binder.GetIdentityAddress(ctx, detail.InsuredWallet); err != nil {
		return nil, err
	} else if insuredIdentity != nil {
		if res.Outcome.InsuredBound, err = o.binder.HasPolicy(ctx, *insuredIdentity, policy); err != nil {
			return nil, err
		}
	}

	log.Info("Retrying policy binding",
		slog.Bool("issuerBound", res.Outcome.IssuerBound),
		slog.Bool("insuredBound", res.Outcome.InsuredBound))

	if err := o.bind(ctx, &res.Outcome, *issuerIdentity, detail.InsuredWallet, log); err != nil {
		return res, err
	}
	return res, nil
}

// bind runs the missing binding steps in order: issuer first, then insured,
// each confirmed before the next is submitted.
func (o *Orchestrator) bind(ctx context.Context, outcome *interfaces.DeploymentOutcome, issuerIdentity, insured common.Address, log *slog.Logger) error {
	partial := func(cause error) error {
		log.Warn("Policy binding incomplete",
			slog.Bool("issuerBound", outcome.IssuerBound),
			slog.Bool("insuredBound", outcome.InsuredBound),
			"err", cause)
		return &interfaces.PartialRegistrationError{Outcome: *outcome, InsuredWallet: insured, Cause: cause}
	}

	if !outcome.IssuerBound {
		if err := o.binder.AddPolicy(ctx, issuerIdentity, outcome.PolicyAddress); err != nil {
			return partial(err)
		}
		outcome.IssuerBound = true
	}

	if insured == o.issuer {
		outcome.InsuredBound = true
		return nil
	}
	if outcome.InsuredBound {
		return nil
	}

	insuredIdentity, err := o.binder.GetIdentityAddress(ctx, insured)
	if err != nil {
		return partial(err)
	}
	if insuredIdentity == nil {
		return partial(interfaces.ErrInsuredIdentityNotFound)
	}

	if err := o.binder.AddPolicy(ctx, *insuredIdentity, outcome.PolicyAddress); err != nil {
		return partial(err)
	}
	outcome.InsuredBound = true
	return nil
}

// prepare reads the token's decimals and scales the amounts.
func (o *Orchestrator) prepare(ctx context.Context, v *Validated) (*interfaces.PolicyParams, error) {
	token, err := o.factory.Token(v.TokenAddress)
	if err != nil {
		return nil, err
	}
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read decimals of token %s: %w", v.TokenAddress.Hex(), err)
	}
	return v.Params(o.issuer, decimals)
}

func (o *Orchestrator) issuerIdentity(ctx context.Context) (*common.Address, error) {
	identity, err := o.binder.GetIdentityAddress(ctx, o.issuer)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, interfaces.ErrIssuerNotRegistered
	}
	role, err := o.binder.GetRole(ctx, *identity)
	if err != nil {
		return nil, err
	}
	if role != interfaces.RoleCompany {
		return nil, fmt.Errorf("%w: wallet role is %s", interfaces.ErrIssuerNotRegistered, role)
	}
	return identity, nil
}

// Terms is the archived description of a policy.
type Terms struct {
	IssuerWallet        common.Address               `json:"issuer_wallet"`
	InsuredWallet       common.Address               `json:"insured_wallet"`
	TokenAddress        common.Address               `json:"token_address"`
	PremiumAmount       string                       `json:"premium_amount"`
	PayoutAmount        string                       `json:"payout_amount"`
	ExpirationTimestamp int64                        `json:"expiration_timestamp"`
	Geofence            interfaces.Geofence          `json:"geofence"`
	SensorConditions    []interfaces.SensorCondition `json:"sensor_conditions"`
}

func termsOf(params *interfaces.PolicyParams) Terms {
	return Terms{
		IssuerWallet:        params.IssuerWallet,
		InsuredWallet:       params.InsuredWallet,
		TokenAddress:        params.TokenAddress,
		PremiumAmount:       params.PremiumScaled.String(),
		PayoutAmount:        params.PayoutScaled.String(),
		ExpirationTimestamp: params.Expiration.Unix(),
		Geofence:            params.Geofence,
		SensorConditions:    params.SensorConditions,
	}
}

// archiveTerms stores the terms document. Failure is logged and ignored.
func (o *Orchestrator) archiveTerms(ctx context.Context, params *interfaces.PolicyParams, log *slog.Logger) string {
	if o.archive == nil {
		return ""
	}

	data, err := json.Marshal(termsOf(params))
	if err == nil {
		var id interfaces.ContentID
		id, err = o.archive.Store(ctx, data, interfaces.TermsType)
		if err == nil {
			log.Info("Policy terms archived", slog.String("termsId", id.String()))
			return id.String()
		}
	}

	if errors.Is(err, context.Canceled) {
		log.Debug("Policy terms archive cancelled")
	} else {
		log.Warn("Could not archive policy terms", "err", err)
	}
	return ""
}
