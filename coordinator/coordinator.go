// Package coordinator owns the wallet session and every handle derived from it.
//
// All contract handles, the registry client, the registration state machine,
// the deployment orchestrator and the query service are built from the pair
// (chain id, wallet address) of the live connection. When that pair changes,
// including on disconnect or a network switch, the whole set is dropped and
// rebuilt on next use. Nothing is mutated piecemeal, so no handle bound to a
// previous chain or wallet can be reached after a change.
//
// Every operation that signs holds the session's signer lock exclusively until
// its last receipt, so no two orchestrations submit from the wallet at once.
// Chain reads share the lock and wait while a write is unconfirmed.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ruteri/parametric-insurance-coordinator/chainbinding"
	"github.com/ruteri/parametric-insurance-coordinator/deployment"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/policyquery"
	"github.com/ruteri/parametric-insurance-coordinator/registration"
	"github.com/ruteri/parametric-insurance-coordinator/registry"
	"github.com/ruteri/parametric-insurance-coordinator/wallet"
)

// FactoryFunc creates the contract factory for a connection.
type FactoryFunc func(conn *interfaces.WalletConnection) interfaces.ContractFactory

// Config wires a Coordinator.
type Config struct {
	Resolver       *chainbinding.Resolver
	Session        *wallet.Session
	NewFactory     FactoryFunc
	Archive        deployment.TermsArchive
	ReceiptTimeout time.Duration
	Log            *slog.Logger
}

// SessionInfo is the connection state plus the resolved chain binding.
type SessionInfo struct {
	interfaces.WalletSession
	Binding *interfaces.ChainBinding `json:"binding,omitempty"`
}

type sessionKey struct {
	chainID uint64
	wallet  common.Address
}

type handles struct {
	key          sessionKey
	binding      *interfaces.ChainBinding
	conn         *interfaces.WalletConnection
	signer       *wallet.SignerLock
	registry     *registry.Client
	registration *registration.Machine
	deployment   *deployment.Orchestrator
	query        *policyquery.Service
}

// Coordinator is the single owner of session-scoped state.
type Coordinator struct {
	resolver   *chainbinding.Resolver
	session    *wallet.Session
	newFactory FactoryFunc
	archive    deployment.TermsArchive
	executor   *wallet.Executor
	log        *slog.Logger

	mu      sync.Mutex
	current *handles
}

func New(cfg Config) *Coordinator {
	c := &Coordinator{
		resolver:   cfg.Resolver,
		session:    cfg.Session,
		newFactory: cfg.NewFactory,
		archive:    cfg.Archive,
		executor:   wallet.NewExecutor(cfg.ReceiptTimeout, cfg.Log),
		log:        cfg.Log,
	}
	cfg.Session.OnChange(c.onSessionChange)
	return c
}

// Connect connects the wallet and resolves the chain binding. A chain without
// a complete binding disconnects the wallet again and returns the resolver error.
func (c *Coordinator) Connect(ctx context.Context) (*SessionInfo, error) {
	state, err := c.session.Connect(ctx)
	if err != nil {
		return nil, err
	}

	h, err := c.handles()
	if err != nil {
		c.log.Warn("Connected wallet is on an unsupported network, disconnecting",
			slog.Uint64("chainId", *state.ChainID), "err", err)
		_ = c.session.Disconnect(ctx)
		return nil, err
	}

	return &SessionInfo{WalletSession: state, Binding: h.binding}, nil
}

// Disconnect clears the wallet session and every derived handle.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	return c.session.Disconnect(ctx)
}

// State returns the session and its binding, if connected.
func (c *Coordinator) State() *SessionInfo {
	info := &SessionInfo{WalletSession: c.session.State()}
	if !info.Connected {
		return info
	}
	if h, err := c.handles(); err == nil {
		info.Binding = h.binding
	}
	return info
}

func (c *Coordinator) onSessionChange(prev, next interfaces.WalletSession) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}
	if next.Connected && c.current.key == (sessionKey{chainID: *next.ChainID, wallet: *next.Address}) {
		return
	}

	// Abandon local tracking only: submitted transactions are not cancelled.
	c.current.registration.Reset()
	c.current = nil
	c.log.Debug("Session changed, dropped derived handles")
}

func (c *Coordinator) handles() (*handles, error) {
	conn, err := c.session.Connection()
	if err != nil {
		return nil, err
	}
	key := sessionKey{chainID: conn.ChainID, wallet: conn.Address}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil && c.current.key == key {
		return c.current, nil
	}

	binding, err := c.resolver.Resolve(conn.ChainID)
	if err != nil {
		return nil, err
	}

	log := c.log.With(slog.Uint64("chainId", conn.ChainID), slog.String("wallet", conn.Address.Hex()))
	factory := c.newFactory(conn)

	regClient, err := registry.NewClient(binding.RegistryAddress, factory, conn.Sender, c.executor, log)
	if err != nil {
		return nil, err
	}

	c.current = &handles{
		key:          key,
		binding:      binding,
		conn:         conn,
		signer:       wallet.NewSignerLock(),
		registry:     regClient,
		registration: registration.NewMachine(regClient, log),
		deployment:   deployment.NewOrchestrator(conn.Address, factory, regClient, conn.Sender, c.executor, c.archive, log),
		query:        policyquery.NewService(factory, regClient, binding.InsuranceGatewayAddress, conn.Sender, c.executor, log),
	}
	return c.current, nil
}

// acquire returns the current handles with their signer lock held. If the
// session changed while waiting, the stale lock is released and the new
// session's lock is taken instead.
func (c *Coordinator) acquire(ctx context.Context, exclusive bool) (*handles, func(), error) {
	for {
		h, err := c.handles()
		if err != nil {
			return nil, nil, err
		}

		lock := h.signer.RLock
		if exclusive {
			lock = h.signer.Lock
		}
		release, err := lock(ctx)
		if err != nil {
			return nil, nil, err
		}

		c.mu.Lock()
		current := c.current == h
		c.mu.Unlock()
		if current {
			return h, release, nil
		}
		release()
	}
}

// Identity returns the connected wallet's identity record and role.
func (c *Coordinator) Identity(ctx context.Context) (*interfaces.WalletIdentity, error) {
	h, release, err := c.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.registry.Identity(ctx, h.conn.Address)
}

// Register registers the connected wallet with role.
func (c *Coordinator) Register(ctx context.Context, role interfaces.Role) (*registration.Result, error) {
	h, err := c.handles()
	if err != nil {
		return nil, err
	}
	if _, running := h.registration.Status(h.conn.Address); running {
		return nil, interfaces.ErrRegistrationInProgress
	}

	h, release, err := c.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.registration.Register(ctx, h.conn.Address, role)
}

// RegistrationStatus returns the connected wallet's in-flight registration, if any.
func (c *Coordinator) RegistrationStatus() (registration.Snapshot, bool) {
	h, err := c.handles()
	if err != nil {
		return registration.Snapshot{}, false
	}
	return h.registration.Status(h.conn.Address)
}

// AbandonRegistration stops tracking the connected wallet's registration.
func (c *Coordinator) AbandonRegistration() error {
	h, err := c.handles()
	if err != nil {
		return err
	}
	h.registration.Abandon(h.conn.Address)
	return nil
}

// DeployPolicy deploys and binds a policy issued by the connected wallet.
// An empty token address defaults to the chain binding's token.
func (c *Coordinator) DeployPolicy(ctx context.Context, req *interfaces.PolicyRequest) (*deployment.Result, error) {
	h, release, err := c.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	if req != nil && strings.TrimSpace(req.TokenAddress) == "" {
		withToken := *req
		withToken.TokenAddress = h.binding.TokenAddress.Hex()
		req = &withToken
	}
	return h.deployment.Deploy(ctx, req)
}

// RetryBinding completes the binding of a policy issued by the connected wallet.
func (c *Coordinator) RetryBinding(ctx context.Context, policy common.Address) (*deployment.Result, error) {
	h, release, err := c.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.deployment.RetryBinding(ctx, policy)
}

// ListPolicies lists the connected wallet's policies.
func (c *Coordinator) ListPolicies(ctx context.Context, filter interfaces.PolicyFilter) ([]common.Address, error) {
	h, release, err := c.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.query.ListPolicies(ctx, h.conn.Address, filter)
}

// GetPolicyDetail reads one policy; nil when nothing is deployed at address.
func (c *Coordinator) GetPolicyDetail(ctx context.Context, address common.Address) (*interfaces.PolicyDetail, error) {
	h, release, err := c.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.query.GetPolicyDetail(ctx, address)
}

// Partition groups the connected wallet's policies by status.
func (c *Coordinator) Partition(ctx context.Context) (*policyquery.Partition, error) {
	h, release, err := c.acquire(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.query.Partition(ctx, h.conn.Address)
}

// UpdateExpired submits the expiry transition for the connected wallet's open policies.
func (c *Coordinator) UpdateExpired(ctx context.Context) (*policyquery.UpdateResult, error) {
	h, release, err := c.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.query.UpdateExpired(ctx, h.conn.Address)
}

// BatchMarkExpired submits the expiry transition for explicit addresses.
func (c *Coordinator) BatchMarkExpired(ctx context.Context, addresses []common.Address) (*common.Hash, error) {
	h, release, err := c.acquire(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return h.query.BatchMarkExpired(ctx, addresses)
}

// Ready reports whether a wallet is connected on a supported chain.
func (c *Coordinator) Ready() bool {
	_, err := c.handles()
	return err == nil
}

// IsSessionError reports whether err means the session is missing or unusable.
func IsSessionError(err error) bool {
	return errors.Is(err, interfaces.ErrNotConnected) ||
		errors.Is(err, interfaces.ErrUnsupportedNetwork) ||
		errors.Is(err, interfaces.ErrIncompleteBinding)
}
