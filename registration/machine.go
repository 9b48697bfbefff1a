// Package registration drives a wallet through identity resolution, identity
// creation and role assignment as an explicit state machine.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
	"github.com/ruteri/parametric-insurance-coordinator/metrics"
)

// State is a registration state.
type State string

const (
	StateResolvingIdentity State = "resolving_identity"
	StateCreatingIdentity  State = "creating_identity"
	StateSettingRole       State = "setting_role"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Event drives a transition.
type Event string

const (
	EventRoleSelected    Event = "role_selected"
	EventIdentityFound   Event = "identity_found"
	EventIdentityMissing Event = "identity_missing"
	EventTxConfirmed     Event = "tx_confirmed"
	EventRoleUnchanged   Event = "role_unchanged"
	EventTxFailed        Event = "tx_failed"
)

// Transition is one recorded state change.
type Transition struct {
	From  State     `json:"from"`
	To    State     `json:"to"`
	Event Event     `json:"event"`
	At    time.Time `json:"at"`
}

var transitions = map[State]map[Event]State{
	StateResolvingIdentity: {
		EventIdentityFound:   StateSettingRole,
		EventIdentityMissing: StateCreatingIdentity,
		EventTxFailed:        StateFailed,
	},
	StateCreatingIdentity: {
		EventTxConfirmed: StateSettingRole,
		EventTxFailed:    StateFailed,
	},
	StateSettingRole: {
		EventTxConfirmed:   StateDone,
		EventRoleUnchanged: StateDone,
		EventTxFailed:      StateFailed,
	},
}

// IdentityClient is the subset of the registry client the machine drives.
type IdentityClient interface {
	GetIdentityAddress(ctx context.Context, wallet common.Address) (*common.Address, error)
	EnsureIdentity(ctx context.Context, wallet common.Address) (common.Address, error)
	SetRole(ctx context.Context, identity common.Address, role interfaces.Role) error
}

// Result is the outcome of one registration attempt.
type Result struct {
	AttemptID       string          `json:"attempt_id"`
	Wallet          common.Address  `json:"wallet"`
	Role            interfaces.Role `json:"role"`
	IdentityAddress *common.Address `json:"identity_address,omitempty"`
	State           State           `json:"state"`
	History         []Transition    `json:"history"`
	Err             error           `json:"-"`
}

// Snapshot is the observable state of an in-flight registration.
type Snapshot struct {
	AttemptID     string       `json:"attempt_id"`
	State         State        `json:"state"`
	PendingTxHash *common.Hash `json:"pending_tx_hash,omitempty"`
}

type attempt struct {
	id       string
	wallet   common.Address
	role     interfaces.Role
	identity *common.Address
	now      func() time.Time

	mu      sync.Mutex
	state   State
	pending *common.Hash
	history []Transition
	err     error
}

func (a *attempt) fire(event Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, ok := transitions[a.state][event]
	if !ok {
		panic(fmt.Sprintf("registration: no transition from %s on %s", a.state, event))
	}
	a.history = append(a.history, Transition{From: a.state, To: next, Event: event, At: a.now()})
	a.state = next
	if event == EventTxConfirmed || event == EventTxFailed {
		a.pending = nil
	}
}

func (a *attempt) fail(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
	a.fire(EventTxFailed)
}

func (a *attempt) observe(_ string, hash common.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = &hash
}

func (a *attempt) snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{AttemptID: a.id, State: a.state, PendingTxHash: a.pending}
}

func (a *attempt) result() *Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := make([]Transition, len(a.history))
	copy(history, a.history)
	return &Result{
		AttemptID:       a.id,
		Wallet:          a.wallet,
		Role:            a.role,
		IdentityAddress: a.identity,
		State:           a.state,
		History:         history,
		Err:             a.err,
	}
}

// Machine runs registrations, at most one in flight per wallet.
type Machine struct {
	client IdentityClient
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	inflight map[common.Address]*attempt
}

func NewMachine(client IdentityClient, log *slog.Logger) *Machine {
	return &Machine{
		client:   client,
		log:      log,
		now:      time.Now,
		inflight: make(map[common.Address]*attempt),
	}
}

// Register runs the registration of wallet with role to a terminal state.
// The returned Result is never nil; its Err is also returned.
func (m *Machine) Register(ctx context.Context, wallet common.Address, role interfaces.Role) (*Result, error) {
	if !role.IsConcrete() {
		return nil, interfaces.NewValidationError("role", "must be user or company, got %s", role)
	}

	a, err := m.begin(wallet, role)
	if err != nil {
		return nil, err
	}
	defer m.finish(a)

	log := m.log.With(
		slog.String("attemptId", a.id),
		slog.String("wallet", wallet.Hex()),
		slog.String("role", role.String()))
	log.Info("Registration started", slog.String("event", string(EventRoleSelected)))

	ctx = interfaces.WithTxObserver(ctx, a.observe)
	m.run(ctx, a, log)

	res := a.result()
	if res.Err != nil {
		metrics.RecordRegistration(metrics.ResultFailure)
		log.Warn("Registration failed", slog.String("kind", interfaces.ErrorKind(res.Err)), "err", res.Err)
		return res, res.Err
	}

	metrics.RecordRegistration(metrics.ResultSuccess)
	log.Info("Registration done", slog.String("identity", res.IdentityAddress.Hex()))
	return res, nil
}

func (m *Machine) run(ctx context.Context, a *attempt, log *slog.Logger) {
	for {
		switch a.snapshot().State {
		case StateResolvingIdentity:
			identity, err := m.client.GetIdentityAddress(ctx, a.wallet)
			if err != nil {
				a.fail(err)
				continue
			}
			if identity == nil {
				a.fire(EventIdentityMissing)
				continue
			}
			a.identity = identity
			a.fire(EventIdentityFound)

		case StateCreatingIdentity:
			identity, err := m.client.EnsureIdentity(ctx, a.wallet)
			if err != nil {
				if !errors.Is(err, interfaces.ErrIdentityCreationFailed) {
					err = fmt.Errorf("%w: %w", interfaces.ErrIdentityCreationFailed, err)
				}
				a.fail(err)
				continue
			}
			a.identity = &identity
			a.fire(EventTxConfirmed)

		case StateSettingRole:
			err := m.client.SetRole(ctx, *a.identity, a.role)
			if err != nil {
				a.fail(err)
				continue
			}
			// SetRole submits nothing when the role is already in place.
			if a.snapshot().PendingTxHash == nil {
				a.fire(EventRoleUnchanged)
			} else {
				a.fire(EventTxConfirmed)
			}

		default:
			return
		}
		log.Debug("Registration transition", slog.String("state", string(a.snapshot().State)))
	}
}

func (m *Machine) begin(wallet common.Address, role interfaces.Role) (*attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, busy := m.inflight[wallet]; busy {
		return nil, interfaces.ErrRegistrationInProgress
	}

	a := &attempt{
		id:     uuid.NewString(),
		wallet: wallet,
		role:   role,
		now:    m.now,
		state:  StateResolvingIdentity,
	}
	m.inflight[wallet] = a
	return a, nil
}

func (m *Machine) finish(a *attempt) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight[a.wallet] == a {
		delete(m.inflight, a.wallet)
	}
}

// Status returns the in-flight registration of wallet, if any.
func (m *Machine) Status(wallet common.Address) (Snapshot, bool) {
	m.mu.Lock()
	a, ok := m.inflight[wallet]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return a.snapshot(), true
}

// Abandon drops local tracking of wallet's in-flight registration. A submitted
// transaction is not cancelled; a later Register re-derives state from chain.
func (m *Machine) Abandon(wallet common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, wallet)
}

// Reset abandons every in-flight registration.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.inflight)
}

// IsRoleConflict extracts the on-chain role from a failed registration.
func IsRoleConflict(err error) (interfaces.Role, bool) {
	var conflict *interfaces.RoleConflictError
	if errors.As(err, &conflict) {
		return conflict.Actual, true
	}
	return interfaces.RoleNone, false
}
