package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/ruteri/parametric-insurance-coordinator/contracts"
	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// Ledger contract addresses match the local development chain binding.
var (
	LedgerRegistryAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	LedgerTokenAddress    = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	LedgerGatewayAddress  = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
)

var errLedgerReverted = errors.New("transaction reverted")

// LedgerTx is one transaction accepted by the ledger.
type LedgerTx struct {
	Op       string
	From     common.Address
	Target   common.Address
	Hash     common.Hash
	Reverted bool
}

type ledgerRecord struct {
	owner    common.Address
	role     interfaces.Role
	policies []common.Address
}

type ledgerFault struct {
	submitErr  error
	revert     bool
	dropEffect bool
}

// Ledger is an in-memory stand-in for the registry, identity-record, policy,
// gateway and token contracts. Transactions are mined as soon as they are
// submitted; WaitForTransaction returns their receipts.
type Ledger struct {
	mu sync.Mutex

	identities map[common.Address]common.Address
	records    map[common.Address]*ledgerRecord
	policies   map[common.Address]*interfaces.PolicyDetail
	decimals   map[common.Address]uint8
	receipts   map[common.Hash]*types.Receipt
	faults     map[string][]ledgerFault
	txs        []LedgerTx
	nonce      uint64

	// Now is the ledger's block time, used by markExpiredPolicies.
	Now func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		identities: make(map[common.Address]common.Address),
		records:    make(map[common.Address]*ledgerRecord),
		policies:   make(map[common.Address]*interfaces.PolicyDetail),
		decimals:   make(map[common.Address]uint8),
		receipts:   make(map[common.Hash]*types.Receipt),
		faults:     make(map[string][]ledgerFault),
		Now:        time.Now,
	}
}

// Connect returns a wallet connection whose sender submits to the ledger.
func (l *Ledger) Connect(wallet common.Address, chainID uint64) *interfaces.WalletConnection {
	return &interfaces.WalletConnection{
		Address: wallet,
		ChainID: chainID,
		Sender:  &ledgerSender{ledger: l},
	}
}

// Provider returns a wallet provider that connects wallet on chainID.
func (l *Ledger) Provider(wallet common.Address, chainID uint64) *LedgerProvider {
	return &LedgerProvider{ledger: l, wallet: wallet, chainID: chainID}
}

// Factory returns a contract factory acting as the connection's wallet.
func (l *Ledger) Factory(conn *interfaces.WalletConnection) interfaces.ContractFactory {
	return &ledgerFactory{ledger: l, from: conn.Address}
}

// PassNext lets the next submission of op through unchanged. It queues ahead
// of later faults, e.g. PassNext then FailNext fails the second submission.
func (l *Ledger) PassNext(op string) {
	l.addFault(op, ledgerFault{})
}

// FailNext makes the next submission of op fail with err before anything is mined.
func (l *Ledger) FailNext(op string, err error) {
	l.addFault(op, ledgerFault{submitErr: err})
}

// RevertNext makes the next submission of op mine with a failed receipt.
func (l *Ledger) RevertNext(op string) {
	l.addFault(op, ledgerFault{revert: true})
}

// DropEffectNext makes the next submission of op succeed without changing state.
func (l *Ledger) DropEffectNext(op string) {
	l.addFault(op, ledgerFault{dropEffect: true})
}

func (l *Ledger) addFault(op string, f ledgerFault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[op] = append(l.faults[op], f)
}

// SetTokenDecimals overrides the decimals reported for a token (default 6).
func (l *Ledger) SetTokenDecimals(token common.Address, decimals uint8) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.decimals[token] = decimals
}

// SeedIdentity creates an identity record for wallet with role, without a transaction.
func (l *Ledger) SeedIdentity(wallet common.Address, role interfaces.Role) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	addr := l.createIdentity(wallet)
	l.records[addr].role = role
	return addr
}

// SeedPolicy stores a deployed policy without a transaction.
func (l *Ledger) SeedPolicy(detail interfaces.PolicyDetail) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	if interfaces.IsZeroAddress(detail.Address) {
		detail.Address = l.nextAddress()
	}
	l.policies[detail.Address] = &detail
	return detail.Address
}

// BindSeeded appends policy to wallet's identity record without a transaction.
func (l *Ledger) BindSeeded(wallet, policy common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[l.identities[wallet]]; ok {
		rec.policies = append(rec.policies, policy)
	}
}

// IdentityOf returns wallet's identity record, or the zero address.
func (l *Ledger) IdentityOf(wallet common.Address) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.identities[wallet]
}

// RoleOf returns the role stored for wallet.
func (l *Ledger) RoleOf(wallet common.Address) interfaces.Role {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[l.identities[wallet]]; ok {
		return rec.role
	}
	return interfaces.RoleNone
}

// PoliciesOf returns the policies bound to wallet's identity record.
func (l *Ledger) PoliciesOf(wallet common.Address) []common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[l.identities[wallet]]; ok {
		return slices.Clone(rec.policies)
	}
	return nil
}

// PolicyStatus returns the status of a deployed policy.
func (l *Ledger) PolicyStatus(policy common.Address) (interfaces.PolicyStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	detail, ok := l.policies[policy]
	if !ok {
		return 0, false
	}
	return detail.Status, true
}

// Transactions returns every accepted transaction in submission order.
func (l *Ledger) Transactions() []LedgerTx {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.txs)
}

// TxCount counts accepted transactions for op, reverted ones included.
func (l *Ledger) TxCount(op string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, tx := range l.txs {
		if tx.Op == op {
			n++
		}
	}
	return n
}

func (l *Ledger) nextAddress() common.Address {
	l.nonce++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], l.nonce)
	return common.BytesToAddress(crypto.Keccak256(seed[:]))
}

func (l *Ledger) createIdentity(wallet common.Address) common.Address {
	addr := l.nextAddress()
	l.identities[wallet] = addr
	l.records[addr] = &ledgerRecord{owner: wallet}
	return addr
}

// submit mines one transaction. apply runs under the ledger lock and returns
// the created contract address, if any; an error from apply is a revert at
// estimation time and mines nothing.
func (l *Ledger) submit(op string, from, target common.Address, apply func() (common.Address, error)) (common.Hash, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var fault ledgerFault
	if queued := l.faults[op]; len(queued) > 0 {
		fault = queued[0]
		l.faults[op] = queued[1:]
	}
	if fault.submitErr != nil {
		return common.Hash{}, fault.submitErr
	}

	var created common.Address
	if !fault.revert && !fault.dropEffect {
		var err error
		if created, err = apply(); err != nil {
			return common.Hash{}, err
		}
	}

	l.nonce++
	hash := crypto.Keccak256Hash([]byte(op), from.Bytes(), new(big.Int).SetUint64(l.nonce).Bytes())

	status := types.ReceiptStatusSuccessful
	if fault.revert {
		status = types.ReceiptStatusFailed
	}
	l.receipts[hash] = &types.Receipt{
		Status:          status,
		TxHash:          hash,
		ContractAddress: created,
		BlockNumber:     new(big.Int).SetUint64(uint64(len(l.txs) + 1)),
	}
	l.txs = append(l.txs, LedgerTx{Op: op, From: from, Target: target, Hash: hash, Reverted: fault.revert})
	return hash, nil
}

func (l *Ledger) receipt(hash common.Hash) (*types.Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	receipt, ok := l.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("unknown transaction %s", hash.Hex())
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", errLedgerReverted, hash.Hex())
	}
	return receipt, nil
}

// revertError carries ABI-encoded revert data the way a JSON-RPC node reports it.
type revertError struct {
	data string
}

func (e *revertError) Error() string          { return "execution reverted" }
func (e *revertError) ErrorData() interface{} { return e.data }

func customRevert(meta *bind.MetaData, name string, args ...interface{}) error {
	parsed, err := meta.GetAbi()
	if err != nil {
		return err
	}
	abiErr, ok := parsed.Errors[name]
	if !ok {
		return fmt.Errorf("unknown custom error %s", name)
	}
	packed, err := abiErr.Inputs.Pack(args...)
	if err != nil {
		return err
	}
	return &revertError{data: hexutil.Encode(append(abiErr.ID[:4:4], packed...))}
}

// LedgerProvider is a wallet provider connected to a Ledger.
type LedgerProvider struct {
	ledger  *Ledger
	wallet  common.Address
	chainID uint64

	// ConnectErr, if set, is returned by Connect.
	ConnectErr error
	// DisconnectErr, if set, is returned by Disconnect.
	DisconnectErr error
}

func (p *LedgerProvider) Connect(ctx context.Context) (*interfaces.WalletConnection, error) {
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	return p.ledger.Connect(p.wallet, p.chainID), nil
}

func (p *LedgerProvider) Disconnect(ctx context.Context) error {
	return p.DisconnectErr
}

// SwitchTo changes the wallet and chain reported by the next Connect.
func (p *LedgerProvider) SwitchTo(wallet common.Address, chainID uint64) {
	p.wallet = wallet
	p.chainID = chainID
}

type ledgerSender struct {
	ledger *Ledger
}

// SendTransaction is not used: ledger contract handles submit directly.
func (s *ledgerSender) SendTransaction(context.Context, interfaces.TxRequest) (common.Hash, error) {
	return common.Hash{}, errors.New("ledger accepts transactions through its contract handles only")
}

func (s *ledgerSender) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.ledger.receipt(hash)
}

type ledgerFactory struct {
	ledger *Ledger
	from   common.Address
}

func (f *ledgerFactory) Registry(address common.Address) (interfaces.IdentityRegistry, error) {
	if address != LedgerRegistryAddress {
		return nil, fmt.Errorf("no registry at %s", address.Hex())
	}
	return &ledgerRegistry{ledgerFactory: f}, nil
}

func (f *ledgerFactory) IdentityRecord(address common.Address) (interfaces.IdentityRecord, error) {
	return &ledgerIdentity{ledgerFactory: f, address: address}, nil
}

func (f *ledgerFactory) Policy(address common.Address) (interfaces.PolicyContract, error) {
	return &ledgerPolicy{ledger: f.ledger, address: address}, nil
}

func (f *ledgerFactory) Gateway(address common.Address) (interfaces.InsuranceGateway, error) {
	if address != LedgerGatewayAddress {
		return nil, fmt.Errorf("no gateway at %s", address.Hex())
	}
	return &ledgerGateway{ledgerFactory: f}, nil
}

func (f *ledgerFactory) Token(address common.Address) (interfaces.Token, error) {
	return &ledgerToken{ledger: f.ledger, address: address}, nil
}

func (f *ledgerFactory) PolicyDeployer() (interfaces.PolicyDeployer, error) {
	return &ledgerDeployer{ledgerFactory: f}, nil
}

func (f *ledgerFactory) submit(ctx context.Context, op string, target common.Address, apply func() (common.Address, error)) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	hash, err := f.ledger.submit(op, f.from, target, apply)
	if err == nil {
		interfaces.NotifyTxSubmitted(ctx, op, hash)
	}
	return hash, err
}

type ledgerRegistry struct {
	*ledgerFactory
}

func (r *ledgerRegistry) GetIndividualWalletInfoAddress(ctx context.Context, wallet common.Address) (common.Address, error) {
	r.ledger.mu.Lock()
	defer r.ledger.mu.Unlock()
	return r.ledger.identities[wallet], nil
}

func (r *ledgerRegistry) RegisterAndCreateIndividualWalletInfo(ctx context.Context) (common.Hash, error) {
	return r.submit(ctx, "registerAndCreateIndividualWalletInfo", LedgerRegistryAddress, func() (common.Address, error) {
		if existing, ok := r.ledger.identities[r.from]; ok {
			return common.Address{}, customRevert(contracts.IdentityRegistryMetaData, "WalletInfoAlreadyExists", existing)
		}
		r.ledger.createIdentity(r.from)
		return common.Address{}, nil
	})
}

type ledgerIdentity struct {
	*ledgerFactory
	address common.Address
}

func (i *ledgerIdentity) record() (*ledgerRecord, error) {
	rec, ok := i.ledger.records[i.address]
	if !ok {
		return nil, fmt.Errorf("no identity record at %s", i.address.Hex())
	}
	return rec, nil
}

func (i *ledgerIdentity) GetWalletType(ctx context.Context) (interfaces.Role, error) {
	i.ledger.mu.Lock()
	defer i.ledger.mu.Unlock()
	rec, err := i.record()
	if err != nil {
		return interfaces.RoleNone, err
	}
	return rec.role, nil
}

func (i *ledgerIdentity) SetWalletType(ctx context.Context, role interfaces.Role) (common.Hash, error) {
	return i.submit(ctx, "setWalletType", i.address, func() (common.Address, error) {
		rec, err := i.record()
		if err != nil {
			return common.Address{}, err
		}
		if rec.owner != i.from {
			return common.Address{}, errors.New("execution reverted: caller is not the owner")
		}
		if rec.role != interfaces.RoleNone {
			return common.Address{}, customRevert(contracts.IdentityRecordMetaData, "WalletTypeAlreadySet", uint8(rec.role))
		}
		rec.role = role
		return common.Address{}, nil
	})
}

func (i *ledgerIdentity) AddSmartInsuranceContract(ctx context.Context, policy common.Address) (common.Hash, error) {
	return i.submit(ctx, "addSmartInsuranceContract", i.address, func() (common.Address, error) {
		rec, err := i.record()
		if err != nil {
			return common.Address{}, err
		}
		rec.policies = append(rec.policies, policy)
		return common.Address{}, nil
	})
}

func (i *ledgerIdentity) GetSmartInsuranceContracts(ctx context.Context) ([]common.Address, error) {
	i.ledger.mu.Lock()
	defer i.ledger.mu.Unlock()
	rec, err := i.record()
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.policies), nil
}

type ledgerPolicy struct {
	ledger  *Ledger
	address common.Address
}

func (p *ledgerPolicy) Deployed(ctx context.Context) (bool, error) {
	p.ledger.mu.Lock()
	defer p.ledger.mu.Unlock()
	_, ok := p.ledger.policies[p.address]
	return ok, nil
}

func (p *ledgerPolicy) Detail(ctx context.Context) (*interfaces.PolicyDetail, error) {
	p.ledger.mu.Lock()
	defer p.ledger.mu.Unlock()
	detail, ok := p.ledger.policies[p.address]
	if !ok {
		return nil, fmt.Errorf("no contract code at %s", p.address.Hex())
	}
	out := *detail
	return &out, nil
}

type ledgerGateway struct {
	*ledgerFactory
}

func (g *ledgerGateway) MarkExpiredPolicies(ctx context.Context, policies []common.Address) (common.Hash, error) {
	return g.submit(ctx, "markExpiredPolicies", LedgerGatewayAddress, func() (common.Address, error) {
		now := g.ledger.Now()
		for _, addr := range policies {
			detail, ok := g.ledger.policies[addr]
			if ok && detail.Status.IsOpen() && !detail.Expiration.After(now) {
				detail.Status = interfaces.StatusExpired
			}
		}
		return common.Address{}, nil
	})
}

type ledgerToken struct {
	ledger  *Ledger
	address common.Address
}

func (t *ledgerToken) Decimals(ctx context.Context) (uint8, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if d, ok := t.ledger.decimals[t.address]; ok {
		return d, nil
	}
	return 6, nil
}

type ledgerDeployer struct {
	*ledgerFactory
}

func (d *ledgerDeployer) DeployPolicy(ctx context.Context, params *interfaces.PolicyParams) (common.Hash, error) {
	return d.submit(ctx, "deployPolicy", common.Address{}, func() (common.Address, error) {
		addr := d.ledger.nextAddress()
		d.ledger.policies[addr] = &interfaces.PolicyDetail{
			Address:          addr,
			IssuerWallet:     params.IssuerWallet,
			InsuredWallet:    params.InsuredWallet,
			PremiumAmount:    params.PremiumScaled,
			PayoutAmount:     params.PayoutScaled,
			TokenAddress:     params.TokenAddress,
			SensorConditions: params.SensorConditions,
			Geofence:         params.Geofence,
			Expiration:       params.Expiration,
			Status:           interfaces.StatusActive,
		}
		return addr, nil
	})
}
