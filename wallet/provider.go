package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// KeyedProvider is a wallet provider backed by a local key and a JSON-RPC backend.
type KeyedProvider struct {
	backend      Backend
	keys         KeySource
	pollInterval time.Duration
	log          *slog.Logger

	connected atomic.Bool
}

func NewKeyedProvider(backend Backend, keys KeySource, log *slog.Logger) *KeyedProvider {
	return &KeyedProvider{
		backend:      backend,
		keys:         keys,
		pollInterval: defaultPollInterval,
		log:          log,
	}
}

// SetPollInterval sets the receipt poll interval of senders created by Connect.
func (p *KeyedProvider) SetPollInterval(d time.Duration) {
	p.pollInterval = d
}

func (p *KeyedProvider) Connect(ctx context.Context) (*interfaces.WalletConnection, error) {
	key, err := p.keys.PrivateKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrConnectionRejected, err)
	}

	chainID, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not read chain id: %w", err)
	}

	sender := NewKeyedSender(p.backend, key, chainID, p.log)
	sender.SetPollInterval(p.pollInterval)
	p.connected.Store(true)

	return &interfaces.WalletConnection{
		Address: sender.Address(),
		ChainID: chainID.Uint64(),
		Sender:  sender,
		Reader:  p.backend,
	}, nil
}

func (p *KeyedProvider) Disconnect(_ context.Context) error {
	p.connected.Store(false)
	return nil
}

// Connected reports whether Connect succeeded since the last Disconnect.
func (p *KeyedProvider) Connected() bool {
	return p.connected.Load()
}

var _ interfaces.WalletProvider = (*KeyedProvider)(nil)
