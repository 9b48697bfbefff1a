package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/parametric-insurance-coordinator/interfaces"
)

// DefaultConnectTimeout bounds Connect when no timeout is configured.
const DefaultConnectTimeout = 30 * time.Second

// ChangeListener is called after every session state change with the previous and new state.
type ChangeListener func(prev, next interfaces.WalletSession)

// Session holds the current wallet connection.
type Session struct {
	provider       interfaces.WalletProvider
	connectTimeout time.Duration
	log            *slog.Logger

	mu        sync.RWMutex
	conn      *interfaces.WalletConnection
	listeners []ChangeListener
}

func NewSession(provider interfaces.WalletProvider, connectTimeout time.Duration, log *slog.Logger) *Session {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Session{
		provider:       provider,
		connectTimeout: connectTimeout,
		log:            log,
	}
}

// OnChange registers a listener for connect, reconnect and disconnect.
func (s *Session) OnChange(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Connect asks the provider for a connection. A connect while already
// connected replaces the previous connection.
func (s *Session) Connect(ctx context.Context) (interfaces.WalletSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	type result struct {
		conn *interfaces.WalletConnection
		err  error
	}
	// Buffered so a provider that ignores ctx does not leak the goroutine forever.
	ch := make(chan result, 1)
	go func() {
		conn, err := s.provider.Connect(ctx)
		ch <- result{conn, err}
	}()

	var conn *interfaces.WalletConnection
	select {
	case <-ctx.Done():
		return interfaces.WalletSession{}, connectError(ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return interfaces.WalletSession{}, connectError(r.err)
		}
		conn = r.conn
	}

	if conn == nil || interfaces.IsZeroAddress(conn.Address) || conn.ChainID == 0 {
		return interfaces.WalletSession{}, fmt.Errorf("%w: provider returned no account", interfaces.ErrConnectionRejected)
	}

	prev, next := s.swap(conn)
	s.log.Info("Wallet connected",
		slog.String("address", conn.Address.Hex()),
		slog.Uint64("chainId", conn.ChainID))
	s.notify(prev, next)
	return next, nil
}

func connectError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return interfaces.ErrConnectionTimeout
	case errors.Is(err, interfaces.ErrConnectionRejected), errors.Is(err, interfaces.ErrConnectionTimeout):
		return err
	default:
		return fmt.Errorf("%w: %v", interfaces.ErrConnectionRejected, err)
	}
}

// Disconnect clears the local connection. A provider error is logged and
// otherwise ignored.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.provider.Disconnect(ctx); err != nil {
		s.log.Warn("Wallet provider disconnect failed, clearing local session anyway", "err", err)
	}

	prev, next := s.swap(nil)
	if prev.Connected {
		s.log.Info("Wallet disconnected", slog.String("address", prev.Address.Hex()))
	}
	s.notify(prev, next)
	return nil
}

// Connection returns the live connection or ErrNotConnected.
func (s *Session) Connection() (*interfaces.WalletConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return nil, interfaces.ErrNotConnected
	}
	return s.conn, nil
}

// State returns a snapshot of the session.
func (s *Session) State() interfaces.WalletSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot(s.conn)
}

func (s *Session) swap(conn *interfaces.WalletConnection) (prev, next interfaces.WalletSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = snapshot(s.conn)
	s.conn = conn
	return prev, snapshot(conn)
}

func (s *Session) notify(prev, next interfaces.WalletSession) {
	s.mu.RLock()
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l(prev, next)
	}
}

func snapshot(conn *interfaces.WalletConnection) interfaces.WalletSession {
	if conn == nil {
		return interfaces.WalletSession{}
	}
	address := conn.Address
	chainID := conn.ChainID
	return interfaces.WalletSession{
		Connected: true,
		Address:   &address,
		ChainID:   &chainID,
	}
}
