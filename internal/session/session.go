// Package session establishes and maintains the signing identity used for
// all privileged marketplace operations.
//
// A Session is an immutable snapshot: account, network, and the two
// contract handles bound to that account, built together and replaced
// together. Identity or network changes never mutate a session in place;
// the manager rebuilds the whole snapshot and swaps it atomically, so no
// pipeline can observe a signer from one account paired with handles
// bound to another.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/market"
)

// Provider is the external signing provider (a wallet). It owns the
// authorized accounts and emits change notifications for the lifetime of
// the process.
type Provider interface {
	// RequestAccounts asks the provider for the authorized accounts.
	// The first returned account is the active one.
	RequestAccounts(ctx context.Context) ([]string, error)

	// ChainID returns the identifier of the currently selected network.
	ChainID(ctx context.Context) (uint64, error)

	// Balance returns the account's balance in minor units.
	Balance(ctx context.Context, account string) (*big.Int, error)

	// OnAccountsChanged registers a callback invoked when the authorized
	// account set changes.
	OnAccountsChanged(fn func(accounts []string))

	// OnChainChanged registers a callback invoked when the selected
	// network changes.
	OnChainChanged(fn func(chainID uint64))
}

// Binder constructs the contract handles for an account on a network.
// Both handles are built from the same signer in one call, so a partial
// rebind cannot exist.
type Binder interface {
	Bind(account string, chainID uint64) (ledger.Registry, ledger.Market, error)
}

// BinderFunc adapts a function to the Binder interface.
type BinderFunc func(account string, chainID uint64) (ledger.Registry, ledger.Market, error)

// Bind implements Binder.
func (f BinderFunc) Bind(account string, chainID uint64) (ledger.Registry, ledger.Market, error) {
	return f(account, chainID)
}

// Session is one immutable identity snapshot.
type Session struct {
	Account  string
	ChainID  uint64
	Registry ledger.Registry
	Market   ledger.Market
}

// Source yields the current session. Implemented by Manager; pipelines
// depend on this interface rather than on the manager itself.
type Source interface {
	// Current returns the active session, or false when no session is
	// established.
	Current() (*Session, bool)
}

// Manager owns the session lifecycle.
//
// Thread-safety model:
//   - Connect() is serialized by an internal mutex.
//   - Current() is safe from any goroutine (atomic pointer read).
//   - Provider callbacks run Connect again or invoke the reload hook;
//     they never mutate an existing session.
type Manager struct {
	provider Provider
	binder   Binder
	reload   func(chainID uint64)
	logger   *slog.Logger

	mu         sync.Mutex
	subscribed bool
	current    atomic.Pointer[Session]
}

// Option configures a Manager.
type Option func(*Manager)

// WithReloadFunc sets the hook invoked on a network change. The host is
// expected to perform a full reload of its context: a changed network
// invalidates every contract binding, so no partial state migration is
// attempted. The default hook tears the session down and logs.
func WithReloadFunc(fn func(chainID uint64)) Option {
	return func(m *Manager) { m.reload = fn }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a session manager over the given provider and
// binder. A nil provider is allowed and makes every Connect fail with the
// missing-provider error, mirroring a host without a wallet installed.
func NewManager(provider Provider, binder Binder, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		binder:   binder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reload == nil {
		m.reload = m.teardownOnChainChange
	}
	return m
}

// Connect establishes a session bound to the provider's active account
// and network, replacing any previous session wholesale.
//
// On the first successful call the manager subscribes to the provider's
// change notifications: an account change re-runs Connect to rebind the
// session and signer; a network change invokes the reload hook.
//
// Fails with market.CodeNoProvider when no provider or no authorized
// account is available; callers must block all privileged operations
// until that resolves.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.provider == nil {
		return nil, market.NewNoProviderError()
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		return nil, &market.Error{
			Code:    market.CodeNoProvider,
			Message: "signing provider refused account access",
			Err:     err,
		}
	}
	if len(accounts) == 0 {
		return nil, market.NewNoProviderError()
	}
	account := accounts[0]

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return nil, &market.Error{
			Code:    market.CodeNoProvider,
			Message: "signing provider did not report a network",
			Err:     err,
		}
	}

	registry, mkt, err := m.binder.Bind(account, chainID)
	if err != nil {
		return nil, fmt.Errorf("binding contract handles: %w", err)
	}

	sess := &Session{
		Account:  account,
		ChainID:  chainID,
		Registry: registry,
		Market:   mkt,
	}
	m.current.Store(sess)
	m.logger.Info("session established", "account", account, "chain_id", chainID)

	if !m.subscribed {
		m.subscribed = true
		m.provider.OnAccountsChanged(m.handleAccountsChanged)
		m.provider.OnChainChanged(m.handleChainChanged)
	}

	return sess, nil
}

// Current returns the active session, or false when none is established.
func (m *Manager) Current() (*Session, bool) {
	sess := m.current.Load()
	return sess, sess != nil
}

// Balance returns the current account's balance in minor units. The value
// is re-queried from the provider on every call; it is never cached
// across a purchase.
func (m *Manager) Balance(ctx context.Context) (*big.Int, error) {
	sess, ok := m.Current()
	if !ok {
		return nil, market.NewNoProviderError()
	}
	return m.provider.Balance(ctx, sess.Account)
}

// handleAccountsChanged re-runs Connect so the session and signer rebind
// to the new account. The stale session stays active until the rebind
// succeeds; on failure it is torn down so no pipeline signs with a
// removed account.
func (m *Manager) handleAccountsChanged(accounts []string) {
	m.logger.Info("accounts changed, rebinding session", "accounts", len(accounts))
	if _, err := m.Connect(context.Background()); err != nil {
		m.current.Store(nil)
		m.logger.Error("session rebind failed, session torn down", "error", err)
	}
}

func (m *Manager) handleChainChanged(chainID uint64) {
	m.logger.Info("network changed", "chain_id", chainID)
	m.reload(chainID)
}

// teardownOnChainChange is the default reload hook: without a host reload
// function the only safe response to a network change is to drop the
// session entirely, since every contract binding is now invalid.
func (m *Manager) teardownOnChainChange(chainID uint64) {
	m.current.Store(nil)
	m.logger.Warn("no reload hook configured, session torn down", "chain_id", chainID)
}
