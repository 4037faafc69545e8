package testutil

import (
	"context"
	"math/big"
	"sync"
)

// FakeProvider simulates a wallet provider over a FakeLedger's balances.
//
// Emit* methods invoke subscribers synchronously on the calling
// goroutine, which keeps event-driven session tests deterministic.
type FakeProvider struct {
	mu       sync.Mutex
	ledger   *FakeLedger
	accounts []string
	chainID  uint64

	accountsFns []func([]string)
	chainFns    []func(uint64)

	// RequestErr, when set, fails RequestAccounts.
	RequestErr error
	// BalanceErr, when set, fails Balance.
	BalanceErr error
}

// NewFakeProvider creates a provider authorized for the given accounts.
func NewFakeProvider(l *FakeLedger, chainID uint64, accounts ...string) *FakeProvider {
	return &FakeProvider{ledger: l, chainID: chainID, accounts: accounts}
}

// RequestAccounts implements session.Provider.
func (p *FakeProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RequestErr != nil {
		return nil, p.RequestErr
	}
	out := make([]string, len(p.accounts))
	copy(out, p.accounts)
	return out, nil
}

// ChainID implements session.Provider.
func (p *FakeProvider) ChainID(ctx context.Context) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID, nil
}

// Balance implements session.Provider, delegating to the ledger.
func (p *FakeProvider) Balance(ctx context.Context, account string) (*big.Int, error) {
	if p.BalanceErr != nil {
		return nil, p.BalanceErr
	}
	return p.ledger.BalanceOf(account), nil
}

// OnAccountsChanged implements session.Provider.
func (p *FakeProvider) OnAccountsChanged(fn func([]string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountsFns = append(p.accountsFns, fn)
}

// OnChainChanged implements session.Provider.
func (p *FakeProvider) OnChainChanged(fn func(uint64)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chainFns = append(p.chainFns, fn)
}

// SwitchAccount replaces the active account and notifies subscribers.
func (p *FakeProvider) SwitchAccount(accounts ...string) {
	p.mu.Lock()
	p.accounts = accounts
	fns := make([]func([]string), len(p.accountsFns))
	copy(fns, p.accountsFns)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(accounts)
	}
}

// SwitchChain replaces the network and notifies subscribers.
func (p *FakeProvider) SwitchChain(chainID uint64) {
	p.mu.Lock()
	p.chainID = chainID
	fns := make([]func(uint64), len(p.chainFns))
	copy(fns, p.chainFns)
	p.mu.Unlock()

	for _, fn := range fns {
		fn(chainID)
	}
}
