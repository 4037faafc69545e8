// Package testutil provides deterministic in-memory doubles for the
// external collaborators: the ledger contracts, the signing provider,
// and the content store.
//
// The fakes preserve the collaborators' observable semantics — two-phase
// submit-then-await transactions, append-only listing records, idempotent
// approvals, fee-inclusive total prices — so pipeline tests and harness
// scenarios exercise the real ordering and failure contracts without a
// network.
package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/tessella/bazaar/internal/ledger"
)

// DefaultFeePercent matches the marketplace deployment the client
// targets: total price = price * (100 + fee) / 100, integer division.
const DefaultFeePercent = 1

// FakeLedger simulates both contracts and the accounts' native balances.
//
// Transaction effects apply at Wait time, not submission time, matching
// the confirmation semantics the pipelines must respect: an effect is
// only observable after the handle confirms.
type FakeLedger struct {
	mu         sync.Mutex
	feePercent int64
	txSeq      uint64
	block      uint64

	tokens    map[uint64]string          // token ID -> metadata locator
	items     []ledger.ItemRecord        // 1-based listing records, append-only
	approvals map[string]map[string]bool // owner -> operator -> approved
	balances  map[string]*big.Int

	registryAddr string
	marketAddr   string

	// Failure injection: when set, the matching submission returns a
	// handle whose Wait fails with the given error.
	FailMint     error
	FailApprove  error
	FailList     error
	FailPurchase error

	// Read failure injection for catalog synchronization tests.
	FailItemCount  error
	FailTokenURI   error
	FailTotalPrice error
	FailItemAt     uint64 // 1-based index whose Item read fails; 0 disables
}

// NewFakeLedger creates an empty ledger with the default fee.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		feePercent:   DefaultFeePercent,
		tokens:       make(map[uint64]string),
		approvals:    make(map[string]map[string]bool),
		balances:     make(map[string]*big.Int),
		registryAddr: "0xregistry",
		marketAddr:   "0xmarket",
	}
}

// SetFeePercent overrides the protocol fee.
func (l *FakeLedger) SetFeePercent(pct int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feePercent = pct
}

// SetBalance assigns an account balance in minor units.
func (l *FakeLedger) SetBalance(account string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = new(big.Int).Set(amount)
}

// BalanceOf returns a copy of the account's balance.
func (l *FakeLedger) BalanceOf(account string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Approved reports whether owner has granted operator transfer rights.
func (l *FakeLedger) Approved(owner, operator string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.approvals[owner][operator]
}

// Items returns a copy of the listing records in insertion order.
func (l *FakeLedger) Items() []ledger.ItemRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.ItemRecord, len(l.items))
	copy(out, l.items)
	return out
}

// Registry returns a registry handle bound to the owner account.
func (l *FakeLedger) Registry(owner string) ledger.Registry {
	return &fakeRegistry{ledger: l, owner: owner}
}

// Market returns a marketplace handle bound to the owner account.
func (l *FakeLedger) Market(owner string) ledger.Market {
	return &fakeMarket{ledger: l, owner: owner}
}

// totalOf computes price plus the protocol fee the way the marketplace
// contract does: integer division, remainder truncated.
func (l *FakeLedger) totalOf(price *big.Int) *big.Int {
	total := new(big.Int).Mul(price, big.NewInt(100+l.feePercent))
	return total.Div(total, big.NewInt(100))
}

// submit wraps an effect in a transaction handle. When inject is
// non-nil the handle's Wait fails with it and the effect never applies.
func (l *FakeLedger) submit(inject error, apply func() error) ledger.Tx {
	l.mu.Lock()
	l.txSeq++
	ref := fmt.Sprintf("tx-%04d", l.txSeq)
	l.mu.Unlock()

	return &fakeTx{ledger: l, ref: ref, inject: inject, apply: apply}
}

// fakeTx is a transaction handle whose effect lands at Wait.
type fakeTx struct {
	ledger *FakeLedger
	ref    string
	inject error
	apply  func() error
	done   bool
}

// Wait implements ledger.Tx. The effect applies exactly once; a second
// Wait returns the same confirmation without reapplying.
func (tx *fakeTx) Wait(ctx context.Context) (ledger.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Confirmation{}, err
	}
	if tx.inject != nil {
		return ledger.Confirmation{}, tx.inject
	}

	tx.ledger.mu.Lock()
	defer tx.ledger.mu.Unlock()
	if !tx.done {
		tx.done = true
		if tx.apply != nil {
			if err := tx.apply(); err != nil {
				return ledger.Confirmation{}, err
			}
		}
		tx.ledger.block++
	}
	return ledger.Confirmation{TxRef: tx.ref, Block: tx.ledger.block}, nil
}

type fakeRegistry struct {
	ledger *FakeLedger
	owner  string
}

func (r *fakeRegistry) Address() string { return r.ledger.registryAddr }

func (r *fakeRegistry) Mint(ctx context.Context, metadataLocator string) (ledger.Tx, error) {
	l := r.ledger
	return l.submit(l.FailMint, func() error {
		id := uint64(len(l.tokens)) + 1
		l.tokens[id] = metadataLocator
		return nil
	}), nil
}

func (r *fakeRegistry) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	l := r.ledger
	if l.FailTokenURI != nil {
		return "", l.FailTokenURI
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	uri, ok := l.tokens[tokenID]
	if !ok {
		return "", fmt.Errorf("unknown token %d", tokenID)
	}
	return uri, nil
}

func (r *fakeRegistry) SetApprovalForAll(ctx context.Context, operator string, approved bool) (ledger.Tx, error) {
	l := r.ledger
	owner := r.owner
	return l.submit(l.FailApprove, func() error {
		if l.approvals[owner] == nil {
			l.approvals[owner] = make(map[string]bool)
		}
		// Re-granting an existing approval is harmless on the ledger.
		l.approvals[owner][operator] = approved
		return nil
	}), nil
}

func (r *fakeRegistry) TokenCount(ctx context.Context) (uint64, error) {
	l := r.ledger
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.tokens)), nil
}

type fakeMarket struct {
	ledger *FakeLedger
	owner  string
}

func (m *fakeMarket) Address() string { return m.ledger.marketAddr }

func (m *fakeMarket) MakeItem(ctx context.Context, registry string, tokenID uint64, price *big.Int) (ledger.Tx, error) {
	l := m.ledger
	seller := m.owner
	value := new(big.Int).Set(price)
	return l.submit(l.FailList, func() error {
		if registry != l.registryAddr {
			return fmt.Errorf("unknown registry %s", registry)
		}
		if _, ok := l.tokens[tokenID]; !ok {
			return fmt.Errorf("unknown token %d", tokenID)
		}
		if !l.approvals[seller][l.marketAddr] {
			return fmt.Errorf("marketplace not approved for %s", seller)
		}
		if value.Sign() <= 0 {
			return fmt.Errorf("price must be positive")
		}
		l.items = append(l.items, ledger.ItemRecord{
			ItemID:  uint64(len(l.items)) + 1,
			TokenID: tokenID,
			Seller:  seller,
			Price:   value,
		})
		return nil
	}), nil
}

func (m *fakeMarket) Item(ctx context.Context, index uint64) (ledger.ItemRecord, error) {
	l := m.ledger
	if l.FailItemAt != 0 && index == l.FailItemAt {
		return ledger.ItemRecord{}, fmt.Errorf("item %d read failed", index)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == 0 || index > uint64(len(l.items)) {
		return ledger.ItemRecord{}, fmt.Errorf("item index %d out of range", index)
	}
	rec := l.items[index-1]
	rec.Price = new(big.Int).Set(rec.Price)
	return rec, nil
}

func (m *fakeMarket) ItemCount(ctx context.Context) (uint64, error) {
	l := m.ledger
	if l.FailItemCount != nil {
		return 0, l.FailItemCount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.items)), nil
}

func (m *fakeMarket) TotalPrice(ctx context.Context, itemID uint64) (*big.Int, error) {
	l := m.ledger
	if l.FailTotalPrice != nil {
		return nil, l.FailTotalPrice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if itemID == 0 || itemID > uint64(len(l.items)) {
		return nil, fmt.Errorf("unknown item %d", itemID)
	}
	return l.totalOf(l.items[itemID-1].Price), nil
}

func (m *fakeMarket) Purchase(ctx context.Context, itemID uint64, value *big.Int) (ledger.Tx, error) {
	l := m.ledger
	buyer := m.owner
	attached := new(big.Int).Set(value)
	return l.submit(l.FailPurchase, func() error {
		if itemID == 0 || itemID > uint64(len(l.items)) {
			return fmt.Errorf("unknown item %d", itemID)
		}
		rec := &l.items[itemID-1]
		if rec.Sold {
			return fmt.Errorf("item %d already sold", itemID)
		}
		total := l.totalOf(rec.Price)
		if attached.Cmp(total) != 0 {
			return fmt.Errorf("attached value %s does not match total price %s", attached, total)
		}
		bal, ok := l.balances[buyer]
		if !ok || bal.Cmp(attached) < 0 {
			return fmt.Errorf("account %s cannot cover %s", buyer, attached)
		}
		bal.Sub(bal, attached)
		sellerBal, ok := l.balances[rec.Seller]
		if !ok {
			sellerBal = new(big.Int)
			l.balances[rec.Seller] = sellerBal
		}
		sellerBal.Add(sellerBal, rec.Price)
		rec.Sold = true
		rec.Buyer = buyer
		return nil
	}), nil
}
