package harness

import (
	"context"
	"fmt"

	"github.com/tessella/bazaar/internal/catalog"
	"github.com/tessella/bazaar/internal/market"
)

// assert evaluates one end-state assertion against the scenario's world.
func (h *harness) assert(ctx context.Context, a Assertion) error {
	switch a.Type {
	case "catalog_count":
		entries, err := h.view(ctx, a)
		if err != nil {
			return err
		}
		if len(entries) != a.Count {
			return fmt.Errorf("catalog has %d entries, want %d", len(entries), a.Count)
		}
		return nil

	case "catalog_ids":
		entries, err := h.view(ctx, a)
		if err != nil {
			return err
		}
		got := entries.IDs()
		if len(got) != len(a.IDs) {
			return fmt.Errorf("catalog ids %v, want %v", got, a.IDs)
		}
		for i := range got {
			if got[i] != a.IDs[i] {
				return fmt.Errorf("catalog ids %v, want %v", got, a.IDs)
			}
		}
		return nil

	case "catalog_excludes":
		entries, err := h.view(ctx, a)
		if err != nil {
			return err
		}
		if entries.Contains(a.Listing) {
			return fmt.Errorf("catalog contains listing %d", a.Listing)
		}
		return nil

	case "balance":
		got := h.ledger.BalanceOf(a.Account)
		if got.String() != a.Amount {
			return fmt.Errorf("balance of %s is %s, want %s", a.Account, got, a.Amount)
		}
		return nil

	case "approved":
		operator := h.ledger.Market(a.Account).Address()
		if !h.ledger.Approved(a.Account, operator) {
			return fmt.Errorf("account %s has not approved the marketplace", a.Account)
		}
		return nil

	case "trace_steps":
		events, err := h.rec.List(ctx, a.Run)
		if err != nil {
			return fmt.Errorf("reading trace for run %s: %w", a.Run, err)
		}
		if len(events) != len(a.Steps) {
			return fmt.Errorf("run %s recorded %d steps, want %d", a.Run, len(events), len(a.Steps))
		}
		for i, ev := range events {
			if ev.Step != a.Steps[i] {
				return fmt.Errorf("run %s step %d is %s, want %s", a.Run, i, ev.Step, a.Steps[i])
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// view loads a catalog view for an assertion, defaulting to the unsold
// marketplace view when no scope is given.
func (h *harness) view(ctx context.Context, a Assertion) (market.Catalog, error) {
	account := a.Account
	if account == "" {
		account = h.scenario.Accounts[0].Address
	}
	loader := catalog.New(h.managers[account], h.store, catalog.WithLogger(h.logger))

	switch a.Scope {
	case "", "unsold":
		return loader.Load(ctx)
	case "seller":
		return loader.BySeller(ctx, account)
	case "purchased":
		return loader.PurchasedBy(ctx, account)
	default:
		return nil, fmt.Errorf("unknown catalog scope %q", a.Scope)
	}
}
