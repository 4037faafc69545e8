// Package harness executes conformance scenarios against the marketplace
// pipelines.
//
// Scenarios run the real pipelines — session manager, listing pipeline,
// catalog synchronizer, purchase pipeline — over the deterministic
// in-memory collaborators from internal/testutil. Fixed run tokens,
// content-derived locators, and sequence-numbered transaction references
// make the recorded trace reproducible, which enables golden-file
// comparison across runs.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"github.com/tessella/bazaar/internal/catalog"
	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/listing"
	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/purchase"
	"github.com/tessella/bazaar/internal/session"
	"github.com/tessella/bazaar/internal/testutil"
	"github.com/tessella/bazaar/internal/trace"
)

// errInjected is the failure planted by a step's Break clause.
var errInjected = errors.New("injected failure")

// Result reports one scenario execution.
type Result struct {
	ScenarioName string        `json:"scenario_name"`
	Passed       bool          `json:"passed"`
	Failures     []string      `json:"failures,omitempty"`
	Trace        []trace.Event `json:"trace"`
}

// harness wires one scenario's collaborators.
type harness struct {
	scenario *Scenario
	ledger   *testutil.FakeLedger
	store    *testutil.FakeStore
	rec      *trace.Store
	tokens   *testutil.FixedTokens
	managers map[string]*session.Manager
	logger   *slog.Logger
}

// Run executes a scenario and returns its result. Each scenario runs in
// a fresh in-memory world for isolation; a non-nil error means the
// scenario could not be executed at all, while expectation mismatches
// land in Result.Failures.
func Run(s *Scenario) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	rec, err := trace.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening trace store: %w", err)
	}
	defer rec.Close()

	h := &harness{
		scenario: s,
		ledger:   testutil.NewFakeLedger(),
		store:    testutil.NewFakeStore(),
		rec:      rec,
		tokens:   testutil.NewFixedTokens(s.RunTokens...),
		managers: make(map[string]*session.Manager),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if s.FeePercent > 0 {
		h.ledger.SetFeePercent(s.FeePercent)
	}

	ctx := context.Background()
	for _, acct := range s.Accounts {
		if acct.Balance != "" {
			amount, _ := new(big.Int).SetString(acct.Balance, 10)
			h.ledger.SetBalance(acct.Address, amount)
		}
		if err := h.connect(ctx, acct.Address); err != nil {
			return nil, fmt.Errorf("connecting account %s: %w", acct.Address, err)
		}
	}

	result := &Result{ScenarioName: s.Name}

	for i, step := range s.Setup {
		out := h.execute(ctx, step)
		if out.execErr != nil {
			return nil, fmt.Errorf("setup step %d: %w", i, out.execErr)
		}
		if out.err != nil {
			return nil, fmt.Errorf("setup step %d (%s) failed: %w", i, step.Action, out.err)
		}
	}

	for i, step := range s.Flow {
		out := h.execute(ctx, step)
		if out.execErr != nil {
			return nil, fmt.Errorf("flow step %d: %w", i, out.execErr)
		}
		h.check(result, i, step, out)
	}

	for i, a := range s.Assertions {
		if err := h.assert(ctx, a); err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("assertion %d (%s): %v", i, a.Type, err))
		}
	}

	result.Trace, err = rec.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	result.Passed = len(result.Failures) == 0
	return result, nil
}

// connect establishes a session manager for one account.
func (h *harness) connect(ctx context.Context, address string) error {
	provider := testutil.NewFakeProvider(h.ledger, 31337, address)
	mgr := session.NewManager(provider,
		session.BinderFunc(func(account string, chainID uint64) (ledger.Registry, ledger.Market, error) {
			return h.ledger.Registry(account), h.ledger.Market(account), nil
		}),
		session.WithLogger(h.logger),
	)
	if _, err := mgr.Connect(ctx); err != nil {
		return err
	}
	h.managers[address] = mgr
	return nil
}

// outcome captures one step's result for expectation checking.
type outcome struct {
	// err is the pipeline error, nil on success.
	err error
	// execErr marks a harness-level problem, not a pipeline outcome.
	execErr error

	listingID     uint64
	count         int
	refreshFailed bool
}

// code renders the outcome for comparison against Expect.Outcome.
func (o outcome) code() string {
	if o.err == nil {
		return "ok"
	}
	if c := market.CodeOf(o.err); c != "" {
		return string(c)
	}
	return "ERROR"
}

func (h *harness) execute(ctx context.Context, step Step) outcome {
	restore := h.applyBreak(step.Break)
	defer restore()

	switch step.Action {
	case "create_listing":
		return h.createListing(ctx, step)
	case "purchase":
		return h.purchase(ctx, step)
	case "load_catalog":
		return h.loadCatalog(ctx, step)
	default:
		return outcome{execErr: fmt.Errorf("unknown action %q", step.Action)}
	}
}

func (h *harness) createListing(ctx context.Context, step Step) outcome {
	mgr := h.managers[step.Account]
	p := listing.New(mgr, h.store,
		listing.WithRecorder(h.rec),
		listing.WithTokens(h.tokens),
		listing.WithLogger(h.logger),
	)

	// A price that does not parse as a decimal integer stays nil and is
	// rejected by the pipeline's own validation.
	var price *big.Int
	if v, ok := new(big.Int).SetString(step.Price, 10); ok {
		price = v
	}

	id, err := p.Create(ctx, listing.Input{
		Name:        step.Name,
		Description: step.Description,
		Price:       price,
		Binary:      strings.NewReader(step.Data),
		Filename:    "asset",
	})
	return outcome{err: err, listingID: id}
}

func (h *harness) purchase(ctx context.Context, step Step) outcome {
	mgr := h.managers[step.Account]
	loader := catalog.New(mgr, h.store, catalog.WithLogger(h.logger))
	p := purchase.New(mgr, mgr, loader,
		purchase.WithRecorder(h.rec),
		purchase.WithTokens(h.tokens),
		purchase.WithLogger(h.logger),
	)

	entry, err := h.entryFor(ctx, step.Account, step.Listing)
	if err != nil {
		return outcome{execErr: err}
	}

	receipt, err := p.Buy(ctx, entry)
	out := outcome{err: err}
	if receipt != nil {
		out.refreshFailed = receipt.RefreshErr != nil
	}
	return out
}

func (h *harness) loadCatalog(ctx context.Context, step Step) outcome {
	mgr := h.managers[step.Account]
	loader := catalog.New(mgr, h.store, catalog.WithLogger(h.logger))

	entries, err := loader.Load(ctx)
	return outcome{err: err, count: len(entries)}
}

// entryFor reconstructs a catalog entry straight from the ledger record,
// so scenarios can attempt purchases of listings a fresh catalog would
// already exclude (the stale-view case).
func (h *harness) entryFor(ctx context.Context, account string, listingID uint64) (market.CatalogEntry, error) {
	items := h.ledger.Items()
	if listingID == 0 || listingID > uint64(len(items)) {
		return market.CatalogEntry{}, fmt.Errorf("listing %d does not exist on the ledger", listingID)
	}
	rec := items[listingID-1]
	total, err := h.ledger.Market(account).TotalPrice(ctx, listingID)
	if err != nil {
		return market.CatalogEntry{}, fmt.Errorf("total price of listing %d: %w", listingID, err)
	}
	return market.CatalogEntry{
		Listing: market.Listing{
			ID:         rec.ItemID,
			AssetID:    rec.TokenID,
			Seller:     rec.Seller,
			Price:      rec.Price,
			TotalPrice: total,
			Sold:       rec.Sold,
		},
	}, nil
}

// applyBreak plants a step's injected failure and returns the restore
// function clearing it.
func (h *harness) applyBreak(name string) func() {
	switch name {
	case "":
		return func() {}
	case "pin-file":
		h.store.PinFileErr = errInjected
		return func() { h.store.PinFileErr = nil }
	case "pin-json":
		h.store.PinJSONErr = errInjected
		return func() { h.store.PinJSONErr = nil }
	case "fetch":
		h.store.FetchErr = errInjected
		return func() { h.store.FetchErr = nil }
	case "mint":
		h.ledger.FailMint = errInjected
		return func() { h.ledger.FailMint = nil }
	case "approve":
		h.ledger.FailApprove = errInjected
		return func() { h.ledger.FailApprove = nil }
	case "list":
		h.ledger.FailList = errInjected
		return func() { h.ledger.FailList = nil }
	case "purchase":
		h.ledger.FailPurchase = errInjected
		return func() { h.ledger.FailPurchase = nil }
	case "item-count":
		h.ledger.FailItemCount = errInjected
		return func() { h.ledger.FailItemCount = nil }
	default:
		return func() {}
	}
}

// check compares a flow step's outcome against its Expect clause.
func (h *harness) check(result *Result, i int, step Step, out outcome) {
	expect := step.Expect
	if expect == nil {
		expect = &Expect{Outcome: "ok"}
	}

	if got := out.code(); got != expect.Outcome {
		detail := ""
		if out.err != nil {
			detail = ": " + out.err.Error()
		}
		result.Failures = append(result.Failures,
			fmt.Sprintf("step %d (%s): outcome %s, want %s%s", i, step.Action, got, expect.Outcome, detail))
		return
	}
	if expect.Listing != 0 && out.listingID != expect.Listing {
		result.Failures = append(result.Failures,
			fmt.Sprintf("step %d (%s): listing id %d, want %d", i, step.Action, out.listingID, expect.Listing))
	}
	if expect.Count != nil && out.count != *expect.Count {
		result.Failures = append(result.Failures,
			fmt.Sprintf("step %d (%s): catalog count %d, want %d", i, step.Action, out.count, *expect.Count))
	}
	if out.refreshFailed != expect.RefreshFailed {
		result.Failures = append(result.Failures,
			fmt.Sprintf("step %d (%s): refresh failed = %v, want %v", i, step.Action, out.refreshFailed, expect.RefreshFailed))
	}
}
