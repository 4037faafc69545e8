// Package purchase settles a listing: validates funds, submits the
// purchase transaction, awaits confirmation, and refreshes the catalog
// and balance from the ledger.
//
// Settlement and refresh are separate outcomes. Once the purchase
// confirms, the pipeline reports success even if the follow-up refresh
// fails; the refresh failure travels on the receipt so the caller can
// re-synchronize without doubting the settlement. Read-after-write
// consistency comes from re-querying the ledger, never from local
// mutation.
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/session"
	"github.com/tessella/bazaar/internal/trace"
)

// CatalogLoader reloads the full catalog after settlement. Implemented
// by catalog.Loader.
type CatalogLoader interface {
	Load(ctx context.Context) (market.Catalog, error)
}

// Funds yields the current account's balance. Implemented by
// session.Manager.
type Funds interface {
	Balance(ctx context.Context) (*big.Int, error)
}

// Pipeline runs the purchase workflow.
type Pipeline struct {
	sessions       session.Source
	funds          Funds
	catalog        CatalogLoader
	recorder       trace.Recorder
	tokens         trace.TokenGenerator
	logger         *slog.Logger
	confirmTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder sets the step recorder. Defaults to trace.Nop.
func WithRecorder(r trace.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithTokens sets the run token generator. Defaults to UUIDv7 tokens.
func WithTokens(g trace.TokenGenerator) Option {
	return func(p *Pipeline) { p.tokens = g }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithConfirmTimeout bounds the confirmation wait. Zero (the default)
// leaves the wait bounded only by the caller's ctx.
func WithConfirmTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.confirmTimeout = d }
}

// New creates a purchase pipeline.
func New(sessions session.Source, funds Funds, loader CatalogLoader, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions: sessions,
		funds:    funds,
		catalog:  loader,
		recorder: trace.Nop{},
		tokens:   trace.UUIDv7Tokens{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Buy settles the given catalog entry for the current account.
//
// The balance check happens before any submission: an account that
// cannot cover the total price fails with the insufficient-funds error
// and zero transactions issued. After a confirmed settlement the
// returned receipt is non-nil even when the refresh fails; the caller
// must not treat a RefreshErr as a failed purchase.
func (p *Pipeline) Buy(ctx context.Context, entry market.CatalogEntry) (*market.Receipt, error) {
	run := p.tokens.Generate()

	sess, ok := p.sessions.Current()
	if !ok {
		return nil, market.NewNoProviderError()
	}
	if entry.TotalPrice == nil {
		return nil, market.NewValidationError("listing", "total price missing")
	}

	// Step 1-2: fetch balance and compare. Purely local decision, no
	// network cost beyond the read.
	balance, err := p.funds.Balance(ctx)
	if err != nil {
		txErr := market.NewTxError("balance", err)
		p.record(ctx, run, "balance", trace.StatusFail, txErr.Error())
		return nil, txErr
	}
	if balance.Cmp(entry.TotalPrice) < 0 {
		fundsErr := market.NewInsufficientFundsError(balance, entry.TotalPrice)
		p.record(ctx, run, "balance", trace.StatusFail, fundsErr.Error())
		return nil, fundsErr
	}
	p.record(ctx, run, "balance", trace.StatusOK, balance.String())

	// Step 3: submit the purchase with the total price attached, await
	// confirmation. On rejection or timeout the caller must not assume
	// settlement.
	tx, err := sess.Market.Purchase(ctx, entry.ID, entry.TotalPrice)
	var conf ledger.Confirmation
	if err == nil {
		conf, err = p.await(ctx, tx)
	}
	if err != nil {
		txErr := market.NewTxError("purchase", err)
		p.record(ctx, run, "purchase", trace.StatusFail, txErr.Error())
		return nil, txErr
	}
	p.record(ctx, run, "purchase", trace.StatusOK, fmt.Sprintf("listing=%d %s", entry.ID, conf.TxRef))

	receipt := &market.Receipt{
		ListingID:  entry.ID,
		Buyer:      sess.Account,
		TotalPrice: entry.TotalPrice,
		TxRef:      conf.TxRef,
	}

	// Step 4: full catalog reload and balance re-query. The ledger is
	// the source of truth; nothing is patched locally.
	refreshed, err := p.catalog.Load(ctx)
	if err == nil {
		receipt.Catalog = refreshed
		receipt.Balance, err = p.funds.Balance(ctx)
	}
	if err != nil {
		receipt.Catalog = nil
		receipt.Balance = nil
		if !market.IsSync(err) {
			err = market.NewSyncError("refresh", err)
		}
		receipt.RefreshErr = err
		p.record(ctx, run, "refresh", trace.StatusFail, err.Error())
		p.logger.Warn("post-purchase refresh failed", "run", run, "listing_id", entry.ID, "error", err)
		return receipt, nil
	}
	p.record(ctx, run, "refresh", trace.StatusOK, fmt.Sprintf("entries=%d", len(receipt.Catalog)))

	p.logger.Info("purchase settled",
		"run", run, "listing_id", entry.ID, "buyer", sess.Account, "tx", conf.TxRef)
	return receipt, nil
}

func (p *Pipeline) await(ctx context.Context, tx ledger.Tx) (ledger.Confirmation, error) {
	if p.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.confirmTimeout)
		defer cancel()
	}
	return tx.Wait(ctx)
}

func (p *Pipeline) record(ctx context.Context, run, step, status, detail string) {
	ev := trace.Event{Run: run, Pipeline: "purchase", Step: step, Status: status, Detail: detail}
	if err := p.recorder.Record(ctx, ev); err != nil {
		p.logger.Warn("trace recording failed", "step", step, "error", err)
	}
}
