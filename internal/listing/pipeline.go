// Package listing orchestrates the multi-step "create and list" workflow:
// publish the binary, publish the metadata, mint, authorize the
// marketplace, and make the listing.
//
// Steps are strictly ordered and fail fast. There is no compensation or
// rollback: publishing and minting are irreversible, so a failure at step
// N leaves the side effects of steps 1..N-1 in place and surfaces the
// failure to the caller. Every ledger submission is two-phase — sent,
// then awaited to confirmation — before the next step starts, because
// each later step depends on the prior step's on-chain effect being
// final.
package listing

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/session"
	"github.com/tessella/bazaar/internal/trace"
)

// Pinner publishes content to the external store. Implemented by
// publisher.Client (production) and testutil.FakeStore (tests).
type Pinner interface {
	PinFile(ctx context.Context, name string, r io.Reader) (market.Locator, error)
	PinJSON(ctx context.Context, doc any) (market.Locator, error)
}

// Input is the user-supplied creation request. Price is in minor units.
type Input struct {
	Name        string
	Description string
	Price       *big.Int
	Binary      io.Reader
	Filename    string
}

// Pipeline runs the create-and-list workflow against the current
// session's contract handles.
type Pipeline struct {
	sessions       session.Source
	pinner         Pinner
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

// WithConfirmTimeout bounds each confirmation wait. Zero (the default)
// leaves waits bounded only by the caller's ctx; the workflow never
// retries a submission either way, since resubmission risks duplicate
// side effects.
func WithConfirmTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.confirmTimeout = d }
}

// New creates a listing pipeline.
func New(sessions session.Source, pinner Pinner, opts ...Option) *Pipeline {
	p := &Pipeline{
		sessions: sessions,
		pinner:   pinner,
		recorder: trace.Nop{},
		tokens:   trace.UUIDv7Tokens{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Create validates the input, publishes the asset and its metadata, and
// mints, authorizes, and lists the asset, returning the ledger-assigned
// listing ID.
//
// A listing exists only if the final step confirms; on any earlier
// failure the caller must not assume one does.
func (p *Pipeline) Create(ctx context.Context, in Input) (uint64, error) {
	run := p.tokens.Generate()

	// Step 1: validate. No network call happens before this passes.
	in, err := validate(in)
	if err != nil {
		p.record(ctx, run, "validate", trace.StatusFail, err.Error())
		return 0, err
	}
	p.record(ctx, run, "validate", trace.StatusOK, in.Name)

	sess, ok := p.sessions.Current()
	if !ok {
		return 0, market.NewNoProviderError()
	}

	// Step 2: publish the asset binary.
	binaryLoc, err := p.pinner.PinFile(ctx, in.Filename, in.Binary)
	if err != nil {
		err = asPublish("asset", err)
		p.record(ctx, run, "pin-asset", trace.StatusFail, err.Error())
		return 0, err
	}
	p.record(ctx, run, "pin-asset", trace.StatusOK, string(binaryLoc))

	// Step 3: publish the metadata document embedding the binary locator.
	doc := market.Metadata{
		Name:        in.Name,
		Description: in.Description,
		Image:       string(binaryLoc),
		Price:       in.Price.String(),
	}
	metaLoc, err := p.pinner.PinJSON(ctx, doc)
	if err != nil {
		err = asPublish("metadata", err)
		p.record(ctx, run, "pin-metadata", trace.StatusFail, err.Error())
		return 0, err
	}
	p.record(ctx, run, "pin-metadata", trace.StatusOK, string(metaLoc))

	// Step 4: mint, await confirmation, then read back the new asset ID.
	mintTx, err := sess.Registry.Mint(ctx, string(metaLoc))
	if err == nil {
		_, err = p.await(ctx, mintTx)
	}
	if err != nil {
		txErr := market.NewTxError("mint", err)
		p.record(ctx, run, "mint", trace.StatusFail, txErr.Error())
		return 0, txErr
	}
	tokenID, err := sess.Registry.TokenCount(ctx)
	if err != nil {
		txErr := market.NewTxError("mint", fmt.Errorf("reading minted token id: %w", err))
		p.record(ctx, run, "mint", trace.StatusFail, txErr.Error())
		return 0, txErr
	}
	p.record(ctx, run, "mint", trace.StatusOK, fmt.Sprintf("token=%d", tokenID))

	// Step 5: authorize the marketplace as operator. Re-granting an
	// existing approval is harmless, but the grant must be confirmed
	// before listing — the ledger enforces it as a precondition of the
	// transfer in step 6.
	approveTx, err := sess.Registry.SetApprovalForAll(ctx, sess.Market.Address(), true)
	if err == nil {
		_, err = p.await(ctx, approveTx)
	}
	if err != nil {
		txErr := market.NewTxError("approve", err)
		p.record(ctx, run, "approve", trace.StatusFail, txErr.Error())
		return 0, txErr
	}
	p.record(ctx, run, "approve", trace.StatusOK, sess.Market.Address())

	// Step 6: make the listing; the ledger assigns the listing ID.
	listTx, err := sess.Market.MakeItem(ctx, sess.Registry.Address(), tokenID, in.Price)
	if err == nil {
		_, err = p.await(ctx, listTx)
	}
	if err != nil {
		txErr := market.NewTxError("list", err)
		p.record(ctx, run, "list", trace.StatusFail, txErr.Error())
		return 0, txErr
	}
	listingID, err := sess.Market.ItemCount(ctx)
	if err != nil {
		txErr := market.NewTxError("list", fmt.Errorf("reading listing id: %w", err))
		p.record(ctx, run, "list", trace.StatusFail, txErr.Error())
		return 0, txErr
	}
	p.record(ctx, run, "list", trace.StatusOK, fmt.Sprintf("listing=%d", listingID))

	p.logger.Info("listing created",
		"run", run, "listing_id", listingID, "token_id", tokenID, "seller", sess.Account)
	return listingID, nil
}

// await waits for a transaction's confirmation under the configured
// timeout policy.
func (p *Pipeline) await(ctx context.Context, tx ledger.Tx) (ledger.Confirmation, error) {
	if p.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.confirmTimeout)
		defer cancel()
	}
	return tx.Wait(ctx)
}

// record reports a step event. Recording failures are logged and do not
// alter the pipeline's outcome.
func (p *Pipeline) record(ctx context.Context, run, step, status, detail string) {
	ev := trace.Event{Run: run, Pipeline: "listing", Step: step, Status: status, Detail: detail}
	if err := p.recorder.Record(ctx, ev); err != nil {
		p.logger.Warn("trace recording failed", "step", step, "error", err)
	}
}

// asPublish coerces a pinner failure into the publish taxonomy unless it
// already carries it.
func asPublish(what string, err error) error {
	if market.IsPublish(err) {
		return err
	}
	return market.NewPublishError(what, err)
}
