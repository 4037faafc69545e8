// Package catalog reconstructs a consistent view of marketplace state
// from the ledger and the content store.
//
// Every load is a full rebuild from a fresh ledger read — the catalog is
// never patched incrementally and nothing is cached, trading latency for
// freshness. The pass is best-effort consistent: it is not atomic against
// concurrent ledger writes, so a listing settled mid-pass can appear in
// the result and will be caught as already-sold on the subsequent
// purchase attempt. Any single record failure fails the whole pass;
// callers never act on a partial view.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/tessella/bazaar/internal/ledger"
	"github.com/tessella/bazaar/internal/market"
	"github.com/tessella/bazaar/internal/session"
)

// Fetcher dereferences a metadata locator. Implemented by HTTPFetcher
// (production) and testutil.FakeStore (tests).
type Fetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Loader synchronizes the catalog from the current session's handles.
type Loader struct {
	sessions session.Source
	fetcher  Fetcher
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a catalog loader.
func New(sessions session.Source, fetcher Fetcher, opts ...Option) *Loader {
	l := &Loader{
		sessions: sessions,
		fetcher:  fetcher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the active catalog: every unsettled listing, enriched
// with resolved metadata, ascending by listing ID. A listing count of
// zero yields an empty catalog, not an error.
func (l *Loader) Load(ctx context.Context) (market.Catalog, error) {
	return l.load(ctx, func(rec ledger.ItemRecord) bool {
		return !rec.Sold
	})
}

// BySeller returns every listing the seller ever created, sold or not.
// Backs the "my listed items" view.
func (l *Loader) BySeller(ctx context.Context, seller string) (market.Catalog, error) {
	return l.load(ctx, func(rec ledger.ItemRecord) bool {
		return rec.Seller == seller
	})
}

// PurchasedBy returns the settled listings the buyer purchased. Backs
// the "my purchases" view.
func (l *Loader) PurchasedBy(ctx context.Context, buyer string) (market.Catalog, error) {
	return l.load(ctx, func(rec ledger.ItemRecord) bool {
		return rec.Sold && rec.Buyer == buyer
	})
}

// load iterates the ledger's listing records, filters before enrichment,
// and assembles the enriched entries in ledger insertion order.
func (l *Loader) load(ctx context.Context, keep func(ledger.ItemRecord) bool) (market.Catalog, error) {
	sess, ok := l.sessions.Current()
	if !ok {
		return nil, market.NewNoProviderError()
	}

	catalog := market.Catalog{}
	for rec, err := range records(ctx, sess.Market) {
		if err != nil {
			return nil, market.NewSyncError("items", err)
		}
		if !keep(rec) {
			continue
		}

		entry, err := l.enrich(ctx, sess, rec)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, entry)
	}

	l.logger.Debug("catalog synchronized", "entries", len(catalog))
	return catalog, nil
}

// records yields the ledger's listing records for indices 1..count in
// order. The sequence is finite and restartable: each ranging re-reads
// the count and walks the index range afresh, keeping callers
// independent of how indices are physically iterated.
func records(ctx context.Context, m ledger.Market) iter.Seq2[ledger.ItemRecord, error] {
	return func(yield func(ledger.ItemRecord, error) bool) {
		count, err := m.ItemCount(ctx)
		if err != nil {
			yield(ledger.ItemRecord{}, fmt.Errorf("reading listing count: %w", err))
			return
		}
		for i := uint64(1); i <= count; i++ {
			rec, err := m.Item(ctx, i)
			if err != nil {
				err = fmt.Errorf("reading listing %d: %w", i, err)
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// enrich resolves a record's metadata locator, dereferences it, and
// fetches the fee-inclusive total price.
func (l *Loader) enrich(ctx context.Context, sess *session.Session, rec ledger.ItemRecord) (market.CatalogEntry, error) {
	uri, err := sess.Registry.TokenURI(ctx, rec.TokenID)
	if err != nil {
		return market.CatalogEntry{}, market.NewSyncError("token-uri", fmt.Errorf("listing %d: %w", rec.ItemID, err))
	}

	body, err := l.fetcher.Fetch(ctx, uri)
	if err != nil {
		return market.CatalogEntry{}, market.NewSyncError("metadata", fmt.Errorf("listing %d: %w", rec.ItemID, err))
	}
	var meta market.Metadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return market.CatalogEntry{}, market.NewSyncError("metadata", fmt.Errorf("listing %d: %w", rec.ItemID, err))
	}

	total, err := sess.Market.TotalPrice(ctx, rec.ItemID)
	if err != nil {
		return market.CatalogEntry{}, market.NewSyncError("total-price", fmt.Errorf("listing %d: %w", rec.ItemID, err))
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
		Name:        meta.Name,
		Description: meta.Description,
		Image:       market.Locator(meta.Image),
	}, nil
}
