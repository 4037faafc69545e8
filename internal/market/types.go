package market

import "math/big"

// Locator is a stable, dereferenceable reference to content held in the
// external content-addressed store (a gateway URL in production).
type Locator string

// Metadata is the document published alongside each asset binary.
// The Image field holds the binary's locator; Price is kept as a decimal
// string of minor units so the document round-trips without float loss.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Price       string `json:"price"`
}

// Listing is one marketplace offer as recorded on the ledger.
//
// INVARIANTS:
//   - ID is ledger-assigned, unique, and monotonically increasing.
//   - TotalPrice >= Price (total includes the protocol fee).
//   - Sold flips false -> true exactly once and never back.
type Listing struct {
	ID         uint64
	AssetID    uint64
	Seller     string
	Price      *big.Int
	TotalPrice *big.Int
	Sold       bool
}

// CatalogEntry is a Listing enriched with its resolved metadata.
type CatalogEntry struct {
	Listing

	Name        string
	Description string
	Image       Locator
}

// Catalog is an ordered view of listings, ascending by listing ID.
// It is rebuilt in full on every synchronization pass.
type Catalog []CatalogEntry

// IDs returns the listing IDs in catalog order. Convenience for
// assertions and display.
func (c Catalog) IDs() []uint64 {
	ids := make([]uint64, len(c))
	for i, e := range c {
		ids[i] = e.ID
	}
	return ids
}

// Contains reports whether the catalog holds an entry for the listing ID.
func (c Catalog) Contains(id uint64) bool {
	for _, e := range c {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Receipt reports the outcome of a confirmed purchase.
//
// Settlement and refresh are distinct outcomes: a purchase that confirmed
// on the ledger is a success even when the follow-up catalog/balance
// refresh fails. In that case Catalog and Balance are nil and RefreshErr
// carries the sync failure.
type Receipt struct {
	ListingID  uint64
	Buyer      string
	TotalPrice *big.Int
	TxRef      string

	Catalog    Catalog
	Balance    *big.Int
	RefreshErr error
}
