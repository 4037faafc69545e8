// Package ledger declares the contract surface of the external,
// append-only ledger the marketplace client depends on.
//
// The ledger itself is an opaque remote service; this package only names
// the operations the core issues against it. Two contracts exist: the
// collectible registry (minting and ownership) and the marketplace
// (listings and settlement). Handles to both are bound together to one
// signing account by the session manager and are the sole channel through
// which the pipelines reach the ledger.
//
// Every state-changing operation is two-phase: the call submits a
// transaction and returns a handle, and the caller must await the
// handle's confirmation before depending on the effect. Submissions
// cannot be withdrawn once sent.
package ledger

import (
	"context"
	"math/big"
)

// Tx is a handle to a submitted transaction.
type Tx interface {
	// Wait blocks until the transaction is confirmed or fails. It returns
	// an error on revert, rejection, or when ctx expires first; a
	// confirmation timeout policy is the caller's concern, applied via
	// ctx. Wait must eventually resolve, never hang indefinitely.
	Wait(ctx context.Context) (Confirmation, error)
}

// Confirmation records a transaction's inclusion on the ledger.
type Confirmation struct {
	// TxRef identifies the confirmed transaction.
	TxRef string

	// Block is the height at which the transaction was included.
	Block uint64
}

// ItemRecord is a marketplace listing as stored on the ledger.
// Records are append-only: a listing is never deleted, only marked sold.
type ItemRecord struct {
	ItemID  uint64
	TokenID uint64
	Seller  string
	// Buyer is set at settlement and empty before it.
	Buyer string
	Price *big.Int
	Sold  bool
}

// Registry is a bound handle to the collectible registry contract.
type Registry interface {
	// Mint submits a mint transaction for the given metadata locator.
	Mint(ctx context.Context, metadataLocator string) (Tx, error)

	// TokenURI returns the metadata locator recorded for a token.
	TokenURI(ctx context.Context, tokenID uint64) (string, error)

	// SetApprovalForAll submits a transaction granting (or revoking) the
	// operator transfer rights over all of the bound account's tokens.
	// Granting an approval that already exists succeeds; the operation is
	// idempotent on the ledger side.
	SetApprovalForAll(ctx context.Context, operator string, approved bool) (Tx, error)

	// TokenCount returns the number of tokens minted so far. Token IDs
	// are assigned sequentially from 1, so the count after a confirmed
	// mint is the new token's ID.
	TokenCount(ctx context.Context) (uint64, error)

	// Address returns the contract's on-ledger address.
	Address() string
}

// Market is a bound handle to the marketplace contract.
type Market interface {
	// MakeItem submits a listing transaction for a token held by the
	// bound account. The registry must already be approved for the
	// marketplace as operator, or the ledger rejects the transfer.
	MakeItem(ctx context.Context, registry string, tokenID uint64, price *big.Int) (Tx, error)

	// Item fetches the listing record at a 1-based index.
	Item(ctx context.Context, index uint64) (ItemRecord, error)

	// ItemCount returns the number of listings ever created. Listing IDs
	// are assigned sequentially from 1 and never reused.
	ItemCount(ctx context.Context) (uint64, error)

	// TotalPrice returns the listing price plus the protocol fee, the
	// amount a buyer must attach to settle the listing.
	TotalPrice(ctx context.Context, itemID uint64) (*big.Int, error)

	// Purchase submits a settlement transaction for the listing,
	// attaching value as payment. The ledger rejects the purchase when
	// the listing is already sold or the attached value is wrong.
	Purchase(ctx context.Context, itemID uint64, value *big.Int) (Tx, error)

	// Address returns the contract's on-ledger address.
	Address() string
}
