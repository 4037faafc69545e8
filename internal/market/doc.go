// Package market defines the shared domain types and error taxonomy for
// the marketplace client core.
//
// The ledger is the source of truth for everything in this package:
// listings are never deleted, only marked sold, and the catalog is always
// rebuilt in full from a fresh ledger read rather than patched in place.
// Types here are plain values with no behavior beyond validation helpers;
// the pipelines in internal/listing, internal/catalog and internal/purchase
// produce and consume them.
//
// Amounts are integers in the smallest currency unit (*big.Int), matching
// ledger semantics. Fractional prices do not exist at this layer.
package market
