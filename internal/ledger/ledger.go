// Package ledger implements the hash-chained audit log that backs every
// mutation in the crop ledger.
//
// Entries are numbered from 1. The first entry links to GenesisHash (64 hex
// zeros); every later entry records the hash of its predecessor, so editing
// any stored field breaks verification from that entry onwards.
//
// Appends happen inside a store transaction (see internal/market/store), which
// keeps the entry and the state change it describes in one unit of
// durability. This package owns the entry format, the hash, and verification.
package ledger

import "context"

// Ledger is the read side of the audit log. Every store implements it.
type Ledger interface {
	// Entries returns the whole chain ordered by seq.
	Entries(ctx context.Context) ([]*Entry, error)

	// Get returns the entry with the given seq.
	Get(ctx context.Context, seq int64) (*Entry, error)

	// Len returns the number of entries in the chain.
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and reports the first broken entry.
	// A broken chain is reported, not returned as an error; err is reserved
	// for failures reading the chain.
	Verify(ctx context.Context) (*Report, error)

	// Root returns the hash of the newest entry, or GenesisHash when empty.
	Root(ctx context.Context) (string, error)
}
