// Package store persists crops, tokens, settlements, accounts and the audit
// chain. Every implementation commits a state change and the audit entry that
// describes it in the same transaction.
package store

import (
	"context"
	"errors"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert would violate a uniqueness
	// constraint, such as a second token for the same crop.
	ErrConflict = errors.New("conflict")
)

// TokenFilter narrows ListTokens. Zero fields match everything.
type TokenFilter struct {
	Status  model.TokenStatus
	OwnerID string
}

func (f TokenFilter) match(t *model.Token) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.OwnerID != "" && t.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// Store is the durable state of the ledger. Reads never block writers.
// All list results are in insertion order.
type Store interface {
	ledger.Ledger

	GetCrop(ctx context.Context, cropID string) (*model.Crop, error)
	ListCrops(ctx context.Context) ([]*model.Crop, error)
	GetToken(ctx context.Context, tokenID string) (*model.Token, error)
	ListTokens(ctx context.Context, f TokenFilter) ([]*model.Token, error)
	ListSettlements(ctx context.Context) ([]*model.Settlement, error)
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)

	// InTx runs fn in a single transaction. If fn returns an error nothing
	// it wrote is kept, including audit entries.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// Tx is the write side, only valid inside InTx.
type Tx interface {
	GetCrop(ctx context.Context, cropID string) (*model.Crop, error)

	// GetTokenForUpdate reads a token and holds it against concurrent
	// writers until the transaction ends.
	GetTokenForUpdate(ctx context.Context, tokenID string) (*model.Token, error)

	// GetAccountForUpdate is GetTokenForUpdate for accounts. It returns
	// ErrNotFound for accounts that have never been written.
	GetAccountForUpdate(ctx context.Context, accountID string) (*model.Account, error)

	InsertCrop(ctx context.Context, c *model.Crop) error
	InsertToken(ctx context.Context, t *model.Token) error
	UpdateToken(ctx context.Context, t *model.Token) error
	InsertSettlement(ctx context.Context, s *model.Settlement) error
	PutAccount(ctx context.Context, a *model.Account) error

	// Append adds the next audit entry. Call it last: it takes the chain
	// tail lock, which is then held until commit.
	Append(ctx context.Context, eventType ledger.EventType, actor string, payload any) (*ledger.Entry, error)
}
