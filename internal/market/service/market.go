// Package service holds the crop ledger's business rules: registration and
// minting, the token state machine, settlement, and wallets.
//
// Every mutation runs in a single store transaction that also appends its
// audit entry, so state and audit trail never disagree.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
	"github.com/jmerrifield20/cropledger/internal/pricing"
)

// WalletMode controls what settlement does with money.
type WalletMode string

const (
	// WalletReport computes and reports total_amount; moving funds is the
	// caller's job.
	WalletReport WalletMode = "report"

	// WalletEnforce debits the buyer and credits the seller inside the
	// settlement transaction.
	WalletEnforce WalletMode = "enforce"
)

// ParseWalletMode parses a configured wallet mode. Empty means report.
func ParseWalletMode(s string) (WalletMode, error) {
	switch WalletMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", WalletReport:
		return WalletReport, nil
	case WalletEnforce:
		return WalletEnforce, nil
	}
	return "", fmt.Errorf("unknown wallet mode %q (want report or enforce)", s)
}

// EventSink receives audit entries after their transaction commits.
// Publish must not block.
type EventSink interface {
	Publish(ctx context.Context, e *ledger.Entry)
}

// core is the state every component shares.
type core struct {
	store  store.Store
	locks  *keyedMutex
	now    func() time.Time
	events EventSink
	logger *zap.Logger
}

func (c *core) publish(ctx context.Context, e *ledger.Entry) {
	if c.events != nil && e != nil {
		c.events.Publish(ctx, e)
	}
}

// Market wires the ledger's components to one store.
type Market struct {
	Crops       *CropRegistry
	Tokens      *TokenService
	Settlements *SettlementEngine
	Accounts    *AccountService
	Reports     *Reports

	core *core
}

// New creates a Market over st. Prices come from oracle.
func New(st store.Store, oracle pricing.Oracle, mode WalletMode, logger *zap.Logger) *Market {
	c := &core{
		store:  st,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logger,
	}
	return &Market{
		Crops:       &CropRegistry{core: c},
		Tokens:      &TokenService{core: c},
		Settlements: &SettlementEngine{core: c, oracle: oracle, mode: mode},
		Accounts:    &AccountService{core: c},
		Reports:     &Reports{core: c},
		core:        c,
	}
}

// SetClock overrides the clock used for record timestamps.
func (m *Market) SetClock(now func() time.Time) { m.core.now = now }

// SetEventSink routes committed audit entries to sink.
func (m *Market) SetEventSink(sink EventSink) { m.core.events = sink }

// Store returns the underlying store.
func (m *Market) Store() store.Store { return m.core.store }

func newID(prefix string) string {
	return prefix + "_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// idSegment turns a crop type into something safe to embed in an id.
func idSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		}
		return '_'
	}, s)
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &model.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &model.ErrValidation{Msg: field + " is required"}
	}
	return nil
}
