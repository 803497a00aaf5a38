// Package pricing resolves the unit price (per kg) of a crop at a mandi.
//
// The ledger never fetches prices itself; it is handed an Oracle at startup.
// The default oracle is a static table seeded with the reference prices and
// optionally overlaid with a TOML price sheet.
package pricing

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Oracle returns the price per kg for a crop type at a mandi.
type Oracle interface {
	Price(ctx context.Context, cropType, mandiID string) (decimal.Decimal, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, cropType, mandiID string) (decimal.Decimal, error)

// Price calls f.
func (f OracleFunc) Price(ctx context.Context, cropType, mandiID string) (decimal.Decimal, error) {
	return f(ctx, cropType, mandiID)
}

// Reference prices per kg used when no sheet overrides them.
var (
	DefaultPrices = map[string]decimal.Decimal{
		"wheat":  decimal.NewFromInt(22),
		"rice":   decimal.NewFromInt(28),
		"cotton": decimal.NewFromInt(45),
	}
	DefaultFallback = decimal.NewFromInt(20)
)

// Table is an in-memory price table. Mandi-specific prices take precedence
// over the crop-wide price, which takes precedence over the fallback.
// It is safe for concurrent use.
type Table struct {
	mu       sync.RWMutex
	byCrop   map[string]decimal.Decimal
	byMandi  map[string]map[string]decimal.Decimal // crop → mandi → price
	fallback decimal.Decimal
}

// NewTable returns a table seeded with DefaultPrices and DefaultFallback.
func NewTable() *Table {
	t := &Table{
		byCrop:   make(map[string]decimal.Decimal, len(DefaultPrices)),
		byMandi:  make(map[string]map[string]decimal.Decimal),
		fallback: DefaultFallback,
	}
	for k, v := range DefaultPrices {
		t.byCrop[k] = v
	}
	return t
}

// Price implements Oracle. Lookups are case-insensitive on crop type.
func (t *Table) Price(_ context.Context, cropType, mandiID string) (decimal.Decimal, error) {
	crop := normalize(cropType)
	t.mu.RLock()
	defer t.mu.RUnlock()
	if m, ok := t.byMandi[crop]; ok {
		if p, ok := m[mandiID]; ok {
			return p, nil
		}
	}
	if p, ok := t.byCrop[crop]; ok {
		return p, nil
	}
	return t.fallback, nil
}

// Set sets the crop-wide price.
func (t *Table) Set(cropType string, price decimal.Decimal) {
	t.mu.Lock()
	t.byCrop[normalize(cropType)] = price
	t.mu.Unlock()
}

// SetMandi sets a mandi-specific price.
func (t *Table) SetMandi(cropType, mandiID string, price decimal.Decimal) {
	crop := normalize(cropType)
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.byMandi[crop]
	if !ok {
		m = make(map[string]decimal.Decimal)
		t.byMandi[crop] = m
	}
	m[mandiID] = price
}

// SetFallback sets the price used for unknown crop types.
func (t *Table) SetFallback(price decimal.Decimal) {
	t.mu.Lock()
	t.fallback = price
	t.mu.Unlock()
}

func normalize(cropType string) string {
	return strings.ToLower(strings.TrimSpace(cropType))
}
