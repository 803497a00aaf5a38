package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
)

// snapshot is an immutable view of the whole store. Writers build a new one
// and publish it on commit; readers load whichever is current.
type snapshot struct {
	crops       map[string]*model.Crop
	cropOrder   []string
	tokens      map[string]*model.Token
	tokenOrder  []string
	byCrop      map[string]string // crop_id → token_id
	settlements []*model.Settlement
	settled     map[string]string // token_id → settlement_id
	accounts    map[string]*model.Account
	entries     []*ledger.Entry
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		crops:       maps.Clone(s.crops),
		cropOrder:   slices.Clone(s.cropOrder),
		tokens:      maps.Clone(s.tokens),
		tokenOrder:  slices.Clone(s.tokenOrder),
		byCrop:      maps.Clone(s.byCrop),
		settlements: slices.Clone(s.settlements),
		settled:     maps.Clone(s.settled),
		accounts:    maps.Clone(s.accounts),
		entries:     slices.Clone(s.entries),
	}
}

// MemoryStore is an in-process Store for tests and single-process
// deployments that do not need durability across restarts.
//
// Writers are serialised by a single mutex, which is also the chain tail
// lock. Each transaction works on a private copy of the state and publishes
// it atomically on success, so readers never block and never see a partial
// transaction.
type MemoryStore struct {
	writeMu sync.Mutex
	state   atomic.Pointer[snapshot]
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{now: time.Now}
	m.state.Store(&snapshot{
		crops:    make(map[string]*model.Crop),
		tokens:   make(map[string]*model.Token),
		byCrop:   make(map[string]string),
		settled:  make(map[string]string),
		accounts: make(map[string]*model.Account),
	})
	return m
}

// SetClock overrides the clock used for audit timestamps.
func (m *MemoryStore) SetClock(now func() time.Time) { m.now = now }

// InTx implements Store.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{next: m.state.Load().clone(), now: m.now}
	if err := fn(tx); err != nil {
		return err
	}
	m.state.Store(tx.next)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// GetCrop implements Store.
func (m *MemoryStore) GetCrop(_ context.Context, cropID string) (*model.Crop, error) {
	c, ok := m.state.Load().crops[cropID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCrops implements Store.
func (m *MemoryStore) ListCrops(_ context.Context) ([]*model.Crop, error) {
	s := m.state.Load()
	out := make([]*model.Crop, 0, len(s.cropOrder))
	for _, id := range s.cropOrder {
		cp := *s.crops[id]
		out = append(out, &cp)
	}
	return out, nil
}

// GetToken implements Store.
func (m *MemoryStore) GetToken(_ context.Context, tokenID string) (*model.Token, error) {
	t, ok := m.state.Load().tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// ListTokens implements Store.
func (m *MemoryStore) ListTokens(_ context.Context, f TokenFilter) ([]*model.Token, error) {
	s := m.state.Load()
	out := make([]*model.Token, 0)
	for _, id := range s.tokenOrder {
		t := s.tokens[id]
		if !f.match(t) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

// ListSettlements implements Store.
func (m *MemoryStore) ListSettlements(_ context.Context) ([]*model.Settlement, error) {
	s := m.state.Load()
	out := make([]*model.Settlement, 0, len(s.settlements))
	for _, st := range s.settlements {
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

// GetAccount implements Store.
func (m *MemoryStore) GetAccount(_ context.Context, accountID string) (*model.Account, error) {
	a, ok := m.state.Load().accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// Entries implements ledger.Ledger.
func (m *MemoryStore) Entries(_ context.Context) ([]*ledger.Entry, error) {
	entries := m.state.Load().entries
	out := make([]*ledger.Entry, len(entries))
	for i, e := range entries {
		out[i] = cloneEntry(e)
	}
	return out, nil
}

// Get implements ledger.Ledger.
func (m *MemoryStore) Get(_ context.Context, seq int64) (*ledger.Entry, error) {
	entries := m.state.Load().entries
	if seq < 1 || seq > int64(len(entries)) {
		return nil, fmt.Errorf("audit entry %d: %w", seq, ErrNotFound)
	}
	return cloneEntry(entries[seq-1]), nil
}

// Len implements ledger.Ledger.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	return len(m.state.Load().entries), nil
}

// Verify implements ledger.Ledger.
func (m *MemoryStore) Verify(_ context.Context) (*ledger.Report, error) {
	return ledger.VerifyEntries(m.state.Load().entries), nil
}

// Root implements ledger.Ledger.
func (m *MemoryStore) Root(_ context.Context) (string, error) {
	entries := m.state.Load().entries
	if len(entries) == 0 {
		return ledger.GenesisHash, nil
	}
	return entries[len(entries)-1].CurrentHash, nil
}

// Tamper replaces the stored entry at seq with e. It bypasses the chain and
// exists so tests can exercise verification against a corrupted trail.
func (m *MemoryStore) Tamper(seq int64, e *ledger.Entry) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	next := m.state.Load().clone()
	next.entries[seq-1] = cloneEntry(e)
	m.state.Store(next)
}

func cloneEntry(e *ledger.Entry) *ledger.Entry {
	cp := *e
	cp.Data = slices.Clone(e.Data)
	return &cp
}

// memTx mutates a private snapshot. Stored values are never modified in
// place because earlier snapshots may still share them.
type memTx struct {
	next *snapshot
	now  func() time.Time
}

func (tx *memTx) GetCrop(_ context.Context, cropID string) (*model.Crop, error) {
	c, ok := tx.next.crops[cropID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (tx *memTx) GetTokenForUpdate(_ context.Context, tokenID string) (*model.Token, error) {
	t, ok := tx.next.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (tx *memTx) GetAccountForUpdate(_ context.Context, accountID string) (*model.Account, error) {
	a, ok := tx.next.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (tx *memTx) InsertCrop(_ context.Context, c *model.Crop) error {
	if _, ok := tx.next.crops[c.CropID]; ok {
		return fmt.Errorf("crop %s: %w", c.CropID, ErrConflict)
	}
	cp := *c
	tx.next.crops[c.CropID] = &cp
	tx.next.cropOrder = append(tx.next.cropOrder, c.CropID)
	return nil
}

func (tx *memTx) InsertToken(_ context.Context, t *model.Token) error {
	if _, ok := tx.next.tokens[t.TokenID]; ok {
		return fmt.Errorf("token %s: %w", t.TokenID, ErrConflict)
	}
	if _, ok := tx.next.crops[t.LinkedCropID]; !ok {
		return fmt.Errorf("token %s: crop %s: %w", t.TokenID, t.LinkedCropID, ErrNotFound)
	}
	if existing, ok := tx.next.byCrop[t.LinkedCropID]; ok {
		return fmt.Errorf("crop %s already has token %s: %w", t.LinkedCropID, existing, ErrConflict)
	}
	cp := *t
	tx.next.tokens[t.TokenID] = &cp
	tx.next.tokenOrder = append(tx.next.tokenOrder, t.TokenID)
	tx.next.byCrop[t.LinkedCropID] = t.TokenID
	return nil
}

func (tx *memTx) UpdateToken(_ context.Context, t *model.Token) error {
	if _, ok := tx.next.tokens[t.TokenID]; !ok {
		return fmt.Errorf("token %s: %w", t.TokenID, ErrNotFound)
	}
	cp := *t
	tx.next.tokens[t.TokenID] = &cp
	return nil
}

func (tx *memTx) InsertSettlement(_ context.Context, s *model.Settlement) error {
	if existing, ok := tx.next.settled[s.TokenID]; ok {
		return fmt.Errorf("token %s already settled by %s: %w", s.TokenID, existing, ErrConflict)
	}
	cp := *s
	tx.next.settlements = append(tx.next.settlements, &cp)
	tx.next.settled[s.TokenID] = s.SettlementID
	return nil
}

func (tx *memTx) PutAccount(_ context.Context, a *model.Account) error {
	if a.Balance.IsNegative() {
		return fmt.Errorf("account %s: negative balance %s", a.AccountID, a.Balance)
	}
	cp := *a
	tx.next.accounts[a.AccountID] = &cp
	return nil
}

func (tx *memTx) Append(_ context.Context, eventType ledger.EventType, actor string, payload any) (*ledger.Entry, error) {
	var prev *ledger.Entry
	if n := len(tx.next.entries); n > 0 {
		prev = tx.next.entries[n-1]
	}
	e, err := ledger.Next(prev, eventType, actor, payload, tx.now())
	if err != nil {
		return nil, err
	}
	tx.next.entries = append(tx.next.entries, e)
	return e, nil
}
