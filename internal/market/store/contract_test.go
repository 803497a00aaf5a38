package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/store"
)

var ctx = context.Background()

var t0 = time.Date(2026, 3, 1, 9, 30, 0, 123456000, time.UTC)

// runContract exercises behaviour every Store must share.
func runContract(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("empty", func(t *testing.T) { testEmpty(t, open(t)) })
	t.Run("insert and read back", func(t *testing.T) { testInsertReadBack(t, open(t)) })
	t.Run("one token per crop", func(t *testing.T) { testOneTokenPerCrop(t, open(t)) })
	t.Run("one settlement per token", func(t *testing.T) { testOneSettlementPerToken(t, open(t)) })
	t.Run("rollback discards everything", func(t *testing.T) { testRollback(t, open(t)) })
	t.Run("token filters", func(t *testing.T) { testTokenFilters(t, open(t)) })
	t.Run("accounts", func(t *testing.T) { testAccounts(t, open(t)) })
	t.Run("chain", func(t *testing.T) { testChain(t, open(t)) })
	t.Run("concurrent appends", func(t *testing.T) { testConcurrentAppends(t, open(t)) })
}

func crop(id string) *model.Crop {
	return &model.Crop{
		CropID:       id,
		CropType:     "wheat",
		Quantity:     decimal.RequireFromString("100.5"),
		QualityGrade: model.GradeA,
		MandiID:      "M1",
		FarmerID:     "F1",
		RegisteredAt: t0,
	}
}

func token(id, cropID, owner string) *model.Token {
	return &model.Token{
		TokenID:      id,
		LinkedCropID: cropID,
		OwnerID:      owner,
		Status:       model.TokenCreated,
		CreatedAt:    t0,
		UpdatedAt:    t0,
	}
}

func seed(t *testing.T, s store.Store, cropID, tokenID, owner string) {
	t.Helper()
	err := s.InTx(ctx, func(tx store.Tx) error {
		c := crop(cropID)
		c.FarmerID = owner
		if err := tx.InsertCrop(ctx, c); err != nil {
			return err
		}
		if err := tx.InsertToken(ctx, token(tokenID, cropID, owner)); err != nil {
			return err
		}
		_, err := tx.Append(ctx, ledger.EventCropRegistered, owner, map[string]string{"crop_id": cropID})
		return err
	})
	if err != nil {
		t.Fatalf("seed %s: %v", cropID, err)
	}
}

func testEmpty(t *testing.T, s store.Store) {
	n, err := s.Len(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Len = %d, %v; want 0", n, err)
	}
	root, err := s.Root(ctx)
	if err != nil || root != ledger.GenesisHash {
		t.Errorf("Root = %q, %v; want GenesisHash", root, err)
	}
	report, err := s.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.TotalEntries != 0 || report.Message != "Audit log is empty" {
		t.Errorf("unexpected report on empty store: %+v", report)
	}
	if _, err := s.GetToken(ctx, "TOKEN_missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetToken missing: got %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(1) on empty chain: got %v, want ErrNotFound", err)
	}
	tokens, err := s.ListTokens(ctx, store.TokenFilter{})
	if err != nil || tokens == nil || len(tokens) != 0 {
		t.Errorf("ListTokens = %v, %v; want empty non-nil slice", tokens, err)
	}
}

func testInsertReadBack(t *testing.T, s store.Store) {
	seed(t, s, "CROP_WHEAT_1", "TOKEN_1", "F1")

	c, err := s.GetCrop(ctx, "CROP_WHEAT_1")
	if err != nil {
		t.Fatal(err)
	}
	if !c.Quantity.Equal(decimal.RequireFromString("100.5")) {
		t.Errorf("quantity: got %s, want 100.5", c.Quantity)
	}
	if !c.RegisteredAt.Equal(t0) {
		t.Errorf("registered_at: got %s, want %s", c.RegisteredAt, t0)
	}

	tok, err := s.GetToken(ctx, "TOKEN_1")
	if err != nil {
		t.Fatal(err)
	}
	if tok.LinkedCropID != "CROP_WHEAT_1" || tok.Status != model.TokenCreated || tok.OwnerID != "F1" {
		t.Errorf("unexpected token: %+v", tok)
	}
}

func testOneTokenPerCrop(t *testing.T, s store.Store) {
	seed(t, s, "CROP_WHEAT_1", "TOKEN_1", "F1")

	err := s.InTx(ctx, func(tx store.Tx) error {
		return tx.InsertToken(ctx, token("TOKEN_2", "CROP_WHEAT_1", "F1"))
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second token for crop: got %v, want ErrConflict", err)
	}
	tokens, _ := s.ListTokens(ctx, store.TokenFilter{})
	if len(tokens) != 1 {
		t.Errorf("expected 1 token, got %d", len(tokens))
	}
}

func testOneSettlementPerToken(t *testing.T, s store.Store) {
	seed(t, s, "CROP_WHEAT_1", "TOKEN_1", "F1")

	settle := func(id string) error {
		return s.InTx(ctx, func(tx store.Tx) error {
			return tx.InsertSettlement(ctx, &model.Settlement{
				SettlementID:     id,
				TokenID:          "TOKEN_1",
				SellerID:         "F1",
				BuyerID:          "B1",
				Quantity:         decimal.NewFromInt(100),
				PricePerKg:       decimal.NewFromInt(22),
				TotalAmount:      decimal.NewFromInt(2200),
				SettlementStatus: model.SettlementCompleted,
				SettlementTime:   t0,
			})
		})
	}
	if err := settle("SETTLEMENT_1"); err != nil {
		t.Fatal(err)
	}
	if err := settle("SETTLEMENT_2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second settlement: got %v, want ErrConflict", err)
	}

	all, err := s.ListSettlements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || !all[0].TotalAmount.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("unexpected settlements: %+v", all)
	}
}

func testRollback(t *testing.T, s store.Store) {
	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertCrop(ctx, crop("CROP_WHEAT_1")); err != nil {
			return err
		}
		if _, err := tx.Append(ctx, ledger.EventCropRegistered, "F1", nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx: got %v, want boom", err)
	}
	if _, err := s.GetCrop(ctx, "CROP_WHEAT_1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("crop survived rollback: %v", err)
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("audit entry survived rollback: len %d", n)
	}
}

func testTokenFilters(t *testing.T, s store.Store) {
	seed(t, s, "CROP_WHEAT_1", "TOKEN_1", "F1")
	seed(t, s, "CROP_WHEAT_2", "TOKEN_2", "F2")
	seed(t, s, "CROP_WHEAT_3", "TOKEN_3", "F1")

	err := s.InTx(ctx, func(tx store.Tx) error {
		tok, err := tx.GetTokenForUpdate(ctx, "TOKEN_3")
		if err != nil {
			return err
		}
		tok.Status = model.TokenListed
		tok.UpdatedAt = t0.Add(time.Minute)
		return tx.UpdateToken(ctx, tok)
	})
	if err != nil {
		t.Fatal(err)
	}

	ids := func(f store.TokenFilter) []string {
		tokens, err := s.ListTokens(ctx, f)
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			out = append(out, tok.TokenID)
		}
		return out
	}

	tests := []struct {
		name string
		f    store.TokenFilter
		want string
	}{
		{"all in insertion order", store.TokenFilter{}, "[TOKEN_1 TOKEN_2 TOKEN_3]"},
		{"by owner", store.TokenFilter{OwnerID: "F1"}, "[TOKEN_1 TOKEN_3]"},
		{"by status", store.TokenFilter{Status: model.TokenCreated}, "[TOKEN_1 TOKEN_2]"},
		{"both", store.TokenFilter{Status: model.TokenListed, OwnerID: "F1"}, "[TOKEN_3]"},
		{"no match", store.TokenFilter{Status: model.TokenSold}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fmt.Sprint(ids(tt.f)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func testAccounts(t *testing.T, s store.Store) {
	if _, err := s.GetAccount(ctx, "B1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown account: got %v, want ErrNotFound", err)
	}
	put := func(balance string) error {
		return s.InTx(ctx, func(tx store.Tx) error {
			return tx.PutAccount(ctx, &model.Account{
				AccountID: "B1",
				Balance:   decimal.RequireFromString(balance),
				UpdatedAt: t0,
			})
		})
	}
	if err := put("50000"); err != nil {
		t.Fatal(err)
	}
	if err := put("47800.25"); err != nil {
		t.Fatal(err)
	}
	if err := put("-1"); err == nil {
		t.Error("negative balance accepted")
	}

	a, err := s.GetAccount(ctx, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(decimal.RequireFromString("47800.25")) {
		t.Errorf("balance: got %s, want 47800.25", a.Balance)
	}
}

func testChain(t *testing.T, s store.Store) {
	for i := range 4 {
		seed(t, s, fmt.Sprintf("CROP_WHEAT_%d", i), fmt.Sprintf("TOKEN_%d", i), "F1")
	}

	entries, err := s.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d has seq %d", i, e.Seq)
		}
		if ledger.Hash(e) != e.CurrentHash {
			t.Errorf("entry %d hash does not survive the round trip", e.Seq)
		}
	}
	if entries[0].PreviousHash != ledger.GenesisHash {
		t.Errorf("first entry should link to GenesisHash")
	}

	e3, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if e3.CurrentHash != entries[2].CurrentHash {
		t.Errorf("Get(3) disagrees with Entries()[2]")
	}

	root, _ := s.Root(ctx)
	if root != entries[3].CurrentHash {
		t.Errorf("Root = %s, want newest hash", root)
	}

	report, err := s.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.TotalEntries != 4 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func testConcurrentAppends(t *testing.T, s store.Store) {
	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.InTx(ctx, func(tx store.Tx) error {
				_, err := tx.Append(ctx, ledger.EventWalletDeposited, "system", map[string]int{"i": i})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	report, err := s.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.TotalEntries != n {
		t.Errorf("concurrent appends broke the chain: %+v", report)
	}
}
