package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/ledger"
	"github.com/jmerrifield20/cropledger/internal/market/model"
	"github.com/jmerrifield20/cropledger/internal/market/service"
	"github.com/jmerrifield20/cropledger/internal/market/store"
	"github.com/jmerrifield20/cropledger/internal/pricing"
)

var ctx = context.Background()

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newMarket(t *testing.T, mode service.WalletMode) *service.Market {
	t.Helper()
	return service.New(store.NewMemoryStore(), pricing.NewTable(), mode, zap.NewNop())
}

func wheat(farmer string, qty string) model.RegisterRequest {
	return model.RegisterRequest{
		CropType:     "wheat",
		Quantity:     dec(qty),
		QualityGrade: "A",
		MandiID:      "M1",
		FarmerID:     farmer,
	}
}

func register(t *testing.T, m *service.Market, req model.RegisterRequest) *model.Token {
	t.Helper()
	_, tok, err := m.Crops.Register(ctx, req)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return tok
}

func auditLen(t *testing.T, m *service.Market) int {
	t.Helper()
	n, err := m.Store().Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func wantKind(t *testing.T, err error, kind string) {
	t.Helper()
	if got := model.Kind(err); got != kind {
		t.Fatalf("error kind: got %q (%v), want %q", got, err, kind)
	}
}

type backend struct {
	name string
	open func(t *testing.T) store.Store
}

var backends = []backend{
	{"memory", func(t *testing.T) store.Store { return store.NewMemoryStore() }},
	{"sqlite", func(t *testing.T) store.Store {
		s, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func TestWheatScenario(t *testing.T) {
	for _, tc := range backends {
		t.Run(tc.name, func(t *testing.T) {
			m := service.New(tc.open(t), pricing.NewTable(), service.WalletReport, zap.NewNop())

			crop, tok, err := m.Crops.Register(ctx, wheat("F1", "100"))
			if err != nil {
				t.Fatal(err)
			}
			if tok.Status != model.TokenCreated || tok.OwnerID != "F1" || tok.LinkedCropID != crop.CropID {
				t.Fatalf("unexpected minted token: %+v", tok)
			}

			if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
				t.Fatal(err)
			}
			s, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
			if err != nil {
				t.Fatal(err)
			}

			if !s.TotalAmount.Equal(dec("2200")) {
				t.Errorf("total: got %s, want 2200", s.TotalAmount)
			}
			if !s.PricePerKg.Equal(dec("22")) || s.SellerID != "F1" || s.BuyerID != "B1" {
				t.Errorf("unexpected settlement: %+v", s)
			}
			if s.SettlementStatus != model.SettlementCompleted || s.WalletDebited {
				t.Errorf("unexpected settlement status: %+v", s)
			}

			got, err := m.Tokens.Get(ctx, tok.TokenID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != model.TokenSold || got.OwnerID != "B1" {
				t.Errorf("token after settlement: %+v", got)
			}

			report, err := m.Reports.Verify(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !report.Valid || report.TotalEntries != 3 {
				t.Errorf("unexpected report: %+v", report)
			}

			entries, _ := m.Store().Entries(ctx)
			wantTypes := []ledger.EventType{
				ledger.EventCropRegistered, ledger.EventTokenListed, ledger.EventSettlementExecuted,
			}
			wantActors := []string{"F1", "F1", "B1"}
			for i, e := range entries {
				if e.EventType != wantTypes[i] || e.Actor != wantActors[i] {
					t.Errorf("entry %d: got %s by %s, want %s by %s", e.Seq, e.EventType, e.Actor, wantTypes[i], wantActors[i])
				}
			}
		})
	}
}

func TestRegister_Validation(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tests := []struct {
		name   string
		mutate func(*model.RegisterRequest)
	}{
		{"zero quantity", func(r *model.RegisterRequest) { r.Quantity = decimal.Zero }},
		{"negative quantity", func(r *model.RegisterRequest) { r.Quantity = dec("-5") }},
		{"missing crop type", func(r *model.RegisterRequest) { r.CropType = "  " }},
		{"missing mandi", func(r *model.RegisterRequest) { r.MandiID = "" }},
		{"missing farmer", func(r *model.RegisterRequest) { r.FarmerID = "" }},
		{"bad grade", func(r *model.RegisterRequest) { r.QualityGrade = "D" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := wheat("F1", "100")
			tt.mutate(&req)
			_, _, err := m.Crops.Register(ctx, req)
			wantKind(t, err, model.KindValidation)
		})
	}
	if n := auditLen(t, m); n != 0 {
		t.Errorf("failed registrations wrote %d audit entries", n)
	}
}

func TestRegister_KeepsCropTypeAsSubmitted(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	req := wheat("F1", "10")
	req.CropType = " Basmati Rice "
	crop, _, err := m.Crops.Register(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if crop.CropType != "Basmati Rice" {
		t.Errorf("crop_type: got %q", crop.CropType)
	}
	if !strings.HasPrefix(crop.CropID, "CROP_BASMATI_RICE_") {
		t.Errorf("crop_id prefix: got %q", crop.CropID)
	}
}

func TestExecute_PricesMixedCaseCropType(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	req := wheat("F1", "100")
	req.CropType = "Wheat"
	tok := register(t, m, req)
	if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
		t.Fatal(err)
	}
	s, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if !s.PricePerKg.Equal(dec("22")) || !s.TotalAmount.Equal(dec("2200")) {
		t.Errorf("price %s total %s, want 22 and 2200", s.PricePerKg, s.TotalAmount)
	}
}

func TestListAndExecute_TrimIDs(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))
	if _, err := m.Tokens.List(ctx, " "+tok.TokenID, "F1 "); err != nil {
		t.Fatal(err)
	}
	s, err := m.Settlements.Execute(ctx, tok.TokenID+" ", " B1")
	if err != nil {
		t.Fatal(err)
	}
	if s.BuyerID != "B1" || s.TokenID != tok.TokenID {
		t.Errorf("settlement ids not trimmed: %+v", s)
	}
}

func TestRegister_OneTokenPerCrop(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	for range 5 {
		register(t, m, wheat("F1", "1"))
	}
	crops, _ := m.Crops.All(ctx)
	tokens, _ := m.Tokens.All(ctx)
	if len(crops) != 5 || len(tokens) != 5 {
		t.Fatalf("got %d crops and %d tokens, want 5 and 5", len(crops), len(tokens))
	}
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if seen[tok.LinkedCropID] {
			t.Errorf("crop %s has more than one token", tok.LinkedCropID)
		}
		seen[tok.LinkedCropID] = true
	}
}

func TestList_Errors(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))

	_, err := m.Tokens.List(ctx, "TOKEN_missing", "F1")
	wantKind(t, err, model.KindNotFound)

	_, err = m.Tokens.List(ctx, tok.TokenID, "F2")
	wantKind(t, err, model.KindAuthorization)

	_, err = m.Tokens.List(ctx, tok.TokenID, "")
	wantKind(t, err, model.KindValidation)

	if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
		t.Fatal(err)
	}
	before := auditLen(t, m)

	_, err = m.Tokens.List(ctx, tok.TokenID, "F1")
	wantKind(t, err, model.KindInvalidState)
	var stateErr *model.ErrInvalidState
	if !errors.As(err, &stateErr) || stateErr.Status != model.TokenListed {
		t.Errorf("double list should report status LISTED, got %v", err)
	}
	if after := auditLen(t, m); after != before {
		t.Errorf("failed list appended audit entries: %d → %d", before, after)
	}
}

func TestList_OwnershipCheckedBeforeStatus(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))
	if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
		t.Fatal(err)
	}
	_, err := m.Tokens.List(ctx, tok.TokenID, "F2")
	wantKind(t, err, model.KindAuthorization)
}

func TestExecute_NotListedHasNoSideEffects(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))
	before := auditLen(t, m)

	_, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	wantKind(t, err, model.KindInvalidState)

	got, _ := m.Tokens.Get(ctx, tok.TokenID)
	if got.Status != model.TokenCreated || got.OwnerID != "F1" {
		t.Errorf("token changed by failed execute: %+v", got)
	}
	settlements, _ := m.Settlements.All(ctx)
	if len(settlements) != 0 {
		t.Errorf("failed execute stored %d settlements", len(settlements))
	}
	if after := auditLen(t, m); after != before {
		t.Errorf("failed execute appended audit entries: %d → %d", before, after)
	}

	_, err = m.Settlements.Execute(ctx, "TOKEN_missing", "B1")
	wantKind(t, err, model.KindNotFound)
	_, err = m.Settlements.Execute(ctx, tok.TokenID, " ")
	wantKind(t, err, model.KindValidation)
}

func TestExecute_SoldTokenCannotBeSoldAgain(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))
	m.Tokens.List(ctx, tok.TokenID, "F1")
	if _, err := m.Settlements.Execute(ctx, tok.TokenID, "B1"); err != nil {
		t.Fatal(err)
	}

	_, err := m.Settlements.Execute(ctx, tok.TokenID, "B2")
	wantKind(t, err, model.KindInvalidState)

	// The new owner cannot relist either: SOLD is terminal.
	_, err = m.Tokens.List(ctx, tok.TokenID, "B1")
	wantKind(t, err, model.KindInvalidState)
}

func TestExecute_SelfPurchaseRejected(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	tok := register(t, m, wheat("F1", "100"))
	m.Tokens.List(ctx, tok.TokenID, "F1")

	_, err := m.Settlements.Execute(ctx, tok.TokenID, "F1")
	wantKind(t, err, model.KindAuthorization)

	got, _ := m.Tokens.Get(ctx, tok.TokenID)
	if got.Status != model.TokenListed {
		t.Errorf("self-purchase changed status to %s", got.Status)
	}
}

func TestExecute_ExactTotals(t *testing.T) {
	oracle := pricing.OracleFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		return dec("0.2"), nil
	})
	m := service.New(store.NewMemoryStore(), oracle, service.WalletReport, zap.NewNop())

	tok := register(t, m, wheat("F1", "0.1"))
	m.Tokens.List(ctx, tok.TokenID, "F1")
	s, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if s.TotalAmount.String() != "0.02" {
		t.Errorf("0.1 × 0.2: got %s, want 0.02", s.TotalAmount)
	}
}

func TestExecute_OracleFailureRollsBack(t *testing.T) {
	oracle := pricing.OracleFunc(func(context.Context, string, string) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("feed unavailable")
	})
	m := service.New(store.NewMemoryStore(), oracle, service.WalletReport, zap.NewNop())

	tok := register(t, m, wheat("F1", "100"))
	m.Tokens.List(ctx, tok.TokenID, "F1")
	before := auditLen(t, m)

	_, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	wantKind(t, err, model.KindInternal)

	got, _ := m.Tokens.Get(ctx, tok.TokenID)
	if got.Status != model.TokenListed || got.OwnerID != "F1" {
		t.Errorf("token changed after oracle failure: %+v", got)
	}
	if after := auditLen(t, m); after != before {
		t.Errorf("oracle failure appended audit entries")
	}
}

func TestExecute_ConcurrentBuyersOneWins(t *testing.T) {
	for _, tc := range backends {
		t.Run(tc.name, func(t *testing.T) {
			m := service.New(tc.open(t), pricing.NewTable(), service.WalletReport, zap.NewNop())
			tok := register(t, m, wheat("F1", "100"))
			if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
				t.Fatal(err)
			}

			const buyers = 8
			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				won     []string
				invalid int
			)
			for i := range buyers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					buyer := "B" + string(rune('1'+i))
					_, err := m.Settlements.Execute(ctx, tok.TokenID, buyer)
					mu.Lock()
					defer mu.Unlock()
					switch model.Kind(err) {
					case "":
						won = append(won, buyer)
					case model.KindInvalidState:
						invalid++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			if len(won) != 1 || invalid != buyers-1 {
				t.Fatalf("winners %v, invalid %d; want exactly one winner", won, invalid)
			}
			settlements, _ := m.Settlements.All(ctx)
			if len(settlements) != 1 || settlements[0].BuyerID != won[0] {
				t.Errorf("settlements: %+v", settlements)
			}
			got, _ := m.Tokens.Get(ctx, tok.TokenID)
			if got.OwnerID != won[0] {
				t.Errorf("owner %s, winner %s", got.OwnerID, won[0])
			}

			entries, err := m.Store().Entries(ctx)
			if err != nil {
				t.Fatal(err)
			}
			executed := 0
			for _, e := range entries {
				if e.EventType == ledger.EventSettlementExecuted {
					executed++
				}
			}
			if executed != 1 {
				t.Errorf("%d SETTLEMENT_EXECUTED entries, want 1", executed)
			}
			report, err := m.Reports.Verify(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if !report.Valid || report.TotalEntries != 3 {
				t.Errorf("report %+v, want 3 valid entries", report)
			}
		})
	}
}

func TestAuditCountMatchesSuccessfulMutations(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	succeeded := 0
	ok := func(err error) {
		if err == nil {
			succeeded++
		}
	}

	a := register(t, m, wheat("F1", "100"))
	succeeded++
	b := register(t, m, wheat("F2", "50"))
	succeeded++

	_, err := m.Tokens.List(ctx, a.TokenID, "F1")
	ok(err)
	_, err = m.Tokens.List(ctx, a.TokenID, "F1") // already listed
	ok(err)
	_, err = m.Tokens.List(ctx, b.TokenID, "F1") // not the owner
	ok(err)
	_, err = m.Settlements.Execute(ctx, b.TokenID, "B1") // not listed
	ok(err)
	_, err = m.Settlements.Execute(ctx, a.TokenID, "B1")
	ok(err)
	_, err = m.Accounts.Deposit(ctx, "B1", dec("100"))
	ok(err)
	_, err = m.Accounts.Deposit(ctx, "B1", dec("0"))
	ok(err)

	if succeeded != 5 {
		t.Fatalf("expected 5 successful mutations, got %d", succeeded)
	}
	report, err := m.Reports.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.TotalEntries != succeeded {
		t.Errorf("report %+v, want %d valid entries", report, succeeded)
	}
}

func TestConcurrentRegistrationsKeepChainValid(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := wheat("F1", "10")
			if i%2 == 0 {
				req.CropType = "rice"
			}
			if _, _, err := m.Crops.Register(ctx, req); err != nil {
				t.Errorf("Register: %v", err)
			}
		}()
	}
	wg.Wait()

	report, _ := m.Reports.Verify(ctx)
	if !report.Valid || report.TotalEntries != 20 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestQueries(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	a := register(t, m, wheat("F1", "1"))
	b := register(t, m, wheat("F2", "1"))
	c := register(t, m, wheat("F1", "1"))
	m.Tokens.List(ctx, c.TokenID, "F1")

	ids := func(tokens []*model.Token, err error) []string {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		out := make([]string, 0, len(tokens))
		for _, tok := range tokens {
			out = append(out, tok.TokenID)
		}
		return out
	}
	eq := func(got, want []string) bool {
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}

	if got := ids(m.Tokens.QueryByStatus(ctx, model.TokenCreated)); !eq(got, []string{a.TokenID, b.TokenID}) {
		t.Errorf("CREATED: %v", got)
	}
	if got := ids(m.Tokens.QueryByStatus(ctx, model.TokenListed)); !eq(got, []string{c.TokenID}) {
		t.Errorf("LISTED: %v", got)
	}
	if got := ids(m.Tokens.QueryByOwner(ctx, "F1")); !eq(got, []string{a.TokenID, c.TokenID}) {
		t.Errorf("owner F1: %v", got)
	}
	if got := ids(m.Tokens.QueryByOwner(ctx, "nobody")); len(got) != 0 {
		t.Errorf("owner nobody: %v", got)
	}
	_, err := m.Crops.Get(ctx, "CROP_missing")
	wantKind(t, err, model.KindNotFound)
}

func TestEnforce_InsufficientFunds(t *testing.T) {
	m := newMarket(t, service.WalletEnforce)
	tok := register(t, m, wheat("F1", "100"))
	m.Tokens.List(ctx, tok.TokenID, "F1")
	if _, err := m.Accounts.Deposit(ctx, "B1", dec("2199.99")); err != nil {
		t.Fatal(err)
	}
	before := auditLen(t, m)

	_, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	wantKind(t, err, model.KindInsufficientFunds)

	bal, _ := m.Accounts.Balance(ctx, "B1")
	if !bal.Equal(dec("2199.99")) {
		t.Errorf("buyer balance changed: %s", bal)
	}
	got, _ := m.Tokens.Get(ctx, tok.TokenID)
	if got.Status != model.TokenListed {
		t.Errorf("token status changed: %s", got.Status)
	}
	if after := auditLen(t, m); after != before {
		t.Errorf("failed settlement appended audit entries")
	}
}

func TestEnforce_MovesFunds(t *testing.T) {
	m := newMarket(t, service.WalletEnforce)
	tok := register(t, m, wheat("F1", "100"))
	m.Tokens.List(ctx, tok.TokenID, "F1")
	if _, err := m.Accounts.Deposit(ctx, "B1", dec("50000")); err != nil {
		t.Fatal(err)
	}

	s, err := m.Settlements.Execute(ctx, tok.TokenID, "B1")
	if err != nil {
		t.Fatal(err)
	}
	if !s.WalletDebited {
		t.Error("settlement should record the wallet debit")
	}

	buyer, _ := m.Accounts.Balance(ctx, "B1")
	seller, _ := m.Accounts.Balance(ctx, "F1")
	if !buyer.Equal(dec("47800")) || !seller.Equal(dec("2200")) {
		t.Errorf("balances: buyer %s seller %s, want 47800 and 2200", buyer, seller)
	}
}

func TestAccounts(t *testing.T) {
	m := newMarket(t, service.WalletReport)

	bal, err := m.Accounts.Balance(ctx, "nobody")
	if err != nil || !bal.IsZero() {
		t.Errorf("unknown account: %s, %v", bal, err)
	}

	m.Accounts.Deposit(ctx, "B1", dec("10.5"))
	a, err := m.Accounts.Deposit(ctx, "B1", dec("0.25"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Balance.Equal(dec("10.75")) {
		t.Errorf("balance: got %s, want 10.75", a.Balance)
	}

	_, err = m.Accounts.Deposit(ctx, "B1", dec("-1"))
	wantKind(t, err, model.KindValidation)
	_, err = m.Accounts.Deposit(ctx, "", dec("1"))
	wantKind(t, err, model.KindValidation)
}

func TestReports(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	a := register(t, m, wheat("F1", "100"))
	b := register(t, m, wheat("F2", "50"))
	register(t, m, wheat("F1", "10"))
	m.Tokens.List(ctx, a.TokenID, "F1")
	m.Tokens.List(ctx, b.TokenID, "F2")
	m.Settlements.Execute(ctx, a.TokenID, "B1") // 2200
	m.Settlements.Execute(ctx, b.TokenID, "B1") // 1100

	st, err := m.Reports.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalCrops != 3 || st.TotalTokens != 3 || st.TotalSettlements != 2 || st.AuditEntries != 7 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.TokenStatusBreakdown[model.TokenCreated] != 1 || st.TokenStatusBreakdown[model.TokenSold] != 2 ||
		st.TokenStatusBreakdown[model.TokenListed] != 0 {
		t.Errorf("breakdown: %v", st.TokenStatusBreakdown)
	}
	if !st.TotalSettlementVolume.Equal(dec("3300")) || !st.AvgSettlementValue.Equal(dec("1650")) {
		t.Errorf("volume %s avg %s", st.TotalSettlementVolume, st.AvgSettlementValue)
	}

	cr, err := m.Reports.Compliance(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !cr.AuditTrailIntegrity.Valid || cr.TotalRegisteredFarmers != 2 ||
		cr.TotalActiveTokens != 1 || cr.TotalCompletedSettlements != 2 {
		t.Errorf("unexpected compliance report: %+v", cr)
	}
	if len(cr.RegulatoryNotes) != 5 {
		t.Errorf("expected 5 regulatory notes, got %d", len(cr.RegulatoryNotes))
	}
}

func TestEmptyLedgerReports(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	report, err := m.Reports.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid || report.TotalEntries != 0 || report.Message != "Audit log is empty" {
		t.Errorf("unexpected report: %+v", report)
	}
	st, _ := m.Reports.Stats(ctx)
	if !st.AvgSettlementValue.IsZero() || !st.TotalSettlementVolume.IsZero() {
		t.Errorf("empty stats: %+v", st)
	}
}

func TestSetClock(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 999, time.UTC)
	m.SetClock(func() time.Time { return fixed })

	crop, tok, err := m.Crops.Register(ctx, wheat("F1", "1"))
	if err != nil {
		t.Fatal(err)
	}
	want := fixed.Truncate(time.Microsecond)
	if !crop.RegisteredAt.Equal(want) || !tok.CreatedAt.Equal(want) {
		t.Errorf("timestamps: crop %s token %s, want %s", crop.RegisteredAt, tok.CreatedAt, want)
	}
}

func TestParseWalletMode(t *testing.T) {
	for in, want := range map[string]service.WalletMode{
		"":         service.WalletReport,
		"report":   service.WalletReport,
		"ENFORCE ": service.WalletEnforce,
	} {
		got, err := service.ParseWalletMode(in)
		if err != nil || got != want {
			t.Errorf("ParseWalletMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := service.ParseWalletMode("escrow"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*ledger.Entry
}

func (s *recordingSink) Publish(_ context.Context, e *ledger.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func TestEventSinkSeesOnlyCommittedEntries(t *testing.T) {
	m := newMarket(t, service.WalletReport)
	sink := &recordingSink{}
	m.SetEventSink(sink)

	tok := register(t, m, wheat("F1", "100"))
	if _, err := m.Tokens.List(ctx, tok.TokenID, "F2"); err == nil {
		t.Fatal("expected ownership error")
	}
	if _, err := m.Tokens.List(ctx, tok.TokenID, "F1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Settlements.Execute(ctx, tok.TokenID, "B1"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accounts.Deposit(ctx, "B1", dec("10")); err != nil {
		t.Fatal(err)
	}

	want := []ledger.EventType{
		ledger.EventCropRegistered,
		ledger.EventTokenListed,
		ledger.EventSettlementExecuted,
		ledger.EventWalletDeposited,
	}
	if len(sink.entries) != len(want) {
		t.Fatalf("sink saw %d entries, want %d", len(sink.entries), len(want))
	}
	stored, err := m.Store().Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range sink.entries {
		if e.EventType != want[i] || e.CurrentHash != stored[i].CurrentHash {
			t.Errorf("entry %d: got %s/%s, want %s/%s", i, e.EventType, e.CurrentHash, want[i], stored[i].CurrentHash)
		}
	}
}
