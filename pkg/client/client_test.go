package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/internal/market/handler"
	"github.com/jmerrifield20/cropledger/internal/market/service"
	"github.com/jmerrifield20/cropledger/internal/market/store"
	"github.com/jmerrifield20/cropledger/internal/pricing"
	"github.com/jmerrifield20/cropledger/pkg/client"
)

func newServer(t *testing.T, mode service.WalletMode, actors *identity.ActorTokens) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	oracle := pricing.NewTable()
	m := service.New(store.NewMemoryStore(), oracle, mode, zap.NewNop())
	srv := httptest.NewServer(handler.NewRouter(ctx, m, oracle, handler.RouterConfig{Actors: actors}, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func wheat(farmer string) client.RegisterCropRequest {
	return client.RegisterCropRequest{
		CropType:     "wheat",
		Quantity:     decimal.NewFromInt(100),
		QualityGrade: "A",
		MandiID:      "M1",
		FarmerID:     farmer,
	}
}

func TestEndToEnd(t *testing.T) {
	srv := newServer(t, service.WalletReport, nil)
	ctx := context.Background()
	c := client.MustNew(srv.URL)

	reg, err := c.RegisterCrop(ctx, wheat("F1"))
	if err != nil {
		t.Fatalf("RegisterCrop: %v", err)
	}
	if reg.Token.Status != client.StatusCreated || reg.Token.LinkedCropID != reg.Crop.CropID {
		t.Errorf("unexpected token: %+v", reg.Token)
	}

	if _, err := c.ListToken(ctx, reg.Token.TokenID, "F1"); err != nil {
		t.Fatalf("ListToken: %v", err)
	}
	s, err := c.ExecuteSettlement(ctx, reg.Token.TokenID, "B1")
	if err != nil {
		t.Fatalf("ExecuteSettlement: %v", err)
	}
	if !s.TotalAmount.Equal(decimal.NewFromInt(2200)) {
		t.Errorf("total = %s, want 2200", s.TotalAmount)
	}

	tok, crop, err := c.GetToken(ctx, reg.Token.TokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Status != client.StatusSold || tok.OwnerID != "B1" || crop.FarmerID != "F1" {
		t.Errorf("after sale: token=%+v crop=%+v", tok, crop)
	}

	trail, err := c.AuditTrail(ctx)
	if err != nil {
		t.Fatalf("AuditTrail: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(trail))
	}
	root, err := c.AuditRoot(ctx)
	if err != nil || root != trail[2].CurrentHash {
		t.Errorf("root %q (err %v), want %q", root, err, trail[2].CurrentHash)
	}
	e, err := c.AuditEntry(ctx, 3)
	if err != nil || e.EventType != "SETTLEMENT_EXECUTED" || e.Actor != "B1" {
		t.Errorf("AuditEntry(3) = %+v, %v", e, err)
	}

	report, err := c.VerifyAudit(ctx)
	if err != nil || !report.Valid || report.TotalEntries != 3 {
		t.Errorf("VerifyAudit = %+v, %v", report, err)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalSettlements != 1 || stats.TokenStatusBreakdown[client.StatusSold] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	comp, err := c.Compliance(ctx)
	if err != nil || !comp.AuditTrailIntegrity.Valid || comp.TotalRegisteredFarmers != 1 {
		t.Errorf("Compliance = %+v, %v", comp, err)
	}

	settlements, err := c.ListSettlements(ctx)
	if err != nil || len(settlements) != 1 {
		t.Errorf("ListSettlements = %d, %v", len(settlements), err)
	}
	byOwner, err := c.TokensByOwner(ctx, "B1")
	if err != nil || len(byOwner) != 1 {
		t.Errorf("TokensByOwner = %d, %v", len(byOwner), err)
	}
	sold, err := c.TokensByStatus(ctx, "sold")
	if err != nil || len(sold) != 1 {
		t.Errorf("TokensByStatus = %d, %v", len(sold), err)
	}
	if err := c.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestAPIErrorKinds(t *testing.T) {
	srv := newServer(t, service.WalletReport, nil)
	ctx := context.Background()
	c := client.MustNew(srv.URL)

	_, err := c.GetCrop(ctx, "CROP_missing")
	if !client.IsKind(err, client.KindNotFound) {
		t.Errorf("GetCrop missing: %v", err)
	}

	reg, err := c.RegisterCrop(ctx, wheat("F1"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ExecuteSettlement(ctx, reg.Token.TokenID, "B1")
	if !client.IsKind(err, client.KindInvalidState) {
		t.Errorf("execute unlisted: %v", err)
	}
	_, err = c.ListToken(ctx, reg.Token.TokenID, "F2")
	if !client.IsKind(err, client.KindAuthorization) {
		t.Errorf("list by stranger: %v", err)
	}

	bad := wheat("F1")
	bad.Quantity = decimal.Zero
	_, err = c.RegisterCrop(ctx, bad)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != client.KindValidation || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("zero quantity: %v", err)
	}
}

func TestWalletsAndPrices(t *testing.T) {
	srv := newServer(t, service.WalletEnforce, nil)
	ctx := context.Background()
	c := client.MustNew(srv.URL)

	price, err := c.Price(ctx, "rice", "M9")
	if err != nil || !price.Equal(decimal.NewFromInt(28)) {
		t.Errorf("Price = %s, %v", price, err)
	}

	w, err := c.Wallet(ctx, "B1")
	if err != nil || !w.Balance.IsZero() {
		t.Errorf("fresh wallet = %+v, %v", w, err)
	}

	reg, _ := c.RegisterCrop(ctx, wheat("F1"))
	c.ListToken(ctx, reg.Token.TokenID, "F1")
	if _, err := c.ExecuteSettlement(ctx, reg.Token.TokenID, "B1"); !client.IsKind(err, client.KindInsufficientFunds) {
		t.Fatalf("unfunded buy: %v", err)
	}

	w, err = c.Deposit(ctx, "B1", decimal.NewFromInt(3000))
	if err != nil || !w.Balance.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("Deposit = %+v, %v", w, err)
	}
	s, err := c.ExecuteSettlement(ctx, reg.Token.TokenID, "B1")
	if err != nil || !s.WalletDebited {
		t.Fatalf("funded buy = %+v, %v", s, err)
	}
	w, _ = c.Wallet(ctx, "B1")
	if !w.Balance.Equal(decimal.NewFromInt(800)) {
		t.Errorf("buyer balance = %s, want 800", w.Balance)
	}
}

func TestActorToken(t *testing.T) {
	actors, err := identity.NewActorTokens(strings.Repeat("k", 32), "cropledger", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	srv := newServer(t, service.WalletReport, actors)
	ctx := context.Background()

	anon := client.MustNew(srv.URL)
	if _, err := anon.RegisterCrop(ctx, wheat("F1")); !client.IsKind(err, client.KindUnauthenticated) {
		t.Errorf("anonymous register: %v", err)
	}

	tok, _ := actors.Issue("F1", "")
	c := client.MustNew(srv.URL, client.WithActorToken(tok))
	if _, err := c.RegisterCrop(ctx, wheat("F1")); err != nil {
		t.Errorf("register with own token: %v", err)
	}
	if _, err := c.RegisterCrop(ctx, wheat("F2")); !client.IsKind(err, client.KindAuthorization) {
		t.Errorf("register for someone else: %v", err)
	}

	other, _ := actors.Issue("F2", "")
	c.SetActorToken(other)
	if _, err := c.RegisterCrop(ctx, wheat("F2")); err != nil {
		t.Errorf("register after token swap: %v", err)
	}
}

func TestGetCrop_cache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"crop":    map[string]any{"crop_id": "CROP_1", "crop_type": "wheat", "quantity": "5"},
		})
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL, client.WithCacheTTL(5*time.Minute))
	for range 3 {
		crop, err := c.GetCrop(context.Background(), "CROP_1")
		if err != nil {
			t.Fatal(err)
		}
		if !crop.Quantity.Equal(decimal.NewFromInt(5)) {
			t.Errorf("quantity = %s", crop.Quantity)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 HTTP call (cached), got %d", calls.Load())
	}
}

func TestWithCacheTTL_rejectsNonPositive(t *testing.T) {
	if _, err := client.New("http://localhost", client.WithCacheTTL(0)); err == nil {
		t.Error("expected error for zero TTL")
	}
}

func TestNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := client.MustNew(srv.URL).Health(context.Background())
	apiErr, ok := err.(*client.APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Kind != "" || apiErr.Message != "upstream exploded" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
}
