// Command seed populates a running ledgerd with demo crops, listings, deposits
// and one completed trade through the public API, so every record also lands
// in the audit trail.
//
// Running it twice registers a second set of lots; crops are never updated in
// place. To start over, point ledgerd at a fresh store.
//
// Usage:
//
//	go run ./cmd/seed
//	LEDGER_URL=http://localhost:8080 ACTOR_SECRET=... go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/pkg/client"
)

func main() {
	viper.SetDefault("ledger_url", "http://localhost:8080")
	viper.SetDefault("actor_secret", "")
	viper.SetDefault("actor_issuer", "cropledger")
	viper.AutomaticEnv()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

type seedLot struct {
	Farmer string
	Crop   string
	Kg     int64
	Grade  string
	Mandi  string
	List   bool
	Buyer  string // sold to Buyer when set; implies List
}

var lots = []seedLot{
	{Farmer: "F1", Crop: "wheat", Kg: 100, Grade: "A", Mandi: "M1", Buyer: "B1"},
	{Farmer: "F1", Crop: "rice", Kg: 250, Grade: "B", Mandi: "M1", List: true},
	{Farmer: "F2", Crop: "cotton", Kg: 80, Grade: "A", Mandi: "M2", List: true},
	{Farmer: "F2", Crop: "wheat", Kg: 500, Grade: "C", Mandi: "M2"},
	{Farmer: "F3", Crop: "rice", Kg: 40, Grade: "A", Mandi: "M3"},
}

var deposits = map[string]int64{
	"B1": 50000,
	"B2": 10000,
}

// actors hands out a client per actor id, signing tokens when a secret is
// configured.
type actors struct {
	base   string
	tokens *identity.ActorTokens
}

func (a *actors) as(id string, admin bool) (*client.Client, error) {
	if a.tokens == nil {
		return client.New(a.base)
	}
	role := ""
	if admin {
		role = identity.RoleAdmin
	}
	tok, err := a.tokens.Issue(id, role)
	if err != nil {
		return nil, fmt.Errorf("issue token for %s: %w", id, err)
	}
	return client.New(a.base, client.WithActorToken(tok))
}

func run(ctx context.Context) error {
	a := &actors{base: viper.GetString("ledger_url")}
	if secret := viper.GetString("actor_secret"); secret != "" {
		tokens, err := identity.NewActorTokens(secret, viper.GetString("actor_issuer"), time.Hour)
		if err != nil {
			return err
		}
		a.tokens = tokens
	}

	anon, err := client.New(a.base)
	if err != nil {
		return err
	}
	if err := anon.Health(ctx); err != nil {
		return fmt.Errorf("ledgerd at %s is not healthy: %w", a.base, err)
	}
	fmt.Println("connected to", a.base)

	admin, err := a.as("seed-admin", true)
	if err != nil {
		return err
	}
	for account, amount := range deposits {
		w, err := admin.Deposit(ctx, account, decimal.NewFromInt(amount))
		if err != nil {
			return fmt.Errorf("deposit %s: %w", account, err)
		}
		fmt.Printf("  fund   %-4s balance %s\n", account, w.Balance)
	}

	for _, l := range lots {
		farmer, err := a.as(l.Farmer, false)
		if err != nil {
			return err
		}
		res, err := farmer.RegisterCrop(ctx, client.RegisterCropRequest{
			CropType:     l.Crop,
			Quantity:     decimal.NewFromInt(l.Kg),
			QualityGrade: l.Grade,
			MandiID:      l.Mandi,
			FarmerID:     l.Farmer,
		})
		if err != nil {
			return fmt.Errorf("register %s %s: %w", l.Farmer, l.Crop, err)
		}
		tokenID := res.Token.TokenID
		fmt.Printf("  crop   %s %d kg %s → %s\n", l.Farmer, l.Kg, l.Crop, tokenID)

		if !l.List && l.Buyer == "" {
			continue
		}
		if _, err := farmer.ListToken(ctx, tokenID, l.Farmer); err != nil {
			return fmt.Errorf("list %s: %w", tokenID, err)
		}
		fmt.Printf("  list   %s\n", tokenID)

		if l.Buyer == "" {
			continue
		}
		buyer, err := a.as(l.Buyer, false)
		if err != nil {
			return err
		}
		s, err := buyer.ExecuteSettlement(ctx, tokenID, l.Buyer)
		if err != nil {
			return fmt.Errorf("buy %s: %w", tokenID, err)
		}
		fmt.Printf("  sell   %s → %s for %s\n", l.Farmer, l.Buyer, s.TotalAmount)
	}

	r, err := anon.VerifyAudit(ctx)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	fmt.Printf("\nseed complete: %s (%d entries)\n", r.Message, r.TotalEntries)
	return nil
}
