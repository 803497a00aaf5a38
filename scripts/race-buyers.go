//go:build ignore

// race-buyers.go lists one lot on a running ledgerd and fires concurrent
// purchases at it from many buyers. Exactly one settlement must win; every
// other buyer must get invalid_state, and the audit chain must still verify.
//
// Run with: go run scripts/race-buyers.go
//
//	BUYERS=50 LEDGER_URL=http://localhost:8080 ACTOR_SECRET=... go run scripts/race-buyers.go
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/cropledger/internal/identity"
	"github.com/jmerrifield20/cropledger/pkg/client"
)

type outcome struct {
	buyer   string
	kind    string
	latency time.Duration
}

func main() {
	viper.SetDefault("ledger_url", "http://localhost:8080")
	viper.SetDefault("actor_secret", "")
	viper.SetDefault("actor_issuer", "cropledger")
	viper.SetDefault("buyers", 20)
	viper.AutomaticEnv()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "race-buyers: %v\n", err)
		os.Exit(1)
	}
}

func clientFor(tokens *identity.ActorTokens, id, role string) (*client.Client, error) {
	base := viper.GetString("ledger_url")
	if tokens == nil {
		return client.New(base)
	}
	tok, err := tokens.Issue(id, role)
	if err != nil {
		return nil, err
	}
	return client.New(base, client.WithActorToken(tok))
}

func run(ctx context.Context) error {
	var tokens *identity.ActorTokens
	if secret := viper.GetString("actor_secret"); secret != "" {
		var err error
		tokens, err = identity.NewActorTokens(secret, viper.GetString("actor_issuer"), time.Hour)
		if err != nil {
			return err
		}
	}

	farmer, err := clientFor(tokens, "RACE-F", "")
	if err != nil {
		return err
	}
	res, err := farmer.RegisterCrop(ctx, client.RegisterCropRequest{
		CropType: "wheat", Quantity: decimal.NewFromInt(10), QualityGrade: "A", MandiID: "M1", FarmerID: "RACE-F",
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	tokenID := res.Token.TokenID
	if _, err := farmer.ListToken(ctx, tokenID, "RACE-F"); err != nil {
		return fmt.Errorf("list: %w", err)
	}

	n := viper.GetInt("buyers")
	admin, err := clientFor(tokens, "race-admin", identity.RoleAdmin)
	if err != nil {
		return err
	}
	buyers := make([]*client.Client, n)
	for i := range n {
		id := fmt.Sprintf("RACE-B%d", i+1)
		// Funds every buyer so enforce mode cannot decide the race.
		if _, err := admin.Deposit(ctx, id, decimal.NewFromInt(100000)); err != nil {
			return fmt.Errorf("deposit %s: %w", id, err)
		}
		if buyers[i], err = clientFor(tokens, id, ""); err != nil {
			return err
		}
	}

	results := make([]outcome, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("RACE-B%d", i+1)
			<-start
			t0 := time.Now()
			_, err := buyers[i].ExecuteSettlement(ctx, tokenID, id)
			o := outcome{buyer: id, latency: time.Since(t0), kind: "ok"}
			if err != nil {
				o.kind = err.Error()
				for _, k := range []string{client.KindInvalidState, client.KindRateLimited} {
					if client.IsKind(err, k) {
						o.kind = k
					}
				}
			}
			results[i] = o
		}()
	}
	close(start)
	wg.Wait()

	counts := map[string]int{}
	var winner string
	var slowest time.Duration
	for _, o := range results {
		counts[o.kind]++
		if o.kind == "ok" {
			winner = o.buyer
		}
		slowest = max(slowest, o.latency)
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	fmt.Printf("token %s, %d buyers, slowest response %s\n", tokenID, n, slowest.Round(time.Millisecond))
	for _, k := range kinds {
		fmt.Printf("  %-16s %d\n", k, counts[k])
	}

	tok, _, err := farmer.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	report, err := farmer.VerifyAudit(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("  owner now %s, audit: %s\n", tok.OwnerID, report.Message)

	switch {
	case counts["ok"] != 1:
		return fmt.Errorf("expected exactly one winner, got %d", counts["ok"])
	case tok.OwnerID != winner:
		return fmt.Errorf("owner %s does not match winner %s", tok.OwnerID, winner)
	case !report.Valid:
		return fmt.Errorf("audit chain broken at seq %d", report.BrokenSeq)
	}
	return nil
}
