package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show market statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		s, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		return render(s, func() error {
			fmt.Printf("Crops:          %d\n", s.TotalCrops)
			fmt.Printf("Tokens:         %d\n", s.TotalTokens)
			statuses := make([]string, 0, len(s.TokenStatusBreakdown))
			for st := range s.TokenStatusBreakdown {
				statuses = append(statuses, st)
			}
			sort.Strings(statuses)
			for _, st := range statuses {
				fmt.Printf("  %-12s  %d\n", st, s.TokenStatusBreakdown[st])
			}
			fmt.Printf("Settlements:    %d\n", s.TotalSettlements)
			fmt.Printf("Volume:         %s\n", s.TotalSettlementVolume)
			fmt.Printf("Average value:  %s\n", s.AvgSettlementValue)
			fmt.Printf("Audit entries:  %d\n", s.AuditEntries)
			return nil
		})
	},
}

var complianceCmd = &cobra.Command{
	Use:   "compliance",
	Short: "Show the compliance report",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		r, err := c.Compliance(ctx)
		if err != nil {
			return err
		}
		return render(r, func() error {
			fmt.Printf("Audit trail:            %s\n", r.AuditTrailIntegrity.Message)
			fmt.Printf("Registered farmers:     %d\n", r.TotalRegisteredFarmers)
			fmt.Printf("Active tokens:          %d\n", r.TotalActiveTokens)
			fmt.Printf("Completed settlements:  %d\n\n", r.TotalCompletedSettlements)
			for _, n := range r.RegulatoryNotes {
				fmt.Printf("  • %s\n", n)
			}
			return nil
		})
	},
}

var (
	priceCrop  string
	priceMandi string
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Quote the oracle price per kg",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		p, err := c.Price(ctx, priceCrop, priceMandi)
		if err != nil {
			return err
		}
		return render(map[string]any{"crop_type": priceCrop, "mandi_id": priceMandi, "price_per_kg": p}, func() error {
			fmt.Printf("%s @ %s: %s per kg\n", priceCrop, priceMandi, p)
			return nil
		})
	},
}

// ── wallets ──────────────────────────────────────────────────────────────────

var walletCmd = &cobra.Command{
	Use:   "wallet <account_id>",
	Short: "Show an account balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		w, err := c.Wallet(ctx, args[0])
		if err != nil {
			return err
		}
		return render(w, func() error {
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ACCOUNT\tBALANCE")
			fmt.Fprintf(tw, "%s\t%s\n", w.AccountID, w.Balance)
			return tw.Flush()
		})
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <account_id> <amount>",
	Short: "Credit funds to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		w, err := c.Deposit(ctx, args[0], amount)
		if err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
		return render(w, func() error {
			fmt.Printf("✓ %s balance is now %s\n", w.AccountID, w.Balance)
			return nil
		})
	},
}

func init() {
	priceCmd.Flags().StringVar(&priceCrop, "crop", "", "crop type")
	priceCmd.Flags().StringVar(&priceMandi, "mandi", "", "mandi id")
	_ = priceCmd.MarkFlagRequired("crop")

	rootCmd.AddCommand(statsCmd, complianceCmd, priceCmd, walletCmd, depositCmd)
}
