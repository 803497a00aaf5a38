package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/cropledger/pkg/client"
)

// ── register ─────────────────────────────────────────────────────────────────

var (
	regCropType string
	regQuantity string
	regGrade    string
	regMandi    string
	regFarmer   string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a crop lot and mint its token",
	Example: `  cropctl register --crop wheat --quantity 100 --grade A --mandi M1 --farmer F1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := decimal.NewFromString(regQuantity)
		if err != nil {
			return fmt.Errorf("invalid --quantity %q: %w", regQuantity, err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		res, err := c.RegisterCrop(ctx, client.RegisterCropRequest{
			CropType:     regCropType,
			Quantity:     qty,
			QualityGrade: regGrade,
			MandiID:      regMandi,
			FarmerID:     regFarmer,
		})
		if err != nil {
			return fmt.Errorf("register crop: %w", err)
		}
		return render(res, func() error {
			fmt.Printf("✓ %s\n\n", res.Message)
			fmt.Printf("  Crop:  %s (%s kg %s, grade %s)\n", res.Crop.CropID, res.Crop.Quantity, res.Crop.CropType, res.Crop.QualityGrade)
			fmt.Printf("  Token: %s [%s]\n\n", res.Token.TokenID, res.Token.Status)
			fmt.Printf("Next: cropctl list %s --seller %s\n", res.Token.TokenID, res.Crop.FarmerID)
			return nil
		})
	},
}

func init() {
	registerCmd.Flags().StringVar(&regCropType, "crop", "", "crop type (e.g. wheat)")
	registerCmd.Flags().StringVar(&regQuantity, "quantity", "", "quantity in kg")
	registerCmd.Flags().StringVar(&regGrade, "grade", "", "quality grade: A, B or C")
	registerCmd.Flags().StringVar(&regMandi, "mandi", "", "mandi (market yard) id")
	registerCmd.Flags().StringVar(&regFarmer, "farmer", "", "farmer id")
	for _, f := range []string{"crop", "quantity", "grade", "mandi", "farmer"} {
		_ = registerCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(registerCmd)
}

// ── crops ────────────────────────────────────────────────────────────────────

var cropsCmd = &cobra.Command{
	Use:   "crops [crop_id]",
	Short: "Show one crop or list all crops",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		var crops []client.Crop
		if len(args) == 1 {
			crop, err := c.GetCrop(ctx, args[0])
			if err != nil {
				return err
			}
			crops = []client.Crop{*crop}
		} else if crops, err = c.ListCrops(ctx); err != nil {
			return err
		}
		return render(crops, func() error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CROP\tTYPE\tQUANTITY\tGRADE\tMANDI\tFARMER")
			for _, cr := range crops {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					cr.CropID, cr.CropType, cr.Quantity, cr.QualityGrade, cr.MandiID, cr.FarmerID)
			}
			return w.Flush()
		})
	},
}

// ── tokens ───────────────────────────────────────────────────────────────────

var (
	tokensStatus string
	tokensOwner  string
)

var tokensCmd = &cobra.Command{
	Use:   "tokens [token_id]",
	Short: "Show one token with its crop, or list tokens",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		if len(args) == 1 {
			tok, crop, err := c.GetToken(ctx, args[0])
			if err != nil {
				return err
			}
			return render(map[string]any{"token": tok, "crop": crop}, func() error {
				fmt.Printf("Token:   %s\n", tok.TokenID)
				fmt.Printf("Status:  %s\n", tok.Status)
				fmt.Printf("Owner:   %s\n", tok.OwnerID)
				fmt.Printf("Crop:    %s (%s kg %s, grade %s, mandi %s)\n",
					crop.CropID, crop.Quantity, crop.CropType, crop.QualityGrade, crop.MandiID)
				fmt.Printf("Updated: %s\n", tok.UpdatedAt.Format("2006-01-02 15:04:05Z07:00"))
				return nil
			})
		}

		var tokens []client.Token
		switch {
		case tokensStatus != "" && tokensOwner != "":
			return fmt.Errorf("--status and --owner are mutually exclusive")
		case tokensStatus != "":
			tokens, err = c.TokensByStatus(ctx, tokensStatus)
		case tokensOwner != "":
			tokens, err = c.TokensByOwner(ctx, tokensOwner)
		default:
			tokens, err = c.ListTokens(ctx)
		}
		if err != nil {
			return err
		}
		return render(tokens, func() error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TOKEN\tCROP\tOWNER\tSTATUS")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.TokenID, t.LinkedCropID, t.OwnerID, t.Status)
			}
			return w.Flush()
		})
	},
}

// ── list / buy ───────────────────────────────────────────────────────────────

var listSeller string

var listCmd = &cobra.Command{
	Use:   "list <token_id>",
	Short: "Offer a CREATED token for sale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		tok, err := c.ListToken(ctx, args[0], listSeller)
		if err != nil {
			return fmt.Errorf("list token: %w", err)
		}
		return render(tok, func() error {
			fmt.Printf("✓ Token %s is %s\n", tok.TokenID, tok.Status)
			return nil
		})
	},
}

var buyBuyer string

var buyCmd = &cobra.Command{
	Use:   "buy <token_id>",
	Short: "Buy a LISTED token at the current oracle price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		s, err := c.ExecuteSettlement(ctx, args[0], buyBuyer)
		if err != nil {
			return fmt.Errorf("execute settlement: %w", err)
		}
		return render(s, func() error {
			fmt.Printf("✓ Settlement %s %s\n\n", s.SettlementID, s.SettlementStatus)
			fmt.Printf("  %s → %s\n", s.SellerID, s.BuyerID)
			fmt.Printf("  %s kg × %s = %s\n", s.Quantity, s.PricePerKg, s.TotalAmount)
			if s.WalletDebited {
				fmt.Println("  Wallets debited and credited")
			}
			return nil
		})
	},
}

var settlementsCmd = &cobra.Command{
	Use:   "settlements",
	Short: "List executed settlements",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()

		settlements, err := c.ListSettlements(ctx)
		if err != nil {
			return err
		}
		return render(settlements, func() error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SETTLEMENT\tTOKEN\tSELLER\tBUYER\tTOTAL")
			for _, s := range settlements {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.SettlementID, s.TokenID, s.SellerID, s.BuyerID, s.TotalAmount)
			}
			return w.Flush()
		})
	},
}

func init() {
	tokensCmd.Flags().StringVar(&tokensStatus, "status", "", "filter by status (created, listed, sold)")
	tokensCmd.Flags().StringVar(&tokensOwner, "owner", "", "filter by current owner id")

	listCmd.Flags().StringVar(&listSeller, "seller", "", "seller id (must own the token)")
	_ = listCmd.MarkFlagRequired("seller")

	buyCmd.Flags().StringVar(&buyBuyer, "buyer", "", "buyer id")
	_ = buyCmd.MarkFlagRequired("buyer")

	rootCmd.AddCommand(cropsCmd, tokensCmd, listCmd, buyCmd, settlementsCmd)
}
