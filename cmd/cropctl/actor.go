package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/cropledger/internal/identity"
)

var (
	issueSecret string
	issueIssuer string
	issueTTL    time.Duration
	issueAdmin  bool
)

var actorTokenCmd = &cobra.Command{
	Use:   "actor-token <actor_id>",
	Short: "Sign an actor token with the server's shared secret",
	Long: `actor-token signs an HS256 actor token locally. The secret must match
ledgerd's auth.actor_secret; it is read from --secret or CROPCTL_ACTOR_SECRET.

  export CROPCTL_ACTOR_TOKEN=$(cropctl actor-token F1)
  cropctl register --crop wheat --quantity 100 --grade A --mandi M1 --farmer F1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := issueSecret
		if secret == "" {
			secret = viper.GetString("actor_secret")
		}
		if secret == "" {
			return fmt.Errorf("no secret: pass --secret or set CROPCTL_ACTOR_SECRET")
		}
		tokens, err := identity.NewActorTokens(secret, issueIssuer, issueTTL)
		if err != nil {
			return err
		}
		role := ""
		if issueAdmin {
			role = identity.RoleAdmin
		}
		tok, err := tokens.Issue(args[0], role)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	actorTokenCmd.Flags().StringVar(&issueSecret, "secret", "", "shared HS256 secret (at least 32 bytes)")
	actorTokenCmd.Flags().StringVar(&issueIssuer, "issuer", "cropledger", "issuer claim; must match ledgerd's auth.issuer")
	actorTokenCmd.Flags().DurationVar(&issueTTL, "ttl", 24*time.Hour, "token lifetime")
	actorTokenCmd.Flags().BoolVar(&issueAdmin, "admin", false, "issue an admin token (may deposit into any account)")
	rootCmd.AddCommand(actorTokenCmd)
}
