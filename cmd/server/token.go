package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesio-ai/be-ap-procurement/internal/common/auth"
)

// tokenCmd issues a signed bearer token for local testing.
func tokenCmd() *cobra.Command {
	var (
		userID     string
		role       string
		enterprise string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is not configured")
			}

			v := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			tok, err := v.Issue(auth.UserContext{
				UserID:       userID,
				Role:         strings.ToUpper(role),
				EnterpriseID: enterprise,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&role, "role", "", "role, e.g. DIRECTOR")
	cmd.Flags().StringVar(&enterprise, "enterprise", "", "enterprise id")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("enterprise")
	return cmd
}
