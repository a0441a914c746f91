package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ecodeli/ecodeli-backend/internal/auth/jwt"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		email  string
		role   string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print an access token for calling a local validation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtCfg := a.cfg.JWT
			if ttl > 0 {
				jwtCfg.AccessExpiry = ttl
			}
			token, expiresAt, err := jwt.NewManager(&jwtCfg).GenerateAccessToken(&jwt.UserInfo{ID: userID, Email: email, Role: role})
			if err != nil {
				return err
			}
			a.log.Info().Time("expires_at", expiresAt).Str("user_id", userID).Msg("token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user ID carried by the token")
	cmd.Flags().StringVar(&email, "email", "", "email carried by the token")
	cmd.Flags().StringVar(&role, "role", "courier", "role carried by the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ECODELI_JWT_ACCESS_EXPIRY)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
