package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aivideotool/api/internal/auth"
	"github.com/aivideotool/api/internal/config"
)

var (
	tokenUserFlag  string
	tokenEmailFlag string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a legacy HMAC token for local development",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserFlag, "user", "dev-user", "User ID to embed in the token")
	tokenCmd.Flags().StringVar(&tokenEmailFlag, "email", "", "Email to embed in the token")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.Env == "production" {
		return errors.New("refusing to issue development tokens in production")
	}

	token, err := auth.IssueLegacyToken(cfg.JWT.Secret, tokenUserFlag, tokenEmailFlag, time.Duration(cfg.JWT.Expiration)*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
