package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/domtech/lifeline/config"
	"github.com/domtech/lifeline/core/auth"
	"github.com/domtech/lifeline/core/model"
	"github.com/domtech/lifeline/infra/jwt"
)

var (
	tokenUser  string
	tokenName  string
	tokenPhone string
	tokenRole  string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (required)")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenPhone, "phone", "", "phone number")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "user", "role (user, hospital, police, firefighter, traffic, admin)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if tokenUser == "" {
		return fmt.Errorf("--user is required")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	verifier, err := jwt.NewVerifier(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	token, err := verifier.Mint(auth.Claims{
		UserID: tokenUser,
		Name:   tokenName,
		Phone:  tokenPhone,
		Role:   model.Role(tokenRole),
	}, tokenTTL)
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}
	cmd.Println(token)
	return nil
}
