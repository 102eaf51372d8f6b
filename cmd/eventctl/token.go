package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/task-notifier/internal/model"
	"github.com/jwalitptl/task-notifier/pkg/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed access token for testing",
	RunE:  runToken,
}

var (
	tokenUser  string
	tokenRole  string
	tokenEmail string
	tokenName  string
	tokenTTL   time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "User id (required)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(model.RoleTeamMember), "Role: admin, project_manager, team_member")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.MarkFlagRequired("user")
}

func runToken(cmd *cobra.Command, args []string) error {
	if !model.Role(tokenRole).Valid() {
		return fmt.Errorf("unknown role %q", tokenRole)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	token, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer).GenerateToken(auth.Claims{
		UserID: tokenUser,
		Email:  tokenEmail,
		Name:   tokenName,
		Role:   tokenRole,
	}, tokenTTL)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
