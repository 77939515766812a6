package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/server"
	"github.com/jonathan/booksmith/internal/types"
)

var tokenCmd = &cobra.Command{
	Use:   "token <client>",
	Short: "Mint an API bearer token",
	Long:  `Signs a bearer token for the API server with JWT_SECRET. The client name is carried in the token and used for rate limiting.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenCmd,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}

func runTokenCmd(cmd *cobra.Command, args []string) error {
	token, err := mintToken(args[0])
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func mintToken(client string) (string, error) {
	req := types.TokenRequest{Client: client}
	if err := req.Validate(); err != nil {
		return "", fmt.Errorf("invalid client name: %w", err)
	}
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return "", err
	}
	return server.NewJWTService(jwtCfg).GenerateToken(req.Client)
}
