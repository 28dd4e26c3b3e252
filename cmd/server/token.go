package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/chatrelay/internal/app"
	"github.com/vovakirdan/chatrelay/internal/auth"
)

var tokenSubject string

var operatorTokenCmd = &cobra.Command{
	Use:   "operator-token",
	Short: "Mint a bearer token for the operator HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cfg.OperatorSecret == "" {
			return fmt.Errorf("operator_secret is not configured")
		}
		token, err := auth.GenerateToken(app.OperatorJWT(&cfg), tokenSubject, auth.RoleOperator)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	operatorTokenCmd.Flags().StringVar(&tokenSubject, "subject", "operator", "token subject")
}
