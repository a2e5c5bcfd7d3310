package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

func newAPIKeyCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys for the HTTP transport",
	}

	var tenantID, description string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an API key for a tenant and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tenantID == "" {
				return fmt.Errorf("--tenant is required")
			}
			a, _, err := ctx.newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			token := "qar_" + hex.EncodeToString(buf)
			if err := a.APIKeys.Create(cmd.Context(), tenantID, token, description); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	add.Flags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	add.Flags().StringVar(&description, "description", "", "Key description")

	cmd.AddCommand(add)
	return cmd
}
