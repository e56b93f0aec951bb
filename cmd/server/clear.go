package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/designer-bridge/internal/config"
)

var clearCmd = &cobra.Command{
	Use:   "clear-credentials",
	Short: "Delete every stored site and user credential",
	Long: `Delete every stored site and user credential.  Designer extensions must
go through the authorization flow again afterwards.`,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	stores, err := openStores(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer stores.db.Close()

	if err := stores.sites.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("clear site credentials: %w", err)
	}
	if err := stores.users.Clear(cmd.Context()); err != nil {
		return fmt.Errorf("clear user credentials: %w", err)
	}
	fmt.Println("Credentials cleared.")
	return nil
}
