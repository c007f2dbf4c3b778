package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "stockout",
	Short: "Order intake and warehouse stock-out service",
	Long:  `Order intake and warehouse stock-out service: API server for orders, scan sessions and stock movements, and a background worker for notifications and fulfillment reconciliation.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
