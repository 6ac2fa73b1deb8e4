package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crypto-checkout",
	Short: "A CLI for USD-priced crypto checkout over Pyth price feeds",
	Long: `crypto-checkout converts fixed USD amounts into native-token payments,
builds the on-chain transfer, and drives it to a confirmed settlement.
Prices come from the Pyth Hermes feed; settlement runs on Solana.

Examples:
  crypto-checkout quote 25
  crypto-checkout quote 25 --chain solana
  crypto-checkout invoice create --name "Pro plan" --amount 25 --merchant <address>
  crypto-checkout pay <invoice-id>
  crypto-checkout status <invoice-id> --watch
  crypto-checkout serve`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
