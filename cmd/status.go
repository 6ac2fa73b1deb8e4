package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crypto-checkout/pkg/store"
	"crypto-checkout/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <invoice-id>",
	Short: "Check the payment status of an invoice",
	Long: `Check whether an invoice has been paid.

Examples:
  crypto-checkout status 4f6c2e01-...
  crypto-checkout status 4f6c2e01-... --watch
  crypto-checkout status 4f6c2e01-... --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	invoiceID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	invoices := openStore()

	if watchStatus {
		watchInvoiceStatus(invoices, invoiceID, jsonOutput)
	} else {
		checkInvoiceStatus(invoices, invoiceID, jsonOutput)
	}
}

func checkInvoiceStatus(invoices *store.File, invoiceID string, jsonOutput bool) {
	invoice, err := invoices.GetInvoice(context.Background(), invoiceID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(invoice, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayInvoice(invoice)
}

func watchInvoiceStatus(invoices *store.File, invoiceID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching invoice %s\n", color.CyanString(invoiceID))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if done := showOnce(invoices, invoiceID); done {
		return
	}

	for range ticker.C {
		if done := showOnce(invoices, invoiceID); done {
			return
		}
	}
}

func showOnce(invoices *store.File, invoiceID string) bool {
	invoice, err := invoices.GetInvoice(context.Background(), invoiceID)
	if err != nil {
		color.Red("Error: %v", err)
		return false
	}

	displayInvoice(invoice)
	if invoice.Status == types.StatusSuccess {
		color.Green("Invoice paid. Stopping watch.\n")
		return true
	}
	return false
}
