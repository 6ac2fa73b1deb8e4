package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"crypto-checkout/config"
	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/store"
	"crypto-checkout/pkg/types"
)

var (
	invoiceName        string
	invoiceDescription string
	invoiceAmount      float64
	invoiceMerchant    string
	invoiceChains      []string
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Create and inspect payment invoices",
}

var invoiceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new invoice",
	Long: `Create a USD-priced invoice payable on any of its supported chains.

Examples:
  crypto-checkout invoice create --name "Pro plan" --amount 25 --merchant <solana-address>
  crypto-checkout invoice create --name "Donation" --amount 5 --merchant <address> --chains solana`,
	Run: runInvoiceCreate,
}

var invoiceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all invoices",
	Run:   runInvoiceList,
}

var invoiceShowCmd = &cobra.Command{
	Use:   "show <invoice-id>",
	Short: "Show one invoice",
	Args:  cobra.ExactArgs(1),
	Run:   runInvoiceShow,
}

func init() {
	rootCmd.AddCommand(invoiceCmd)
	invoiceCmd.AddCommand(invoiceCreateCmd, invoiceListCmd, invoiceShowCmd)

	invoiceCreateCmd.Flags().StringVar(&invoiceName, "name", "", "Invoice name (required)")
	invoiceCreateCmd.Flags().StringVar(&invoiceDescription, "description", "", "Invoice description")
	invoiceCreateCmd.Flags().Float64Var(&invoiceAmount, "amount", 0, "USD amount (required)")
	invoiceCreateCmd.Flags().StringVar(&invoiceMerchant, "merchant", "", "Merchant receiving address (required)")
	invoiceCreateCmd.Flags().StringSliceVar(&invoiceChains, "chains", []string{"solana"}, "Chains the invoice accepts")
	_ = invoiceCreateCmd.MarkFlagRequired("name")
	_ = invoiceCreateCmd.MarkFlagRequired("amount")
	_ = invoiceCreateCmd.MarkFlagRequired("merchant")
}

func openStore() *store.File {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	s, err := store.NewFile(cfg.StorePath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return s
}

func runInvoiceCreate(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if invoiceAmount <= 0 {
		printError(fmt.Errorf("amount must be greater than zero"))
		os.Exit(1)
	}
	for _, chainID := range invoiceChains {
		if !chains.IsSupported(chainID) {
			printError(fmt.Errorf("unsupported chain: %s", chainID))
			os.Exit(1)
		}
	}
	if !chains.ValidAddressForAny(invoiceChains, invoiceMerchant) {
		printError(fmt.Errorf("merchant address %s is not valid on any of: %s", invoiceMerchant, strings.Join(invoiceChains, ", ")))
		os.Exit(1)
	}

	invoice := types.Invoice{
		ID:              uuid.NewString(),
		Name:            invoiceName,
		Description:     invoiceDescription,
		MerchantAddress: invoiceMerchant,
		AmountUSD:       invoiceAmount,
		SupportedChains: invoiceChains,
		Active:          true,
	}

	s := openStore()
	if err := s.CreateInvoice(context.Background(), invoice); err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(invoice, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	printSuccess(fmt.Sprintf("Invoice created: %s", color.CyanString(invoice.ID)))
	fmt.Println("Share the payment command:")
	color.Cyan("  crypto-checkout pay %s\n\n", invoice.ID)
}

func runInvoiceList(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	s := openStore()
	invoices, err := s.ListInvoices(context.Background())
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(invoices, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(invoices) == 0 {
		fmt.Println("\nNo invoices yet.")
		return
	}

	fmt.Printf("\n%-38s %-20s %10s %10s\n", "ID", "NAME", "AMOUNT", "STATUS")
	fmt.Println(strings.Repeat("-", 82))
	for _, invoice := range invoices {
		fmt.Printf("%-38s %-20s %10s %10s\n",
			invoice.ID,
			truncate(invoice.Name, 20),
			"$"+chains.FormatUSD(invoice.AmountUSD),
			coloredInvoiceStatus(invoice.Status),
		)
	}
	fmt.Println()
}

func runInvoiceShow(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	s := openStore()
	invoice, err := s.GetInvoice(context.Background(), args[0])
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

func displayInvoice(invoice types.Invoice) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                       INVOICE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  ID:       %s\n", color.CyanString(invoice.ID))
	fmt.Printf("  Name:     %s\n", invoice.Name)
	if invoice.Description != "" {
		fmt.Printf("  About:    %s\n", invoice.Description)
	}
	fmt.Printf("  Amount:   $%s\n", chains.FormatUSD(invoice.AmountUSD))
	fmt.Printf("  Merchant: %s\n", invoice.MerchantAddress)
	fmt.Printf("  Chains:   %s\n", strings.Join(invoice.SupportedChains, ", "))
	fmt.Printf("  Status:   %s\n", coloredInvoiceStatus(invoice.Status))
	if invoice.Signature != "" {
		fmt.Printf("  Tx:       %s\n", color.HiBlackString(invoice.Signature))
		if url := chains.ExplorerTxURL(invoice.PaidChainID, invoice.Signature); url != "" {
			fmt.Printf("  Explorer: %s\n", color.HiBlackString(url))
		}
	}
	fmt.Printf("  Created:  %s\n", invoice.CreatedAt.Format("2006-01-02 15:04:05"))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func coloredInvoiceStatus(status types.InvoiceStatus) string {
	switch status {
	case types.StatusSuccess:
		return color.GreenString(strings.ToUpper(string(status)))
	case types.StatusFailed:
		return color.RedString(strings.ToUpper(string(status)))
	default:
		return color.YellowString(strings.ToUpper(string(status)))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
