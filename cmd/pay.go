package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crypto-checkout/config"
	"crypto-checkout/pkg/chainrpc"
	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/notify"
	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/quote"
	"crypto-checkout/pkg/settle"
	"crypto-checkout/pkg/signer"
	"crypto-checkout/pkg/transfer"
	"crypto-checkout/pkg/types"
)

var (
	payChain  string
	payYes    bool
	inFlights = settle.NewTracker()
)

var payCmd = &cobra.Command{
	Use:   "pay <invoice-id>",
	Short: "Pay an invoice with a native token transfer",
	Long: `Pay a USD-priced invoice. The amount is converted at the live oracle
price, a transfer is built against a fresh blockhash, signed with the
configured wallet, and driven to a confirmed settlement.

A rejected or timed-out attempt leaves the invoice payable; run pay again
to start a fresh attempt at the current price.

Examples:
  crypto-checkout pay 4f6c2e01-...
  crypto-checkout pay 4f6c2e01-... --chain solana --yes`,
	Args: cobra.ExactArgs(1),
	Run:  runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)

	payCmd.Flags().StringVar(&payChain, "chain", "solana", "Chain to pay on")
	payCmd.Flags().BoolVarP(&payYes, "yes", "y", false, "Skip confirmation prompt")
}

func runPay(cmd *cobra.Command, args []string) {
	invoiceID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if cfg.WalletPrivateKey == "" {
		printError(fmt.Errorf("no wallet configured. Set CHECKOUT_WALLET_PRIVATE_KEY or add wallet_private_key to .crypto-checkout.yaml"))
		os.Exit(1)
	}

	invoices := openStore()
	invoice, err := invoices.GetInvoice(context.Background(), invoiceID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !invoice.Active {
		printError(fmt.Errorf("invoice %s is no longer active", invoiceID))
		os.Exit(1)
	}
	if invoice.Status == types.StatusSuccess {
		printSuccess(fmt.Sprintf("Invoice %s is already paid.", invoiceID))
		return
	}
	if !invoiceAcceptsChain(invoice, payChain) {
		printError(fmt.Errorf("invoice accepts %s, not %s", strings.Join(invoice.SupportedChains, ", "), payChain))
		os.Exit(1)
	}

	rpcClient, err := chainrpc.New(cfg.SolanaRPCURL, cfg.Commitment)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	wallet, err := signer.NewLocal(cfg.WalletPrivateKey, rpcClient)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	engine := quote.NewEngine(pyth.NewClient(cfg.HermesBaseURL,
		pyth.WithMaxAge(cfg.PriceMaxAge),
		pyth.WithCacheTTL(cfg.PriceCacheTTL),
	))

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching price and building transfer..."
		s.Start()
	}

	ctx := context.Background()
	q, err := engine.ConvertSingle(ctx, invoice.AmountUSD, payChain)
	if err != nil {
		if !jsonOutput {
			s.Stop()
		}
		printError(err)
		os.Exit(1)
	}

	intent, err := transfer.NewBuilder(rpcClient).Build(ctx, q, invoice.ID, invoice.MerchantAddress, wallet.PublicKey())
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		displayPayment(invoice, q)
	}
	if !payYes && !jsonOutput {
		if !confirmPayment() {
			fmt.Println("\nPayment cancelled.")
			os.Exit(0)
		}
	}

	release, err := inFlights.Begin(invoice.ID)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer release()

	if !jsonOutput {
		s.Suffix = " Confirming transfer..."
		s.Start()
	}

	machine := settle.NewMachine(rpcClient, wallet, settle.WithPollInterval(cfg.PollInterval))
	attempt, settleErr := machine.Settle(ctx, intent)
	if !jsonOutput {
		s.Stop()
	}

	reconciler := settle.NewReconciler(invoices, paymentNotifier(cfg))
	result, applyErr := reconciler.Apply(ctx, attempt)
	if applyErr != nil && verbose {
		color.Red("\nReconciliation warning: %v", applyErr)
	}

	if jsonOutput {
		output := map[string]interface{}{
			"invoice_id":     invoice.ID,
			"attempt_state":  string(attempt.State),
			"invoice_status": string(result.Status),
			"signature":      invoice.Signature,
		}
		if !attempt.Signature.IsZero() {
			output["signature"] = attempt.Signature.String()
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		if settleErr != nil {
			os.Exit(1)
		}
		return
	}

	displayOutcome(attempt, settleErr)
	if settleErr != nil && attempt.State == types.AttemptFailed {
		os.Exit(1)
	}
}

func invoiceAcceptsChain(invoice types.Invoice, chainID string) bool {
	for _, id := range invoice.SupportedChains {
		if id == chainID {
			return true
		}
	}
	return false
}

func paymentNotifier(cfg *config.Config) settle.Notifier {
	if cfg.WebhookURL != "" {
		return notify.NewWebhook(cfg.WebhookURL)
	}
	return notify.NewLog()
}

func displayPayment(invoice types.Invoice, q types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                      PAYMENT")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Invoice:  %s (%s)\n", color.CyanString(invoice.ID), invoice.Name)
	fmt.Printf("  Amount:   $%s = %s %s\n",
		chains.FormatUSD(q.USDAmount),
		color.CyanString(chains.FormatNative(q.NativeAmount, q.TokenSymbol)),
		color.YellowString(q.TokenSymbol),
	)
	fmt.Printf("  Rate:     1 %s = $%s\n", q.TokenSymbol, chains.FormatUSD(q.Price))
	fmt.Printf("  To:       %s\n", invoice.MerchantAddress)
	fmt.Printf("  Chain:    %s\n", chains.DisplayName(q.ChainID))

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func displayOutcome(attempt *types.SettlementAttempt, settleErr error) {
	switch attempt.State {
	case types.AttemptSettled:
		color.Green("\n✓ Payment settled!")
		fmt.Printf("  Signature: %s\n", color.CyanString(attempt.Signature.String()))
		if url := chains.ExplorerTxURL(attempt.ChainID, attempt.Signature.String()); url != "" {
			fmt.Printf("  Explorer:  %s\n\n", color.HiBlackString(url))
		}
	case types.AttemptRejected:
		color.Yellow("\nPayment cancelled in the wallet. The invoice is still payable.")
	case types.AttemptTimedOut:
		color.Yellow("\nConfirmation window expired before the transfer was seen on-chain.")
		fmt.Println("The invoice is still payable; run pay again for a fresh attempt.")
	default:
		color.Red("\n✗ Payment failed: %v", settleErr)
		if !attempt.Signature.IsZero() {
			fmt.Printf("  Signature: %s\n", attempt.Signature.String())
		}
	}
}

func confirmPayment() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with payment? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
