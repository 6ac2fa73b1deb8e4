package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crypto-checkout/config"
	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/quote"
	"crypto-checkout/pkg/types"
)

var quoteChain string

var quoteCmd = &cobra.Command{
	Use:   "quote <usd-amount>",
	Short: "Convert a USD amount into native token amounts",
	Long: `Convert a fixed USD amount into the equivalent native token amount on
each supported chain, using live Pyth oracle prices.

Examples:
  crypto-checkout quote 25
  crypto-checkout quote 25 --chain solana
  crypto-checkout quote 25 --json`,
	Args: cobra.ExactArgs(1),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteChain, "chain", "", "Quote a single chain instead of all")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		printError(fmt.Errorf("invalid amount %q", args[0]))
		os.Exit(1)
	}

	cfg, err := config.Load()
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
		s.Suffix = " Fetching prices..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var quotes map[string]types.Quote
	if quoteChain != "" {
		var q types.Quote
		q, err = engine.ConvertSingle(ctx, amount, quoteChain)
		if err == nil {
			quotes = map[string]types.Quote{quoteChain: q}
		}
	} else {
		quotes, err = engine.Convert(ctx, amount, chains.IDs())
	}
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(quotes, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayQuotes(amount, quotes)
}

func displayQuotes(usdAmount float64, quotes map[string]types.Quote) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   PAYMENT QUOTE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  USD Amount: %s\n\n", color.YellowString("$%s", chains.FormatUSD(usdAmount)))

	chainIDs := make([]string, 0, len(quotes))
	for id := range quotes {
		chainIDs = append(chainIDs, id)
	}
	sort.Strings(chainIDs)

	for _, id := range chainIDs {
		q := quotes[id]
		fmt.Printf("  %-10s %s %s  (1 %s = $%s)\n",
			chains.DisplayName(id)+":",
			color.CyanString(chains.FormatNative(q.NativeAmount, q.TokenSymbol)),
			color.YellowString(q.TokenSymbol),
			q.TokenSymbol,
			chains.FormatUSD(q.Price),
		)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
