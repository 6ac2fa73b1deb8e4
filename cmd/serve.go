package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"crypto-checkout/config"
	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/quote"
	"crypto-checkout/pkg/server"
	"crypto-checkout/pkg/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP quotes and invoices API",
	Long: `Serve the JSON API used by checkout frontends:

  GET /api/prices?amount=25              all-chain conversions
  GET /api/prices?amount=25&chainId=...  single-chain conversion
  GET /api/invoices/:id                  invoice lookup

Example:
  crypto-checkout serve
  CHECKOUT_LISTEN_ADDR=:9090 crypto-checkout serve`,
	Run: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	engine := quote.NewEngine(pyth.NewClient(cfg.HermesBaseURL,
		pyth.WithMaxAge(cfg.PriceMaxAge),
		pyth.WithCacheTTL(cfg.PriceCacheTTL),
	))

	invoices, err := store.NewFile(cfg.StorePath)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	srv := server.New(engine, invoices)

	fmt.Printf("Serving checkout API on %s\n", color.CyanString(cfg.ListenAddr))
	if err := srv.Router().Run(cfg.ListenAddr); err != nil {
		printError(err)
		os.Exit(1)
	}
}
