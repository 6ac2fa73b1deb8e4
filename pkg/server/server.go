// Package server exposes the quote engine and invoice store over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"crypto-checkout/pkg/chains"
	"crypto-checkout/pkg/pyth"
	"crypto-checkout/pkg/quote"
	"crypto-checkout/pkg/store"
	"crypto-checkout/pkg/types"
)

// InvoiceReader is the read side of the invoice store the API needs.
type InvoiceReader interface {
	GetInvoice(ctx context.Context, id string) (types.Invoice, error)
}

// Server wires the quote engine and invoice store into gin handlers.
type Server struct {
	engine   *quote.Engine
	invoices InvoiceReader
	log      *logrus.Entry
}

// New creates a Server over the given engine and store.
func New(engine *quote.Engine, invoices InvoiceReader) *Server {
	return &Server{
		engine:   engine,
		invoices: invoices,
		log:      logrus.WithField("component", "server"),
	}
}

// Router builds the gin engine with all API routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	api.GET("/prices", s.handlePrices)
	api.GET("/invoices/:id", s.handleInvoice)
	return r
}

type conversion struct {
	NativeAmount float64 `json:"nativeAmount"`
	TokenSymbol  string  `json:"tokenSymbol"`
	Price        float64 `json:"price"`
}

// handlePrices converts a USD amount into native token amounts. With a
// chainId query parameter it prices that single chain; without one it prices
// every supported chain and returns a conversions map that omits chains
// whose price could not be obtained.
func (s *Server) handlePrices(c *gin.Context) {
	rawAmount := c.Query("amount")
	if rawAmount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "amount is required"})
		return
	}
	amount, err := strconv.ParseFloat(rawAmount, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "amount must be a number"})
		return
	}

	if chainID := c.Query("chainId"); chainID != "" {
		q, err := s.engine.ConvertSingle(c.Request.Context(), amount, chainID)
		if err != nil {
			s.writeQuoteError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
			"usdAmount":    q.USDAmount,
			"chainId":      q.ChainID,
			"nativeAmount": q.NativeAmount,
			"tokenSymbol":  q.TokenSymbol,
			"price":        q.Price,
		}})
		return
	}

	quotes, err := s.engine.Convert(c.Request.Context(), amount, chains.IDs())
	if err != nil {
		s.writeQuoteError(c, err)
		return
	}
	conversions := make(map[string]conversion, len(quotes))
	for chainID, q := range quotes {
		conversions[chainID] = conversion{
			NativeAmount: q.NativeAmount,
			TokenSymbol:  q.TokenSymbol,
			Price:        q.Price,
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{
		"usdAmount":   amount,
		"conversions": conversions,
	}})
}

func (s *Server) handleInvoice(c *gin.Context) {
	invoice, err := s.invoices.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrInvoiceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "invoice not found"})
			return
		}
		s.log.WithError(err).Error("invoice lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": invoice})
}

// writeQuoteError maps engine errors onto HTTP statuses: caller mistakes are
// 400, upstream price trouble is 502 so clients know to retry.
func (s *Server) writeQuoteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quote.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "amount must be greater than zero"})
	case errors.Is(err, chains.ErrUnsupportedChain):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unsupported chain"})
	case errors.Is(err, pyth.ErrStalePrice), errors.Is(err, pyth.ErrNoPriceData), errors.Is(err, pyth.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "price feed unavailable"})
	default:
		s.log.WithError(err).Error("price conversion failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal error"})
	}
}
