package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-checkout/pkg/types"
)

// Memory is an in-memory invoice store with the same status semantics as
// File. Useful for tests and for embedding the checkout core behind an
// existing persistence layer.
type Memory struct {
	mu   sync.Mutex
	byID map[string]*types.Invoice
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*types.Invoice)}
}

// CreateInvoice adds a new invoice record.
func (s *Memory) CreateInvoice(_ context.Context, invoice types.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[invoice.ID]; exists {
		return fmt.Errorf("invoice %q already exists", invoice.ID)
	}
	if invoice.Status == "" {
		invoice.Status = types.StatusPending
	}
	now := time.Now()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now
	s.byID[invoice.ID] = &invoice
	return nil
}

// GetInvoice returns a copy of the invoice.
func (s *Memory) GetInvoice(_ context.Context, id string) (types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return types.Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	return *inv, nil
}

// SetInvoiceStatus applies the same monotonic compare-and-set as File.
func (s *Memory) SetInvoiceStatus(_ context.Context, id string, status types.InvoiceStatus, signature, chainID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	if !transitionAllowed(inv.Status, status) {
		return false, nil
	}
	inv.Status = status
	if signature != "" {
		inv.Signature = signature
	}
	if chainID != "" {
		inv.PaidChainID = chainID
	}
	inv.UpdatedAt = time.Now()
	return true, nil
}

// ListInvoices returns copies of all invoices.
func (s *Memory) ListInvoices(_ context.Context) ([]types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Invoice, 0, len(s.byID))
	for _, inv := range s.byID {
		out = append(out, *inv)
	}
	return out, nil
}
