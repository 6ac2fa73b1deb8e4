// Package store provides reference implementations of the invoice
// persistence collaborator: a JSON file store for the CLI and an in-memory
// store for tests and embedding.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"crypto-checkout/pkg/types"
)

// DefaultFileName is the invoice store created in the user's home directory
// when no path is configured.
const DefaultFileName = ".crypto-checkout-invoices.json"

// ErrInvoiceNotFound is returned for unknown invoice ids.
var ErrInvoiceNotFound = fmt.Errorf("invoice not found")

// fileLayout is the JSON structure persisted on disk.
type fileLayout struct {
	Invoices map[string]*types.Invoice `json:"invoices"`
}

// File persists invoices in a single JSON file with atomic rewrites.
type File struct {
	path string
	mu   sync.Mutex
	byID map[string]*types.Invoice
}

// NewFile opens (or lazily creates) the invoice file at path. An empty path
// defaults to the user's home directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultFileName)
	}
	s := &File{path: path, byID: make(map[string]*types.Invoice)}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}
	return s, nil
}

func (s *File) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("failed to unmarshal invoices: %w", err)
	}
	if layout.Invoices == nil {
		layout.Invoices = make(map[string]*types.Invoice)
	}
	s.byID = layout.Invoices
	return nil
}

// save must be called with the mutex held. Writes to a temp file then
// renames for atomicity.
func (s *File) save() error {
	data, err := json.MarshalIndent(fileLayout{Invoices: s.byID}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invoices: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write invoices: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// CreateInvoice adds a new invoice record.
func (s *File) CreateInvoice(_ context.Context, invoice types.Invoice) error {
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
	return s.save()
}

// GetInvoice returns a copy of the invoice.
func (s *File) GetInvoice(_ context.Context, id string) (types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.byID[id]
	if !ok {
		return types.Invoice{}, fmt.Errorf("%w: %s", ErrInvoiceNotFound, id)
	}
	return *inv, nil
}

// SetInvoiceStatus applies a monotonic status write under the store lock:
// a stored success is final, and rewriting the current status is a no-op
// reported as changed=false rather than an error.
func (s *File) SetInvoiceStatus(_ context.Context, id string, status types.InvoiceStatus, signature, chainID string) (bool, error) {
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
	return true, s.save()
}

// ListInvoices returns copies of all invoices.
func (s *File) ListInvoices(_ context.Context) ([]types.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Invoice, 0, len(s.byID))
	for _, inv := range s.byID {
		out = append(out, *inv)
	}
	return out, nil
}

// transitionAllowed encodes the status lattice: success is terminal,
// identical rewrites are no-ops, and failed may still become success when a
// delayed confirmation proves settlement.
func transitionAllowed(current, next types.InvoiceStatus) bool {
	if current == next {
		return false
	}
	if current == types.StatusSuccess {
		return false
	}
	return true
}
