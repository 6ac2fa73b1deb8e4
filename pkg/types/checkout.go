package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// InvoiceStatus is the persisted payment status of an invoice.
type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending" // awaiting payment
	StatusSuccess InvoiceStatus = "success" // settled on-chain, never overwritten
	StatusFailed  InvoiceStatus = "failed"  // definitive on-chain failure
)

// Invoice is a fixed USD payment request configured by a merchant.
type Invoice struct {
	ID              string        `json:"id"`
	Name            string        `json:"name,omitempty"`
	Description     string        `json:"description,omitempty"`
	MerchantAddress string        `json:"merchant_address"`
	AmountUSD       float64       `json:"amount_usd"`
	SupportedChains []string      `json:"supported_chains"`
	Active          bool          `json:"active"`
	Status          InvoiceStatus `json:"status"`
	Signature       string        `json:"signature,omitempty"`     // set when paid
	PaidChainID     string        `json:"paid_chain_id,omitempty"` // chain the payment settled on
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Quote is a USD to native-token conversion for one chain at one point in time.
type Quote struct {
	ChainID      string    `json:"chain_id"`
	USDAmount    float64   `json:"usd_amount"`
	NativeAmount float64   `json:"native_amount"`
	TokenSymbol  string    `json:"token_symbol"`
	Price        float64   `json:"price"` // USD per one native token
	ComputedAt   time.Time `json:"computed_at"`
}

// TransferIntent is an unsigned native-token transfer ready for the signer.
// It is consumed once per settlement attempt and never persisted.
type TransferIntent struct {
	InvoiceID          string
	ChainID            string
	From               solana.PublicKey
	To                 solana.PublicKey
	NativeAmount       float64
	Lamports           uint64
	Anchor             solana.Hash // recent blockhash anchoring the validity window
	AnchorExpiryHeight uint64      // last block height at which the anchor is valid
	Tx                 *solana.Transaction
}

// AttemptState is the lifecycle state of one settlement attempt.
type AttemptState string

const (
	AttemptBuilding   AttemptState = "building"
	AttemptSubmitted  AttemptState = "submitted"
	AttemptConfirming AttemptState = "confirming"
	AttemptSettled    AttemptState = "settled"
	AttemptRejected   AttemptState = "rejected"
	AttemptTimedOut   AttemptState = "timed_out"
	AttemptFailed     AttemptState = "failed"
)

// Terminal reports whether the state ends the attempt. Rejected and TimedOut
// end the attempt but not the invoice; a fresh attempt may follow.
func (s AttemptState) Terminal() bool {
	switch s {
	case AttemptSettled, AttemptRejected, AttemptTimedOut, AttemptFailed:
		return true
	}
	return false
}

// SettlementAttempt tracks one submit-and-confirm cycle for an invoice.
type SettlementAttempt struct {
	ID         string           `json:"id"`
	InvoiceID  string           `json:"invoice_id"`
	ChainID    string           `json:"chain_id"`
	Signature  solana.Signature `json:"signature,omitempty"` // zero until the signer returns one
	State      AttemptState     `json:"state"`
	StartedAt  time.Time        `json:"started_at"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`
}
