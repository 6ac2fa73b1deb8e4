// Package chainrpc implements the Solana RPC boundary used by the transfer
// builder and the settlement machine.
package chainrpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Client is a thin wrapper over the Solana JSON-RPC client pinned to one
// commitment level.
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
}

// New connects a client to the given RPC endpoint. Commitment accepts
// "processed", "confirmed" or "finalized"; anything else falls back to
// confirmed.
func New(rpcURL, commitment string) (*Client, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	return &Client{
		rpc:        rpc.New(rpcURL),
		commitment: parseCommitment(commitment),
	}, nil
}

func parseCommitment(commitment string) rpc.CommitmentType {
	switch strings.ToLower(commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	case "confirmed":
		return rpc.CommitmentConfirmed
	default:
		return rpc.CommitmentConfirmed
	}
}

// Commitment returns the commitment level the client was configured with.
func (c *Client) Commitment() rpc.CommitmentType {
	return c.commitment
}

// LatestAnchor fetches a recent blockhash and the last block height at which
// it remains valid.
func (c *Client) LatestAnchor(ctx context.Context) (solana.Hash, uint64, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, 0, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, out.Value.LastValidBlockHeight, nil
}

// BlockHeight returns the network's current block height.
func (c *Client) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	return height, nil
}

// SignatureStatus reports whether a transaction reached the configured
// commitment and, if it did, whether it failed during execution. execErr is
// non-nil only for an included transaction with an on-chain error; err covers
// the lookup itself.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (included bool, execErr error, err error) {
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil, nil
	}
	status := out.Value[0]
	if !reached(status.ConfirmationStatus, c.commitment) {
		return false, nil, nil
	}
	if status.Err != nil {
		return true, fmt.Errorf("transaction failed on-chain: %v", status.Err), nil
	}
	return true, nil, nil
}

// SendTransaction submits a fully signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return sig, nil
}

// reached reports whether an observed confirmation status satisfies the
// wanted commitment level.
func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := func(s string) int {
		switch s {
		case string(rpc.ConfirmationStatusProcessed):
			return 1
		case string(rpc.ConfirmationStatusConfirmed):
			return 2
		case string(rpc.ConfirmationStatusFinalized):
			return 3
		}
		return 0
	}
	return rank(string(status)) >= rank(string(want))
}
