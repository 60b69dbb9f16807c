// Package bridge holds the domain model for SEMILLA bridge settlement: the
// transaction state machine, the supported-chain policy record, and the seam
// to the external chain adapter.
package bridge

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates which way value crosses the bridge.
type Direction string

const (
	// DirectionLock moves SEMILLA into custody and mints the wrapped asset
	// on the external chain.
	DirectionLock Direction = "LOCK"
	// DirectionUnlock burns the wrapped asset on the external chain and
	// releases SEMILLA back to the user.
	DirectionUnlock Direction = "UNLOCK"
)

// Status represents the current state of a bridge transaction.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusLocked   Status = "LOCKED"
	StatusMinted   Status = "MINTED"
	StatusVerified Status = "VERIFIED"
	StatusUnlocked Status = "UNLOCKED"
	StatusFailed   Status = "FAILED"
)

// IsTerminal reports whether no further transition is permitted out of s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusMinted, StatusUnlocked, StatusFailed:
		return true
	default:
		return false
	}
}

// transitions is the full set of legal state transitions, keyed by direction.
// LOCKED means the engine has custody of the internal debit, not that the
// external mint has happened.
var transitions = map[Direction]map[Status][]Status{
	DirectionLock: {
		StatusPending: {StatusLocked, StatusFailed},
		StatusLocked:  {StatusMinted, StatusFailed},
	},
	DirectionUnlock: {
		StatusPending:  {StatusVerified, StatusFailed},
		StatusVerified: {StatusUnlocked, StatusFailed},
	},
}

// CanTransition reports whether a transaction with the given direction may
// move from one status to another. Terminal states admit no transitions.
func CanTransition(direction Direction, from, to Status) bool {
	allowed, ok := transitions[direction][from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Failure reasons recorded on FAILED transactions.
const (
	ReasonBurnNotVerified = "BurnNotVerified"
	ReasonDuplicateTxHash = "DuplicateTxHash"
	ReasonMintFailed      = "MintSubmissionFailed"
	ReasonAdapterTimeout  = "AdapterTimeout"
	ReasonStale           = "StaleTransaction"
)

// Transaction is the authoritative record of one bridge operation. Rows are
// append-only: terminal transactions are never deleted or reused.
type Transaction struct {
	ID              string
	UserID          string
	Direction       Direction
	ChainCode       string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	ExternalAddress string
	ExternalTxHash  string
	MintTxHash      string
	Status          Status
	FailureReason   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// SupportedChain is the per-chain bridging policy: the minimum bridgeable
// amount and the flat fee charged on LOCK, both denominated in SEMILLA.
type SupportedChain struct {
	ChainCode   string
	DisplayName string
	MinAmount   decimal.Decimal
	Fee         decimal.Decimal
	Enabled     bool
	CreatedAt   time.Time
}

// BurnVerification is the adapter's answer for an UNLOCK claim.
type BurnVerification struct {
	Confirmed bool
	Amount    decimal.Decimal
}

// MintReceipt is returned once a mint transaction is accepted by the
// external chain.
type MintReceipt struct {
	TxHash string
}

// ChainAdapter is the opaque seam to the external chain. The engine never
// reasons about blocks or consensus; it only verifies burns by hash and
// submits mints.
type ChainAdapter interface {
	// VerifyBurn checks that txHash corresponds to a confirmed burn of at
	// least minAmount on the given chain.
	VerifyBurn(ctx context.Context, chainCode, txHash string, minAmount decimal.Decimal) (*BurnVerification, error)
	// SubmitMint produces a mint of amount wrapped SEMILLA to address on the
	// given chain.
	SubmitMint(ctx context.Context, chainCode, address string, amount decimal.Decimal) (*MintReceipt, error)
}

// LockRequest asks the engine to take amount SEMILLA into custody and mint
// the equivalent on chainCode. The fee is charged on top of amount.
type LockRequest struct {
	ChainCode       string `json:"chain_code" validate:"required"`
	Amount          string `json:"amount" validate:"required"`
	ExternalAddress string `json:"external_address" validate:"required"`
}

// UnlockRequest claims that externalTxHash burned amount wrapped SEMILLA on
// chainCode and asks for the internal credit.
type UnlockRequest struct {
	ChainCode      string `json:"chain_code" validate:"required"`
	Amount         string `json:"amount" validate:"required"`
	ExternalTxHash string `json:"external_tx_hash" validate:"required"`
}
