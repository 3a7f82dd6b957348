package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending    TransactionStatus = "PENDING"
	StatusProcessing TransactionStatus = "PROCESSING"
	StatusCompleted  TransactionStatus = "COMPLETED"
	StatusFailed     TransactionStatus = "FAILED"
)

func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type LegSide string

const (
	LegSource      LegSide = "source"
	LegDestination LegSide = "destination"
)

// TransferRequest is what the caller submits. Amounts travel as decimal
// strings, never floats.
type TransferRequest struct {
	SourceWallet      WalletReference `json:"source_wallet" binding:"required"`
	DestinationWallet WalletReference `json:"destination_wallet" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	Currency          string          `json:"currency" binding:"required"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	IdempotencyKey    string          `json:"idempotency_key" binding:"required"`
}

// Transaction is the persisted record of one transfer attempt. Owned by the
// orchestrator while legs are being dispatched, jointly with the webhook
// reconciler afterwards; every status write is a compare-and-swap on the
// prior status.
type Transaction struct {
	ID                      string            `db:"id" json:"id"`
	IdempotencyKey          string            `db:"idempotency_key" json:"idempotency_key"`
	SourceProvider          Provider          `db:"source_provider" json:"source_provider"`
	SourceExternalID        string            `db:"source_external_id" json:"source_external_id"`
	DestinationProvider     Provider          `db:"destination_provider" json:"destination_provider"`
	DestinationExternalID   string            `db:"destination_external_id" json:"destination_external_id"`
	Amount                  decimal.Decimal   `db:"amount" json:"amount"`
	FeeAmount               decimal.Decimal   `db:"fee_amount" json:"fee_amount"`
	Currency                string            `db:"currency" json:"currency"`
	Status                  TransactionStatus `db:"status" json:"status"`
	SourceLegID             *string           `db:"source_leg_id" json:"source_leg_id,omitempty"`
	DestinationLegID        *string           `db:"destination_leg_id" json:"destination_leg_id,omitempty"`
	SourceLegCompleted      bool              `db:"source_leg_completed" json:"source_leg_completed"`
	DestinationLegCompleted bool              `db:"destination_leg_completed" json:"destination_leg_completed"`
	UsedFallback            bool              `db:"used_fallback" json:"used_fallback"`
	RequiresReversal        bool              `db:"requires_reversal" json:"requires_reversal"`
	FailureReason           *string           `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt               time.Time         `db:"created_at" json:"created_at"`
	CompletedAt             *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

func (t *Transaction) SourceWallet() WalletReference {
	return WalletReference{Provider: t.SourceProvider, ExternalID: t.SourceExternalID}
}

func (t *Transaction) DestinationWallet() WalletReference {
	return WalletReference{Provider: t.DestinationProvider, ExternalID: t.DestinationExternalID}
}

// SameProvider reports whether both endpoints live at the same payment
// provider, in which case the transfer never touches the intermediary ledger.
func (t *Transaction) SameProvider() bool {
	return t.SourceProvider == t.DestinationProvider
}

func (t *Transaction) BothLegsCompleted() bool {
	return t.SourceLegCompleted && t.DestinationLegCompleted
}
