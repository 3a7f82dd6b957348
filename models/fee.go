package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CollectionMethod string

const (
	CollectionLedger   CollectionMethod = "LEDGER"
	CollectionFallback CollectionMethod = "FALLBACK"
)

// FeeRecord is the fee-accounting row for one transaction. Exactly one per
// transaction that reaches a terminal state; the unique constraint on
// transaction_id enforces it.
type FeeRecord struct {
	ID               int64            `db:"id" json:"id"`
	TransactionID    string           `db:"transaction_id" json:"transaction_id"`
	Amount           decimal.Decimal  `db:"amount" json:"amount"`
	Currency         string           `db:"currency" json:"currency"`
	CollectionMethod CollectionMethod `db:"collection_method" json:"collection_method"`
	RecordedAt       time.Time        `db:"recorded_at" json:"recorded_at"`
}
