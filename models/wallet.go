package models

import "time"

type Provider string

const (
	ProviderCardNetwork   Provider = "cardnet"
	ProviderInternational Provider = "intl"
	ProviderPointOfSale   Provider = "pos"
	ProviderWalletNetwork Provider = "walletnet"
)

// WalletReference identifies a funding source or destination as the
// application knows it. Never mutated; deactivated instead of deleted.
type WalletReference struct {
	ID         int64     `db:"id" json:"id"`
	Provider   Provider  `db:"provider" json:"provider" binding:"required"`
	ExternalID string    `db:"external_id" json:"external_id" binding:"required"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

func (w WalletReference) Key() string {
	return string(w.Provider) + ":" + w.ExternalID
}

func (w WalletReference) SameWallet(other WalletReference) bool {
	return w.Provider == other.Provider && w.ExternalID == other.ExternalID
}

// LedgerAccount maps a WalletReference onto the intermediary ledger's
// account id. At most one active row per wallet reference.
type LedgerAccount struct {
	ID              int64     `db:"id" json:"id"`
	Provider        Provider  `db:"provider" json:"provider"`
	ExternalID      string    `db:"external_id" json:"external_id"`
	LedgerAccountID string    `db:"ledger_account_id" json:"ledger_account_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
