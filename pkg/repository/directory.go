package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"paybridge_back/models"
)

type DirectoryPostgres struct {
	db *sqlx.DB
}

func NewDirectoryPostgres(db *sqlx.DB) *DirectoryPostgres {
	return &DirectoryPostgres{db: db}
}

func (r *DirectoryPostgres) GetWalletReference(ctx context.Context, provider models.Provider, externalID string) (*models.WalletReference, error) {
	var ref models.WalletReference
	err := r.db.GetContext(ctx, &ref,
		`SELECT * FROM wallet_references WHERE provider=$1 AND external_id=$2`,
		provider, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get wallet reference")
	}
	return &ref, nil
}

func (r *DirectoryPostgres) GetLedgerAccount(ctx context.Context, provider models.Provider, externalID string) (*models.LedgerAccount, error) {
	var acc models.LedgerAccount
	err := r.db.GetContext(ctx, &acc,
		`SELECT * FROM ledger_accounts WHERE provider=$1 AND external_id=$2`,
		provider, externalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get ledger account")
	}
	return &acc, nil
}

// InsertLedgerAccount persists a freshly provisioned mapping. On a unique
// constraint conflict the already-present row wins and is returned, so two
// concurrent provisioners converge on one account.
func (r *DirectoryPostgres) InsertLedgerAccount(ctx context.Context, acc *models.LedgerAccount) (*models.LedgerAccount, error) {
	query := `INSERT INTO ledger_accounts (provider, external_id, ledger_account_id, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (provider, external_id) DO NOTHING
		RETURNING id, provider, external_id, ledger_account_id, created_at`
	var inserted models.LedgerAccount
	err := r.db.GetContext(ctx, &inserted, query,
		acc.Provider, acc.ExternalID, acc.LedgerAccountID, acc.CreatedAt)
	if err == nil {
		return &inserted, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.Wrap(err, "insert ledger account")
	}
	existing, err := r.GetLedgerAccount(ctx, acc.Provider, acc.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.New("ledger account conflict row disappeared")
	}
	return existing, nil
}
