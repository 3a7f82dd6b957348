package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"paybridge_back/models"
)

type Transfer interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	GetByLegID(ctx context.Context, legID string) (*models.Transaction, error)
	UpdateStatusCAS(ctx context.Context, id string, from, to models.TransactionStatus, failureReason *string) (bool, error)
	SetLegs(ctx context.Context, id string, sourceLegID, destinationLegID *string) error
	MarkLegCompleted(ctx context.Context, id string, side models.LegSide) error
	MarkRequiresReversal(ctx context.Context, id string, reason string) error
	SetFallback(ctx context.Context, id string) error
	CreateFeeRecord(ctx context.Context, fee *models.FeeRecord) (bool, error)
	GetFeeRecord(ctx context.Context, transactionID string) (*models.FeeRecord, error)
}

type Directory interface {
	GetWalletReference(ctx context.Context, provider models.Provider, externalID string) (*models.WalletReference, error)
	GetLedgerAccount(ctx context.Context, provider models.Provider, externalID string) (*models.LedgerAccount, error)
	InsertLedgerAccount(ctx context.Context, acc *models.LedgerAccount) (*models.LedgerAccount, error)
}

type Repository struct {
	Transfer
	Directory
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		Transfer:  NewTransferPostgres(db),
		Directory: NewDirectoryPostgres(db),
	}
}
