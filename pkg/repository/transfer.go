package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"paybridge_back/models"
)

type TransferPostgres struct {
	db *sqlx.DB
}

func NewTransferPostgres(db *sqlx.DB) *TransferPostgres {
	return &TransferPostgres{db: db}
}

func (r *TransferPostgres) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `INSERT INTO transactions
		(id, idempotency_key, source_provider, source_external_id,
		 destination_provider, destination_external_id,
		 amount, fee_amount, currency, status, failure_reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.IdempotencyKey, tx.SourceProvider, tx.SourceExternalID,
		tx.DestinationProvider, tx.DestinationExternalID,
		tx.Amount, tx.FeeAmount, tx.Currency, tx.Status, tx.FailureReason, tx.CreatedAt)
	return errors.Wrap(err, "insert transaction")
}

func (r *TransferPostgres) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE id=$1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get transaction")
	}
	return &tx, nil
}

func (r *TransferPostgres) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx, `SELECT * FROM transactions WHERE idempotency_key=$1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get transaction by idempotency key")
	}
	return &tx, nil
}

func (r *TransferPostgres) GetByLegID(ctx context.Context, legID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.GetContext(ctx, &tx,
		`SELECT * FROM transactions WHERE source_leg_id=$1 OR destination_leg_id=$1`, legID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get transaction by leg id")
	}
	return &tx, nil
}

// UpdateStatusCAS moves a transaction from one status to another only if it
// is still in the expected prior status. A false return means the guard did
// not match and the write was discarded.
func (r *TransferPostgres) UpdateStatusCAS(ctx context.Context, id string, from, to models.TransactionStatus, failureReason *string) (bool, error) {
	query := `UPDATE transactions
		SET status=$1,
		    failure_reason=COALESCE($2, failure_reason),
		    completed_at=CASE WHEN $1 IN ('COMPLETED','FAILED') THEN now() ELSE completed_at END
		WHERE id=$3 AND status=$4`
	res, err := r.db.ExecContext(ctx, query, to, failureReason, id, from)
	if err != nil {
		return false, errors.Wrap(err, "cas status update")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TransferPostgres) SetLegs(ctx context.Context, id string, sourceLegID, destinationLegID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET source_leg_id=$1, destination_leg_id=$2 WHERE id=$3`,
		sourceLegID, destinationLegID, id)
	return errors.Wrap(err, "set legs")
}

func (r *TransferPostgres) MarkLegCompleted(ctx context.Context, id string, side models.LegSide) error {
	column := "source_leg_completed"
	if side == models.LegDestination {
		column = "destination_leg_completed"
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET `+column+`=true WHERE id=$1`, id)
	return errors.Wrap(err, "mark leg completed")
}

func (r *TransferPostgres) MarkRequiresReversal(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET requires_reversal=true, failure_reason=$1 WHERE id=$2`,
		reason, id)
	return errors.Wrap(err, "mark requires reversal")
}

func (r *TransferPostgres) SetFallback(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET used_fallback=true WHERE id=$1`, id)
	return errors.Wrap(err, "set fallback flag")
}

// CreateFeeRecord inserts the fee-accounting row. The unique constraint on
// transaction_id makes the write idempotent; the bool reports whether this
// call actually inserted.
func (r *TransferPostgres) CreateFeeRecord(ctx context.Context, fee *models.FeeRecord) (bool, error) {
	query := `INSERT INTO fee_records (transaction_id, amount, currency, collection_method, recorded_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (transaction_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		fee.TransactionID, fee.Amount, fee.Currency, fee.CollectionMethod, fee.RecordedAt)
	if err != nil {
		return false, errors.Wrap(err, "insert fee record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *TransferPostgres) GetFeeRecord(ctx context.Context, transactionID string) (*models.FeeRecord, error) {
	var fee models.FeeRecord
	err := r.db.GetContext(ctx, &fee,
		`SELECT * FROM fee_records WHERE transaction_id=$1`, transactionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get fee record")
	}
	return &fee, nil
}
