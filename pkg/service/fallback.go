package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paybridge_back/models"
	"paybridge_back/pkg/repository"
)

// FallbackService records fee accounting directly against application
// storage when the intermediary ledger is unreachable or rejects the
// request, so no transfer finishes without a fee row.
type FallbackService struct {
	repos repository.Transfer
}

func NewFallbackService(repos repository.Transfer) *FallbackService {
	return &FallbackService{repos: repos}
}

// RecordFee writes the transaction's fee with collection method FALLBACK.
// Idempotent: the unique constraint on transaction_id absorbs duplicates.
func (s *FallbackService) RecordFee(ctx context.Context, tx *models.Transaction) error {
	return s.record(ctx, tx, tx.FeeAmount)
}

// RecordAttempted writes a zero-amount fee row for a transaction that
// reached a terminal state without collecting its fee (partial settlement).
// The row exists so reconciliation can find the attempt.
func (s *FallbackService) RecordAttempted(ctx context.Context, tx *models.Transaction) error {
	return s.record(ctx, tx, decimal.Zero)
}

func (s *FallbackService) record(ctx context.Context, tx *models.Transaction, amount decimal.Decimal) error {
	inserted, err := s.repos.CreateFeeRecord(ctx, &models.FeeRecord{
		TransactionID:    tx.ID,
		Amount:           amount,
		Currency:         tx.Currency,
		CollectionMethod: models.CollectionFallback,
		RecordedAt:       time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "fallback fee record")
	}
	if !inserted {
		logrus.WithField("transaction_id", tx.ID).Debug("fee record already present")
		return nil
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"amount":         amount.String(),
	}).Info("fee recorded via fallback ledger")
	return nil
}
