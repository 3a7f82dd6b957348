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

// ReconcilerService consumes asynchronous provider and ledger notifications
// and advances pending transactions to a terminal state. It runs
// independently of the orchestrator; the persisted transaction row and its
// compare-and-swap status guard are the only coordination between them.
type ReconcilerService struct {
	repos repository.Transfer
}

func NewReconcilerService(repos repository.Transfer) *ReconcilerService {
	return &ReconcilerService{repos: repos}
}

// Handle applies one normalized webhook event. Monotonic: only
// PROCESSING -> COMPLETED|FAILED transitions happen here; events for
// already-terminal transactions are acknowledged and discarded, so duplicate
// delivery is harmless.
func (s *ReconcilerService) Handle(ctx context.Context, evt models.ProviderWebhookEvent) error {
	log := logrus.WithFields(logrus.Fields{"source": evt.Source, "leg_id": evt.LegID})

	if evt.LegID == "" {
		log.Info("webhook event without leg id ignored")
		return nil
	}
	tx, err := s.repos.GetByLegID(ctx, evt.LegID)
	if err != nil {
		return errors.Wrap(err, "lookup transaction by leg")
	}
	if tx == nil {
		log.Info("webhook references unknown leg, ignored")
		return nil
	}
	if tx.Status.Terminal() {
		log.WithField("transaction_id", tx.ID).Debug("webhook for terminal transaction acknowledged")
		return nil
	}

	switch evt.Outcome {
	case models.LegOutcomeCompleted:
		return s.handleCompleted(ctx, tx, evt)
	case models.LegOutcomeFailed:
		return s.handleFailed(ctx, tx, evt)
	default:
		log.WithField("outcome", evt.Outcome).Info("unrecognized webhook outcome ignored")
		return nil
	}
}

func (s *ReconcilerService) handleCompleted(ctx context.Context, tx *models.Transaction, evt models.ProviderWebhookEvent) error {
	side, ok := legSide(tx, evt.LegID)
	if !ok {
		logrus.WithField("leg_id", evt.LegID).Info("completed leg not attached to transaction, ignored")
		return nil
	}
	if err := s.repos.MarkLegCompleted(ctx, tx.ID, side); err != nil {
		return err
	}

	fresh, err := s.repos.GetTransaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	if fresh == nil || fresh.Status.Terminal() {
		return nil
	}
	if !legClosed(fresh, models.LegSource) || !legClosed(fresh, models.LegDestination) {
		// Partial completion is a flag on the row, not a new state; wait for
		// the paired leg's event.
		logrus.WithField("transaction_id", fresh.ID).Info("one leg confirmed, awaiting the other")
		return nil
	}

	ok, err = s.repos.UpdateStatusCAS(ctx, fresh.ID, models.StatusProcessing, models.StatusCompleted, nil)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to another writer; whatever won owns the terminal
		// state. Do not retry blindly.
		logrus.WithField("transaction_id", fresh.ID).Info("completion CAS lost, discarded")
		return nil
	}

	method := models.CollectionLedger
	if fresh.UsedFallback {
		method = models.CollectionFallback
	}
	inserted, err := s.repos.CreateFeeRecord(ctx, &models.FeeRecord{
		TransactionID:    fresh.ID,
		Amount:           fresh.FeeAmount,
		Currency:         fresh.Currency,
		CollectionMethod: method,
		RecordedAt:       time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		logrus.WithField("transaction_id", fresh.ID).Debug("fee record already present")
	}
	logrus.WithField("transaction_id", fresh.ID).Info("transaction completed via webhook")
	return nil
}

func (s *ReconcilerService) handleFailed(ctx context.Context, tx *models.Transaction, evt models.ProviderWebhookEvent) error {
	reason := evt.Reason
	if reason == "" {
		reason = "leg failed (reported by " + evt.Source + ")"
	}

	partial := tx.SourceLegCompleted || tx.DestinationLegCompleted
	if partial {
		if err := s.repos.MarkRequiresReversal(ctx, tx.ID, reason); err != nil {
			return err
		}
	}
	ok, err := s.repos.UpdateStatusCAS(ctx, tx.ID, models.StatusProcessing, models.StatusFailed, &reason)
	if err != nil {
		return err
	}
	if !ok {
		logrus.WithField("transaction_id", tx.ID).Info("failure CAS lost, discarded")
		return nil
	}
	if partial {
		// Terminal-after-partial-settlement still gets its fee-accounting row.
		if _, err := s.repos.CreateFeeRecord(ctx, &models.FeeRecord{
			TransactionID:    tx.ID,
			Amount:           decimal.Zero, // attempted only, nothing collected
			Currency:         tx.Currency,
			CollectionMethod: models.CollectionFallback,
			RecordedAt:       time.Now(),
		}); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id":    tx.ID,
		"requires_reversal": partial,
		"reason":            reason,
	}).Warn("transaction failed via webhook")
	return nil
}

func legSide(tx *models.Transaction, legID string) (models.LegSide, bool) {
	if tx.SourceLegID != nil && *tx.SourceLegID == legID {
		return models.LegSource, true
	}
	if tx.DestinationLegID != nil && *tx.DestinationLegID == legID {
		return models.LegDestination, true
	}
	return "", false
}

// legClosed treats an unset leg as closed: a transaction that only ever
// dispatched one leg has nothing to wait for on the other side.
func legClosed(tx *models.Transaction, side models.LegSide) bool {
	if side == models.LegSource {
		return tx.SourceLegID == nil || tx.SourceLegCompleted
	}
	return tx.DestinationLegID == nil || tx.DestinationLegCompleted
}
