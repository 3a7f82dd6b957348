package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"paybridge_back/models"
	"paybridge_back/pkg/gateway"
	"paybridge_back/pkg/ledgerclient"
	"paybridge_back/pkg/repository"
)

// TransferService drives one transfer attempt through
// PENDING -> PROCESSING -> COMPLETED|FAILED. It is request-scoped: no state
// is shared between requests except the persisted rows, and every status
// write is a compare-and-swap on the expected prior status.
type TransferService struct {
	repos     repository.Transfer
	directory Directory
	ledger    LedgerAPI
	gateways  *gateway.Registry
	fallback  *FallbackService

	platformAccountID string
	currencies        map[string]struct{}
}

func NewTransferService(repos repository.Transfer, directory Directory, ledger LedgerAPI,
	gateways *gateway.Registry, fallback *FallbackService, cfg Config) *TransferService {
	currencies := make(map[string]struct{}, len(cfg.SupportedCurrencies))
	for _, c := range cfg.SupportedCurrencies {
		currencies[c] = struct{}{}
	}
	return &TransferService{
		repos:             repos,
		directory:         directory,
		ledger:            ledger,
		gateways:          gateways,
		fallback:          fallback,
		platformAccountID: cfg.PlatformAccountID,
		currencies:        currencies,
	}
}

func (s *TransferService) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return s.repos.GetTransaction(ctx, id)
}

func (s *TransferService) GetFee(ctx context.Context, id string) (*models.FeeRecord, error) {
	return s.repos.GetFeeRecord(ctx, id)
}

// Create executes one transfer request to a terminal or PROCESSING state.
// PROCESSING is returned when a leg settles asynchronously; the webhook
// reconciler closes it out later.
func (s *TransferService) Create(ctx context.Context, req models.TransferRequest) (*models.Transaction, error) {
	if verr := s.validate(req); verr != nil {
		tx := newTransaction(req)
		tx.Status = models.StatusFailed
		reason := verr.Error()
		tx.FailureReason = &reason
		if err := s.repos.CreateTransaction(ctx, tx); err != nil {
			logrus.WithError(err).Warn("could not persist validation failure record")
		}
		return tx, verr
	}

	if existing, err := s.repos.GetByIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	if err := s.directory.EnsureActive(ctx, req.SourceWallet); err != nil {
		return s.failBeforeDispatch(ctx, req, "source wallet: "+err.Error())
	}
	if err := s.directory.EnsureActive(ctx, req.DestinationWallet); err != nil {
		return s.failBeforeDispatch(ctx, req, "destination wallet: "+err.Error())
	}

	tx := newTransaction(req)
	if err := s.repos.CreateTransaction(ctx, tx); err != nil {
		// A concurrent submission with the same key may have won the insert.
		if existing, lookupErr := s.repos.GetByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}

	if ok, err := s.repos.UpdateStatusCAS(ctx, tx.ID, models.StatusPending, models.StatusProcessing, nil); err != nil {
		return nil, err
	} else if !ok {
		return s.repos.GetTransaction(ctx, tx.ID)
	}
	tx.Status = models.StatusProcessing

	if tx.SameProvider() {
		return s.executeSameProvider(ctx, tx)
	}
	return s.executeCrossProvider(ctx, tx)
}

func (s *TransferService) validate(req models.TransferRequest) error {
	switch {
	case req.IdempotencyKey == "":
		return models.NewValidationError("idempotency key is required")
	case !req.Amount.IsPositive():
		return models.NewValidationError("amount must be positive, got %s", req.Amount)
	case req.FeeAmount.IsNegative():
		return models.NewValidationError("fee must not be negative, got %s", req.FeeAmount)
	case req.FeeAmount.GreaterThanOrEqual(req.Amount):
		return models.NewValidationError("fee %s must be less than amount %s", req.FeeAmount, req.Amount)
	case req.SourceWallet.SameWallet(req.DestinationWallet):
		return models.NewValidationError("source and destination wallets must differ")
	}
	if _, ok := s.currencies[req.Currency]; !ok {
		return models.NewValidationError("unsupported currency %q", req.Currency)
	}
	return nil
}

// executeSameProvider runs debit then credit on the shared provider. The
// intermediary ledger is never involved on this path.
func (s *TransferService) executeSameProvider(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	gw, err := s.gateways.Get(tx.SourceProvider)
	if err != nil {
		return s.fail(ctx, tx, err.Error())
	}
	if err := ctx.Err(); err != nil {
		// Cancellation is honored only before the first leg is dispatched.
		return s.fail(ctx, tx, "canceled before dispatch")
	}

	debit, err := gw.Debit(ctx, tx.SourceWallet(), tx.Amount, tx.Currency)
	if err != nil {
		return s.fail(ctx, tx, errors.Wrap(err, "debit leg").Error())
	}
	if debit.Status == gateway.LegFailed {
		// Clean failure: nothing moved, no fee.
		return s.fail(ctx, tx, "debit declined: "+debit.FailureReason)
	}

	// A leg is out the door; the rest must run regardless of caller cancel.
	detached := context.WithoutCancel(ctx)
	if err := s.repos.SetLegs(detached, tx.ID, &debit.ExternalLegID, nil); err != nil {
		return nil, err
	}
	tx.SourceLegID = &debit.ExternalLegID
	if debit.Status == gateway.LegCompleted {
		if err := s.repos.MarkLegCompleted(detached, tx.ID, models.LegSource); err != nil {
			return nil, err
		}
		tx.SourceLegCompleted = true
	}

	credit, err := gw.Credit(detached, tx.DestinationWallet(), tx.Amount.Sub(tx.FeeAmount), tx.Currency)
	if err != nil || credit.Status == gateway.LegFailed {
		// The source was already debited: this is a partial settlement and
		// needs manual reversal, recorded distinctly from a pre-debit failure.
		reason := "credit leg failed after successful debit"
		if err != nil {
			reason = reason + ": " + err.Error()
		} else if credit.FailureReason != "" {
			reason = reason + ": " + credit.FailureReason
		}
		if rerr := s.repos.MarkRequiresReversal(detached, tx.ID, reason); rerr != nil {
			return nil, rerr
		}
		if _, cerr := s.repos.UpdateStatusCAS(detached, tx.ID, models.StatusProcessing, models.StatusFailed, &reason); cerr != nil {
			return nil, cerr
		}
		if ferr := s.fallback.RecordAttempted(detached, tx); ferr != nil {
			logrus.WithError(ferr).Error("attempted fee record failed")
		}
		fresh, _ := s.repos.GetTransaction(detached, tx.ID)
		if fresh == nil {
			fresh = tx
		}
		return fresh, &models.PartialSettlementError{
			TransactionID: tx.ID,
			SettledLegID:  debit.ExternalLegID,
			Reason:        reason,
		}
	}

	if err := s.repos.SetLegs(detached, tx.ID, &debit.ExternalLegID, &credit.ExternalLegID); err != nil {
		return nil, err
	}
	tx.DestinationLegID = &credit.ExternalLegID
	if credit.Status == gateway.LegCompleted {
		if err := s.repos.MarkLegCompleted(detached, tx.ID, models.LegDestination); err != nil {
			return nil, err
		}
		tx.DestinationLegCompleted = true
	}

	if tx.BothLegsCompleted() {
		return s.complete(detached, tx, models.CollectionLedger)
	}
	// One leg is pending on an asynchronous rail; the webhook reconciler
	// will finish the transaction.
	logrus.WithField("transaction_id", tx.ID).Info("transfer awaiting asynchronous settlement")
	return s.repos.GetTransaction(detached, tx.ID)
}

// executeCrossProvider settles through the intermediary ledger: the net
// amount to the destination's ledger account, the fee to the platform's
// account, each leg independently retryable under a per-leg idempotency key.
func (s *TransferService) executeCrossProvider(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	srcAccount, err := s.directory.Resolve(ctx, tx.SourceWallet())
	if err != nil {
		return s.fail(ctx, tx, "resolve source wallet: "+err.Error())
	}
	dstAccount, err := s.directory.Resolve(ctx, tx.DestinationWallet())
	if err != nil {
		return s.fail(ctx, tx, "resolve destination wallet: "+err.Error())
	}
	if err := ctx.Err(); err != nil {
		return s.fail(ctx, tx, "canceled before dispatch")
	}

	main, err := s.ledger.Transfer(ctx, ledgerclient.TransferParams{
		SourceAccountID:      srcAccount,
		DestinationAccountID: dstAccount,
		Amount:               tx.Amount.Sub(tx.FeeAmount),
		Currency:             tx.Currency,
		Metadata:             map[string]string{"transaction_id": tx.ID, "leg": "main"},
		IdempotencyKey:       tx.IdempotencyKey + "-main",
	})
	if err != nil {
		var lerr *ledgerclient.Error
		if errors.As(err, &lerr) && lerr.TriggersFallback() {
			return s.completeViaFallback(ctx, tx, lerr)
		}
		return s.fail(ctx, tx, "ledger transfer rejected: "+err.Error())
	}

	detached := context.WithoutCancel(ctx)
	if err := s.repos.SetLegs(detached, tx.ID, &main.LegID, nil); err != nil {
		return nil, err
	}
	tx.SourceLegID = &main.LegID
	if main.Status == ledgerclient.TransferCompleted {
		if err := s.repos.MarkLegCompleted(detached, tx.ID, models.LegSource); err != nil {
			return nil, err
		}
		tx.SourceLegCompleted = true
	}

	feeRes, feeErr := s.ledger.Transfer(detached, ledgerclient.TransferParams{
		SourceAccountID:      srcAccount,
		DestinationAccountID: s.platformAccountID,
		Amount:               tx.FeeAmount,
		Currency:             tx.Currency,
		Metadata:             map[string]string{"transaction_id": tx.ID, "leg": "fee"},
		IdempotencyKey:       tx.IdempotencyKey + "-fee",
	})
	if feeErr != nil {
		// The fee must be accounted even when its ledger leg fails; record it
		// through the fallback path and treat the fee leg as closed.
		logrus.WithError(feeErr).WithField("transaction_id", tx.ID).
			Warn("fee leg rejected by ledger, using fallback accounting")
		if err := s.fallback.RecordFee(detached, tx); err != nil {
			return nil, err
		}
		if err := s.repos.SetFallback(detached, tx.ID); err != nil {
			return nil, err
		}
		tx.UsedFallback = true
		if err := s.repos.MarkLegCompleted(detached, tx.ID, models.LegDestination); err != nil {
			return nil, err
		}
		tx.DestinationLegCompleted = true
	} else {
		if err := s.repos.SetLegs(detached, tx.ID, &main.LegID, &feeRes.LegID); err != nil {
			return nil, err
		}
		tx.DestinationLegID = &feeRes.LegID
		if feeRes.Status == ledgerclient.TransferCompleted {
			if err := s.repos.MarkLegCompleted(detached, tx.ID, models.LegDestination); err != nil {
				return nil, err
			}
			tx.DestinationLegCompleted = true
		}
	}

	if tx.BothLegsCompleted() {
		method := models.CollectionLedger
		if tx.UsedFallback {
			method = models.CollectionFallback
		}
		return s.complete(detached, tx, method)
	}
	logrus.WithField("transaction_id", tx.ID).Info("transfer awaiting ledger webhooks")
	return s.repos.GetTransaction(detached, tx.ID)
}

// completeViaFallback absorbs a geo-blocked or retry-exhausted ledger failure:
// the fee is recorded against local storage and the transfer is closed out as
// COMPLETED with used_fallback set.
func (s *TransferService) completeViaFallback(ctx context.Context, tx *models.Transaction, lerr *ledgerclient.Error) (*models.Transaction, error) {
	detached := context.WithoutCancel(ctx)
	logrus.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"kind":           lerr.Kind,
		"exhausted":      lerr.Exhausted,
	}).Warn("ledger unusable, completing via fallback")

	if err := s.repos.SetFallback(detached, tx.ID); err != nil {
		return nil, err
	}
	tx.UsedFallback = true
	if err := s.fallback.RecordFee(detached, tx); err != nil {
		return nil, err
	}
	if _, err := s.repos.UpdateStatusCAS(detached, tx.ID, models.StatusProcessing, models.StatusCompleted, nil); err != nil {
		return nil, err
	}
	return s.repos.GetTransaction(detached, tx.ID)
}

func (s *TransferService) complete(ctx context.Context, tx *models.Transaction, method models.CollectionMethod) (*models.Transaction, error) {
	ok, err := s.repos.UpdateStatusCAS(ctx, tx.ID, models.StatusProcessing, models.StatusCompleted, nil)
	if err != nil {
		return nil, err
	}
	if ok {
		inserted, err := s.repos.CreateFeeRecord(ctx, &models.FeeRecord{
			TransactionID:    tx.ID,
			Amount:           tx.FeeAmount,
			Currency:         tx.Currency,
			CollectionMethod: method,
			RecordedAt:       time.Now(),
		})
		if err != nil {
			return nil, err
		}
		if !inserted {
			logrus.WithField("transaction_id", tx.ID).Debug("fee record already present")
		}
	}
	return s.repos.GetTransaction(ctx, tx.ID)
}

func (s *TransferService) fail(ctx context.Context, tx *models.Transaction, reason string) (*models.Transaction, error) {
	detached := context.WithoutCancel(ctx)
	if _, err := s.repos.UpdateStatusCAS(detached, tx.ID, models.StatusProcessing, models.StatusFailed, &reason); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"transaction_id": tx.ID,
		"reason":         reason,
	}).Warn("transfer failed")
	return s.repos.GetTransaction(detached, tx.ID)
}

func (s *TransferService) failBeforeDispatch(ctx context.Context, req models.TransferRequest, reason string) (*models.Transaction, error) {
	tx := newTransaction(req)
	tx.Status = models.StatusFailed
	tx.FailureReason = &reason
	if err := s.repos.CreateTransaction(ctx, tx); err != nil {
		if existing, lookupErr := s.repos.GetByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return tx, models.ErrWalletNotFound
}

func newTransaction(req models.TransferRequest) *models.Transaction {
	return &models.Transaction{
		ID:                    uuid.NewString(),
		IdempotencyKey:        req.IdempotencyKey,
		SourceProvider:        req.SourceWallet.Provider,
		SourceExternalID:      req.SourceWallet.ExternalID,
		DestinationProvider:   req.DestinationWallet.Provider,
		DestinationExternalID: req.DestinationWallet.ExternalID,
		Amount:                req.Amount,
		FeeAmount:             req.FeeAmount,
		Currency:              req.Currency,
		Status:                models.StatusPending,
		CreatedAt:             time.Now(),
	}
}
