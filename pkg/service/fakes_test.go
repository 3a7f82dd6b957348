package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
	"paybridge_back/pkg/gateway"
	"paybridge_back/pkg/ledgerclient"
)

// fakeTransferRepo is an in-memory repository.Transfer with the same CAS and
// unique-constraint semantics as the postgres implementation.
type fakeTransferRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Transaction
	fees map[string]*models.FeeRecord
}

func newFakeTransferRepo() *fakeTransferRepo {
	return &fakeTransferRepo{
		byID: make(map[string]*models.Transaction),
		fees: make(map[string]*models.FeeRecord),
	}
}

func (r *fakeTransferRepo) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.IdempotencyKey == tx.IdempotencyKey {
			return errors.New("duplicate idempotency key")
		}
	}
	cp := *tx
	r.byID[tx.ID] = &cp
	return nil
}

func (r *fakeTransferRepo) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *tx
	return &cp, nil
}

func (r *fakeTransferRepo) GetByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byID {
		if tx.IdempotencyKey == key {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTransferRepo) GetByLegID(_ context.Context, legID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.byID {
		if (tx.SourceLegID != nil && *tx.SourceLegID == legID) ||
			(tx.DestinationLegID != nil && *tx.DestinationLegID == legID) {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTransferRepo) UpdateStatusCAS(_ context.Context, id string, from, to models.TransactionStatus, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok || tx.Status != from {
		return false, nil
	}
	tx.Status = to
	if failureReason != nil {
		tx.FailureReason = failureReason
	}
	if to.Terminal() {
		now := time.Now()
		tx.CompletedAt = &now
	}
	return true, nil
}

func (r *fakeTransferRepo) SetLegs(_ context.Context, id string, sourceLegID, destinationLegID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return errors.New("transaction not found")
	}
	tx.SourceLegID = sourceLegID
	tx.DestinationLegID = destinationLegID
	return nil
}

func (r *fakeTransferRepo) MarkLegCompleted(_ context.Context, id string, side models.LegSide) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return errors.New("transaction not found")
	}
	if side == models.LegSource {
		tx.SourceLegCompleted = true
	} else {
		tx.DestinationLegCompleted = true
	}
	return nil
}

func (r *fakeTransferRepo) MarkRequiresReversal(_ context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return errors.New("transaction not found")
	}
	tx.RequiresReversal = true
	tx.FailureReason = &reason
	return nil
}

func (r *fakeTransferRepo) SetFallback(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return errors.New("transaction not found")
	}
	tx.UsedFallback = true
	return nil
}

func (r *fakeTransferRepo) CreateFeeRecord(_ context.Context, fee *models.FeeRecord) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.fees[fee.TransactionID]; exists {
		return false, nil
	}
	cp := *fee
	r.fees[fee.TransactionID] = &cp
	return true, nil
}

func (r *fakeTransferRepo) GetFeeRecord(_ context.Context, transactionID string) (*models.FeeRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fee, ok := r.fees[transactionID]
	if !ok {
		return nil, nil
	}
	cp := *fee
	return &cp, nil
}

func (r *fakeTransferRepo) feeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fees)
}

func (r *fakeTransferRepo) txCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// fakeDirectoryRepo backs DirectoryService tests with conflict-on-insert
// semantics matching the postgres unique constraint.
type fakeDirectoryRepo struct {
	mu       sync.Mutex
	wallets  map[string]*models.WalletReference
	accounts map[string]*models.LedgerAccount
}

func newFakeDirectoryRepo() *fakeDirectoryRepo {
	return &fakeDirectoryRepo{
		wallets:  make(map[string]*models.WalletReference),
		accounts: make(map[string]*models.LedgerAccount),
	}
}

func (r *fakeDirectoryRepo) addWallet(ref models.WalletReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[ref.Key()] = &ref
}

func (r *fakeDirectoryRepo) GetWalletReference(_ context.Context, provider models.Provider, externalID string) (*models.WalletReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.wallets[string(provider)+":"+externalID]
	if !ok {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

func (r *fakeDirectoryRepo) GetLedgerAccount(_ context.Context, provider models.Provider, externalID string) (*models.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[string(provider)+":"+externalID]
	if !ok {
		return nil, nil
	}
	cp := *acc
	return &cp, nil
}

func (r *fakeDirectoryRepo) InsertLedgerAccount(_ context.Context, acc *models.LedgerAccount) (*models.LedgerAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(acc.Provider) + ":" + acc.ExternalID
	if existing, ok := r.accounts[key]; ok {
		cp := *existing
		return &cp, nil
	}
	cp := *acc
	r.accounts[key] = &cp
	out := cp
	return &out, nil
}

// fakeLedger scripts intermediary-ledger behavior per test.
type fakeLedger struct {
	mu            sync.Mutex
	createCalls   int
	transferCalls []ledgerclient.TransferParams
	transferFn    func(params ledgerclient.TransferParams) (*ledgerclient.TransferResult, error)
}

func (l *fakeLedger) LookupAccount(_ context.Context, id string) (*ledgerclient.AccountInfo, error) {
	return &ledgerclient.AccountInfo{ID: id, Status: "ACT"}, nil
}

func (l *fakeLedger) CreateAccount(_ context.Context, provider, externalID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.createCalls++
	return "ewallet_" + provider + "_" + externalID, nil
}

func (l *fakeLedger) Transfer(_ context.Context, params ledgerclient.TransferParams) (*ledgerclient.TransferResult, error) {
	l.mu.Lock()
	l.transferCalls = append(l.transferCalls, params)
	fn := l.transferFn
	l.mu.Unlock()
	if fn != nil {
		return fn(params)
	}
	return &ledgerclient.TransferResult{LegID: "ledgerleg_" + params.IdempotencyKey, Status: ledgerclient.TransferCompleted}, nil
}

func (l *fakeLedger) calls() []ledgerclient.TransferParams {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledgerclient.TransferParams, len(l.transferCalls))
	copy(out, l.transferCalls)
	return out
}

func (l *fakeLedger) accountCreations() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.createCalls
}

type gatewayCall struct {
	ref      models.WalletReference
	amount   decimal.Decimal
	currency string
}

// fakeGateway scripts one provider's debit/credit behavior and records the
// amounts it was asked to move.
type fakeGateway struct {
	mu          sync.Mutex
	debitCalls  []gatewayCall
	creditCalls []gatewayCall
	debitFn     func() (*gateway.LegResult, error)
	creditFn    func() (*gateway.LegResult, error)
}

func completedLeg(id string) func() (*gateway.LegResult, error) {
	return func() (*gateway.LegResult, error) {
		return &gateway.LegResult{ExternalLegID: id, Status: gateway.LegCompleted}, nil
	}
}

func (g *fakeGateway) Debit(_ context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*gateway.LegResult, error) {
	g.mu.Lock()
	g.debitCalls = append(g.debitCalls, gatewayCall{ref: ref, amount: amount, currency: currency})
	g.mu.Unlock()
	return g.debitFn()
}

func (g *fakeGateway) Credit(_ context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*gateway.LegResult, error) {
	g.mu.Lock()
	g.creditCalls = append(g.creditCalls, gatewayCall{ref: ref, amount: amount, currency: currency})
	g.mu.Unlock()
	return g.creditFn()
}
