package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"paybridge_back/models"
	"paybridge_back/pkg/cache"
	"paybridge_back/pkg/repository"
)

// DirectoryService maps application wallet references onto intermediary
// ledger accounts. It is the only component that knows per-provider id
// formats. Provisioning is serialized per wallet with an in-process lock and
// backed by the unique constraint on (provider, external_id), so a concurrent
// first-use never creates two ledger accounts.
type DirectoryService struct {
	repos  repository.Directory
	ledger LedgerAPI

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDirectoryService(repos repository.Directory, ledger LedgerAPI) *DirectoryService {
	return &DirectoryService{
		repos:  repos,
		ledger: ledger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// EnsureActive fails with ErrWalletNotFound when the wallet reference is
// unknown or deactivated.
func (s *DirectoryService) EnsureActive(ctx context.Context, ref models.WalletReference) error {
	wr, err := s.repos.GetWalletReference(ctx, ref.Provider, ref.ExternalID)
	if err != nil {
		return errors.Wrap(err, "load wallet reference")
	}
	if wr == nil || !wr.IsActive {
		return models.ErrWalletNotFound
	}
	return nil
}

// Resolve returns the ledger account id for a wallet, lazily provisioning one
// on first cross-provider use.
func (s *DirectoryService) Resolve(ctx context.Context, ref models.WalletReference) (string, error) {
	if err := s.EnsureActive(ctx, ref); err != nil {
		return "", err
	}

	key := ref.Key()
	if id, ok := cache.GetAccount(key); ok {
		return id, nil
	}

	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent resolver may have just finished.
	if id, ok := cache.GetAccount(key); ok {
		return id, nil
	}
	acc, err := s.repos.GetLedgerAccount(ctx, ref.Provider, ref.ExternalID)
	if err != nil {
		return "", errors.Wrap(err, "load ledger account")
	}
	if acc != nil {
		cache.SetAccount(key, acc.LedgerAccountID)
		return acc.LedgerAccountID, nil
	}

	ledgerID, err := s.ledger.CreateAccount(ctx, string(ref.Provider), ref.ExternalID)
	if err != nil {
		return "", errors.Wrap(err, "provision ledger account")
	}
	stored, err := s.repos.InsertLedgerAccount(ctx, &models.LedgerAccount{
		Provider:        ref.Provider,
		ExternalID:      ref.ExternalID,
		LedgerAccountID: ledgerID,
		CreatedAt:       time.Now(),
	})
	if err != nil {
		return "", errors.Wrap(err, "persist ledger account")
	}
	if stored.LedgerAccountID != ledgerID {
		// Lost the constraint race to another process; its account wins.
		logrus.WithField("wallet", key).Info("ledger account already provisioned elsewhere")
	}
	cache.SetAccount(key, stored.LedgerAccountID)
	return stored.LedgerAccountID, nil
}

func (s *DirectoryService) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
