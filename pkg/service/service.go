package service

import (
	"context"

	"paybridge_back/models"
	"paybridge_back/pkg/gateway"
	"paybridge_back/pkg/ledgerclient"
	"paybridge_back/pkg/repository"
)

// LedgerAPI is the slice of the intermediary-ledger client the services
// consume. The concrete client lives in pkg/ledgerclient.
type LedgerAPI interface {
	LookupAccount(ctx context.Context, ledgerAccountID string) (*ledgerclient.AccountInfo, error)
	CreateAccount(ctx context.Context, provider, externalID string) (string, error)
	Transfer(ctx context.Context, params ledgerclient.TransferParams) (*ledgerclient.TransferResult, error)
}

type Transfer interface {
	Create(ctx context.Context, req models.TransferRequest) (*models.Transaction, error)
	Get(ctx context.Context, id string) (*models.Transaction, error)
	GetFee(ctx context.Context, id string) (*models.FeeRecord, error)
}

type Directory interface {
	Resolve(ctx context.Context, ref models.WalletReference) (string, error)
	EnsureActive(ctx context.Context, ref models.WalletReference) error
}

type Reconciler interface {
	Handle(ctx context.Context, evt models.ProviderWebhookEvent) error
}

type Config struct {
	PlatformAccountID   string
	SupportedCurrencies []string
}

type Service struct {
	Transfer
	Directory
	Reconciler
}

func NewService(repos *repository.Repository, ledger LedgerAPI, gateways *gateway.Registry, cfg Config) *Service {
	directory := NewDirectoryService(repos.Directory, ledger)
	fallback := NewFallbackService(repos.Transfer)
	return &Service{
		Transfer:   NewTransferService(repos.Transfer, directory, ledger, gateways, fallback, cfg),
		Directory:  directory,
		Reconciler: NewReconcilerService(repos.Transfer),
	}
}
