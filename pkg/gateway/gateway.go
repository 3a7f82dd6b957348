package gateway

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
)

const defaultTimeout = 20 * time.Second

type LegStatus string

const (
	LegCompleted LegStatus = "COMPLETED"
	LegPending   LegStatus = "PENDING"
	LegFailed    LegStatus = "FAILED"
)

// LegResult is the outcome of one provider-side leg. A PENDING result means
// the provider settles asynchronously and the final outcome arrives as a
// webhook carrying ExternalLegID.
type LegResult struct {
	ExternalLegID string
	Status        LegStatus
	FailureReason string
}

// Gateway executes the provider-specific half of a transfer when both
// endpoints live at the same provider and the intermediary ledger is not
// involved.
type Gateway interface {
	Debit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error)
	Credit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error)
}

// Registry holds one gateway instance per provider, constructed at process
// start and injected where needed.
type Registry struct {
	gateways map[models.Provider]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[models.Provider]Gateway)}
}

func (r *Registry) Register(provider models.Provider, g Gateway) {
	r.gateways[provider] = g
}

func (r *Registry) Get(provider models.Provider) (Gateway, error) {
	g, ok := r.gateways[provider]
	if !ok {
		return nil, errors.Errorf("no gateway registered for provider %q", provider)
	}
	return g, nil
}
