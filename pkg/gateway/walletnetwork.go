package gateway

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
)

// WalletNetworkGateway moves balances inside a closed e-wallet network.
type WalletNetworkGateway struct {
	http *resty.Client
}

func NewWalletNetworkGateway(baseURL, apiToken string) *WalletNetworkGateway {
	return &WalletNetworkGateway{
		http: resty.New().SetBaseURL(baseURL).SetAuthToken(apiToken).SetTimeout(defaultTimeout),
	}
}

type walletNetRequest struct {
	WalletID  string `json:"wallet_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	RequestID string `json:"request_id"`
}

type walletNetResponse struct {
	MovementID string `json:"movement_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func (g *WalletNetworkGateway) Debit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/wallet/v1/withdrawals", ref, amount, currency)
}

func (g *WalletNetworkGateway) Credit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/wallet/v1/deposits", ref, amount, currency)
}

func (g *WalletNetworkGateway) call(ctx context.Context, path string, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	var out walletNetResponse
	resp, err := g.http.R().SetContext(ctx).SetBody(walletNetRequest{
		WalletID:  ref.ExternalID,
		Amount:    amount.String(),
		Currency:  currency,
		RequestID: uuid.NewString(),
	}).SetResult(&out).Post(path)
	if err != nil {
		return nil, errors.Wrap(err, "wallet network request")
	}
	if resp.IsError() {
		return &LegResult{Status: LegFailed, FailureReason: resp.Status()}, nil
	}
	res := &LegResult{ExternalLegID: out.MovementID, FailureReason: out.Error}
	switch out.Status {
	case "done":
		res.Status = LegCompleted
	case "queued":
		res.Status = LegPending
	default:
		res.Status = LegFailed
	}
	return res, nil
}
