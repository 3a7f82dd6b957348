package gateway

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
)

// PointOfSaleGateway moves money between merchant POS accounts. Synchronous
// in both directions.
type PointOfSaleGateway struct {
	http *resty.Client
}

func NewPointOfSaleGateway(baseURL, apiToken string) *PointOfSaleGateway {
	return &PointOfSaleGateway{
		http: resty.New().SetBaseURL(baseURL).SetAuthToken(apiToken).SetTimeout(defaultTimeout),
	}
}

type posRequest struct {
	MerchantAccount string `json:"merchant_account"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	OperationID     string `json:"operation_id"`
}

type posResponse struct {
	OperationID string `json:"operation_id"`
	Result      string `json:"result"`
	Detail      string `json:"detail,omitempty"`
}

func (g *PointOfSaleGateway) Debit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/pos/v1/debits", ref, amount, currency)
}

func (g *PointOfSaleGateway) Credit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/pos/v1/credits", ref, amount, currency)
}

func (g *PointOfSaleGateway) call(ctx context.Context, path string, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	var out posResponse
	resp, err := g.http.R().SetContext(ctx).SetBody(posRequest{
		MerchantAccount: ref.ExternalID,
		Amount:          amount.String(),
		Currency:        currency,
		OperationID:     uuid.NewString(),
	}).SetResult(&out).Post(path)
	if err != nil {
		return nil, errors.Wrap(err, "pos request")
	}
	if resp.IsError() {
		return &LegResult{Status: LegFailed, FailureReason: resp.Status()}, nil
	}
	res := &LegResult{ExternalLegID: out.OperationID, FailureReason: out.Detail}
	if out.Result == "ok" {
		res.Status = LegCompleted
	} else {
		res.Status = LegFailed
	}
	return res, nil
}
