package gateway

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
)

// CardNetworkGateway charges and credits tokenized cards. Both directions
// settle synchronously: a debit is an authorize-and-capture in one call.
type CardNetworkGateway struct {
	http *resty.Client
}

func NewCardNetworkGateway(baseURL, apiToken string) *CardNetworkGateway {
	return &CardNetworkGateway{
		http: resty.New().SetBaseURL(baseURL).SetAuthToken(apiToken).SetTimeout(defaultTimeout),
	}
}

type cardChargeRequest struct {
	CardToken string `json:"card_token"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Capture   bool   `json:"capture"`
	Reference string `json:"reference"`
}

type cardChargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	DeclineReason string `json:"decline_reason,omitempty"`
}

func (g *CardNetworkGateway) Debit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/v1/charges", cardChargeRequest{
		CardToken: ref.ExternalID,
		Amount:    amount.String(),
		Currency:  currency,
		Capture:   true,
		Reference: uuid.NewString(),
	})
}

func (g *CardNetworkGateway) Credit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/v1/credits", cardChargeRequest{
		CardToken: ref.ExternalID,
		Amount:    amount.String(),
		Currency:  currency,
		Reference: uuid.NewString(),
	})
}

func (g *CardNetworkGateway) call(ctx context.Context, path string, body cardChargeRequest) (*LegResult, error) {
	var out cardChargeResponse
	resp, err := g.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return nil, errors.Wrap(err, "card network request")
	}
	if resp.IsError() {
		return &LegResult{Status: LegFailed, FailureReason: resp.Status()}, nil
	}
	res := &LegResult{ExternalLegID: out.ID, FailureReason: out.DeclineReason}
	switch out.Status {
	case "succeeded", "captured":
		res.Status = LegCompleted
	case "declined", "failed":
		res.Status = LegFailed
	default:
		res.Status = LegPending
	}
	return res, nil
}
