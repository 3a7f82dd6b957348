package gateway

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"paybridge_back/models"
)

// InternationalGateway fronts a cross-border payout rail. Collections debit
// synchronously; payouts are accepted and settle later, so Credit normally
// returns PENDING and the terminal outcome arrives as a webhook.
type InternationalGateway struct {
	http *resty.Client
}

func NewInternationalGateway(baseURL, apiToken string) *InternationalGateway {
	return &InternationalGateway{
		http: resty.New().SetBaseURL(baseURL).SetAuthToken(apiToken).SetTimeout(defaultTimeout),
	}
}

type intlRequest struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ClientRef     string `json:"client_ref"`
}

type intlResponse struct {
	TransferID string `json:"transfer_id"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
}

func (g *InternationalGateway) Debit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/v2/collections", intlRequest{
		BeneficiaryID: ref.ExternalID,
		Amount:        amount.String(),
		Currency:      currency,
		ClientRef:     uuid.NewString(),
	})
}

func (g *InternationalGateway) Credit(ctx context.Context, ref models.WalletReference, amount decimal.Decimal, currency string) (*LegResult, error) {
	return g.call(ctx, "/v2/payouts", intlRequest{
		BeneficiaryID: ref.ExternalID,
		Amount:        amount.String(),
		Currency:      currency,
		ClientRef:     uuid.NewString(),
	})
}

func (g *InternationalGateway) call(ctx context.Context, path string, body intlRequest) (*LegResult, error) {
	var out intlResponse
	resp, err := g.http.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(path)
	if err != nil {
		return nil, errors.Wrap(err, "international rail request")
	}
	if resp.IsError() {
		return &LegResult{Status: LegFailed, FailureReason: resp.Status()}, nil
	}
	res := &LegResult{ExternalLegID: out.TransferID, FailureReason: out.Reason}
	switch out.State {
	case "settled":
		res.Status = LegCompleted
	case "rejected", "returned":
		res.Status = LegFailed
	default:
		// accepted / in_flight: webhook closes it out.
		res.Status = LegPending
	}
	return res, nil
}
