package ledgerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"paybridge_back/internal/signature"
)

const (
	defaultTimeout     = 20 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
)

type ErrKind string

const (
	ErrKindAuth       ErrKind = "AUTH_FAILURE"
	ErrKindGeoBlocked ErrKind = "GEO_OR_NETWORK_BLOCKED"
	ErrKindValidation ErrKind = "VALIDATION_FAILURE"
	ErrKindTransient  ErrKind = "TRANSIENT"
)

// Error is a classified ledger failure. Exhausted is set when a transient
// failure survived the whole retry budget, at which point the caller treats
// it like a geo block and goes to the fallback path.
type Error struct {
	Kind       ErrKind
	HTTPStatus int
	Code       string
	Message    string
	Exhausted  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s (http %d, code %q): %s", e.Kind, e.HTTPStatus, e.Code, e.Message)
}

// TriggersFallback reports whether the failure should be absorbed by the
// fallback ledger instead of failing the transfer.
func (e *Error) TriggersFallback() bool {
	return e.Kind == ErrKindGeoBlocked || (e.Kind == ErrKindTransient && e.Exhausted)
}

func IsNotFound(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.HTTPStatus == 404
}

type AccountInfo struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Currency string `json:"currency,omitempty"`
}

type TransferStatus string

const (
	TransferCompleted TransferStatus = "COMPLETED"
	TransferPending   TransferStatus = "PENDING"
	TransferFailed    TransferStatus = "FAILED"
)

type TransferParams struct {
	SourceAccountID      string
	DestinationAccountID string
	Amount               decimal.Decimal
	Currency             string
	Metadata             map[string]string
	IdempotencyKey       string
}

type TransferResult struct {
	LegID  string
	Status TransferStatus
}

// Client talks to the intermediary ledger. Every dispatch is signed
// immediately before transmission with a fresh salt and timestamp; retried
// attempts re-sign from scratch.
type Client struct {
	http        *resty.Client
	accessKey   string
	secretKey   string
	maxAttempts int
	backoffBase time.Duration
}

func New(baseURL, accessKey, secretKey string) *Client {
	return &Client{
		http:        resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
		accessKey:   accessKey,
		secretKey:   secretKey,
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
	}
}

type statusBlock struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type envelope struct {
	Status statusBlock     `json:"status"`
	Data   json.RawMessage `json:"data"`
}

// LookupAccount fetches one ledger account by its ledger-side id.
func (c *Client) LookupAccount(ctx context.Context, ledgerAccountID string) (*AccountInfo, error) {
	var info AccountInfo
	if err := c.do(ctx, "GET", "/v1/user/"+ledgerAccountID, nil, "", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

type createAccountBody struct {
	ReferenceID string            `json:"ewallet_reference_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreateAccount provisions a ledger account for a provider wallet and returns
// the ledger-side id.
func (c *Client) CreateAccount(ctx context.Context, provider, externalID string) (string, error) {
	body := createAccountBody{
		ReferenceID: provider + ":" + externalID,
		Metadata:    map[string]string{"provider": provider, "external_id": externalID},
	}
	var info AccountInfo
	if err := c.do(ctx, "POST", "/v1/user", body, "", &info); err != nil {
		return "", err
	}
	return info.ID, nil
}

type transferBody struct {
	SourceEwallet      string            `json:"source_ewallet"`
	DestinationEwallet string            `json:"destination_ewallet"`
	Amount             string            `json:"amount"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type transferData struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Transfer moves funds between two ledger accounts. The amount goes over the
// wire as a decimal string so the signed canonical body and the parsed value
// can never disagree on representation.
func (c *Client) Transfer(ctx context.Context, params TransferParams) (*TransferResult, error) {
	body := transferBody{
		SourceEwallet:      params.SourceAccountID,
		DestinationEwallet: params.DestinationAccountID,
		Amount:             params.Amount.String(),
		Currency:           params.Currency,
		Metadata:           params.Metadata,
	}
	var data transferData
	if err := c.do(ctx, "POST", "/v1/account/transfer", body, params.IdempotencyKey, &data); err != nil {
		return nil, err
	}
	return &TransferResult{LegID: data.ID, Status: normalizeStatus(data.Status)}, nil
}

// GetTransfer queries one ledger transfer by id.
func (c *Client) GetTransfer(ctx context.Context, legID string) (*TransferResult, error) {
	var data transferData
	if err := c.do(ctx, "GET", "/v1/account/transfer/"+legID, nil, "", &data); err != nil {
		return nil, err
	}
	return &TransferResult{LegID: data.ID, Status: normalizeStatus(data.Status)}, nil
}

func normalizeStatus(raw string) TransferStatus {
	switch raw {
	case "CLO", "COMPLETED", "SUCCESS":
		return TransferCompleted
	case "DEC", "ERR", "FAILED":
		return TransferFailed
	default:
		return TransferPending
	}
}

// do runs one signed call with the bounded retry policy: transient failures
// get exponential backoff up to the attempt budget, an auth rejection gets a
// single regenerate-and-retry, everything else is permanent.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, idempotencyKey string, out interface{}) error {
	canonical, err := signature.CanonicalBody(body)
	if err != nil {
		return errors.Wrap(err, "canonicalize request body")
	}

	authRetried := false
	attempt := func() error {
		sig, salt, ts, err := signature.Sign(method, path, canonical, c.secretKey, c.accessKey)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "sign request"))
		}

		req := c.http.R().
			SetContext(ctx).
			SetHeader("access_key", c.accessKey).
			SetHeader("salt", salt).
			SetHeader("timestamp", strconv.FormatInt(ts, 10)).
			SetHeader("signature", sig)
		if idempotencyKey != "" {
			req.SetHeader("idempotency", idempotencyKey)
		}
		if canonical != "" {
			req.SetHeader("Content-Type", "application/json").SetBody(canonical)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			// Network error or timeout: retryable.
			return &Error{Kind: ErrKindTransient, Message: err.Error()}
		}
		if resp.IsSuccess() {
			return decodeEnvelope(resp.Body(), out)
		}

		lerr := classify(resp.StatusCode(), resp.Body())
		logrus.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode(),
			"kind":   lerr.Kind,
		}).Warn("ledger call rejected")

		switch lerr.Kind {
		case ErrKindTransient:
			return lerr
		case ErrKindAuth:
			if !authRetried {
				authRetried = true
				return lerr
			}
			return backoff.Permanent(lerr)
		default:
			return backoff.Permanent(lerr)
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.backoffBase
	bo := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	if err := backoff.Retry(attempt, bo); err != nil {
		var lerr *Error
		if errors.As(err, &lerr) {
			if lerr.Kind == ErrKindTransient {
				lerr.Exhausted = true
			}
			return lerr
		}
		return err
	}
	return nil
}

func decodeEnvelope(raw []byte, out interface{}) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return backoff.Permanent(errors.Wrap(err, "decode ledger response"))
	}
	payload := env.Data
	if len(payload) == 0 {
		payload = raw
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return backoff.Permanent(errors.Wrap(err, "decode ledger response data"))
	}
	return nil
}

func classify(status int, raw []byte) *Error {
	var env envelope
	_ = json.Unmarshal(raw, &env)
	lerr := &Error{
		HTTPStatus: status,
		Code:       env.Status.ErrorCode,
		Message:    env.Status.Message,
	}
	switch {
	case status == 401:
		lerr.Kind = ErrKindAuth
	case status == 403:
		lerr.Kind = ErrKindGeoBlocked
	case status >= 500:
		lerr.Kind = ErrKindTransient
	default:
		lerr.Kind = ErrKindValidation
	}
	return lerr
}
