package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"paybridge_back/internal/signature"
	"paybridge_back/models"
	"paybridge_back/pkg/service"
)

type fakeReconciler struct {
	mu     sync.Mutex
	events []models.ProviderWebhookEvent
}

func (f *fakeReconciler) Handle(_ context.Context, evt models.ProviderWebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeReconciler) handled() []models.ProviderWebhookEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ProviderWebhookEvent, len(f.events))
	copy(out, f.events)
	return out
}

const webhookBase = "https://pay.example.com"

func newWebhookRouter(rec *fakeReconciler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(&service.Service{Reconciler: rec}, Config{
		APIKey:         "test-api-key",
		WebhookBaseURL: webhookBase,
		WebhookCreds: map[string]WebhookCredentials{
			"ledger": {AccessKey: "ak_ledger", SecretKey: "sk_ledger"},
			"intl":   {AccessKey: "ak_intl", SecretKey: "sk_intl"},
		},
		AllowOrigins: []string{"https://pay.example.com"},
	})
	return h.InitRoute()
}

func signedWebhookRequest(t *testing.T, source string, creds WebhookCredentials, body []byte) *http.Request {
	t.Helper()
	path := "/webhook/" + source
	salt := "a1b2c3d4e5f60718"
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := signature.SignWebhook(webhookBase+path, salt, ts, creds.AccessKey, creds.SecretKey, body)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("salt", salt)
	req.Header.Set("timestamp", ts)
	req.Header.Set("signature", sig)
	return req
}

func TestWebhookValidSignatureReachesReconciler(t *testing.T) {
	rec := &fakeReconciler{}
	router := newWebhookRouter(rec)

	body := []byte(`{"type":"PAYOUT_COMPLETED","data":{"id":"payout_abc","status":"CLO"}}`)
	req := signedWebhookRequest(t, "ledger", WebhookCredentials{AccessKey: "ak_ledger", SecretKey: "sk_ledger"}, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	events := rec.handled()
	require.Len(t, events, 1)
	require.Equal(t, "ledger", events[0].Source)
	require.Equal(t, "payout_abc", events[0].LegID)
	require.Equal(t, models.LegOutcomeCompleted, events[0].Outcome)
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	rec := &fakeReconciler{}
	router := newWebhookRouter(rec)

	body := []byte(`{"type":"PAYOUT_COMPLETED","data":{"id":"payout_abc","status":"CLO"}}`)
	req := signedWebhookRequest(t, "ledger", WebhookCredentials{AccessKey: "ak_ledger", SecretKey: "wrong-secret"}, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, rec.handled(), "unverified payloads must never reach the reconciler")
}

func TestWebhookTamperedBodyRejected(t *testing.T) {
	rec := &fakeReconciler{}
	router := newWebhookRouter(rec)

	body := []byte(`{"type":"PAYOUT_COMPLETED","data":{"id":"payout_abc"}}`)
	req := signedWebhookRequest(t, "ledger", WebhookCredentials{AccessKey: "ak_ledger", SecretKey: "sk_ledger"}, body)
	tampered := []byte(`{"type":"PAYOUT_COMPLETED","data":{"id":"payout_zzz"}}`)
	req.Body = httptest.NewRequest(http.MethodPost, "/webhook/ledger", bytes.NewReader(tampered)).Body

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Empty(t, rec.handled())
}

func TestWebhookUnknownSource(t *testing.T) {
	rec := &fakeReconciler{}
	router := newWebhookRouter(rec)

	req := httptest.NewRequest(http.MethodPost, "/webhook/nobody", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookUnrecognizedEventAcknowledged(t *testing.T) {
	rec := &fakeReconciler{}
	router := newWebhookRouter(rec)

	body := []byte(`{"type":"ACCOUNT_UPDATED","data":{"id":"acct_1"}}`)
	req := signedWebhookRequest(t, "ledger", WebhookCredentials{AccessKey: "ak_ledger", SecretKey: "sk_ledger"}, body)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, rec.handled(), "non-leg events are acknowledged without reconciling")
}

func TestNormalizeEvent(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		body        string
		wantOK      bool
		wantLegID   string
		wantOutcome models.LegOutcome
	}{
		{
			name:        "ledger completed",
			source:      "ledger",
			body:        `{"type":"TRANSFER_COMPLETED","data":{"id":"leg_1","status":"CLO"}}`,
			wantOK:      true,
			wantLegID:   "leg_1",
			wantOutcome: models.LegOutcomeCompleted,
		},
		{
			name:        "ledger declined",
			source:      "ledger",
			body:        `{"type":"PAYOUT_DECLINED","data":{"id":"leg_2","failure_reason":"limits"}}`,
			wantOK:      true,
			wantLegID:   "leg_2",
			wantOutcome: models.LegOutcomeFailed,
		},
		{
			name:   "ledger missing leg id",
			source: "ledger",
			body:   `{"type":"TRANSFER_COMPLETED","data":{"status":"CLO"}}`,
			wantOK: false,
		},
		{
			name:        "intl settled state",
			source:      "intl",
			body:        `{"transfer_id":"intl_9","state":"settled"}`,
			wantOK:      true,
			wantLegID:   "intl_9",
			wantOutcome: models.LegOutcomeCompleted,
		},
		{
			name:        "pos declined",
			source:      "pos",
			body:        `{"operation_id":"pos_3","status":"declined","reason":"card expired"}`,
			wantOK:      true,
			wantLegID:   "pos_3",
			wantOutcome: models.LegOutcomeFailed,
		},
		{
			name:   "provider unknown status",
			source: "cardnet",
			body:   `{"id":"cn_1","status":"pending"}`,
			wantOK: false,
		},
		{
			name:   "garbage payload",
			source: "walletnet",
			body:   `not json`,
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok := normalizeEvent(tt.source, []byte(tt.body))
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			require.Equal(t, tt.wantLegID, evt.LegID)
			require.Equal(t, tt.wantOutcome, evt.Outcome)
			require.Equal(t, tt.source, evt.Source)
		})
	}
}
