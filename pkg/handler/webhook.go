package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"paybridge_back/internal/signature"
	"paybridge_back/models"
)

// HandleWebhook is the single ingress for asynchronous notifications. The
// HMAC headers are verified before the payload is even parsed; there is no
// test shortcut around that.
func (h *Handler) HandleWebhook(c *gin.Context) {
	source := c.Param("source")
	creds, ok := h.cfg.WebhookCreds[source]
	if !ok {
		newErrorResponse(c, http.StatusNotFound, "unknown webhook source")
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		newErrorResponse(c, http.StatusBadRequest, "unreadable webhook body")
		return
	}

	url := h.cfg.WebhookBaseURL + c.Request.URL.Path
	if !signature.VerifyWebhook(url,
		c.GetHeader("salt"), c.GetHeader("timestamp"),
		creds.AccessKey, creds.SecretKey, body, c.GetHeader("signature")) {
		logrus.WithField("source", source).Warn("webhook signature verification failed")
		newErrorResponse(c, http.StatusUnauthorized, "webhook signature verification failed")
		return
	}

	evt, ok := normalizeEvent(source, body)
	if !ok {
		// Unrecognized event types are acknowledged, not errors.
		logrus.WithField("source", source).Info("unrecognized webhook event type ignored")
		wrapOkJSON(c, map[string]interface{}{"status": "ignored"})
		return
	}

	if err := h.service.Reconciler.Handle(c.Request.Context(), evt); err != nil {
		newErrorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	wrapOkJSON(c, map[string]interface{}{"status": "ok"})
}

type ledgerWebhook struct {
	Type string `json:"type"`
	Data struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		FailureReason string `json:"failure_reason,omitempty"`
	} `json:"data"`
}

type providerWebhook struct {
	LegID       string `json:"leg_id"`
	TransferID  string `json:"transfer_id"`
	OperationID string `json:"operation_id"`
	MovementID  string `json:"movement_id"`
	ID          string `json:"id"`
	Status      string `json:"status"`
	State       string `json:"state"`
	Reason      string `json:"reason"`
}

// normalizeEvent maps a source-specific payload into the reconciler's
// ProviderWebhookEvent. Returns false for event types that carry no leg
// outcome.
func normalizeEvent(source string, body []byte) (models.ProviderWebhookEvent, bool) {
	evt := models.ProviderWebhookEvent{Source: source, RawPayload: body}

	if source == "ledger" {
		var payload ledgerWebhook
		if err := json.Unmarshal(body, &payload); err != nil {
			return evt, false
		}
		evt.LegID = payload.Data.ID
		evt.Reason = payload.Data.FailureReason
		switch {
		case strings.HasSuffix(payload.Type, "_COMPLETED"):
			evt.Outcome = models.LegOutcomeCompleted
		case strings.HasSuffix(payload.Type, "_FAILED"), strings.HasSuffix(payload.Type, "_DECLINED"):
			evt.Outcome = models.LegOutcomeFailed
		default:
			return evt, false
		}
		return evt, evt.LegID != ""
	}

	var payload providerWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return evt, false
	}
	evt.LegID = firstNonEmpty(payload.LegID, payload.TransferID, payload.OperationID, payload.MovementID, payload.ID)
	evt.Reason = payload.Reason
	switch firstNonEmpty(payload.Status, payload.State) {
	case "completed", "settled", "succeeded", "done", "ok":
		evt.Outcome = models.LegOutcomeCompleted
	case "failed", "rejected", "declined", "returned", "error":
		evt.Outcome = models.LegOutcomeFailed
	default:
		return evt, false
	}
	return evt, evt.LegID != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
