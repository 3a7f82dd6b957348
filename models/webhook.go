package models

import "encoding/json"

type LegOutcome string

const (
	LegOutcomeCompleted LegOutcome = "COMPLETED"
	LegOutcomeFailed    LegOutcome = "FAILED"
)

// ProviderWebhookEvent is the normalized form of an inbound notification.
// Each webhook handler maps its source's payload into this before the
// reconciler ever sees it.
type ProviderWebhookEvent struct {
	Source     string          `json:"source"`
	LegID      string          `json:"leg_id"`
	Outcome    LegOutcome      `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`
}
