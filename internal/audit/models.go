package audit

import "time"

// Action names a workflow step worth an audit record.
type Action string

const (
	ActionMessageFetched  Action = "message_fetched"
	ActionReviewCompleted Action = "review_completed"
	ActionResponseSent    Action = "response_sent"
	ActionMessageFailed   Action = "message_failed"
)

// Event is emitted from the workflow to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MessageID string    `json:"message_id"`
	Action    Action    `json:"action"`
	Outcome   string    `json:"outcome,omitempty"`
	RiskTier  string    `json:"risk_tier,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}
