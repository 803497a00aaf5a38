package webhooks

import (
	"encoding/json"
	"slices"
	"time"
)

// EventAuditDegraded is dispatched when the integrity monitor finds the
// audit trail broken or unverifiable. Ledger events use their audit event
// type (CROP_REGISTERED, TOKEN_LISTED, ...).
const EventAuditDegraded = "AUDIT_DEGRADED"

// Subscription is a configured receiver of ledger events.
type Subscription struct {
	URL    string   `mapstructure:"url"    json:"url"`
	Secret string   `mapstructure:"secret" json:"-"`
	Events []string `mapstructure:"events" json:"events"` // empty means every event
}

// Wants reports whether the subscription receives eventType.
func (s Subscription) Wants(eventType string) bool {
	return len(s.Events) == 0 || slices.Contains(s.Events, eventType)
}

// Event is the JSON body POSTed to subscribers.
type Event struct {
	Type      string          `json:"type"`
	Seq       int64           `json:"seq,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Hash      string          `json:"hash,omitempty"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	URL        string
	EventType  string
	Attempt    int
	StatusCode int
	Success    bool
	Error      string
}
