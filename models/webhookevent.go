package models

import "time"

// WebhookEvent is one append-only audit record per verified inbound
// webhook, applied or not. Keyed by call id and event timestamp so
// idempotence questions can be answered from the store instead of a
// log directory.
type WebhookEvent struct {
	ID             string    `json:"_id" bson:"_id"`
	CallID         string    `json:"call_id" bson:"callID"`
	Event          string    `json:"event" bson:"event"`
	Disposition    string    `json:"disposition,omitempty" bson:"disposition,omitempty"`
	EventTimestamp time.Time `json:"event_timestamp" bson:"eventTimestamp"`
	Applied        bool      `json:"applied" bson:"applied"`
	Note           string    `json:"note,omitempty" bson:"note,omitempty"`
	ReceivedAt     time.Time `json:"received_at" bson:"receivedAt"`
}
