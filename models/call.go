package models

import "time"

// CallStatus is the lifecycle status of a call. A call starts out
// pending and only ever moves forward; the four right-hand values are
// terminal and absorb every later event.
type CallStatus string

// Lifecycle states for a call.
const (
	CallStatusPending    CallStatus = "pending"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusBusy       CallStatus = "busy"
)

// ExtractionState tracks post-call structured extraction for a call.
const (
	ExtractionStateNone        = "none"
	ExtractionStatePending     = "pending"
	ExtractionStateDone        = "done"
	ExtractionStateNeedsReview = "needs_review"
)

// Terminal reports whether no further transition is valid out of s.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// Valid reports whether s is a known lifecycle status.
func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusRinging, CallStatusInProgress,
		CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer, CallStatusBusy:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s. Re-applying
// the current status is not a transition.
func (s CallStatus) CanTransitionTo(next CallStatus) bool {
	if s.Terminal() || s == next || !next.Valid() {
		return false
	}
	switch s {
	case CallStatusPending:
		return next != CallStatusPending
	case CallStatusRinging:
		return next != CallStatusPending && next != CallStatusRinging
	case CallStatusInProgress:
		return next.Terminal()
	}
	return false
}

// StatusesThatReach returns every status from which next is a valid
// transition. Used to build single-document conditional updates.
func StatusesThatReach(next CallStatus) []CallStatus {
	all := []CallStatus{CallStatusPending, CallStatusRinging, CallStatusInProgress}
	var from []CallStatus
	for _, s := range all {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

// Call holds the structure for the call collection in mongo. The _id is
// the platform-assigned call id and is immutable once assigned; calls
// that never made it to the platform carry a locally generated id and a
// triggerError annotation instead.
type Call struct {
	ID                 string     `json:"call_id" bson:"_id"`
	AgentID            string     `json:"agent_id" bson:"agentID"`
	DriverName         string     `json:"driver_name" bson:"driverName"`
	PhoneNumber        string     `json:"phone_number" bson:"phoneNumber"`
	LoadNumber         string     `json:"load_number" bson:"loadNumber"`
	Status             CallStatus `json:"status" bson:"status"`
	LastEventAt        time.Time  `json:"last_event_at" bson:"lastEventAt"`
	ExtractionState    string     `json:"extraction_state" bson:"extractionState"`
	ExtractionAttempts int        `json:"extraction_attempts" bson:"extractionAttempts"`
	PendingTranscript  string     `json:"-" bson:"pendingTranscript,omitempty"`
	AlertSent          bool       `json:"-" bson:"alertSent"`
	TriggerError       string     `json:"trigger_error,omitempty" bson:"triggerError,omitempty"`
	CreatedAt          time.Time  `json:"created_at" bson:"createdAt"`
	UpdatedAt          time.Time  `json:"updated_at" bson:"updatedAt"`
}

// CallWithResult is the read-API projection of a call joined with its
// result, once one exists.
type CallWithResult struct {
	Call
	Transcript     *string         `json:"transcript"`
	StructuredData *StructuredData `json:"structured_data"`
}
