package models

import "fmt"

// CallOutcome discriminates which structured-data variant a call
// produced.
type CallOutcome string

// Call outcome values.
const (
	CallOutcomeInTransit CallOutcome = "in_transit"
	CallOutcomeArrived   CallOutcome = "arrived"
	CallOutcomeEmergency CallOutcome = "emergency"
)

// InTransitData carries the driver check-in fields for a call where the
// driver is still en route.
type InTransitData struct {
	DriverStatus    string `json:"driver_status" bson:"driverStatus"`
	CurrentLocation string `json:"current_location" bson:"currentLocation"`
	ETA             string `json:"eta" bson:"eta"`
	DelayReason     string `json:"delay_reason" bson:"delayReason"`
}

// ArrivalData carries the fields for a call where the driver has
// reached the receiver.
type ArrivalData struct {
	UnloadingStatus         string `json:"unloading_status" bson:"unloadingStatus"`
	PODReminderAcknowledged bool   `json:"pod_reminder_acknowledged" bson:"podReminderAcknowledged"`
}

// EmergencyData carries the fields collected when the agent pivoted
// into the emergency protocol.
type EmergencyData struct {
	EmergencyType     string `json:"emergency_type" bson:"emergencyType"`
	SafetyStatus      string `json:"safety_status" bson:"safetyStatus"`
	InjuryStatus      string `json:"injury_status" bson:"injuryStatus"`
	EmergencyLocation string `json:"emergency_location" bson:"emergencyLocation"`
	LoadSecure        bool   `json:"load_secure" bson:"loadSecure"`
	EscalationStatus  string `json:"escalation_status" bson:"escalationStatus"`
}

// StructuredData is the tagged union of post-call extraction results.
// Outcome names the variant; exactly one of InTransit, Arrived or
// Emergency is set.
type StructuredData struct {
	Outcome        CallOutcome `json:"call_outcome" bson:"callOutcome"`
	CallSummary    string      `json:"call_summary" bson:"callSummary"`
	CallSuccessful bool        `json:"call_successful" bson:"callSuccessful"`
	UserSentiment  string      `json:"user_sentiment" bson:"userSentiment"`
	InVoicemail    bool        `json:"in_voicemail" bson:"inVoicemail"`

	InTransit *InTransitData `json:"in_transit,omitempty" bson:"inTransit,omitempty"`
	Arrived   *ArrivalData   `json:"arrived,omitempty" bson:"arrived,omitempty"`
	Emergency *EmergencyData `json:"emergency,omitempty" bson:"emergency,omitempty"`
}

// Validate checks that the variant set matches the outcome and that no
// other variant is populated.
func (s StructuredData) Validate() error {
	variants := 0
	if s.InTransit != nil {
		variants++
	}
	if s.Arrived != nil {
		variants++
	}
	if s.Emergency != nil {
		variants++
	}
	if variants != 1 {
		return fmt.Errorf("structured data must carry exactly one variant, got %d", variants)
	}

	switch s.Outcome {
	case CallOutcomeInTransit:
		if s.InTransit == nil {
			return fmt.Errorf("outcome %q requires the in_transit variant", s.Outcome)
		}
	case CallOutcomeArrived:
		if s.Arrived == nil {
			return fmt.Errorf("outcome %q requires the arrived variant", s.Outcome)
		}
	case CallOutcomeEmergency:
		if s.Emergency == nil {
			return fmt.Errorf("outcome %q requires the emergency variant", s.Outcome)
		}
	default:
		return fmt.Errorf("unknown call outcome %q", s.Outcome)
	}
	return nil
}
