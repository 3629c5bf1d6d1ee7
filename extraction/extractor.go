// Package extraction turns a raw call transcript into the typed
// structured-data union stored alongside the call. The platform's own
// post-call analysis is preferred when it already carries the custom
// fields; the LLM is only consulted when it does not.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetline/voice-dispatch-api/models"
)

// Extractor derives structured fields from a transcript. analysis is
// the platform's call_analysis payload when the webhook carried one,
// nil otherwise.
type Extractor interface {
	Extract(ctx context.Context, transcript string, analysis map[string]interface{}) (models.StructuredData, error)
}

// fields is the flat wire shape both the platform analysis and the LLM
// produce before mapping onto the tagged union.
type fields struct {
	CallOutcome    string `json:"call_outcome"`
	CallSummary    string `json:"call_summary"`
	CallSuccessful bool   `json:"call_successful"`
	UserSentiment  string `json:"user_sentiment"`
	InVoicemail    bool   `json:"in_voicemail"`

	// normal flow
	DriverStatus            string `json:"driver_status"`
	CurrentLocation         string `json:"current_location"`
	ETA                     string `json:"eta"`
	DelayReason             string `json:"delay_reason"`
	UnloadingStatus         string `json:"unloading_status"`
	PODReminderAcknowledged bool   `json:"pod_reminder_acknowledged"`

	// emergency flow
	EmergencyType     string `json:"emergency_type"`
	SafetyStatus      string `json:"safety_status"`
	InjuryStatus      string `json:"injury_status"`
	EmergencyLocation string `json:"emergency_location"`
	LoadSecure        bool   `json:"load_secure"`
	EscalationStatus  string `json:"escalation_status"`
}

// normalizeOutcome folds the agent-facing outcome labels onto the union
// discriminator.
func normalizeOutcome(raw string) (models.CallOutcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "in-transit update", "in_transit", "in transit", "driving":
		return models.CallOutcomeInTransit, nil
	case "arrival confirmation", "arrived", "arrival":
		return models.CallOutcomeArrived, nil
	case "emergency":
		return models.CallOutcomeEmergency, nil
	}
	return "", fmt.Errorf("unrecognized call outcome %q", raw)
}

// toStructured maps the flat fields onto the union and validates it.
func (f fields) toStructured() (models.StructuredData, error) {
	outcome, err := normalizeOutcome(f.CallOutcome)
	if err != nil {
		return models.StructuredData{}, err
	}

	data := models.StructuredData{
		Outcome:        outcome,
		CallSummary:    f.CallSummary,
		CallSuccessful: f.CallSuccessful,
		UserSentiment:  f.UserSentiment,
		InVoicemail:    f.InVoicemail,
	}
	switch outcome {
	case models.CallOutcomeInTransit:
		data.InTransit = &models.InTransitData{
			DriverStatus:    f.DriverStatus,
			CurrentLocation: f.CurrentLocation,
			ETA:             f.ETA,
			DelayReason:     f.DelayReason,
		}
	case models.CallOutcomeArrived:
		data.Arrived = &models.ArrivalData{
			UnloadingStatus:         f.UnloadingStatus,
			PODReminderAcknowledged: f.PODReminderAcknowledged,
		}
	case models.CallOutcomeEmergency:
		data.Emergency = &models.EmergencyData{
			EmergencyType:     f.EmergencyType,
			SafetyStatus:      f.SafetyStatus,
			InjuryStatus:      f.InjuryStatus,
			EmergencyLocation: f.EmergencyLocation,
			LoadSecure:        f.LoadSecure,
			EscalationStatus:  f.EscalationStatus,
		}
	}
	if err := data.Validate(); err != nil {
		return models.StructuredData{}, err
	}
	return data, nil
}

// fromAnalysis builds the flat fields from the platform's call_analysis
// payload. Returns false when the custom data is missing the outcome,
// in which case the caller falls back to the LLM.
func fromAnalysis(analysis map[string]interface{}) (fields, bool) {
	if analysis == nil {
		return fields{}, false
	}
	custom, _ := analysis["custom_analysis_data"].(map[string]interface{})
	if custom == nil {
		return fields{}, false
	}
	outcome, _ := custom["call_outcome"].(string)
	if outcome == "" {
		return fields{}, false
	}

	merged := map[string]interface{}{}
	for k, v := range analysis {
		merged[k] = v
	}
	for k, v := range custom {
		merged[k] = v
	}

	// round-trip through JSON so the loosely typed payload lands on the
	// flat wire shape without per-field assertions
	b, err := json.Marshal(merged)
	if err != nil {
		return fields{}, false
	}
	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		return fields{}, false
	}
	return f, true
}
