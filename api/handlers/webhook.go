package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/config"
	"github.com/fleetline/voice-dispatch-api/databases"
	"github.com/fleetline/voice-dispatch-api/extraction"
	"github.com/fleetline/voice-dispatch-api/models"
	"github.com/fleetline/voice-dispatch-api/retell"
)

// signatureHeader carries the hex HMAC of the raw body.
const signatureHeader = "X-Retell-Signature"

// defaultBackoff is the retry schedule for the extraction pipeline.
var defaultBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Webhook reconciles inbound platform events onto the call lifecycle.
// Events arrive at least once and possibly out of order; everything
// here is safe to replay.
type Webhook struct {
	CallDB    databases.CallDatabase
	ResultDB  databases.CallResultDatabase
	EventDB   databases.WebhookEventDatabase
	Extractor extraction.Extractor
	Feed      *LiveFeed
	Secret    string
	Backoff   []time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lockFor returns the mutex serializing work on one call id. Different
// call ids proceed fully in parallel.
func (h *Webhook) lockFor(callID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.locks == nil {
		h.locks = make(map[string]*sync.Mutex)
	}
	l, ok := h.locks[callID]
	if !ok {
		l = &sync.Mutex{}
		h.locks[callID] = l
	}
	return l
}

func (h *Webhook) backoff() []time.Duration {
	if len(h.Backoff) > 0 {
		return h.Backoff
	}
	return defaultBackoff
}

type webhookPayload struct {
	Event        string                 `json:"event"`
	CallID       string                 `json:"call_id"`
	Timestamp    time.Time              `json:"timestamp"`
	Transcript   string                 `json:"transcript,omitempty"`
	Disposition  string                 `json:"disposition,omitempty"`
	CallAnalysis map[string]interface{} `json:"call_analysis,omitempty"`
}

// dispositionStatus maps the platform's call_ended disposition onto a
// terminal lifecycle status. Anything unrecognized counts as failed
// rather than being dropped, so the call never sticks in a live state.
func dispositionStatus(d string) models.CallStatus {
	switch strings.ToLower(strings.TrimSpace(d)) {
	case "", "completed", "ended", "hangup", "agent_hangup", "user_hangup":
		return models.CallStatusCompleted
	case "no_answer", "no-answer", "dial_no_answer", "voicemail_reached":
		return models.CallStatusNoAnswer
	case "busy", "dial_busy":
		return models.CallStatusBusy
	default:
		return models.CallStatusFailed
	}
}

// RetellWebhookHandler ingests one platform event. The platform expects
// an ack within its delivery window, so the slow extraction work is
// handed to a goroutine and the handler returns as soon as the status
// reconciliation has been applied.
func (h *Webhook) RetellWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		config.ErrorStatus("failed to read request body", http.StatusBadRequest, w, err)
		return
	}

	if !retell.VerifySignature(body, h.Secret, r.Header.Get(signatureHeader)) {
		config.ErrorStatus("invalid webhook signature", http.StatusUnauthorized, w,
			fmt.Errorf("signature verification failed"))
		return
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		config.ErrorStatus("failed to decode webhook payload", http.StatusBadRequest, w, err)
		return
	}
	if p.Event == "" || p.CallID == "" || p.Timestamp.IsZero() {
		config.ErrorStatus("webhook payload missing event, call_id or timestamp", http.StatusBadRequest, w,
			fmt.Errorf("incomplete payload"))
		return
	}

	lock := h.lockFor(p.CallID)
	lock.Lock()
	defer lock.Unlock()

	call, err := h.CallDB.Get(r.Context(), p.CallID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			h.audit(r.Context(), p, false, "unknown call id")
			config.ErrorStatus("call not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get call", http.StatusInternalServerError, w, err)
		return
	}

	switch p.Event {
	case "call_ringing":
		h.applyTransition(r.Context(), w, p, models.CallStatusRinging)
	case "call_started":
		h.applyTransition(r.Context(), w, p, models.CallStatusInProgress)
	case "call_ended":
		h.applyTransition(r.Context(), w, p, dispositionStatus(p.Disposition))
	case "call_analyzed":
		h.handleAnalyzed(r.Context(), w, p, call)
	default:
		config.ErrorStatus("unknown webhook event", http.StatusBadRequest, w,
			fmt.Errorf("unsupported event %q", p.Event))
	}
}

// applyTransition runs the conditional status update and records the
// outcome. A stale or duplicate event is acked with 204 all the same;
// the platform retries on anything else.
func (h *Webhook) applyTransition(ctx context.Context, w http.ResponseWriter, p webhookPayload, next models.CallStatus) {
	applied, err := h.CallDB.Transition(ctx, p.CallID, next, p.Timestamp)
	if err != nil {
		config.ErrorStatus("failed to apply status transition", http.StatusInternalServerError, w, err)
		return
	}

	note := ""
	if !applied {
		note = "stale or duplicate event"
		zap.S().Debugw("webhook event ignored",
			"callID", p.CallID, "event", p.Event, "next", next)
	}
	h.audit(ctx, p, applied, note)

	if applied {
		h.Feed.BroadcastStatus(p.CallID, next, p.Timestamp)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAnalyzed kicks off exactly-once structured extraction. The
// status machine is untouched; the result write is guarded by the
// per-call lock, an existence check and the unique callID index.
func (h *Webhook) handleAnalyzed(ctx context.Context, w http.ResponseWriter, p webhookPayload, call *models.Call) {
	if _, err := h.ResultDB.FindByCallID(ctx, p.CallID); err == nil {
		h.audit(ctx, p, false, "result already stored")
		w.WriteHeader(http.StatusNoContent)
		return
	} else if !errors.Is(err, databases.ErrNotFound) {
		config.ErrorStatus("failed to check for existing result", http.StatusInternalServerError, w, err)
		return
	}

	if call.ExtractionState == models.ExtractionStatePending {
		h.audit(ctx, p, false, "extraction already in flight")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_, err := h.CallDB.UpdateOne(ctx, bson.M{"_id": p.CallID}, bson.M{"$set": bson.M{
		"extractionState": models.ExtractionStatePending,
		"updatedAt":       time.Now(),
	}})
	if err != nil {
		config.ErrorStatus("failed to mark extraction pending", http.StatusInternalServerError, w, err)
		return
	}

	h.audit(ctx, p, true, "")
	go h.runExtraction(p.CallID, p.Transcript, p.CallAnalysis)
	w.WriteHeader(http.StatusNoContent)
}

// runExtraction retries the extractor on a backoff schedule and
// persists at most one result. A permanent failure parks the call in
// needs_review with the transcript retained for the reprocess sweep;
// the lifecycle status is never touched.
func (h *Webhook) runExtraction(callID, transcript string, analysis map[string]interface{}) {
	schedule := h.backoff()
	attempts := 0

	var data models.StructuredData
	var err error
	for attempts < len(schedule) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		data, err = h.Extractor.Extract(ctx, transcript, analysis)
		cancel()
		attempts++
		if err == nil {
			break
		}
		zap.S().Warnw("extraction attempt failed",
			"callID", callID, "attempt", attempts, "error", err)
		if attempts < len(schedule) {
			time.Sleep(schedule[attempts-1])
		}
	}

	lock := h.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err != nil {
		_, uerr := h.CallDB.UpdateOne(ctx, bson.M{"_id": callID}, bson.M{
			"$set": bson.M{
				"extractionState":   models.ExtractionStateNeedsReview,
				"pendingTranscript": transcript,
				"updatedAt":         time.Now(),
			},
			"$inc": bson.M{"extractionAttempts": attempts},
		})
		if uerr != nil {
			zap.S().Errorw("failed to park call for review", "callID", callID, "error", uerr)
		}
		zap.S().Errorw("extraction failed permanently",
			"callID", callID, "attempts", attempts, "error", err)
		return
	}

	if _, ferr := h.ResultDB.FindByCallID(ctx, callID); ferr == nil {
		return
	} else if !errors.Is(ferr, databases.ErrNotFound) {
		zap.S().Errorw("failed to check for existing result", "callID", callID, "error", ferr)
		return
	}

	cerr := h.ResultDB.Create(ctx, &models.CallResult{
		CallID:         callID,
		Transcript:     transcript,
		StructuredData: data,
	})
	if cerr != nil && !errors.Is(cerr, databases.ErrDuplicateKey) {
		zap.S().Errorw("failed to store call result", "callID", callID, "error", cerr)
		return
	}

	_, uerr := h.CallDB.UpdateOne(ctx, bson.M{"_id": callID}, bson.M{
		"$set": bson.M{
			"extractionState": models.ExtractionStateDone,
			"updatedAt":       time.Now(),
		},
		"$unset": bson.M{"pendingTranscript": ""},
		"$inc":   bson.M{"extractionAttempts": attempts},
	})
	if uerr != nil {
		zap.S().Errorw("failed to mark extraction done", "callID", callID, "error", uerr)
	}
	zap.S().Infow("call result stored", "callID", callID, "attempts", attempts)
}

// ReprocessHandler re-runs extraction for a call parked in needs_review
// using the transcript retained at failure time.
func (h *Webhook) ReprocessHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	lock := h.lockFor(callID)
	lock.Lock()
	defer lock.Unlock()

	call, err := h.CallDB.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			config.ErrorStatus("call not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get call", http.StatusInternalServerError, w, err)
		return
	}

	if _, err := h.ResultDB.FindByCallID(r.Context(), callID); err == nil {
		config.ErrorStatus("call already has a result", http.StatusConflict, w,
			fmt.Errorf("result exists for call %s", callID))
		return
	} else if !errors.Is(err, databases.ErrNotFound) {
		config.ErrorStatus("failed to check for existing result", http.StatusInternalServerError, w, err)
		return
	}

	if call.PendingTranscript == "" {
		config.ErrorStatus("no transcript retained for this call", http.StatusUnprocessableEntity, w,
			fmt.Errorf("nothing to reprocess for call %s", callID))
		return
	}

	_, err = h.CallDB.UpdateOne(r.Context(), bson.M{"_id": callID}, bson.M{"$set": bson.M{
		"extractionState": models.ExtractionStatePending,
		"updatedAt":       time.Now(),
	}})
	if err != nil {
		config.ErrorStatus("failed to mark extraction pending", http.StatusInternalServerError, w, err)
		return
	}

	go h.runExtraction(callID, call.PendingTranscript, nil)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"message": "reprocessing started"})
}

// audit appends one record per verified event, applied or not.
func (h *Webhook) audit(ctx context.Context, p webhookPayload, applied bool, note string) {
	err := h.EventDB.Append(ctx, &models.WebhookEvent{
		ID:             uuid.New().String(),
		CallID:         p.CallID,
		Event:          p.Event,
		Disposition:    p.Disposition,
		EventTimestamp: p.Timestamp,
		Applied:        applied,
		Note:           note,
		ReceivedAt:     time.Now(),
	})
	if err != nil {
		zap.S().Errorw("failed to append webhook audit record",
			"callID", p.CallID, "event", p.Event, "error", err)
	}
}
