// Package scheduler runs the periodic background jobs: re-driving
// structured extraction for calls parked in needs_review and alerting
// operators about calls that keep failing.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/databases"
	"github.com/fleetline/voice-dispatch-api/extraction"
	"github.com/fleetline/voice-dispatch-api/models"
)

// Scheduler handles periodic background jobs for the extraction pipeline
type Scheduler struct {
	cron       *cron.Cron
	CallDB     databases.CallDatabase
	ResultDB   databases.CallResultDatabase
	Extractor  extraction.Extractor
	AlertEmail string
	instanceID string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(
	callDB databases.CallDatabase,
	resultDB databases.CallResultDatabase,
	extractor extraction.Extractor,
	alertEmail string,
) *Scheduler {
	// Generate a unique instance ID for this pod
	instanceID := os.Getenv("DYNO") // Heroku sets this to "web.1", "web.2", etc.
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		CallDB:     callDB,
		ResultDB:   resultDB,
		Extractor:  extractor,
		AlertEmail: alertEmail,
		instanceID: instanceID,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	// Re-drive failed extractions hourly
	_, err := s.cron.AddFunc("0 * * * *", s.SweepNeedsReview)
	if err != nil {
		zap.S().Errorw("failed to register needs-review sweep", "error", err)
	}

	s.cron.Start()
	zap.S().Info("extraction sweep scheduler started")
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("extraction sweep scheduler stopped")
}

// SweepNeedsReview retries extraction for every call parked in
// needs_review with a retained transcript. A call that fails again gets
// one operator alert, ever; alertSent keeps the sweep from spamming.
func (s *Scheduler) SweepNeedsReview() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	zap.S().Infow("running needs-review extraction sweep", "instance", s.instanceID)

	calls, err := s.CallDB.Find(ctx, bson.M{
		"extractionState":   models.ExtractionStateNeedsReview,
		"pendingTranscript": bson.M{"$exists": true, "$ne": ""},
	})
	if err != nil {
		zap.S().Errorw("failed to find calls needing review", "error", err)
		return
	}

	recovered := 0
	for _, call := range calls {
		if s.retryExtraction(ctx, call) {
			recovered++
		}
	}

	zap.S().Infow("needs-review sweep complete",
		"callsChecked", len(calls),
		"recovered", recovered,
	)
}

// retryExtraction runs one extraction attempt for a parked call and
// reports whether a result was stored.
func (s *Scheduler) retryExtraction(ctx context.Context, call models.Call) bool {
	// a result may have landed since the call was parked
	if _, err := s.ResultDB.FindByCallID(ctx, call.ID); err == nil {
		s.markDone(ctx, call.ID)
		return false
	} else if !errors.Is(err, databases.ErrNotFound) {
		zap.S().Errorw("failed to check for existing result", "callID", call.ID, "error", err)
		return false
	}

	data, err := s.Extractor.Extract(ctx, call.PendingTranscript, nil)
	if err != nil {
		zap.S().Warnw("sweep extraction attempt failed", "callID", call.ID, "error", err)
		s.alertOnce(ctx, call)
		_, uerr := s.CallDB.UpdateOne(ctx, bson.M{"_id": call.ID}, bson.M{
			"$inc": bson.M{"extractionAttempts": 1},
			"$set": bson.M{"updatedAt": time.Now()},
		})
		if uerr != nil {
			zap.S().Errorw("failed to bump extraction attempts", "callID", call.ID, "error", uerr)
		}
		return false
	}

	cerr := s.ResultDB.Create(ctx, &models.CallResult{
		CallID:         call.ID,
		Transcript:     call.PendingTranscript,
		StructuredData: data,
	})
	if cerr != nil && !errors.Is(cerr, databases.ErrDuplicateKey) {
		zap.S().Errorw("failed to store call result", "callID", call.ID, "error", cerr)
		return false
	}

	s.markDone(ctx, call.ID)
	zap.S().Infow("sweep recovered call result", "callID", call.ID)
	return true
}

func (s *Scheduler) markDone(ctx context.Context, callID string) {
	_, err := s.CallDB.UpdateOne(ctx, bson.M{"_id": callID}, bson.M{
		"$set": bson.M{
			"extractionState": models.ExtractionStateDone,
			"updatedAt":       time.Now(),
		},
		"$unset": bson.M{"pendingTranscript": ""},
		"$inc":   bson.M{"extractionAttempts": 1},
	})
	if err != nil {
		zap.S().Errorw("failed to mark extraction done", "callID", callID, "error", err)
	}
}

// alertOnce emails the ops address about a permanently failing call the
// first time the sweep sees it fail.
func (s *Scheduler) alertOnce(ctx context.Context, call models.Call) {
	if call.AlertSent || s.AlertEmail == "" {
		return
	}

	subject := fmt.Sprintf("Extraction stuck for call %s", call.ID)
	plain := fmt.Sprintf(
		"Structured extraction keeps failing for call %s (driver %s, load %s) after %d attempts.\n"+
			"The transcript is retained; retry from the dashboard or via POST /api/v1/call/%s/reprocess.",
		call.ID, call.DriverName, call.LoadNumber, call.ExtractionAttempts, call.ID)

	if err := s.sendEmail(s.AlertEmail, subject, plain); err != nil {
		zap.S().Errorw("failed to send extraction alert", "callID", call.ID, "error", err)
		return
	}

	_, err := s.CallDB.UpdateOne(ctx, bson.M{"_id": call.ID}, bson.M{
		"$set": bson.M{"alertSent": true, "updatedAt": time.Now()},
	})
	if err != nil {
		zap.S().Errorw("failed to record alert", "callID", call.ID, "error", err)
	}
	zap.S().Infow("sent extraction alert", "callID", call.ID, "to", s.AlertEmail)
}

func (s *Scheduler) sendEmail(toEmail, subject, plainText string) error {
	from := mail.NewEmail("Fleetline Dispatch", "no-reply@fleetline.io")
	to := mail.NewEmail("", toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainText, "<pre>"+plainText+"</pre>")
	client := sendgrid.NewSendClient(os.Getenv("SENDGRID_API_KEY"))
	response, err := client.Send(message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body)
	}
	return nil
}
