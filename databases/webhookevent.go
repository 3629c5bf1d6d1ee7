package databases

// go generate: mockery --name WebhookEventDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetline/voice-dispatch-api/models"
)

const webhookEventCollectionName = "webhookEvents"

// WebhookEventDatabase is the append-only audit store for inbound
// webhook events.
type WebhookEventDatabase interface {
	Append(ctx context.Context, event *models.WebhookEvent) error
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.WebhookEvent, error)
}

type webhookEventDatabase struct {
	db DatabaseHelper
}

// NewWebhookEventDatabase initializes a new instance of webhook event database with the provided db connection
func NewWebhookEventDatabase(db DatabaseHelper) WebhookEventDatabase {
	return &webhookEventDatabase{
		db: db,
	}
}

func (w *webhookEventDatabase) Append(ctx context.Context, event *models.WebhookEvent) error {
	_, err := w.db.Collection(webhookEventCollectionName).InsertOne(ctx, event)
	return err
}

func (w *webhookEventDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	cr, err := w.db.Collection(webhookEventCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&events)
	if err != nil {
		return nil, err
	}
	return events, nil
}
