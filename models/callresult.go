package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CallResult holds the structure for the callResults collection in
// mongo. At most one exists per call; the transcript is immutable once
// written.
type CallResult struct {
	ID             primitive.ObjectID `json:"_id" bson:"_id"`
	CallID         string             `json:"call_id" bson:"callID"`
	Transcript     string             `json:"transcript" bson:"transcript"`
	StructuredData StructuredData     `json:"structured_data" bson:"structuredData"`
	CreatedAt      time.Time          `json:"created_at" bson:"createdAt"`
}
