package databases

// go generate: mockery --name CallResultDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fleetline/voice-dispatch-api/models"
)

const callResultCollectionName = "callResults"

// CallResultDatabase contains the methods to use with the call result
// database. The collection carries a unique index on callID, which is
// the backstop for the at-most-one-result-per-call invariant.
type CallResultDatabase interface {
	FindByCallID(ctx context.Context, callID string) (*models.CallResult, error)
	Create(ctx context.Context, result *models.CallResult) error
}

type callResultDatabase struct {
	db DatabaseHelper
}

// NewCallResultDatabase initializes a new instance of call result database with the provided db connection
func NewCallResultDatabase(db DatabaseHelper) CallResultDatabase {
	return &callResultDatabase{
		db: db,
	}
}

func (c *callResultDatabase) FindByCallID(ctx context.Context, callID string) (*models.CallResult, error) {
	result := &models.CallResult{}
	err := c.db.Collection(callResultCollectionName).FindOne(ctx, bson.M{"callID": callID}).Decode(&result)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return result, nil
}

// Create writes the result for a call. Writes after the first return
// ErrDuplicateKey and leave the stored result untouched.
func (c *callResultDatabase) Create(ctx context.Context, result *models.CallResult) error {
	if result.ID.IsZero() {
		result.ID = primitive.NewObjectID()
	}
	result.CreatedAt = time.Now()

	_, err := c.db.Collection(callResultCollectionName).InsertOne(ctx, result)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}
