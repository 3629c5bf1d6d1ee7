package databases

// go generate: mockery --name CallDatabase

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetline/voice-dispatch-api/models"
)

const callCollectionName = "calls"

// Sentinel errors surfaced by the call store. Handlers map these onto
// HTTP statuses.
var (
	ErrDuplicateKey = errors.New("call id already exists")
	ErrNotFound     = errors.New("not found")
)

// CallDatabase contains the methods to use with the call database.
// Status writes go exclusively through Create/Transition/Update so the
// lifecycle invariants hold for every caller.
type CallDatabase interface {
	Get(ctx context.Context, callID string) (*models.Call, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Call, error)
	Create(ctx context.Context, call *models.Call) error
	Transition(ctx context.Context, callID string, next models.CallStatus, eventTime time.Time) (bool, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type callDatabase struct {
	db DatabaseHelper
}

// NewCallDatabase initializes a new instance of call database with the provided db connection
func NewCallDatabase(db DatabaseHelper) CallDatabase {
	return &callDatabase{
		db: db,
	}
}

func (c *callDatabase) Get(ctx context.Context, callID string) (*models.Call, error) {
	call := &models.Call{}
	err := c.db.Collection(callCollectionName).FindOne(ctx, bson.M{"_id": callID}).Decode(&call)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return call, nil
}

func (c *callDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Call, error) {
	var calls []models.Call
	cr, err := c.db.Collection(callCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = cr.Decode(&calls)
	if err != nil {
		return nil, err
	}
	return calls, nil
}

// Create inserts the call with status pending. The caller supplies the
// platform call id as the document id.
func (c *callDatabase) Create(ctx context.Context, call *models.Call) error {
	now := time.Now()
	call.Status = models.CallStatusPending
	if call.ExtractionState == "" {
		call.ExtractionState = models.ExtractionStateNone
	}
	call.CreatedAt = now
	call.UpdatedAt = now

	_, err := c.db.Collection(callCollectionName).InsertOne(ctx, call)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return err
	}
	return nil
}

// Transition applies next to the call in a single conditional update:
// only if next is reachable from the current status and eventTime is not
// older than the last applied event. Returns false when the update
// matched nothing, which callers treat as a stale or duplicate event.
func (c *callDatabase) Transition(ctx context.Context, callID string, next models.CallStatus, eventTime time.Time) (bool, error) {
	from := models.StatusesThatReach(next)
	if len(from) == 0 {
		return false, nil
	}

	res, err := c.db.Collection(callCollectionName).UpdateOne(ctx,
		bson.M{
			"_id":         callID,
			"status":      bson.M{"$in": from},
			"lastEventAt": bson.M{"$lte": eventTime},
		},
		bson.M{"$set": bson.M{
			"status":      next,
			"lastEventAt": eventTime,
			"updatedAt":   time.Now(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (c *callDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.db.Collection(callCollectionName).UpdateOne(ctx, filter, update, opts...)
}
