package handlers

// Stateful in-memory doubles for the reconciler tests. The mock-chain
// style used for the read handlers cannot express "replay this webhook
// twice and check nothing moved", so these fakes keep real state behind
// the same interfaces the mongo layer implements.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fleetline/voice-dispatch-api/databases"
	"github.com/fleetline/voice-dispatch-api/models"
	"github.com/fleetline/voice-dispatch-api/retell"
)

type memCallDB struct {
	mu    sync.Mutex
	calls map[string]*models.Call
}

func newMemCallDB(calls ...*models.Call) *memCallDB {
	db := &memCallDB{calls: make(map[string]*models.Call)}
	for _, c := range calls {
		cp := *c
		db.calls[c.ID] = &cp
	}
	return db
}

func (m *memCallDB) get(callID string) models.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.calls[callID]
}

func (m *memCallDB) Get(ctx context.Context, callID string) (*models.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return nil, databases.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memCallDB) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Call
	for _, c := range m.calls {
		out = append(out, *c)
	}
	return out, nil
}

func (m *memCallDB) Create(ctx context.Context, call *models.Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.calls[call.ID]; ok {
		return databases.ErrDuplicateKey
	}
	call.Status = models.CallStatusPending
	if call.ExtractionState == "" {
		call.ExtractionState = models.ExtractionStateNone
	}
	cp := *call
	m.calls[call.ID] = &cp
	return nil
}

func (m *memCallDB) Transition(ctx context.Context, callID string, next models.CallStatus, eventTime time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.calls[callID]
	if !ok {
		return false, nil
	}
	if !c.Status.CanTransitionTo(next) || c.LastEventAt.After(eventTime) {
		return false, nil
	}
	c.Status = next
	c.LastEventAt = eventTime
	c.UpdatedAt = time.Now()
	return true, nil
}

// UpdateOne understands just the operators the handlers issue.
func (m *memCallDB) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	callID, _ := filter.(bson.M)["_id"].(string)
	c, ok := m.calls[callID]
	if !ok {
		return &mongo.UpdateResult{}, nil
	}

	u := update.(bson.M)
	if set, ok := u["$set"].(bson.M); ok {
		if v, ok := set["extractionState"].(string); ok {
			c.ExtractionState = v
		}
		if v, ok := set["pendingTranscript"].(string); ok {
			c.PendingTranscript = v
		}
		if v, ok := set["alertSent"].(bool); ok {
			c.AlertSent = v
		}
	}
	if unset, ok := u["$unset"].(bson.M); ok {
		if _, ok := unset["pendingTranscript"]; ok {
			c.PendingTranscript = ""
		}
	}
	if inc, ok := u["$inc"].(bson.M); ok {
		if v, ok := inc["extractionAttempts"].(int); ok {
			c.ExtractionAttempts += v
		}
	}
	c.UpdatedAt = time.Now()
	return &mongo.UpdateResult{MatchedCount: 1, ModifiedCount: 1}, nil
}

type memResultDB struct {
	mu      sync.Mutex
	results map[string]*models.CallResult
}

func newMemResultDB() *memResultDB {
	return &memResultDB{results: make(map[string]*models.CallResult)}
}

func (m *memResultDB) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}

func (m *memResultDB) FindByCallID(ctx context.Context, callID string) (*models.CallResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[callID]
	if !ok {
		return nil, databases.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memResultDB) Create(ctx context.Context, result *models.CallResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.results[result.CallID]; ok {
		return databases.ErrDuplicateKey
	}
	cp := *result
	m.results[result.CallID] = &cp
	return nil
}

type memEventDB struct {
	mu     sync.Mutex
	events []models.WebhookEvent
}

func (m *memEventDB) Append(ctx context.Context, event *models.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memEventDB) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WebhookEvent(nil), m.events...), nil
}

// fakeExtractor fails a scripted number of times before succeeding.
type fakeExtractor struct {
	mu       sync.Mutex
	failures int
	calls    int
	data     models.StructuredData
}

func inTransitData() models.StructuredData {
	return models.StructuredData{
		Outcome:        models.CallOutcomeInTransit,
		CallSummary:    "Driver is on schedule.",
		CallSuccessful: true,
		UserSentiment:  "Neutral",
		InTransit: &models.InTransitData{
			DriverStatus:    "Driving",
			CurrentLocation: "I-10 near Indio, CA",
			ETA:             "Tomorrow, 8:00 AM",
			DelayReason:     "None",
		},
	}
}

func (f *fakeExtractor) Extract(ctx context.Context, transcript string, analysis map[string]interface{}) (models.StructuredData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return models.StructuredData{}, fmt.Errorf("extractor unavailable (attempt %d)", f.calls)
	}
	return f.data, nil
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeRetell is a deterministic platform double for the trigger and
// agent handlers.
type fakeRetell struct {
	failWith    error
	nextCallID  string
	agents      map[string]*retell.Agent
	lastPhoneTo string
}

func (f *fakeRetell) CreatePhoneCall(ctx context.Context, p retell.PhoneCallParams) (*retell.CallSession, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.lastPhoneTo = p.ToNumber
	return &retell.CallSession{CallID: f.nextCallID, AgentID: p.OverrideAgentID, CallStatus: "registered"}, nil
}

func (f *fakeRetell) CreateWebCall(ctx context.Context, p retell.WebCallParams) (*retell.CallSession, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &retell.CallSession{CallID: f.nextCallID, AgentID: p.AgentID, AccessToken: "tok_test"}, nil
}

func (f *fakeRetell) CreateAgent(ctx context.Context, p retell.AgentParams) (*retell.Agent, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	a := &retell.Agent{AgentID: "agent_new", Name: p.Name, Prompt: p.Prompt}
	if f.agents == nil {
		f.agents = map[string]*retell.Agent{}
	}
	f.agents[a.AgentID] = a
	return a, nil
}

func (f *fakeRetell) GetAgent(ctx context.Context, agentID string) (*retell.Agent, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return nil, &retell.UpstreamError{StatusCode: 404, Body: "agent not found"}
	}
	return a, nil
}

func (f *fakeRetell) ListAgents(ctx context.Context, limit int, paginationKey string) ([]retell.Agent, error) {
	var out []retell.Agent
	for _, a := range f.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeRetell) UpdateAgent(ctx context.Context, agentID string, p retell.UpdateAgentParams) (*retell.Agent, error) {
	a, ok := f.agents[agentID]
	if !ok {
		return nil, &retell.UpstreamError{StatusCode: 404, Body: "agent not found"}
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Prompt != nil {
		a.Prompt = *p.Prompt
	}
	return a, nil
}
