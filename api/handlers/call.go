package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/config"
	"github.com/fleetline/voice-dispatch-api/databases"
	"github.com/fleetline/voice-dispatch-api/models"
	"github.com/fleetline/voice-dispatch-api/retell"
)

// Page holds the pagination page across list handlers
var Page int

// e164 matches the international phone format the platform dials.
var e164 = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// Call exported for testing purposes
type Call struct {
	DB         databases.CallDatabase
	ResultDB   databases.CallResultDatabase
	Retell     retell.Client
	FromNumber string
}

type triggerCallRequest struct {
	AgentID     string `json:"agent_id"`
	DriverName  string `json:"driver_name"`
	PhoneNumber string `json:"phone_number"`
	LoadNumber  string `json:"load_number"`
}

func (t triggerCallRequest) dynamicVariables() map[string]string {
	return map[string]string{
		"driver_name": t.DriverName,
		"load_number": t.LoadNumber,
	}
}

// TriggerCallHandler kicks off an outbound phone call for a driver
// check-in. The platform is asked for the call first so its call id can
// key the record; a rejected request still leaves an annotated record
// behind for the dashboard.
func (c Call) TriggerCallHandler(w http.ResponseWriter, r *http.Request) {
	var req triggerCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if !e164.MatchString(req.PhoneNumber) {
		config.ErrorStatus("phone number must be E.164", http.StatusBadRequest, w,
			fmt.Errorf("invalid phone number %q", req.PhoneNumber))
		return
	}

	newCall := &models.Call{
		AgentID:     req.AgentID,
		DriverName:  req.DriverName,
		PhoneNumber: req.PhoneNumber,
		LoadNumber:  req.LoadNumber,
	}

	session, err := c.Retell.CreatePhoneCall(r.Context(), retell.PhoneCallParams{
		FromNumber:       c.FromNumber,
		ToNumber:         req.PhoneNumber,
		OverrideAgentID:  req.AgentID,
		DynamicVariables: req.dynamicVariables(),
	})
	if err != nil {
		// keep the record so the dashboard can show the failed attempt
		newCall.ID = "local_" + uuid.New().String()
		newCall.TriggerError = err.Error()
		if dbErr := c.DB.Create(r.Context(), newCall); dbErr != nil {
			zap.S().Errorw("failed to persist rejected call", "error", dbErr)
		}
		config.ErrorStatus("call platform rejected the request", http.StatusBadGateway, w, err)
		return
	}

	newCall.ID = session.CallID
	if err := c.DB.Create(r.Context(), newCall); err != nil {
		if errors.Is(err, databases.ErrDuplicateKey) {
			config.ErrorStatus("call already exists", http.StatusConflict, w, err)
			return
		}
		config.ErrorStatus("failed to create call", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(newCall)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

type webCallResponse struct {
	models.Call
	AccessToken string `json:"access_token"`
}

// TriggerWebCallHandler creates a browser call session and returns the
// access token the web client dials with. The phone number is optional
// here since the browser carries the audio.
func (c Call) TriggerWebCallHandler(w http.ResponseWriter, r *http.Request) {
	var req triggerCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.AgentID == "" {
		config.ErrorStatus("agent_id is required", http.StatusBadRequest, w,
			fmt.Errorf("missing agent_id"))
		return
	}

	session, err := c.Retell.CreateWebCall(r.Context(), retell.WebCallParams{
		AgentID:          req.AgentID,
		DynamicVariables: req.dynamicVariables(),
	})
	if err != nil {
		config.ErrorStatus("call platform rejected the request", http.StatusBadGateway, w, err)
		return
	}

	newCall := &models.Call{
		ID:          session.CallID,
		AgentID:     req.AgentID,
		DriverName:  req.DriverName,
		PhoneNumber: req.PhoneNumber,
		LoadNumber:  req.LoadNumber,
	}
	if err := c.DB.Create(r.Context(), newCall); err != nil {
		if errors.Is(err, databases.ErrDuplicateKey) {
			config.ErrorStatus("call already exists", http.StatusConflict, w, err)
			return
		}
		config.ErrorStatus("failed to create call", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(webCallResponse{Call: *newCall, AccessToken: session.AccessToken})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// CallHandler returns all calls, newest first
func (c Call) CallHandler(w http.ResponseWriter, r *http.Request) {
	Limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		zap.S().Warnf(fmt.Sprintf("limit not set, using default of %v, err: %v", Limit|10, err))
	}
	limit64 := int64(Limit)
	Page = getPage(Page, r)
	skip64 := int64(Page * Limit)

	filter := bson.M{}
	if agentID := r.URL.Query().Get("agent_id"); agentID != "" {
		filter["agentID"] = agentID
	}

	dbResp, err := c.DB.Find(context.TODO(), filter, &options.FindOptions{
		Limit: &limit64,
		Skip:  &skip64,
		Sort:  bson.M{"createdAt": -1},
	})
	if err != nil {
		config.ErrorStatus("failed to get calls", http.StatusNotFound, w, err)
		return
	}
	// Because the frontend requires that the data elements inside models.Calls exist, if
	// len == 0 then we will just return an empty data object
	if len(dbResp) == 0 {
		dbResp = []models.Call{}
	}
	b, err := json.Marshal(dbResp)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// CallByIDHandler returns a call by ID joined with its result once one
// exists. The transcript and structured fields stay null until the
// post-call pipeline has run.
func (c Call) CallByIDHandler(w http.ResponseWriter, r *http.Request) {
	callID := mux.Vars(r)["call_id"]

	zap.S().Debugf("call_id: %v", callID)

	dbResp, err := c.DB.Get(r.Context(), callID)
	if err != nil {
		if errors.Is(err, databases.ErrNotFound) {
			config.ErrorStatus("call not found", http.StatusNotFound, w, err)
			return
		}
		config.ErrorStatus("failed to get call by ID", http.StatusInternalServerError, w, err)
		return
	}

	joined := models.CallWithResult{Call: *dbResp}
	result, err := c.ResultDB.FindByCallID(r.Context(), callID)
	if err != nil && !errors.Is(err, databases.ErrNotFound) {
		config.ErrorStatus("failed to get call result", http.StatusInternalServerError, w, err)
		return
	}
	if result != nil {
		joined.Transcript = &result.Transcript
		joined.StructuredData = &result.StructuredData
	}

	b, err := json.Marshal(joined)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

func getPage(Page int, r *http.Request) int {
	if r.URL.Query().Get("page") == "" {
		zap.S().Warnf("page not set, using default of %v", Page)
	} else {
		var err error
		Page, err = strconv.Atoi(r.URL.Query().Get("page"))
		if err != nil {
			zap.S().Errorf(fmt.Sprintf("error parsing page number: %v", err))
		}
		if Page < 0 {
			zap.S().Warnf(fmt.Sprintf("cannot process page number less than 1. Got: %v", Page))
			return 0
		}
	}
	return Page
}
