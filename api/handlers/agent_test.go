package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"github.com/fleetline/voice-dispatch-api/retell"
)

func TestCreateAgentHandler_MissingPrompt(t *testing.T) {
	a := Agent{Retell: &fakeRetell{}}

	req := httptest.NewRequest("POST", "/api/v1/agents",
		bytes.NewReader([]byte(`{"name":"Dispatch Check Call"}`)))
	rr := httptest.NewRecorder()
	a.CreateAgentHandler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateAgentHandler_DefaultsName(t *testing.T) {
	rc := &fakeRetell{}
	a := Agent{Retell: rc}

	req := httptest.NewRequest("POST", "/api/v1/agents",
		bytes.NewReader([]byte(`{"prompt":"You are a dispatch agent."}`)))
	rr := httptest.NewRecorder()
	a.CreateAgentHandler(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)

	var got retell.Agent
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "Dispatch Check Call", got.Name)
	assert.Equal(t, "You are a dispatch agent.", got.Prompt)
}

func TestAgentByIDHandler_UpstreamNotFound(t *testing.T) {
	a := Agent{Retell: &fakeRetell{}}

	req := httptest.NewRequest("GET", "/api/v1/agents/agent_missing", nil)
	req = mux.SetURLVars(req, map[string]string{"agent_id": "agent_missing"})
	rr := httptest.NewRecorder()
	a.AgentByIDHandler(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateAgentHandler_NothingToUpdate(t *testing.T) {
	a := Agent{Retell: &fakeRetell{agents: map[string]*retell.Agent{
		"agent_1": {AgentID: "agent_1", Name: "Dispatch Check Call", Prompt: "old"},
	}}}

	req := httptest.NewRequest("PATCH", "/api/v1/agents/agent_1",
		bytes.NewReader([]byte(`{}`)))
	req = mux.SetURLVars(req, map[string]string{"agent_id": "agent_1"})
	rr := httptest.NewRecorder()
	a.UpdateAgentHandler(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestUpdateAgentHandler_PromptOnly(t *testing.T) {
	a := Agent{Retell: &fakeRetell{agents: map[string]*retell.Agent{
		"agent_1": {AgentID: "agent_1", Name: "Dispatch Check Call", Prompt: "old"},
	}}}

	req := httptest.NewRequest("PATCH", "/api/v1/agents/agent_1",
		bytes.NewReader([]byte(`{"prompt":"new prompt"}`)))
	req = mux.SetURLVars(req, map[string]string{"agent_id": "agent_1"})
	rr := httptest.NewRecorder()
	a.UpdateAgentHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got retell.Agent
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "new prompt", got.Prompt)
	assert.Equal(t, "Dispatch Check Call", got.Name)
}

func TestInitialPromptHandler(t *testing.T) {
	a := Agent{Retell: &fakeRetell{}}

	req := httptest.NewRequest("GET", "/api/v1/agents/initial-prompt", nil)
	rr := httptest.NewRecorder()
	a.InitialPromptHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var got map[string]string
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Contains(t, got["prompt"], "{{driver_name}}")
	assert.Contains(t, got["prompt"], "{{load_number}}")
}

func TestListAgentsHandler_Empty(t *testing.T) {
	a := Agent{Retell: &fakeRetell{}}

	req := httptest.NewRequest("GET", "/api/v1/agents", nil)
	rr := httptest.NewRecorder()
	a.ListAgentsHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
