package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fleetline/voice-dispatch-api/config"
	"github.com/fleetline/voice-dispatch-api/retell"
)

// initialPrompt is the starter template offered to the dashboard when
// an operator configures a new agent. The double-brace placeholders are
// filled by the platform from the trigger's dynamic variables.
const initialPrompt = `You are a dispatch agent for a logistics company calling driver {{driver_name}} about load {{load_number}}.

Open with a status check: "Hi {{driver_name}}, this is Dispatch with a check call on load {{load_number}}. Can you give me an update on your status?"

If the driver is still driving, collect: current location, ETA, and any delay reason.
If the driver has arrived, collect: unloading status (door number, lumper, detention) and remind them to send the POD.
If the driver reports an accident, breakdown or medical issue, switch to the emergency protocol: confirm everyone is safe, ask about injuries, get the exact location (highway and mile marker), confirm the load is secure, then connect them to a human dispatcher.

Keep the call short and professional. Do not invent details the driver did not give you.`

// Agent proxies agent configuration to the call platform, which is the
// source of truth for prompts and voices.
type Agent struct {
	Retell retell.Client
}

type createAgentRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type updateAgentRequest struct {
	Name   *string `json:"name"`
	Prompt *string `json:"prompt"`
}

// upstreamStatus maps a platform error onto our response code. A
// platform 404 stays a 404; everything else is a bad gateway.
func upstreamStatus(err error) int {
	var upstream *retell.UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

// CreateAgentHandler creates a new agent on the platform
func (a Agent) CreateAgentHandler(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.Prompt == "" {
		config.ErrorStatus("prompt is required", http.StatusBadRequest, w,
			fmt.Errorf("missing prompt"))
		return
	}
	if req.Name == "" {
		req.Name = "Dispatch Check Call"
	}

	agent, err := a.Retell.CreateAgent(r.Context(), retell.AgentParams{
		Name:   req.Name,
		Prompt: req.Prompt,
	})
	if err != nil {
		config.ErrorStatus("failed to create agent", upstreamStatus(err), w, err)
		return
	}

	b, err := json.Marshal(agent)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	w.Write(b)
}

// ListAgentsHandler returns the agents configured on the platform
func (a Agent) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	paginationKey := r.URL.Query().Get("pagination_key")

	agents, err := a.Retell.ListAgents(r.Context(), limit, paginationKey)
	if err != nil {
		config.ErrorStatus("failed to list agents", upstreamStatus(err), w, err)
		return
	}
	if len(agents) == 0 {
		agents = []retell.Agent{}
	}

	b, err := json.Marshal(agents)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// AgentByIDHandler returns one agent with its prompt resolved
func (a Agent) AgentByIDHandler(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]

	agent, err := a.Retell.GetAgent(r.Context(), agentID)
	if err != nil {
		config.ErrorStatus("failed to get agent", upstreamStatus(err), w, err)
		return
	}

	b, err := json.Marshal(agent)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// UpdateAgentHandler updates an agent's prompt and/or name
func (a Agent) UpdateAgentHandler(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]

	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return
	}
	if req.Name == nil && req.Prompt == nil {
		config.ErrorStatus("nothing to update", http.StatusUnprocessableEntity, w,
			fmt.Errorf("supply a prompt or a name"))
		return
	}

	agent, err := a.Retell.UpdateAgent(r.Context(), agentID, retell.UpdateAgentParams{
		Name:   req.Name,
		Prompt: req.Prompt,
	})
	if err != nil {
		config.ErrorStatus("failed to update agent", upstreamStatus(err), w, err)
		return
	}

	b, err := json.Marshal(agent)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// InitialPromptHandler returns the starter prompt template for the
// agent editor
func (a Agent) InitialPromptHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"prompt": initialPrompt})
}
