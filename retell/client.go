// Package retell is the adapter for the Retell AI voice platform. All
// platform SDK traffic goes through the Client interface so business
// logic never sees provider request shapes, and tests can substitute a
// deterministic double.
package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.retellai.com"

// Client is the capability interface the rest of the service depends
// on: trigger calls and manage agent configurations that live on the
// platform (the platform is the source of truth for agents).
type Client interface {
	CreatePhoneCall(ctx context.Context, p PhoneCallParams) (*CallSession, error)
	CreateWebCall(ctx context.Context, p WebCallParams) (*CallSession, error)
	CreateAgent(ctx context.Context, p AgentParams) (*Agent, error)
	GetAgent(ctx context.Context, agentID string) (*Agent, error)
	ListAgents(ctx context.Context, limit int, paginationKey string) ([]Agent, error)
	UpdateAgent(ctx context.Context, agentID string, p UpdateAgentParams) (*Agent, error)
}

// PhoneCallParams triggers an outbound phone call.
type PhoneCallParams struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// WebCallParams creates a browser call session.
type WebCallParams struct {
	AgentID          string            `json:"agent_id"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

// CallSession is the platform's handle for a created call.
type CallSession struct {
	CallID      string `json:"call_id"`
	AgentID     string `json:"agent_id"`
	CallStatus  string `json:"call_status"`
	AccessToken string `json:"access_token,omitempty"`
}

// Agent is the provider-agnostic view of an agent configuration.
type Agent struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"agent_name"`
	VoiceID string `json:"voice_id"`
	LLMID   string `json:"llm_id,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// AgentParams creates a new agent. Voice, model and responsiveness get
// sensible defaults; callers only supply the prompt and a name.
type AgentParams struct {
	Name   string
	Prompt string
}

// UpdateAgentParams updates an agent. Nil fields are left unchanged.
type UpdateAgentParams struct {
	Name   *string
	Prompt *string
}

// UpstreamError carries a non-2xx platform response.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("retell returned status %d: %s", e.StatusCode, e.Body)
}

type client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client talking to the hosted platform.
func NewClient(apiKey string) Client {
	return &client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithBaseURL is used by tests to point the client at a local server.
func NewClientWithBaseURL(apiKey, baseURL string) Client {
	return &client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{StatusCode: 0, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

func (c *client) CreatePhoneCall(ctx context.Context, p PhoneCallParams) (*CallSession, error) {
	session := &CallSession{}
	if err := c.do(ctx, http.MethodPost, "/v2/create-phone-call", p, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (c *client) CreateWebCall(ctx context.Context, p WebCallParams) (*CallSession, error) {
	session := &CallSession{}
	if err := c.do(ctx, http.MethodPost, "/v2/create-web-call", p, session); err != nil {
		return nil, err
	}
	return session, nil
}

// wire shapes for the agent endpoints
type agentResponse struct {
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	VoiceID        string `json:"voice_id"`
	ResponseEngine struct {
		Type  string `json:"type"`
		LLMID string `json:"llm_id"`
	} `json:"response_engine"`
}

type llmResponse struct {
	LLMID         string `json:"llm_id"`
	GeneralPrompt string `json:"general_prompt"`
}

func (a agentResponse) toAgent(prompt string) *Agent {
	return &Agent{
		AgentID: a.AgentID,
		Name:    a.AgentName,
		VoiceID: a.VoiceID,
		LLMID:   a.ResponseEngine.LLMID,
		Prompt:  prompt,
	}
}

// CreateAgent creates a response-engine LLM carrying the prompt, then
// the agent pointing at it. Only the prompt and name are caller-facing;
// everything else is defaulted here.
func (c *client) CreateAgent(ctx context.Context, p AgentParams) (*Agent, error) {
	llm := &llmResponse{}
	err := c.do(ctx, http.MethodPost, "/create-retell-llm", map[string]interface{}{
		"general_prompt": p.Prompt,
	}, llm)
	if err != nil {
		return nil, err
	}

	agent := &agentResponse{}
	err = c.do(ctx, http.MethodPost, "/create-agent", map[string]interface{}{
		"agent_name": p.Name,
		"voice_id":   "11labs-Adrian",
		"response_engine": map[string]string{
			"type":   "retell-llm",
			"llm_id": llm.LLMID,
		},
	}, agent)
	if err != nil {
		return nil, err
	}
	return agent.toAgent(p.Prompt), nil
}

func (c *client) GetAgent(ctx context.Context, agentID string) (*Agent, error) {
	agent := &agentResponse{}
	if err := c.do(ctx, http.MethodGet, "/get-agent/"+url.PathEscape(agentID), nil, agent); err != nil {
		return nil, err
	}

	prompt := ""
	if agent.ResponseEngine.LLMID != "" {
		llm := &llmResponse{}
		if err := c.do(ctx, http.MethodGet, "/get-retell-llm/"+url.PathEscape(agent.ResponseEngine.LLMID), nil, llm); err == nil {
			prompt = llm.GeneralPrompt
		}
	}
	return agent.toAgent(prompt), nil
}

// ListAgents returns agents without resolving prompts; fetch a single
// agent for the prompt text.
func (c *client) ListAgents(ctx context.Context, limit int, paginationKey string) ([]Agent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if paginationKey != "" {
		q.Set("pagination_key", paginationKey)
	}
	path := "/list-agents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var raw []agentResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	agents := make([]Agent, 0, len(raw))
	for _, a := range raw {
		agents = append(agents, *a.toAgent(""))
	}
	return agents, nil
}

func (c *client) UpdateAgent(ctx context.Context, agentID string, p UpdateAgentParams) (*Agent, error) {
	update := map[string]interface{}{}
	prompt := ""
	if p.Name != nil {
		update["agent_name"] = *p.Name
	}
	if p.Prompt != nil {
		// prompts are immutable on the platform LLM, so a prompt change
		// means a fresh LLM wired into the agent's response engine
		llm := &llmResponse{}
		err := c.do(ctx, http.MethodPost, "/create-retell-llm", map[string]interface{}{
			"general_prompt": *p.Prompt,
		}, llm)
		if err != nil {
			return nil, err
		}
		update["response_engine"] = map[string]string{
			"type":   "retell-llm",
			"llm_id": llm.LLMID,
		}
		prompt = *p.Prompt
	}

	agent := &agentResponse{}
	if err := c.do(ctx, http.MethodPatch, "/update-agent/"+url.PathEscape(agentID), update, agent); err != nil {
		return nil, err
	}
	return agent.toAgent(prompt), nil
}
