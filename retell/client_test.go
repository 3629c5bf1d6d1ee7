package retell_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fleetline/voice-dispatch-api/retell"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"event":"call_started","call_id":"call_abc123"}`)
	secret := "whsec_test"

	sig := retell.Sign(payload, secret)

	assert.True(t, retell.VerifySignature(payload, secret, sig))
	assert.False(t, retell.VerifySignature(payload, secret, "deadbeef"))
	assert.False(t, retell.VerifySignature(payload, "other-secret", sig))
	assert.False(t, retell.VerifySignature(payload, secret, "not-hex!"))
	assert.False(t, retell.VerifySignature(payload, "", sig))
	assert.False(t, retell.VerifySignature(payload, secret, ""))

	// signature covers the whole body
	tampered := []byte(`{"event":"call_ended","call_id":"call_abc123"}`)
	assert.False(t, retell.VerifySignature(tampered, secret, sig))
}

func TestClient_CreatePhoneCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/create-phone-call", r.URL.Path)
		assert.Equal(t, "Bearer key_test", r.Header.Get("Authorization"))

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15555551234", body["to_number"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"call_id":     "call_abc123",
			"agent_id":    "agent_1",
			"call_status": "registered",
		})
	}))
	defer srv.Close()

	c := retell.NewClientWithBaseURL("key_test", srv.URL)
	session, err := c.CreatePhoneCall(context.Background(), retell.PhoneCallParams{
		FromNumber:      "+15550000000",
		ToNumber:        "+15555551234",
		OverrideAgentID: "agent_1",
		DynamicVariables: map[string]string{
			"driver_name": "Mike",
			"load_number": "L-1042",
		},
	})
	assert.NoError(t, err)
	assert.Equal(t, "call_abc123", session.CallID)
}

func TestClient_CreateWebCallReturnsAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/create-web-call", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"call_id":      "call_web1",
			"access_token": "tok_secret",
		})
	}))
	defer srv.Close()

	c := retell.NewClientWithBaseURL("key_test", srv.URL)
	session, err := c.CreateWebCall(context.Background(), retell.WebCallParams{AgentID: "agent_1"})
	assert.NoError(t, err)
	assert.Equal(t, "tok_secret", session.AccessToken)
}

func TestClient_UpstreamErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"out of credit"}`))
	}))
	defer srv.Close()

	c := retell.NewClientWithBaseURL("key_test", srv.URL)
	_, err := c.CreatePhoneCall(context.Background(), retell.PhoneCallParams{ToNumber: "+15555551234"})

	var upstream *retell.UpstreamError
	assert.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusPaymentRequired, upstream.StatusCode)
	assert.Contains(t, upstream.Body, "out of credit")
}

func TestClient_CreateAgentWiresLLM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/create-retell-llm":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, "You are a dispatch agent.", body["general_prompt"])
			json.NewEncoder(w).Encode(map[string]string{"llm_id": "llm_1"})
		case "/create-agent":
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			engine := body["response_engine"].(map[string]interface{})
			assert.Equal(t, "llm_1", engine["llm_id"])
			json.NewEncoder(w).Encode(map[string]interface{}{
				"agent_id":        "agent_9",
				"agent_name":      "Check Call",
				"response_engine": map[string]string{"type": "retell-llm", "llm_id": "llm_1"},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := retell.NewClientWithBaseURL("key_test", srv.URL)
	agent, err := c.CreateAgent(context.Background(), retell.AgentParams{
		Name:   "Check Call",
		Prompt: "You are a dispatch agent.",
	})
	assert.NoError(t, err)
	assert.Equal(t, "agent_9", agent.AgentID)
	assert.Equal(t, "llm_1", agent.LLMID)
	assert.Equal(t, "You are a dispatch agent.", agent.Prompt)
}
