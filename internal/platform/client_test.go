package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callkit/internal/logging"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, "key_test", WithLogger(logging.Discard()))
}

func TestRegisterWebCall(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/create-web-call", r.URL.Path)
		assert.Equal(t, "Bearer key_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "call_id": "call_1"})
	})

	params := DynamicVariables{"customer_name": "John Smith"}
	h, err := c.RegisterWebCall(context.Background(), "agent_1", params)
	require.NoError(t, err)
	assert.Equal(t, SessionHandle{CallID: "call_1", AccessToken: "tok", SampleRate: DefaultSampleRate}, h)

	assert.Equal(t, "agent_1", gotBody["agent_id"])
	assert.Equal(t, map[string]any{"customer_name": "John Smith"}, gotBody["retell_llm_dynamic_variables"])
}

func TestRegisterWebCallStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.RegisterWebCall(context.Background(), "agent_1", nil)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, http.StatusInternalServerError, regErr.Status)
	assert.Equal(t, "boom", regErr.Body)
	assert.Nil(t, regErr.Parse)
}

func TestRegisterWebCallMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := c.RegisterWebCall(context.Background(), "agent_1", nil)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Zero(t, regErr.Status)
	assert.Error(t, regErr.Parse)
}

func TestRegisterWebCallMissingToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"call_id":"c"}`))
	})

	_, err := c.RegisterWebCall(context.Background(), "agent_1", nil)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Error(t, regErr.Parse)
}

func TestRegisterWebCallTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "k", WithLogger(logging.Discard()))
	_, err := c.RegisterWebCall(context.Background(), "agent_1", nil)
	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Error(t, regErr.Err)
}

func TestRegisterPhoneCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/create-phone-call", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+15550001111", body["from_number"])
		assert.Equal(t, "+15552223333", body["to_number"])
		assert.Equal(t, "agent_9", body["override_agent_id"])
		_, _ = w.Write([]byte(`{"call_id":"pc_1","call_status":"registered","from_number":"+15550001111","to_number":"+15552223333"}`))
	})

	pc, err := c.RegisterPhoneCall(context.Background(), "agent_9", "+15550001111", "+15552223333", DynamicVariables{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "pc_1", pc.CallID)
	assert.Equal(t, "registered", pc.CallStatus)
}

func TestGetCall(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/get-call/call_1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"call_id": "call_1",
			"call_status": "completed",
			"transcript": "Agent: hi",
			"recording_url": "https://rec/1.wav",
			"duration_ms": 61000,
			"call_analysis": {
				"call_summary": "Verified caller",
				"user_sentiment": "Positive",
				"custom_analysis_data": {"name_attempt_1": "john smith", "age": 34}
			}
		}`))
	})

	d, err := c.GetCall(context.Background(), "call_1")
	require.NoError(t, err)
	assert.Equal(t, CallStatusCompleted, d.CallStatus)
	assert.EqualValues(t, 61000, d.DurationMS)
	require.NotNil(t, d.Analysis)
	assert.Equal(t, "Verified caller", d.Analysis.CallSummary)
	assert.Equal(t, "john smith", d.Analysis.CustomAnalysisData["name_attempt_1"])
}

func TestGetCallNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	_, err := c.GetCall(context.Background(), "nope")
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.Status)
}

func TestWithAPIKeyDoesNotMutateOriginal(t *testing.T) {
	c := NewClient("", "global")
	b := c.WithAPIKey("brand")
	assert.Equal(t, "global", c.apiKey)
	assert.Equal(t, "brand", b.apiKey)
	assert.Equal(t, DefaultBaseURL, b.baseURL)
}
