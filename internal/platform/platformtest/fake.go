// Package platformtest provides an in-process fake of the agent platform's
// REST API for tests.
package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ent0n29/callkit/internal/platform"
)

// Registration records one create-call request the fake received.
type Registration struct {
	Path             string
	APIKey           string
	AgentID          string
	FromNumber       string
	ToNumber         string
	DynamicVariables map[string]string
}

// Fake serves create-web-call, create-phone-call and get-call. Call details
// returned by get-call are set with SetDetail; unknown ids answer 404.
type Fake struct {
	URL string

	mu             sync.Mutex
	registerStatus int
	getStatus      map[string]int
	details        map[string]platform.CallDetail
	registrations  []Registration
	gets           map[string]int
	seq            int
}

func New(t testing.TB) *Fake {
	t.Helper()
	f := &Fake{
		details:   make(map[string]platform.CallDetail),
		getStatus: make(map[string]int),
		gets:      make(map[string]int),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// FailRegistrations makes every create call answer status.
func (f *Fake) FailRegistrations(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerStatus = status
}

func (f *Fake) FailGet(callID string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getStatus[callID] = status
}

func (f *Fake) SetDetail(d platform.CallDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.details[d.CallID] = d
}

// Complete stores a completed analysis for callID.
func (f *Fake) Complete(callID string, data map[string]any) {
	f.SetDetail(platform.CallDetail{
		CallID:     callID,
		CallStatus: platform.CallStatusCompleted,
		Analysis: &platform.CallAnalysis{
			CallSummary:        "caller confirmed identity",
			UserSentiment:      "Positive",
			CustomAnalysisData: data,
		},
	})
}

func (f *Fake) Registrations() []Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Registration(nil), f.registrations...)
}

func (f *Fake) Gets(callID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets[callID]
}

func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && (r.URL.Path == "/v2/create-web-call" || r.URL.Path == "/v2/create-phone-call"):
		f.register(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/v2/get-call/"):
		f.get(w, strings.TrimPrefix(r.URL.Path, "/v2/get-call/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *Fake) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID          string            `json:"agent_id"`
		OverrideAgentID  string            `json:"override_agent_id"`
		FromNumber       string            `json:"from_number"`
		ToNumber         string            `json:"to_number"`
		DynamicVariables map[string]string `json:"retell_llm_dynamic_variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	status := f.registerStatus
	f.seq++
	callID := fmt.Sprintf("call_%03d", f.seq)
	agent := body.AgentID
	if agent == "" {
		agent = body.OverrideAgentID
	}
	f.registrations = append(f.registrations, Registration{
		Path:             r.URL.Path,
		APIKey:           strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		AgentID:          agent,
		FromNumber:       body.FromNumber,
		ToNumber:         body.ToNumber,
		DynamicVariables: body.DynamicVariables,
	})
	if status == 0 {
		f.details[callID] = platform.CallDetail{CallID: callID, AgentID: agent, CallStatus: platform.CallStatusOngoing}
	}
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "platform unavailable", status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.URL.Path == "/v2/create-phone-call" {
		_ = json.NewEncoder(w).Encode(platform.PhoneCall{
			CallID: callID, CallStatus: "registered", FromNumber: body.FromNumber, ToNumber: body.ToNumber,
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"call_id":      callID,
		"access_token": "tok_" + callID,
		"sample_rate":  24000,
	})
}

func (f *Fake) get(w http.ResponseWriter, callID string) {
	f.mu.Lock()
	f.gets[callID]++
	status := f.getStatus[callID]
	detail, ok := f.details[callID]
	f.mu.Unlock()

	if status != 0 {
		http.Error(w, "lookup failed", status)
		return
	}
	if !ok {
		http.Error(w, "call not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(detail)
}
