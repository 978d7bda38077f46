package platform

// DynamicVariables are the key/value pairs handed to the remote agent at
// call creation to personalize its responses.
type DynamicVariables map[string]string

// Clone returns an independent copy so a submitted set cannot be mutated.
func (v DynamicVariables) Clone() DynamicVariables {
	if v == nil {
		return DynamicVariables{}
	}
	out := make(DynamicVariables, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// SessionHandle is what a registered web call needs to be joined.
type SessionHandle struct {
	CallID      string `json:"call_id"`
	AccessToken string `json:"access_token"`
	SampleRate  int    `json:"sample_rate"`
}

// PhoneCall is the result of registering a phone-originated call.
type PhoneCall struct {
	CallID     string `json:"call_id"`
	CallStatus string `json:"call_status"`
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`
}

type createWebCallRequest struct {
	AgentID          string           `json:"agent_id"`
	DynamicVariables DynamicVariables `json:"retell_llm_dynamic_variables,omitempty"`
}

type createWebCallResponse struct {
	AccessToken string `json:"access_token"`
	CallID      string `json:"call_id"`
	SampleRate  int    `json:"sample_rate"`
}

type createPhoneCallRequest struct {
	FromNumber       string           `json:"from_number"`
	ToNumber         string           `json:"to_number"`
	OverrideAgentID  string           `json:"override_agent_id,omitempty"`
	DynamicVariables DynamicVariables `json:"retell_llm_dynamic_variables,omitempty"`
}

// CallAnalysis is the post-call structured summary produced by the platform.
type CallAnalysis struct {
	CallSummary        string         `json:"call_summary"`
	UserSentiment      string         `json:"user_sentiment"`
	CallSuccessful     *bool          `json:"call_successful,omitempty"`
	CustomAnalysisData map[string]any `json:"custom_analysis_data"`
}

// CallDetail is the call-detail payload returned by get-call.
type CallDetail struct {
	CallID           string            `json:"call_id"`
	AgentID          string            `json:"agent_id"`
	CallStatus       string            `json:"call_status"`
	Transcript       string            `json:"transcript"`
	RecordingURL     string            `json:"recording_url"`
	DurationMS       int64             `json:"duration_ms"`
	StartTimestamp   int64             `json:"start_timestamp"`
	EndTimestamp     int64             `json:"end_timestamp"`
	DisconnectReason string            `json:"disconnection_reason"`
	DynamicVariables DynamicVariables  `json:"retell_llm_dynamic_variables"`
	Analysis         *CallAnalysis     `json:"call_analysis"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

const (
	CallStatusOngoing   = "ongoing"
	CallStatusEnded     = "ended"
	CallStatusCompleted = "completed"
)
