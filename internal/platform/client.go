// Package platform talks to the remote voice-agent platform's REST API:
// registering web and phone calls and fetching call details after the fact.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/policy"
)

const (
	DefaultBaseURL    = "https://api.retellai.com"
	DefaultSampleRate = 16000

	createWebCallPath   = "/v2/create-web-call"
	createPhoneCallPath = "/v2/create-phone-call"
	getCallPath         = "/v2/get-call/"
)

// Client is a bearer-authenticated client for the platform API. It holds no
// per-call state and is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     *logrus.Entry
}

type Option func(*Client)

// WithHTTPClient replaces the default client (60s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.client = c
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(cl *Client) {
		if l != nil {
			cl.log = l
		}
	}
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     logging.NewLogger("platform"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAPIKey returns a copy of c that authenticates with apiKey. Brands with
// their own credentials share the underlying transport.
func (c *Client) WithAPIKey(apiKey string) *Client {
	cp := *c
	cp.apiKey = strings.TrimSpace(apiKey)
	return &cp
}

// RegisterWebCall exchanges agentID and params for a SessionHandle. It does
// not retry.
func (c *Client) RegisterWebCall(ctx context.Context, agentID string, params DynamicVariables) (SessionHandle, error) {
	started := time.Now()
	var out createWebCallResponse
	err := c.register(ctx, createWebCallPath, createWebCallRequest{
		AgentID:          agentID,
		DynamicVariables: params.Clone(),
	}, &out)
	if err != nil {
		return SessionHandle{}, err
	}
	if out.AccessToken == "" || out.CallID == "" {
		return SessionHandle{}, &RegistrationError{Parse: errors.New("response missing access_token or call_id")}
	}
	if out.SampleRate <= 0 {
		out.SampleRate = DefaultSampleRate
	}

	c.log.WithFields(logrus.Fields{
		"agent_id":   agentID,
		"call_id":    out.CallID,
		"variables":  policy.RedactVariables(params),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("web call registered")

	return SessionHandle{CallID: out.CallID, AccessToken: out.AccessToken, SampleRate: out.SampleRate}, nil
}

// RegisterPhoneCall asks the platform to dial toNumber from fromNumber with agentID.
func (c *Client) RegisterPhoneCall(ctx context.Context, agentID, fromNumber, toNumber string, params DynamicVariables) (PhoneCall, error) {
	var out PhoneCall
	err := c.register(ctx, createPhoneCallPath, createPhoneCallRequest{
		FromNumber:       fromNumber,
		ToNumber:         toNumber,
		OverrideAgentID:  agentID,
		DynamicVariables: params.Clone(),
	}, &out)
	if err != nil {
		return PhoneCall{}, err
	}
	if out.CallID == "" {
		return PhoneCall{}, &RegistrationError{Parse: errors.New("response missing call_id")}
	}

	c.log.WithFields(logrus.Fields{
		"agent_id":  agentID,
		"call_id":   out.CallID,
		"to_number": policy.RedactValue(toNumber),
		"variables": policy.RedactVariables(params),
	}).Info("phone call registered")
	return out, nil
}

func (c *Client) register(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &RegistrationError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &RegistrationError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return &RegistrationError{Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		c.log.WithFields(logrus.Fields{"path": path, "status": res.StatusCode}).Warn("call registration rejected")
		return &RegistrationError{Status: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &RegistrationError{Parse: err}
	}
	return nil
}

// GetCall fetches the call-detail payload, including post-call analysis once
// the platform has produced it.
func (c *Client) GetCall(ctx context.Context, callID string) (CallDetail, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return CallDetail{}, &FetchError{Err: errors.New("missing call id")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+getCallPath+url.PathEscape(callID), nil)
	if err != nil {
		return CallDetail{}, &FetchError{CallID: callID, Err: fmt.Errorf("create request: %w", err)}
	}
	c.authorize(req)

	res, err := c.client.Do(req)
	if err != nil {
		return CallDetail{}, &FetchError{CallID: callID, Err: fmt.Errorf("send request: %w", err)}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return CallDetail{}, &FetchError{CallID: callID, Status: res.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var detail CallDetail
	if err := json.NewDecoder(res.Body).Decode(&detail); err != nil {
		return CallDetail{}, &FetchError{CallID: callID, Err: fmt.Errorf("decode response: %w", err)}
	}
	if detail.CallID == "" {
		detail.CallID = callID
	}
	return detail, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
