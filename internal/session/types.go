package session

import (
	"context"
	"errors"
	"fmt"
)

// State is the lifecycle position of the current session cycle.
type State string

const (
	StateNotStarted State = "not_started"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnded      State = "ended"
	StateFailed     State = "failed"
)

// Terminal reports whether no further transitions happen in this cycle.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed
}

// EventName identifies SDK lifecycle events.
type EventName string

const (
	EventCallStarted EventName = "call_started"
	EventCallEnded   EventName = "call_ended"
	EventError       EventName = "error"
	EventUpdate      EventName = "update"
)

// CloseNormal is the end code reported when the client stops the call itself.
const CloseNormal = 1000

type TranscriptEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Update carries partial transcript and turn-taking state during a call.
type Update struct {
	Transcript []TranscriptEntry `json:"transcript,omitempty"`
	TurnTaking string            `json:"turntaking,omitempty"`
	AgentAudio []byte            `json:"-"`
}

// Event is what an SDK hands to registered handlers.
type Event struct {
	Name   EventName
	Code   int
	Reason string
	Err    error
	Update Update
}

type EventHandler func(Event)

// StartCallConfig is passed to SDK.StartCall.
type StartCallConfig struct {
	AccessToken  string
	CallID       string
	SampleRate   int
	EnableUpdate bool
}

// SDK is the real-time audio client boundary. Implementations deliver events
// to handlers one at a time, in the order started, updates, then ended or
// error.
type SDK interface {
	On(event EventName, handler EventHandler)
	Off(event EventName)
	StartCall(ctx context.Context, cfg StartCallConfig) error
	StopCall(ctx context.Context) error
}

// Microphone gates access to the capture device.
type Microphone interface {
	Acquire(ctx context.Context) error
	Release()
}

// MicrophoneFunc adapts a permission check to Microphone; Release is a no-op.
type MicrophoneFunc func(ctx context.Context) error

func (f MicrophoneFunc) Acquire(ctx context.Context) error { return f(ctx) }
func (f MicrophoneFunc) Release()                          {}

// GrantedMicrophone always grants access.
var GrantedMicrophone Microphone = MicrophoneFunc(func(context.Context) error { return nil })

var (
	ErrBusy           = errors.New("session: start or stop already in progress")
	ErrSessionActive  = errors.New("session: a session is already connecting or active")
	ErrClosed         = errors.New("session: client closed")
	ErrNotStarted     = errors.New("session: no session has been started")
	ErrStartCancelled = errors.New("session: start cancelled")
)

// PermissionDeniedError is returned when the microphone cannot be acquired.
type PermissionDeniedError struct {
	Err error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("microphone permission denied: %v", e.Err)
}

func (e *PermissionDeniedError) Unwrap() error { return e.Err }

// SDKError wraps a failure reported by the real-time SDK, either returned
// from a call or surfaced through the error event.
type SDKError struct {
	Code      string
	Detail    string
	Retryable bool
	Err       error
}

func (e *SDKError) Error() string {
	switch {
	case e.Code != "" && e.Detail != "":
		return fmt.Sprintf("sdk error %s: %s", e.Code, e.Detail)
	case e.Code != "":
		return "sdk error " + e.Code
	case e.Err != nil:
		return fmt.Sprintf("sdk error: %v", e.Err)
	default:
		return "sdk error"
	}
}

func (e *SDKError) Unwrap() error { return e.Err }

func asSDKError(err error) *SDKError {
	var sdkErr *SDKError
	if errors.As(err, &sdkErr) {
		return sdkErr
	}
	return &SDKError{Err: err}
}
