// Package session drives one real-time voice session at a time through
// not_started -> connecting -> active -> ended|failed.
package session

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/platform"
)

// Listener receives lifecycle notifications. Any field may be nil.
// Callbacks run on the goroutine that caused the transition and must not
// call back into Start or Stop synchronously.
type Listener struct {
	OnStateChange func(from, to State)
	OnStarted     func()
	OnEnded       func(code int, reason string)
	OnError       func(err error)
	OnUpdate      func(u Update)
}

// Snapshot is a read-only view of the current cycle.
type Snapshot struct {
	State     State  `json:"state"`
	CallID    string `json:"call_id,omitempty"`
	EndCode   int    `json:"end_code,omitempty"`
	EndReason string `json:"end_reason,omitempty"`
	Err       error  `json:"-"`
}

// Client owns the SDK subscription and the active SessionHandle. It
// subscribes to SDK events once in New and detaches once in Close.
type Client struct {
	sdk          SDK
	mic          Microphone
	log          *logrus.Entry
	enableUpdate bool

	mu          sync.Mutex
	state       State
	handle      *platform.SessionHandle
	inProgress  bool
	startCancel context.CancelFunc
	startDone   chan struct{}
	cycleDone   chan struct{}
	micHeld     bool
	endCode     int
	endReason   string
	lastErr     error
	listeners   map[uint64]Listener
	nextID      uint64
	closed      bool
}

type Option func(*Client)

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithUpdates controls whether the SDK is asked for transcript updates.
func WithUpdates(enabled bool) Option {
	return func(c *Client) { c.enableUpdate = enabled }
}

var subscribedEvents = []EventName{EventCallStarted, EventCallEnded, EventError, EventUpdate}

func New(sdk SDK, mic Microphone, opts ...Option) *Client {
	if mic == nil {
		mic = GrantedMicrophone
	}
	c := &Client{
		sdk:          sdk,
		mic:          mic,
		log:          logging.NewLogger("session"),
		enableUpdate: true,
		state:        StateNotStarted,
		listeners:    make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, name := range subscribedEvents {
		sdk.On(name, c.handleEvent)
	}
	return c
}

// Close detaches from the SDK and drops all listeners. It does not stop a
// running call; callers Stop first. Close is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = make(map[uint64]Listener)
	c.mu.Unlock()

	for _, name := range subscribedEvents {
		c.sdk.Off(name)
	}
}

// Subscribe registers l and returns a function that detaches it. The
// returned function may be called more than once. After Close, l is not
// registered and cancel does nothing.
func (c *Client) Subscribe(l Listener) (cancel func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a Start or Stop is currently in flight.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// Handle returns the handle of the current cycle, if any.
func (c *Client) Handle() (platform.SessionHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return platform.SessionHandle{}, false
	}
	return *c.handle, true
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, EndCode: c.endCode, EndReason: c.endReason, Err: c.lastErr}
	if c.handle != nil {
		s.CallID = c.handle.CallID
	}
	return s
}

// Start begins a new cycle with handle. It returns once the SDK accepted the
// call; the session becomes active when the SDK reports call_started.
func (c *Client) Start(ctx context.Context, handle platform.SessionHandle) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.inProgress:
		c.mu.Unlock()
		return ErrBusy
	case c.state == StateConnecting || c.state == StateActive:
		c.mu.Unlock()
		return ErrSessionActive
	}

	startCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h := handle
	c.inProgress = true
	c.startCancel = cancel
	c.startDone = done
	c.handle = &h
	c.cycleDone = make(chan struct{})
	c.endCode, c.endReason, c.lastErr = 0, "", nil
	from := c.state
	c.state = StateConnecting
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		c.inProgress = false
		c.startCancel = nil
		c.startDone = nil
		c.mu.Unlock()
		close(done)
	}()

	log := c.log.WithField("call_id", handle.CallID)
	c.emitStateChange(from, StateConnecting)

	if err := c.mic.Acquire(startCtx); err != nil {
		if startCtx.Err() != nil {
			c.finish(StateEnded, 0, "cancelled", nil)
			return ErrStartCancelled
		}
		permErr := &PermissionDeniedError{Err: err}
		log.WithError(err).Warn("microphone access denied")
		c.finish(StateFailed, 0, "permission_denied", permErr)
		return permErr
	}
	c.mu.Lock()
	c.micHeld = true
	c.mu.Unlock()

	err := c.sdk.StartCall(startCtx, StartCallConfig{
		AccessToken:  handle.AccessToken,
		CallID:       handle.CallID,
		SampleRate:   handle.SampleRate,
		EnableUpdate: c.enableUpdate,
	})
	if err != nil {
		if startCtx.Err() != nil {
			c.finish(StateEnded, 0, "cancelled", nil)
			return ErrStartCancelled
		}
		sdkErr := asSDKError(err)
		log.WithError(err).Warn("sdk start failed")
		c.finish(StateFailed, 0, "start_failed", sdkErr)
		return sdkErr
	}
	log.Debug("sdk accepted call")
	return nil
}

// Stop tears the session down. Stopping while connecting cancels the pending
// Start first. Stop on an idle or finished client is a no-op. The in-progress
// flag is always cleared on return, including when the SDK panics.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting && c.startCancel != nil {
		cancel, done := c.startCancel, c.startDone
		c.mu.Unlock()
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	if c.inProgress {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state != StateConnecting && c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	c.inProgress = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inProgress = false
		c.mu.Unlock()
	}()

	if err := c.sdk.StopCall(ctx); err != nil {
		sdkErr := asSDKError(err)
		c.log.WithError(err).Warn("sdk stop failed")
		c.finish(StateFailed, 0, "stop_failed", sdkErr)
		return sdkErr
	}
	c.finish(StateEnded, CloseNormal, "stopped", nil)
	return nil
}

// Wait blocks until the current cycle is terminal and returns the failure,
// if any.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	done := c.cycleDone
	c.mu.Unlock()
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) handleEvent(ev Event) {
	switch ev.Name {
	case EventCallStarted:
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = StateActive
		c.mu.Unlock()
		c.emitStateChange(StateConnecting, StateActive)
		for _, l := range c.snapshotListeners() {
			if l.OnStarted != nil {
				l.OnStarted()
			}
		}
	case EventCallEnded:
		c.finish(StateEnded, ev.Code, ev.Reason, nil)
	case EventError:
		err := ev.Err
		if err == nil {
			err = &SDKError{Code: ev.Reason}
		}
		c.finish(StateFailed, ev.Code, ev.Reason, asSDKError(err))
	case EventUpdate:
		if s := c.State(); s != StateConnecting && s != StateActive {
			return
		}
		for _, l := range c.snapshotListeners() {
			if l.OnUpdate != nil {
				l.OnUpdate(ev.Update)
			}
		}
	}
}

// finish moves a live cycle to a terminal state. Later calls for the same
// cycle are ignored, so SDK events racing a Stop notify listeners once.
func (c *Client) finish(to State, code int, reason string, err error) bool {
	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateActive {
		c.mu.Unlock()
		return false
	}
	from := c.state
	c.state = to
	c.endCode, c.endReason, c.lastErr = code, reason, err
	releaseMic := c.micHeld
	c.micHeld = false
	done := c.cycleDone
	c.mu.Unlock()

	if releaseMic {
		c.mic.Release()
	}

	c.log.WithFields(logrus.Fields{"from": from, "to": to, "code": code, "reason": reason}).Info("session finished")
	c.emitStateChange(from, to)
	for _, l := range c.snapshotListeners() {
		if to == StateFailed {
			if l.OnError != nil {
				l.OnError(err)
			}
			continue
		}
		if l.OnEnded != nil {
			l.OnEnded(code, reason)
		}
	}
	if done != nil {
		close(done)
	}
	return true
}

func (c *Client) emitStateChange(from, to State) {
	for _, l := range c.snapshotListeners() {
		if l.OnStateChange != nil {
			l.OnStateChange(from, to)
		}
	}
}

func (c *Client) snapshotListeners() []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}
