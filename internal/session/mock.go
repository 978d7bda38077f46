package session

import (
	"context"
	"sync"
	"time"
)

// MockSDK is an in-process SDK used when no real-time endpoint is configured
// and in tests. Events are delivered synchronously from Emit.
type MockSDK struct {
	// AutoStart emits call_started as soon as StartCall succeeds.
	AutoStart bool
	// AutoEndAfter, when positive, emits one update and then call_ended
	// this long after a successful StartCall.
	AutoEndAfter time.Duration

	StartErr  error
	StopErr   error
	StopPanic any
	// Gate, when set, makes StartCall wait for it to close (or ctx to end).
	Gate chan struct{}

	mu       sync.Mutex
	handlers map[EventName]EventHandler
	starts   int
	stops    int
	offs     int
	last     StartCallConfig
	timer    *time.Timer
}

func NewMockSDK() *MockSDK {
	return &MockSDK{AutoStart: true, handlers: make(map[EventName]EventHandler)}
}

func (m *MockSDK) On(event EventName, handler EventHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[EventName]EventHandler)
	}
	m.handlers[event] = handler
}

func (m *MockSDK) Off(event EventName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[event]; ok {
		delete(m.handlers, event)
		m.offs++
	}
}

// Emit delivers ev to the registered handler, if any.
func (m *MockSDK) Emit(ev Event) {
	m.mu.Lock()
	h := m.handlers[ev.Name]
	m.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (m *MockSDK) StartCall(ctx context.Context, cfg StartCallConfig) error {
	m.mu.Lock()
	m.starts++
	m.last = cfg
	gate := m.Gate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.StartErr != nil {
		return m.StartErr
	}
	if m.AutoStart {
		m.Emit(Event{Name: EventCallStarted})
	}
	if m.AutoEndAfter > 0 {
		m.mu.Lock()
		m.timer = time.AfterFunc(m.AutoEndAfter, func() {
			m.Emit(Event{Name: EventUpdate, Update: Update{
				Transcript: []TranscriptEntry{{Role: "agent", Content: "Thanks, you're all set."}},
				TurnTaking: "agent_turn",
			}})
			m.Emit(Event{Name: EventCallEnded, Code: CloseNormal, Reason: "agent_hangup"})
		})
		m.mu.Unlock()
	}
	return nil
}

func (m *MockSDK) StopCall(_ context.Context) error {
	m.mu.Lock()
	m.stops++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()
	if m.StopPanic != nil {
		panic(m.StopPanic)
	}
	return m.StopErr
}

func (m *MockSDK) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

func (m *MockSDK) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

// Detached counts handlers removed through Off.
func (m *MockSDK) Detached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offs
}

func (m *MockSDK) Subscribed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func (m *MockSDK) LastConfig() StartCallConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
