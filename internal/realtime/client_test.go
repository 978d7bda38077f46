package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/platform"
	"github.com/ent0n29/callkit/internal/protocol"
	"github.com/ent0n29/callkit/internal/session"
)

type fakeAgent struct {
	t        *testing.T
	script   func(conn *websocket.Conn)
	mu       sync.Mutex
	requests []*http.Request
	frames   []map[string]any
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer tok-1" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.mu.Unlock()
	f.script(conn)
}

func (f *fakeAgent) record(frame map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *fakeAgent) recorded() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.frames...)
}

// readUntilStop records client frames until a stop control or close arrives.
func (f *fakeAgent) readUntilStop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame map[string]any
		if json.Unmarshal(data, &frame) == nil {
			f.record(frame)
			if frame["action"] == protocol.ActionStop {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				return
			}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type eventLog struct {
	mu     sync.Mutex
	events []session.Event
	ch     chan session.Event
}

func newEventLog(c *Client) *eventLog {
	l := &eventLog{ch: make(chan session.Event, 32)}
	for _, name := range []session.EventName{session.EventCallStarted, session.EventUpdate, session.EventCallEnded, session.EventError} {
		c.On(name, func(ev session.Event) {
			l.mu.Lock()
			l.events = append(l.events, ev)
			l.mu.Unlock()
			l.ch <- ev
		})
	}
	return l
}

func (l *eventLog) next(t *testing.T) session.Event {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return session.Event{}
	}
}

func TestStartCallStreamsServerEventsInOrder(t *testing.T) {
	pcm := []byte{1, 0, 2, 0}
	agent := &fakeAgent{t: t}
	agent.script = func(conn *websocket.Conn) {
		_ = conn.WriteJSON(protocol.CallStarted{Type: protocol.TypeCallStarted, CallID: "call-1"})
		_ = conn.WriteJSON(protocol.Update{Type: protocol.TypeUpdate, Transcript: []protocol.TranscriptEntry{{Role: "agent", Content: "hello"}}, TurnTaking: "agent_turn"})
		_ = conn.WriteJSON(protocol.AgentAudio{Type: protocol.TypeAgentAudio, AudioBase64: base64.StdEncoding.EncodeToString(pcm), SampleRate: 16000})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"mystery"}`))
		_ = conn.WriteJSON(protocol.CallEnded{Type: protocol.TypeCallEnded, Code: 1000, Reason: "agent_hangup"})
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	c := New(wsURL(srv), WithLogger(logging.Discard()))
	events := newEventLog(c)

	err := c.StartCall(context.Background(), session.StartCallConfig{AccessToken: "tok-1", CallID: "call-1", SampleRate: 24000, EnableUpdate: true})
	require.NoError(t, err)

	assert.Equal(t, session.EventCallStarted, events.next(t).Name)
	upd := events.next(t)
	assert.Equal(t, session.EventUpdate, upd.Name)
	assert.Equal(t, []session.TranscriptEntry{{Role: "agent", Content: "hello"}}, upd.Update.Transcript)
	assert.Equal(t, "agent_turn", upd.Update.TurnTaking)
	audio := events.next(t)
	assert.Equal(t, pcm, audio.Update.AgentAudio)
	ended := events.next(t)
	assert.Equal(t, session.EventCallEnded, ended.Name)
	assert.Equal(t, 1000, ended.Code)
	assert.Equal(t, "agent_hangup", ended.Reason)

	require.NoError(t, c.StopCall(context.Background()))
	select {
	case ev := <-events.ch:
		t.Fatalf("unexpected event after call ended: %+v", ev)
	default:
	}

	agent.mu.Lock()
	req := agent.requests[0]
	agent.mu.Unlock()
	assert.Equal(t, "/call-1", req.URL.Path)
	assert.Equal(t, "24000", req.URL.Query().Get("sample_rate"))
	assert.Equal(t, "true", req.URL.Query().Get("enable_update"))
}

func TestStopCallSendsStopControlAndSuppressesEvents(t *testing.T) {
	agent := &fakeAgent{t: t}
	agent.script = func(conn *websocket.Conn) {
		_ = conn.WriteJSON(protocol.CallStarted{Type: protocol.TypeCallStarted})
		agent.readUntilStop(conn)
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	c := New(wsURL(srv), WithLogger(logging.Discard()))
	events := newEventLog(c)
	require.NoError(t, c.StartCall(context.Background(), session.StartCallConfig{AccessToken: "tok-1", CallID: "call-2", SampleRate: 16000}))
	assert.Equal(t, session.EventCallStarted, events.next(t).Name)

	require.NoError(t, c.SendAudio(context.Background(), []byte{9, 9}))
	require.NoError(t, c.StopCall(context.Background()))

	frames := agent.recorded()
	require.Len(t, frames, 2)
	assert.Equal(t, string(protocol.TypeClientAudioChunk), frames[0]["type"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{9, 9}), frames[0]["pcm16_base64"])
	assert.Equal(t, string(protocol.TypeClientControl), frames[1]["type"])
	assert.Equal(t, "call-2", frames[1]["call_id"])

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Len(t, events.events, 1)
}

func TestStopCallWithoutCallIsNoop(t *testing.T) {
	c := New("", WithLogger(logging.Discard()))
	assert.NoError(t, c.StopCall(context.Background()))

	err := c.SendAudio(context.Background(), []byte{1})
	var sdkErr *session.SDKError
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, "no_call", sdkErr.Code)
}

func TestServerErrorFrameBecomesSDKError(t *testing.T) {
	agent := &fakeAgent{t: t}
	agent.script = func(conn *websocket.Conn) {
		_ = conn.WriteJSON(protocol.ErrorEvent{Type: protocol.TypeError, Code: "rate_limited", Detail: "slow down"})
		_, _, _ = conn.ReadMessage()
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	c := New(wsURL(srv), WithLogger(logging.Discard()))
	events := newEventLog(c)
	require.NoError(t, c.StartCall(context.Background(), session.StartCallConfig{AccessToken: "tok-1", CallID: "call-3"}))

	ev := events.next(t)
	assert.Equal(t, session.EventError, ev.Name)
	var sdkErr *session.SDKError
	require.True(t, errors.As(ev.Err, &sdkErr))
	assert.Equal(t, "rate_limited", sdkErr.Code)
	assert.True(t, sdkErr.Retryable)
	require.NoError(t, c.StopCall(context.Background()))
}

func TestAbruptDisconnectEmitsNetworkError(t *testing.T) {
	agent := &fakeAgent{t: t}
	agent.script = func(conn *websocket.Conn) {
		_ = conn.WriteJSON(protocol.CallStarted{Type: protocol.TypeCallStarted})
		_ = conn.UnderlyingConn().Close()
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	c := New(wsURL(srv), WithLogger(logging.Discard()))
	events := newEventLog(c)
	require.NoError(t, c.StartCall(context.Background(), session.StartCallConfig{AccessToken: "tok-1", CallID: "call-4"}))

	assert.Equal(t, session.EventCallStarted, events.next(t).Name)
	ev := events.next(t)
	assert.Equal(t, session.EventError, ev.Name)
	assert.Equal(t, "network_error", ev.Reason)
}

func TestHandshakeRejectionIsReported(t *testing.T) {
	srv := httptest.NewServer(&fakeAgent{t: t, script: func(*websocket.Conn) {}})
	defer srv.Close()

	c := New(wsURL(srv), WithLogger(logging.Discard()))
	err := c.StartCall(context.Background(), session.StartCallConfig{AccessToken: "wrong", CallID: "call-5"})

	var sdkErr *session.SDKError
	require.True(t, errors.As(err, &sdkErr))
	assert.Equal(t, "handshake_401", sdkErr.Code)
	assert.False(t, sdkErr.Retryable)
}

func TestSessionClientOverRealtimeSocket(t *testing.T) {
	agent := &fakeAgent{t: t}
	agent.script = func(conn *websocket.Conn) {
		_ = conn.WriteJSON(protocol.CallStarted{Type: protocol.TypeCallStarted})
		agent.readUntilStop(conn)
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	sdk := New(wsURL(srv), WithLogger(logging.Discard()))
	client := session.New(sdk, session.GrantedMicrophone, session.WithLogger(logging.Discard()))
	defer client.Close()

	started := make(chan struct{}, 1)
	client.Subscribe(session.Listener{OnStarted: func() { started <- struct{}{} }})

	handle := platform.SessionHandle{CallID: "call-6", AccessToken: "tok-1", SampleRate: 16000}
	require.NoError(t, client.Start(context.Background(), handle))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("session never became active")
	}
	assert.Equal(t, session.StateActive, client.State())

	require.NoError(t, client.Stop(context.Background()))
	assert.Equal(t, session.StateEnded, client.State())
}
