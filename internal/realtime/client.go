// Package realtime implements session.SDK over the platform's audio
// websocket.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/protocol"
	"github.com/ent0n29/callkit/internal/reliability"
	"github.com/ent0n29/callkit/internal/session"
)

const (
	DefaultURL = "wss://api.retellai.com/audio-websocket"

	writeTimeout   = 10 * time.Second
	stopDrainLimit = 5 * time.Second
)

var errCallRunning = errors.New("realtime: a call is already running on this client")

// Client holds at most one live socket. Handlers are invoked from the
// socket's reader goroutine, one frame at a time.
type Client struct {
	baseURL string
	dialer  *websocket.Dialer
	log     *logrus.Entry

	mu       sync.Mutex
	handlers map[session.EventName]session.EventHandler
	active   *call
}

type call struct {
	id         string
	sampleRate int
	conn       *websocket.Conn
	writeMu    sync.Mutex
	readDone   chan struct{}
	stopping   atomic.Bool
	ended      atomic.Bool
	seq        atomic.Int64
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultURL
	}
	c := &Client{
		baseURL:  baseURL,
		dialer:   websocket.DefaultDialer,
		log:      logging.NewLogger("realtime"),
		handlers: make(map[session.EventName]session.EventHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) On(event session.EventName, handler session.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

func (c *Client) Off(event session.EventName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, event)
}

func (c *Client) StartCall(ctx context.Context, cfg session.StartCallConfig) error {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return &session.SDKError{Code: "call_running", Err: errCallRunning}
	}
	c.mu.Unlock()

	u, err := url.Parse(c.baseURL + "/" + url.PathEscape(cfg.CallID))
	if err != nil {
		return &session.SDKError{Code: "invalid_url", Err: err}
	}
	q := u.Query()
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	q.Set("enable_update", strconv.FormatBool(cfg.EnableUpdate))
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.AccessToken)

	conn, res, err := c.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if res != nil {
			return &session.SDKError{
				Code:      "handshake_" + strconv.Itoa(res.StatusCode),
				Detail:    http.StatusText(res.StatusCode),
				Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
				Err:       err,
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &session.SDKError{Code: "dial_failed", Retryable: reliability.IsTransientError(err), Err: fmt.Errorf("dial audio websocket: %w", err)}
	}

	active := &call{id: cfg.CallID, sampleRate: cfg.SampleRate, conn: conn, readDone: make(chan struct{})}
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return &session.SDKError{Code: "call_running", Err: errCallRunning}
	}
	c.active = active
	c.mu.Unlock()

	c.log.WithField("call_id", cfg.CallID).Debug("audio websocket connected")
	go c.readLoop(active)
	return nil
}

// StopCall asks the platform to end the call, closes the socket and waits
// for the reader to exit. Stopping with no live call is a no-op.
func (c *Client) StopCall(ctx context.Context) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return nil
	}
	active.stopping.Store(true)

	err := active.writeJSON(protocol.ClientControl{
		Type:   protocol.TypeClientControl,
		CallID: active.id,
		Action: protocol.ActionStop,
		TSMs:   time.Now().UnixMilli(),
	})
	if err != nil {
		c.log.WithError(err).WithField("call_id", active.id).Debug("stop frame not delivered")
	}
	active.writeMu.Lock()
	_ = active.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client stop"),
		time.Now().Add(writeTimeout),
	)
	active.writeMu.Unlock()

	timer := time.NewTimer(stopDrainLimit)
	defer timer.Stop()
	select {
	case <-active.readDone:
	case <-timer.C:
	case <-ctx.Done():
	}
	_ = active.conn.Close()
	<-active.readDone
	return nil
}

// SendAudio streams one PCM16LE microphone frame to the agent.
func (c *Client) SendAudio(_ context.Context, pcm []byte) error {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()
	if active == nil {
		return &session.SDKError{Code: "no_call", Err: errors.New("realtime: no call running")}
	}
	return active.writeJSON(protocol.ClientAudioChunk{
		Type:        protocol.TypeClientAudioChunk,
		CallID:      active.id,
		Seq:         int(active.seq.Add(1)),
		PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  active.sampleRate,
		TSMs:        time.Now().UnixMilli(),
	})
}

func (a *call) writeJSON(v any) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	_ = a.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return a.conn.WriteJSON(v)
}

func (c *Client) readLoop(a *call) {
	log := c.log.WithField("call_id", a.id)
	defer func() {
		c.mu.Lock()
		if c.active == a {
			c.active = nil
		}
		c.mu.Unlock()
		close(a.readDone)
	}()

	for {
		msgType, data, err := a.conn.ReadMessage()
		if err != nil {
			c.handleReadError(a, err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseServerMessage(data)
		if err != nil {
			log.WithError(err).Debug("ignoring unrecognized frame")
			continue
		}
		c.dispatchMessage(a, msg)
	}
}

func (c *Client) dispatchMessage(a *call, msg any) {
	switch m := msg.(type) {
	case protocol.CallStarted:
		c.emit(session.Event{Name: session.EventCallStarted})
	case protocol.Update:
		c.emit(session.Event{Name: session.EventUpdate, Update: session.Update{
			Transcript: convertTranscript(m.Transcript),
			TurnTaking: m.TurnTaking,
		}})
	case protocol.AgentAudio:
		pcm, err := base64.StdEncoding.DecodeString(m.AudioBase64)
		if err != nil {
			c.log.WithError(err).WithField("call_id", a.id).Debug("dropping undecodable audio frame")
			return
		}
		c.emit(session.Event{Name: session.EventUpdate, Update: session.Update{AgentAudio: pcm}})
	case protocol.CallEnded:
		a.ended.Store(true)
		c.emit(session.Event{Name: session.EventCallEnded, Code: m.Code, Reason: m.Reason})
	case protocol.ErrorEvent:
		a.ended.Store(true)
		c.emit(session.Event{Name: session.EventError, Reason: m.Code, Err: &session.SDKError{
			Code:      m.Code,
			Detail:    m.Detail,
			Retryable: m.Retryable || reliability.IsRetryableRealtimeCode(m.Code),
		}})
	}
}

// handleReadError converts socket teardown into a lifecycle event unless the
// call already reported its own end or we initiated the close.
func (c *Client) handleReadError(a *call, err error) {
	if a.ended.Load() || a.stopping.Load() {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
		c.emit(session.Event{Name: session.EventCallEnded, Code: closeErr.Code, Reason: closeErr.Text})
		return
	}
	c.emit(session.Event{Name: session.EventError, Reason: "network_error", Err: &session.SDKError{
		Code:      "network_error",
		Detail:    err.Error(),
		Retryable: true,
		Err:       err,
	}})
}

func (c *Client) emit(ev session.Event) {
	c.mu.Lock()
	h := c.handlers[ev.Name]
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func convertTranscript(in []protocol.TranscriptEntry) []session.TranscriptEntry {
	if len(in) == 0 {
		return nil
	}
	out := make([]session.TranscriptEntry, len(in))
	for i, e := range in {
		out[i] = session.TranscriptEntry{Role: e.Role, Content: e.Content}
	}
	return out
}
