// Package callflow binds registration, the live session and post-call
// verification together for a configured brand.
package callflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/analysis"
	"github.com/ent0n29/callkit/internal/calllog"
	"github.com/ent0n29/callkit/internal/config"
	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/observability"
	"github.com/ent0n29/callkit/internal/platform"
	"github.com/ent0n29/callkit/internal/session"
)

var (
	ErrUnknownBrand      = errors.New("callflow: unknown brand")
	ErrInvalidParameters = errors.New("callflow: invalid parameters")
)

const stopGrace = 5 * time.Second

// Flow is safe for concurrent use; all per-call state lives in the store.
type Flow struct {
	brands  map[string]config.Brand
	order   []string
	clients map[string]*platform.Client
	store   calllog.Store
	metrics *observability.Metrics
	log     *logrus.Entry

	pollOpts    []analysis.PollerOption
	gatherLimit int
	now         func() time.Time
}

type Option func(*Flow)

func WithMetrics(m *observability.Metrics) Option {
	return func(f *Flow) { f.metrics = m }
}

func WithLogger(l *logrus.Entry) Option {
	return func(f *Flow) {
		if l != nil {
			f.log = l
		}
	}
}

// WithPolling sets the analysis attempt bound and the delay between attempts.
func WithPolling(attempts int, delay time.Duration) Option {
	return func(f *Flow) {
		f.pollOpts = append(f.pollOpts, analysis.WithAttempts(attempts), analysis.WithDelay(delay))
	}
}

func WithGatherLimit(n int) Option {
	return func(f *Flow) { f.gatherLimit = n }
}

// New builds a flow over brands. Each brand gets a copy of client carrying
// its own API key.
func New(brands []config.Brand, client *platform.Client, store calllog.Store, opts ...Option) *Flow {
	f := &Flow{
		brands:      make(map[string]config.Brand, len(brands)),
		clients:     make(map[string]*platform.Client, len(brands)),
		store:       store,
		log:         logging.NewLogger("callflow"),
		gatherLimit: 4,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, b := range brands {
		f.brands[b.ID] = b
		f.order = append(f.order, b.ID)
		f.clients[b.ID] = client.WithAPIKey(b.APIKey)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Registration is a web call ready to be joined.
type Registration struct {
	Record calllog.Call          `json:"record"`
	Handle platform.SessionHandle `json:"handle"`
}

// PhoneRegistration is a platform-dialled call.
type PhoneRegistration struct {
	Record calllog.Call       `json:"record"`
	Call   platform.PhoneCall `json:"call"`
}

// HistoryEntry pairs a stored call with its analysis. Error is set when the
// analysis could not be fetched; Analysis then holds the placeholder.
type HistoryEntry struct {
	Call     calllog.Call    `json:"call"`
	Analysis analysis.Result `json:"analysis"`
	Error    string          `json:"error,omitempty"`
}

func (f *Flow) Brands() []config.Brand {
	out := make([]config.Brand, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.brands[id])
	}
	return out
}

func (f *Flow) Brand(id string) (config.Brand, error) {
	b, ok := f.brands[id]
	if !ok {
		return config.Brand{}, fmt.Errorf("%w: %s", ErrUnknownBrand, id)
	}
	return b, nil
}

// Register validates params against the brand's field schema, registers a
// web call and records it.
func (f *Flow) Register(ctx context.Context, brandID string, params map[string]string) (Registration, error) {
	brand, err := f.Brand(brandID)
	if err != nil {
		return Registration{}, err
	}
	if err := checkParams(brand, params); err != nil {
		return Registration{}, err
	}

	started := time.Now()
	handle, err := f.clients[brand.ID].RegisterWebCall(ctx, brand.AgentID, params)
	f.observeRegistration(brand.ID, calllog.KindWeb, started, err)
	if err != nil {
		return Registration{}, err
	}

	record, err := f.store.SaveCall(ctx, calllog.Call{
		CallID:  handle.CallID,
		Brand:   brand.ID,
		AgentID: brand.AgentID,
		Kind:    calllog.KindWeb,
		Params:  platform.DynamicVariables(params).Clone(),
	})
	if err != nil {
		return Registration{}, fmt.Errorf("record call %s: %w", handle.CallID, err)
	}
	return Registration{Record: record, Handle: handle}, nil
}

// RegisterPhone has the platform dial toNumber from the brand's number.
func (f *Flow) RegisterPhone(ctx context.Context, brandID, toNumber string, params map[string]string) (PhoneRegistration, error) {
	brand, err := f.Brand(brandID)
	if err != nil {
		return PhoneRegistration{}, err
	}
	toNumber = strings.TrimSpace(toNumber)
	if toNumber == "" {
		return PhoneRegistration{}, fmt.Errorf("%w: to_number is required", ErrInvalidParameters)
	}
	if brand.FromNumber == "" {
		return PhoneRegistration{}, fmt.Errorf("%w: brand %s has no from_number", ErrInvalidParameters, brand.ID)
	}
	if err := checkParams(brand, params); err != nil {
		return PhoneRegistration{}, err
	}

	started := time.Now()
	call, err := f.clients[brand.ID].RegisterPhoneCall(ctx, brand.AgentID, brand.FromNumber, toNumber, params)
	f.observeRegistration(brand.ID, calllog.KindPhone, started, err)
	if err != nil {
		return PhoneRegistration{}, err
	}

	record, err := f.store.SaveCall(ctx, calllog.Call{
		CallID:   call.CallID,
		Brand:    brand.ID,
		AgentID:  brand.AgentID,
		Kind:     calllog.KindPhone,
		ToNumber: toNumber,
		Params:   platform.DynamicVariables(params).Clone(),
	})
	if err != nil {
		return PhoneRegistration{}, fmt.Errorf("record call %s: %w", call.CallID, err)
	}
	return PhoneRegistration{Record: record, Call: call}, nil
}

// RunSession starts client with handle and blocks until the session ends.
// Cancelling ctx stops the session.
func (f *Flow) RunSession(ctx context.Context, client *session.Client, handle platform.SessionHandle) (session.Snapshot, error) {
	if f.metrics != nil {
		cancel := client.Subscribe(f.metrics.SessionListener())
		defer cancel()
	}

	if err := client.Start(ctx, handle); err != nil {
		return client.Snapshot(), err
	}

	err := client.Wait(ctx)
	if ctx.Err() != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopGrace)
		defer cancel()
		if stopErr := client.Stop(stopCtx); stopErr != nil {
			return client.Snapshot(), stopErr
		}
		return client.Snapshot(), nil
	}
	return client.Snapshot(), err
}

// Verify polls the call's analysis, reconciles it against the parameters
// declared at registration and stores the outcome. Analysis failures leave
// the affected fields unknown rather than failing the verification.
func (f *Flow) Verify(ctx context.Context, callID string) (calllog.Verification, error) {
	record, err := f.store.GetCall(ctx, callID)
	if err != nil {
		return calllog.Verification{}, err
	}
	brand, err := f.Brand(record.Brand)
	if err != nil {
		return calllog.Verification{}, err
	}

	opts := append([]analysis.PollerOption{analysis.WithPollerLogger(f.log)}, f.pollOpts...)
	if f.metrics != nil {
		opts = append(opts, analysis.WithObserver(f.metrics.ObservePoll))
	}
	result, pollErr := analysis.NewPoller(f.clients[brand.ID], opts...).Poll(ctx, callID)
	if pollErr != nil {
		if ctx.Err() != nil {
			return calllog.Verification{}, pollErr
		}
		f.log.WithError(pollErr).WithField("call_id", callID).Warn("analysis unavailable, fields stay unknown")
	}

	validation := brand.Reconciler().Reconcile(declaredFields(brand, record.Params), result.ExtractedFields)
	v := calllog.Verification{
		Fields:           validation,
		Summary:          validation.Summary(),
		CallSummary:      result.Summary,
		Sentiment:        result.Sentiment,
		AnalysisComplete: result.Completed,
		VerifiedAt:       f.now(),
	}
	if err := f.store.SaveVerification(ctx, callID, v); err != nil {
		return calllog.Verification{}, fmt.Errorf("store verification %s: %w", callID, err)
	}
	if f.metrics != nil {
		f.metrics.ObserveValidation(brand.ID, validation)
	}
	f.log.WithFields(logrus.Fields{
		"call_id": callID,
		"brand":   brand.ID,
		"valid":   v.Summary.Valid,
		"invalid": v.Summary.Invalid,
		"unknown": v.Summary.Unknown,
	}).Info("call verified")
	return v, nil
}

func (f *Flow) Call(ctx context.Context, callID string) (calllog.Call, error) {
	return f.store.GetCall(ctx, callID)
}

// History lists the brand's recent calls with their analyses fetched
// concurrently. Individual fetch failures are reported per entry.
func (f *Flow) History(ctx context.Context, brandID string, limit int) ([]HistoryEntry, error) {
	brand, err := f.Brand(brandID)
	if err != nil {
		return nil, err
	}
	calls, err := f.store.ListCalls(ctx, brand.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.CallID
	}
	gathered := analysis.Gather(ctx, f.clients[brand.ID], ids, f.gatherLimit)

	out := make([]HistoryEntry, len(calls))
	for i, c := range calls {
		out[i] = HistoryEntry{Call: c, Analysis: gathered[i].Result}
		if gathered[i].Err != nil {
			out[i].Error = gathered[i].Err.Error()
		}
	}
	return out, nil
}

func (f *Flow) observeRegistration(brand string, kind calllog.Kind, started time.Time, err error) {
	if f.metrics != nil {
		f.metrics.ObserveRegistration(brand, string(kind), time.Since(started), err)
	}
}

func checkParams(brand config.Brand, params map[string]string) error {
	var missing []string
	for _, field := range brand.Fields {
		if field.Required && strings.TrimSpace(params[field.Name]) == "" {
			missing = append(missing, field.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidParameters, strings.Join(missing, ", "))
	}
	return nil
}

// declaredFields restricts params to the brand's schema when it has one.
func declaredFields(brand config.Brand, params map[string]string) map[string]string {
	if len(brand.Fields) == 0 {
		return params
	}
	out := make(map[string]string, len(brand.Fields))
	for _, field := range brand.Fields {
		if v, ok := params[field.Name]; ok {
			out[field.Name] = v
		}
	}
	return out
}
