package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/platform"
	"github.com/ent0n29/callkit/internal/reliability"
)

const (
	DefaultAttempts = 5
	DefaultDelay    = 3 * time.Second
)

// Fetcher retrieves call details by call id.
type Fetcher interface {
	GetCall(ctx context.Context, callID string) (platform.CallDetail, error)
}

// AnalysisFetchError reports that analysis could not be fetched at all, as
// opposed to fetched-but-not-ready.
type AnalysisFetchError struct {
	CallID   string
	Attempts int
	Err      error
}

func (e *AnalysisFetchError) Error() string {
	return fmt.Sprintf("fetch analysis for %s after %d attempt(s): %v", e.CallID, e.Attempts, e.Err)
}

func (e *AnalysisFetchError) Unwrap() error { return e.Err }

// Observer is notified once per Poll with the outcome:
// "completed", "exhausted", "fetch_error" or "cancelled".
type Observer func(outcome string)

// Poller fetches analysis a bounded number of times with a fixed delay.
type Poller struct {
	fetcher  Fetcher
	attempts int
	delay    time.Duration
	observe  Observer
	log      *logrus.Entry
	sleep    func(ctx context.Context, d time.Duration) error
}

type PollerOption func(*Poller)

func WithAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.delay = d
		}
	}
}

func WithObserver(o Observer) PollerOption {
	return func(p *Poller) { p.observe = o }
}

func WithPollerLogger(l *logrus.Entry) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

func NewPoller(fetcher Fetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:  fetcher,
		attempts: DefaultAttempts,
		delay:    DefaultDelay,
		log:      logging.NewLogger("analysis"),
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll returns the completed analysis, or a placeholder once attempts run
// out. Running out while the platform keeps answering "not ready" is not an
// error; a non-retryable fetch failure, or a failure on the last attempt, is
// returned as *AnalysisFetchError together with the placeholder.
func (p *Poller) Poll(ctx context.Context, callID string) (Result, error) {
	log := p.log.WithField("call_id", callID)

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.delay); err != nil {
				p.notify("cancelled")
				return Placeholder(callID), err
			}
		}

		detail, err := p.fetcher.GetCall(ctx, callID)
		if err != nil {
			if ctx.Err() != nil {
				p.notify("cancelled")
				return Placeholder(callID), ctx.Err()
			}
			lastErr = err
			if !retryable(err) {
				log.WithError(err).Warn("analysis fetch failed permanently")
				p.notify("fetch_error")
				return Placeholder(callID), &AnalysisFetchError{CallID: callID, Attempts: attempt, Err: err}
			}
			log.WithError(err).WithField("attempt", attempt).Debug("analysis fetch failed, will retry")
			continue
		}
		lastErr = nil

		if IsComplete(detail) {
			log.WithField("attempt", attempt).Info("analysis completed")
			p.notify("completed")
			return FromDetail(detail), nil
		}
		log.WithFields(logrus.Fields{"attempt": attempt, "call_status": detail.CallStatus}).Debug("analysis not ready")
	}

	if lastErr != nil {
		log.WithError(lastErr).Warn("analysis fetch failed on final attempt")
		p.notify("fetch_error")
		return Placeholder(callID), &AnalysisFetchError{CallID: callID, Attempts: p.attempts, Err: lastErr}
	}
	log.WithField("attempts", p.attempts).Info("analysis still pending, giving up")
	p.notify("exhausted")
	return Placeholder(callID), nil
}

func (p *Poller) notify(outcome string) {
	if p.observe != nil {
		p.observe(outcome)
	}
}

func retryable(err error) bool {
	var fetchErr *platform.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Status != 0 {
		return reliability.IsRetryableHTTPStatus(fetchErr.Status)
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
