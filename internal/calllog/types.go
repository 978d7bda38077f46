// Package calllog persists registered calls and their verification results.
package calllog

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/callkit/internal/reconcile"
)

var ErrNotFound = errors.New("calllog: call not found")

type Kind string

const (
	KindWeb   Kind = "web"
	KindPhone Kind = "phone"
)

// Call is one registration against the platform along with the parameters
// the caller declared for it.
type Call struct {
	ID           string            `json:"id"`
	CallID       string            `json:"call_id"`
	Brand        string            `json:"brand"`
	AgentID      string            `json:"agent_id"`
	Kind         Kind              `json:"kind"`
	ToNumber     string            `json:"to_number,omitempty"`
	Params       map[string]string `json:"params"`
	CreatedAt    time.Time         `json:"created_at"`
	Verification *Verification     `json:"verification,omitempty"`
}

// Verification is the reconciled outcome of a finished call.
type Verification struct {
	Fields           reconcile.Validation `json:"fields"`
	Summary          reconcile.Counts     `json:"summary"`
	CallSummary      string               `json:"call_summary"`
	Sentiment        string               `json:"sentiment"`
	AnalysisComplete bool                 `json:"analysis_complete"`
	VerifiedAt       time.Time            `json:"verified_at"`
}

// Store persists call records. ListCalls returns newest first.
type Store interface {
	SaveCall(ctx context.Context, call Call) (Call, error)
	GetCall(ctx context.Context, callID string) (Call, error)
	ListCalls(ctx context.Context, brand string, limit int) ([]Call, error)
	SaveVerification(ctx context.Context, callID string, v Verification) error
	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 20
