// Package reconcile compares identity fields a caller declared before a call
// with the values the remote agent extracted during the conversation.
package reconcile

import (
	"sort"
	"strings"
)

// Status is the per-field reconciliation outcome.
type Status string

const (
	StatusValid   Status = "valid"
	StatusInvalid Status = "invalid"
	StatusUnknown Status = "unknown"
)

// Validation maps field names to their reconciliation outcome.
type Validation map[string]Status

// Counts tallies outcomes by status.
type Counts struct {
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
	Unknown int `json:"unknown"`
}

func (v Validation) Summary() Counts {
	var c Counts
	for _, s := range v {
		switch s {
		case StatusValid:
			c.Valid++
		case StatusInvalid:
			c.Invalid++
		default:
			c.Unknown++
		}
	}
	return c
}

// AllValid reports whether every field reconciled as valid. An empty
// validation is not considered valid.
func (v Validation) AllValid() bool {
	if len(v) == 0 {
		return false
	}
	for _, s := range v {
		if s != StatusValid {
			return false
		}
	}
	return true
}

// Fields returns the field names in sorted order.
func (v Validation) Fields() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Reconciler holds the per-brand field schema and the attempt bound.
// Fields missing from Schema are typed by name (see ParseKind), falling back
// to text. MaxAttempts <= 0 means
// every extraction attempt is considered.
type Reconciler struct {
	Schema      map[string]Kind
	MaxAttempts int
}

// Reconcile is a pure function of its inputs.
func (r Reconciler) Reconcile(declared map[string]string, extracted map[string][]string) Validation {
	out := make(Validation, len(declared))
	for field, value := range declared {
		kind := r.kindOf(field)
		attempts := r.attempts(extracted[field])

		want := Normalize(kind, value)
		if want == "" || len(attempts) == 0 {
			out[field] = StatusUnknown
			continue
		}

		status := StatusInvalid
		for _, attempt := range attempts {
			if Normalize(kind, attempt) == want {
				status = StatusValid
				break
			}
		}
		out[field] = status
	}
	return out
}

// Reconcile types fields by name and applies no attempt bound.
func Reconcile(declared map[string]string, extracted map[string][]string) Validation {
	return Reconciler{}.Reconcile(declared, extracted)
}

func (r Reconciler) kindOf(field string) Kind {
	if k, ok := r.Schema[field]; ok && k != "" {
		return k
	}
	if k, err := ParseKind(field); err == nil {
		return k
	}
	return KindText
}

func (r Reconciler) attempts(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		if strings.TrimSpace(a) == "" {
			continue
		}
		out = append(out, a)
		if r.MaxAttempts > 0 && len(out) == r.MaxAttempts {
			break
		}
	}
	return out
}
