// Package analysis fetches the post-call analysis payload and turns it into
// per-field extraction attempts for reconciliation.
package analysis

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ent0n29/callkit/internal/platform"
)

const (
	PlaceholderSummary   = "Analysis not available yet"
	PlaceholderSentiment = "Unknown"
)

// Result is the post-call analysis for one call.
type Result struct {
	CallID          string              `json:"call_id"`
	Completed       bool                `json:"completed"`
	Summary         string              `json:"summary"`
	Sentiment       string              `json:"sentiment"`
	DurationMS      int64               `json:"duration_ms"`
	Transcript      string              `json:"transcript,omitempty"`
	RecordingURL    string              `json:"recording_url,omitempty"`
	ExtractedFields map[string][]string `json:"extracted_fields"`
}

// Placeholder is what callers get when analysis never became available.
func Placeholder(callID string) Result {
	return Result{
		CallID:          callID,
		Summary:         PlaceholderSummary,
		Sentiment:       PlaceholderSentiment,
		ExtractedFields: map[string][]string{},
	}
}

// IsComplete reports whether detail carries a finished analysis. Only the
// "completed" status counts; an "ended" call may still be mid-analysis.
func IsComplete(detail platform.CallDetail) bool {
	return strings.EqualFold(strings.TrimSpace(detail.CallStatus), platform.CallStatusCompleted)
}

// FromDetail converts a call-detail payload into a Result.
func FromDetail(detail platform.CallDetail) Result {
	r := Placeholder(detail.CallID)
	r.Completed = IsComplete(detail)
	r.DurationMS = detail.DurationMS
	r.Transcript = detail.Transcript
	r.RecordingURL = detail.RecordingURL
	if detail.Analysis != nil {
		if s := strings.TrimSpace(detail.Analysis.CallSummary); s != "" {
			r.Summary = s
		}
		if s := strings.TrimSpace(detail.Analysis.UserSentiment); s != "" {
			r.Sentiment = s
		}
		r.ExtractedFields = ExtractFields(detail.Analysis.CustomAnalysisData)
	}
	return r
}

var attemptKey = regexp.MustCompile(`^(.+?)_attempt_?(\d+)$`)

// ExtractFields groups custom analysis data into ordered attempt lists.
// "dob", "dob_attempt1" and "dob_attempt_2" all land under "dob"; the bare
// key sorts first, numbered keys follow in numeric order.
func ExtractFields(data map[string]any) map[string][]string {
	type attempt struct {
		order int
		value string
	}
	grouped := make(map[string][]attempt)
	for key, raw := range data {
		value := stringify(raw)
		if strings.TrimSpace(value) == "" {
			continue
		}
		field, order := strings.ToLower(strings.TrimSpace(key)), 0
		if m := attemptKey.FindStringSubmatch(field); m != nil {
			if n, err := strconv.Atoi(m[2]); err == nil {
				field, order = m[1], n
			}
		}
		grouped[field] = append(grouped[field], attempt{order: order, value: value})
	}

	out := make(map[string][]string, len(grouped))
	for field, attempts := range grouped {
		sort.Slice(attempts, func(i, j int) bool {
			if attempts[i].order != attempts[j].order {
				return attempts[i].order < attempts[j].order
			}
			return attempts[i].value < attempts[j].value
		})
		values := make([]string, 0, len(attempts))
		for _, a := range attempts {
			values = append(values, a.value)
		}
		out[field] = values
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
