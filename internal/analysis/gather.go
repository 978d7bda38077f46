package analysis

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/callkit/internal/platform"
)

// GatherResult is the settled outcome for one call id.
type GatherResult struct {
	CallID string
	Result Result
	Err    error
}

// Gather fetches analyses for many calls at once with at most limit requests
// in flight. One failure never cancels the others; results keep the order of
// callIDs.
func Gather(ctx context.Context, fetcher Fetcher, callIDs []string, limit int) []GatherResult {
	out := make([]GatherResult, len(callIDs))
	if len(callIDs) == 0 {
		return out
	}
	if limit <= 0 {
		limit = len(callIDs)
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range callIDs {
		i, id := i, id
		g.Go(func() error {
			detail, err := fetcher.GetCall(ctx, id)
			if err != nil {
				out[i] = GatherResult{CallID: id, Result: Placeholder(id), Err: err}
				return nil
			}
			if detail.CallID == "" {
				detail = withCallID(detail, id)
			}
			out[i] = GatherResult{CallID: id, Result: FromDetail(detail)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func withCallID(d platform.CallDetail, id string) platform.CallDetail {
	d.CallID = id
	return d
}
