package reliability

import (
	"context"
	"errors"
	"net"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 404, 408, 425, 429, 500, 502, 503, 504:
		// 404 covers the window where a just-ended call is not yet queryable.
		return true
	default:
		return false
	}
}

// IsRetryableRealtimeCode classifies error codes reported on the realtime
// audio socket.
func IsRetryableRealtimeCode(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "queue_overflow", "network_error", "timeout":
		return true
	default:
		return false
	}
}

// IsTransientError reports whether err looks like a network hiccup rather
// than a definitive answer. Context cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
