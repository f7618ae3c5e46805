package nodeexec

import "time"

// backoffDelay computes the wait before attempt (0-based: 0 is the delay
// before the second attempt) per §4.5's action retry policy: fixed,
// linear, or exponential. Grounded on
// dshills-langgraph-go/graph/policy.go's computeBackoff, with one
// deliberate divergence: that implementation always adds random jitter;
// this spec calls for exact, reproducible delays, so jitter is dropped
// entirely rather than made optional.
func backoffDelay(attempt int, base time.Duration, backoff string) time.Duration {
	switch backoff {
	case "linear":
		return base * time.Duration(attempt+1)
	case "exponential":
		return base * time.Duration(1<<uint(attempt))
	case "fixed", "":
		return base
	default:
		return base
	}
}

func retryableKind(kind string, retryOn []string) bool {
	if len(retryOn) == 0 {
		return true
	}
	for _, k := range retryOn {
		if k == kind {
			return true
		}
	}
	return false
}
