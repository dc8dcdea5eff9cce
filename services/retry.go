package services

import (
	"time"

	"github.com/ceramicnetwork/go-fanout/models"
)

// backoffDelay returns the wait before the next try after `attempt` (1-based) failed tries.
func backoffDelay(policy models.RetryPolicy, attempt int) time.Duration {
	if (policy.Backoff <= 0) || (attempt < 1) {
		return 0
	}
	maxBackoff := policy.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = models.DefaultMaxBackoff
	}
	var delay time.Duration
	switch policy.Strategy {
	case models.BackoffStrategy_Exponential:
		// Stop doubling once the cap is reached so the shift can't overflow
		delay = policy.Backoff
		for i := 1; (i < attempt) && (delay < maxBackoff); i++ {
			delay *= 2
		}
	default:
		delay = policy.Backoff * time.Duration(attempt)
		if delay/time.Duration(attempt) != policy.Backoff {
			delay = maxBackoff
		}
	}
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func maxAttempts(policy models.RetryPolicy) int {
	if policy.MaxAttempts < 1 {
		return models.DefaultMaxAttempts
	}
	return policy.MaxAttempts
}
