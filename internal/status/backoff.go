package status

import (
	"math"
	"time"
)

const (
	// Up to blockTimeRetries the order is rechecked roughly every block.
	blockTimeRetries = 300
	// Beyond growthRetries the wait is pinned at maxRetryWait (~5h).
	growthRetries = 450
	growthFactor  = 1.05

	maxRetryWait = 18000 * time.Second
)

// RetryWait returns how long to wait before rechecking an order that stayed
// open: the chain's block time for the first 300 retries, then exponential
// growth, then a flat ~5h for long-lived orders.
func RetryWait(blockTime time.Duration, retryCount int) time.Duration {
	switch {
	case retryCount <= blockTimeRetries:
		return blockTime
	case retryCount <= growthRetries:
		secs := math.Ceil(blockTime.Seconds() * math.Pow(growthFactor, float64(retryCount-blockTimeRetries)))
		wait := time.Duration(secs) * time.Second
		if wait > maxRetryWait {
			return maxRetryWait
		}
		return wait
	default:
		return maxRetryWait
	}
}
