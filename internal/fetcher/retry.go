package fetcher

import (
	"math/rand"
	"sort"

	"github.com/IshaanNene/itemreviewed/internal/backoff"
)

// fetchSleepFunc is the sleep used between attempts (injectable for tests).
var fetchSleepFunc = backoff.Sleep

// jitterFunc returns the random jitter in seconds added to each backoff.
var jitterFunc = rand.Float64

// RetryPolicy decides how many attempts a fetch gets and which statuses end it early.
// It is immutable once built.
type RetryPolicy struct {
	maxRetries    int
	backoffFactor float64
	nonRetryable  map[int]struct{}
}

// DefaultNonRetryableStatuses are client errors that will not change on retry.
var DefaultNonRetryableStatuses = []int{401, 403, 404, 405, 406}

// NewRetryPolicy builds a policy. maxRetries below 1 is raised to 1.
func NewRetryPolicy(maxRetries int, backoffFactor float64, nonRetryable []int) RetryPolicy {
	if maxRetries < 1 {
		maxRetries = 1
	}
	set := make(map[int]struct{}, len(nonRetryable))
	for _, s := range nonRetryable {
		set[s] = struct{}{}
	}
	return RetryPolicy{
		maxRetries:    maxRetries,
		backoffFactor: backoffFactor,
		nonRetryable:  set,
	}
}

// DefaultRetryPolicy allows five attempts with a backoff factor of two.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(5, 2, DefaultNonRetryableStatuses)
}

// MaxRetries is the total number of attempts allowed.
func (p RetryPolicy) MaxRetries() int { return p.maxRetries }

// BackoffFactor is the base of the exponential backoff.
func (p RetryPolicy) BackoffFactor() float64 { return p.backoffFactor }

// IsNonRetryable reports whether status ends the fetch after one attempt.
func (p RetryPolicy) IsNonRetryable(status int) bool {
	_, ok := p.nonRetryable[status]
	return ok
}

// NonRetryable returns the terminal statuses in ascending order.
func (p RetryPolicy) NonRetryable() []int {
	out := make([]int, 0, len(p.nonRetryable))
	for s := range p.nonRetryable {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}
