// Package provider implements the mail provider category adapters.
package provider

import (
	"errors"
	"net/http"
	"time"

	"crm_worker/pkg/logger"

	"github.com/sony/gobreaker"
	"google.golang.org/api/googleapi"
)

// newBreaker builds the circuit breaker shared by every call to one provider.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	})
}

// nonCircuitError wraps client errors that should not trip the breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// executeWithCircuitBreaker runs fn under cb. 4xx responses are returned to
// the caller without counting as breaker failures.
func executeWithCircuitBreaker(cb *gobreaker.CircuitBreaker, operation string, fn func() error) error {
	_, err := cb.Execute(func() (any, error) {
		if err := fn(); err != nil {
			if code := statusCode(err); code >= 400 && code < 500 && code != http.StatusTooManyRequests {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if err != nil {
		logger.Warn("[CircuitBreaker] %s failed: state=%s, err=%v", operation, cb.State().String(), err)
	}
	return err
}

// statusCode extracts the HTTP status from a provider error, or 0.
func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var graphErr *graphError
	if errors.As(err, &graphErr) {
		return graphErr.Status
	}
	return 0
}
