package spotify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Breaker settings. The breaker only fails fast; nothing is ever retried.
const (
	breakerName        = "spotify-api"
	breakerMaxRequests = 2
	breakerInterval    = time.Minute
	breakerTimeout     = 30 * time.Second
	breakerMinRequests = 5
	breakerFailureRate = 0.6
)

// newBreaker builds the circuit breaker guarding Web API calls. Client errors
// (4xx other than 429) are the caller's problem and do not count as failures.
func newBreaker(logger *slog.Logger, metrics *Metrics) *gobreaker.CircuitBreaker[*apiResponse] {
	metrics.setCircuitState(stateToFloat(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker[*apiResponse](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: breakerMaxRequests,
		Interval:    breakerInterval,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= breakerFailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.setCircuitState(stateToFloat(to))
		},
		IsSuccessful: isBreakerSuccess,
	})
}

func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status < 500 && apiErr.Status != 429
	}
	return false
}

// isRejected reports whether err came from the breaker rather than Spotify.
func isRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
