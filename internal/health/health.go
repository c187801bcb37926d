// Package health provides readiness checks for the services dmflow depends on.
package health

import (
	"context"
	"log/slog"
	"sync"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck implements Checker.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// Check is a named dependency. A failing optional check is reported but does
// not make the service unready.
type Check struct {
	Name     string
	Checker  Checker
	Optional bool
}

// Status values reported per check.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusDegraded = "degraded"
)

// Run executes every check concurrently. It returns the status of each check
// by name and whether all required checks passed.
func Run(ctx context.Context, checks []Check) (map[string]string, bool) {
	results := make(map[string]string, len(checks))
	ready := true

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()
			err := c.Checker.HealthCheck(ctx)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results[c.Name] = StatusOK
			case c.Optional:
				results[c.Name] = StatusDegraded
				slog.WarnContext(ctx, "optional dependency unhealthy", "check", c.Name, "error", err)
			default:
				results[c.Name] = StatusError
				ready = false
				slog.WarnContext(ctx, "dependency unhealthy", "check", c.Name, "error", err)
			}
		}(c)
	}
	wg.Wait()

	return results, ready
}
