package middleware

import (
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strings"
)

// ProfilingPrefix is where the pprof endpoints are served.
const ProfilingPrefix = "/debug/pprof"

// ProfilingConfig configures the profiling middleware.
type ProfilingConfig struct {
	// Enabled exposes the pprof endpoints. Development only: they leak
	// memory contents and source structure.
	Enabled bool

	// Environment is checked again so a stray PROFILING_ENABLED cannot
	// turn profiling on in production.
	Environment string
}

func (c ProfilingConfig) active() bool {
	if !c.Enabled {
		return false
	}
	switch c.Environment {
	case "production", "prod":
		return false
	}
	return true
}

// Profiling returns middleware that answers /debug/pprof/* itself and passes
// everything else on. When profiling is disabled the middleware is a no-op.
func Profiling(config ProfilingConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.active() {
			if config.Enabled {
				slog.Error("profiling cannot be enabled in production", "environment", config.Environment)
			}
			return next
		}

		slog.Warn("profiling endpoints enabled", "environment", config.Environment, "endpoints", ProfilingPrefix+"/*")

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, ProfilingPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			switch strings.TrimPrefix(r.URL.Path, ProfilingPrefix) {
			case "/cmdline":
				pprof.Cmdline(w, r)
			case "/profile":
				pprof.Profile(w, r)
			case "/symbol":
				pprof.Symbol(w, r)
			case "/trace":
				pprof.Trace(w, r)
			default:
				// Index also serves the named profiles (heap, goroutine, ...).
				pprof.Index(w, r)
			}
		})
	}
}
