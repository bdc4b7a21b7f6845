// Package healthcheck implements the /health detail surface of C17,
// adapted from the donor's internal/handler/health.go DBPinger pattern:
// the same ping-with-timeout/degrade-to-503 shape, generalized from one
// database dependency to the set of dependencies passed in (cmd/server
// wires Qdrant, Redis, the embedding client and the reranker client).
package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger is satisfied by any dependency whose liveness can be checked with
// a context-bound round trip (Qdrant, Redis, the embedding/reranker HTTP
// clients).
type Pinger interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name   string
	pinger Pinger
}

// Handler returns a handler reporting overall and per-dependency health.
// GET /health -> {"status": "ok"|"degraded", "version": "...", "dependencies": {...}}
func Handler(version string, deps map[string]Pinger) http.HandlerFunc {
	if version == "" {
		version = "0.0.0"
	}
	ordered := make([]dependency, 0, len(deps))
	for name, pinger := range deps {
		ordered = append(ordered, dependency{name: name, pinger: pinger})
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := "ok"
		httpStatus := http.StatusOK
		depStatus := make(map[string]string, len(ordered))

		for _, d := range ordered {
			if err := d.pinger.Ping(ctx); err != nil {
				depStatus[d.name] = "disconnected"
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
			} else {
				depStatus[d.name] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"status":       status,
			"version":      version,
			"dependencies": depStatus,
		})
	}
}
