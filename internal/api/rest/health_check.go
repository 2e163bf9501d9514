package rest

import (
	"context"
	"net/http"
	"sort"
	"time"
)

// HealthChecker checks the health of a dependency
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to HealthChecker.
type CheckFunc struct {
	Dependency string
	Fn         func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.Dependency }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

type HealthStatus string

const (
	HealthStatusPass HealthStatus = "pass"
	HealthStatusFail HealthStatus = "fail"
)

type HealthResponse struct {
	Status HealthStatus            `json:"status"`
	Checks map[string]HealthResult `json:"checks,omitempty"`
}

type HealthResult struct {
	Status       HealthStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	ResponseTime string       `json:"response_time"`
}

// healthHandler runs every checker under timeout and reports 503 when any fails.
func healthHandler(base *BaseHandler, timeout time.Duration, checkers ...HealthChecker) http.HandlerFunc {
	sort.Slice(checkers, func(i, j int) bool { return checkers[i].Name() < checkers[j].Name() })

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp := HealthResponse{Status: HealthStatusPass, Checks: make(map[string]HealthResult, len(checkers))}
		for _, c := range checkers {
			start := time.Now()
			res := HealthResult{Status: HealthStatusPass}
			if err := c.Check(ctx); err != nil {
				res.Status = HealthStatusFail
				res.Error = err.Error()
				resp.Status = HealthStatusFail
			}
			res.ResponseTime = time.Since(start).String()
			resp.Checks[c.Name()] = res
		}

		status := http.StatusOK
		if resp.Status == HealthStatusFail {
			status = http.StatusServiceUnavailable
		}
		base.writeJSON(w, status, resp)
	}
}
