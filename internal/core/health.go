package core

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// healthCheckTimeout bounds how long each probe may take before it is
// reported as failing.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is implemented by components that can report their own
// liveness (database pools, template stores, email providers).
type HealthProbe interface {
	// Name identifies the component in the health report.
	Name() string
	// Check returns nil when the component is operational.
	Check(ctx context.Context) error
}

// HealthProbeFunc adapts a function to the HealthProbe interface.
type HealthProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) error
}

func (p HealthProbeFunc) Name() string                    { return p.ProbeName }
func (p HealthProbeFunc) Check(ctx context.Context) error { return p.Fn(ctx) }

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Service    string                     `json:"service"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth reports service health. All registered probes run
// concurrently with a shared timeout; any failing probe degrades the
// overall status and the endpoint returns 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:  "ok",
		Service: s.Config.Service,
	}

	if len(s.HealthProbes) > 0 {
		resp.Components = make(map[string]componentStatus, len(s.HealthProbes))

		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, probe := range s.HealthProbes {
			wg.Add(1)
			go func(p HealthProbe) {
				defer wg.Done()
				status := componentStatus{Status: "ok"}
				if err := p.Check(ctx); err != nil {
					status = componentStatus{Status: "unavailable", Error: err.Error()}
				}
				mu.Lock()
				resp.Components[p.Name()] = status
				mu.Unlock()
			}(probe)
		}
		wg.Wait()

		for _, c := range resp.Components {
			if c.Status != "ok" {
				resp.Status = "degraded"
				break
			}
		}
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}
