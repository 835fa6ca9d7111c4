package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"wingman/internal/domain"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service    ServiceStatus    `json:"service"`
	Users      UserStatus       `json:"users"`
	Sessions   SessionStatus    `json:"sessions"`
	Tools      ToolStatus       `json:"tools"`
	Supervisor SupervisorStatus `json:"supervisor"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// UserStatus counts users with an orchestrator and live transports.
type UserStatus struct {
	Active    int   `json:"active"`
	Connected int   `json:"connected"`
	Changes   int64 `json:"connection_changes_total"`
}

// SessionStatus holds session counters.
type SessionStatus struct {
	Created  int64 `json:"created_total"`
	Selected int64 `json:"selected_total"`
}

// ToolStatus holds tool usage stats.
type ToolStatus struct {
	CallsTotal  int64 `json:"calls_total"`
	ErrorsTotal int64 `json:"errors_total"`
}

// SupervisorStatus holds escalation stats.
type SupervisorStatus struct {
	CallsTotal  int64 `json:"calls_total"`
	ErrorsTotal int64 `json:"errors_total"`
}

// Metrics tracks counters for the status API and Prometheus metrics.
type Metrics struct {
	ConnectionChanges atomic.Int64
	SessionsCreated   atomic.Int64
	SessionsSelected  atomic.Int64
	ToolCallsTotal    atomic.Int64
	ToolErrorsTotal   atomic.Int64
	SupervisorCalls   atomic.Int64
	SupervisorErrors  atomic.Int64
	RecordingsSaved   atomic.Int64

	unsubs []func()
}

// NewMetrics subscribes the counters to bus. A nil bus yields static zeroes.
func NewMetrics(bus domain.EventBus) *Metrics {
	m := &Metrics{}
	if bus == nil {
		return m
	}
	count := func(t domain.EventType, c *atomic.Int64) {
		m.unsubs = append(m.unsubs, bus.Subscribe(t, func(context.Context, domain.Event) { c.Add(1) }))
	}
	countWithErrors := func(t domain.EventType, calls, errs *atomic.Int64) {
		m.unsubs = append(m.unsubs, bus.Subscribe(t, func(_ context.Context, e domain.Event) {
			calls.Add(1)
			if eventFailed(e) {
				errs.Add(1)
			}
		}))
	}

	count(domain.EventConnectionChanged, &m.ConnectionChanges)
	count(domain.EventSessionCreated, &m.SessionsCreated)
	count(domain.EventSessionSelected, &m.SessionsSelected)
	count(domain.EventRecordingSaved, &m.RecordingsSaved)
	countWithErrors(domain.EventToolCallCompleted, &m.ToolCallsTotal, &m.ToolErrorsTotal)
	countWithErrors(domain.EventSupervisorCalled, &m.SupervisorCalls, &m.SupervisorErrors)
	return m
}

// Close unsubscribes the counters.
func (m *Metrics) Close() {
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
}

// eventFailed reports whether the event payload carries an "error" field.
func eventFailed(e domain.Event) bool {
	var p struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return false
	}
	return p.Error != ""
}

// statusHandler returns an HTTP handler for GET /api/v1/status.
func statusHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "wingman",
				Version:       deps.Version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Users: UserStatus{
				Changes: metrics.ConnectionChanges.Load(),
			},
			Sessions: SessionStatus{
				Created:  metrics.SessionsCreated.Load(),
				Selected: metrics.SessionsSelected.Load(),
			},
			Tools: ToolStatus{
				CallsTotal:  metrics.ToolCallsTotal.Load(),
				ErrorsTotal: metrics.ToolErrorsTotal.Load(),
			},
			Supervisor: SupervisorStatus{
				CallsTotal:  metrics.SupervisorCalls.Load(),
				ErrorsTotal: metrics.SupervisorErrors.Load(),
			},
		}
		if deps.Hub != nil {
			resp.Users.Active = len(deps.Hub.Owners())
			resp.Users.Connected = deps.Hub.Connected()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
