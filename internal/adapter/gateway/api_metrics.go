package gateway

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler returns an HTTP handler for GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full prometheus client.
func metricsHandler(deps HandlerDeps, startTime time.Time, metrics *Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		active, connected := 0, 0
		if deps.Hub != nil {
			active = len(deps.Hub.Owners())
			connected = deps.Hub.Connected()
		}

		writeMetric(w, "wingman_users_active", "gauge", "Users with an orchestrator.", int64(active))
		writeMetric(w, "wingman_realtime_connected", "gauge", "Orchestrators with a live or pending transport.", int64(connected))
		writeMetric(w, "wingman_connection_changes_total", "counter", "Connection state transitions.", metrics.ConnectionChanges.Load())

		writeMetric(w, "wingman_sessions_created_total", "counter", "Sessions created.", metrics.SessionsCreated.Load())
		writeMetric(w, "wingman_sessions_selected_total", "counter", "Session switches.", metrics.SessionsSelected.Load())

		writeMetric(w, "wingman_tool_calls_total", "counter", "Total tool invocations.", metrics.ToolCallsTotal.Load())
		writeMetric(w, "wingman_tool_errors_total", "counter", "Total tool errors.", metrics.ToolErrorsTotal.Load())

		writeMetric(w, "wingman_supervisor_calls_total", "counter", "Supervisor escalations.", metrics.SupervisorCalls.Load())
		writeMetric(w, "wingman_supervisor_errors_total", "counter", "Failed supervisor escalations.", metrics.SupervisorErrors.Load())

		writeMetric(w, "wingman_recordings_saved_total", "counter", "Exported recordings.", metrics.RecordingsSaved.Load())

		fmt.Fprintf(w, "# HELP wingman_uptime_seconds Seconds since the gateway started.\n")
		fmt.Fprintf(w, "# TYPE wingman_uptime_seconds gauge\n")
		fmt.Fprintf(w, "wingman_uptime_seconds %.0f\n", time.Since(startTime).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)

		writeMetric(w, "go_goroutines", "gauge", "Number of goroutines.", int64(runtime.NumGoroutine()))
		writeMetric(w, "go_memstats_alloc_bytes", "gauge", "Bytes of allocated heap objects.", int64(mem.Alloc))
		writeMetric(w, "go_memstats_sys_bytes", "gauge", "Total bytes of memory obtained from the OS.", int64(mem.Sys))
	}
}

func writeMetric(w io.Writer, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
	fmt.Fprintf(w, "%s %d\n", name, value)
}
