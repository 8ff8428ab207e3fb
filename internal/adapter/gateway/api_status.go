package gateway

import (
	"net/http"
	"sync/atomic"
	"time"
)

// StatusResponse is the JSON body returned by GET /api/status.
type StatusResponse struct {
	Service ServiceStatus `json:"service"`
	Tools   ToolStatus    `json:"tools"`
	Turns   TurnStatus    `json:"turns"`
}

// ServiceStatus holds service overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ToolStatus holds tool catalog and usage stats.
type ToolStatus struct {
	Registered int   `json:"registered"`
	CallsTotal int64 `json:"calls_total"`
}

// TurnStatus holds orchestration loop stats.
type TurnStatus struct {
	Total  int64 `json:"total"`
	Errors int64 `json:"errors"`
}

// Metrics tracks gateway counters for the status API.
type Metrics struct {
	TurnsTotal      atomic.Int64
	TurnErrorsTotal atomic.Int64
	ToolCallsTotal  atomic.Int64
}

// handleStatus serves GET /api/status. Unauthenticated: it exposes only
// aggregate counters, nothing user-scoped.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service: ServiceStatus{
			Name:          "libraria",
			Version:       "1.0",
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		},
		Tools: ToolStatus{
			Registered: len(s.deps.Tools.Schemas()),
			CallsTotal: s.metrics.ToolCallsTotal.Load(),
		},
		Turns: TurnStatus{
			Total:  s.metrics.TurnsTotal.Load(),
			Errors: s.metrics.TurnErrorsTotal.Load(),
		},
	}
	writeJSON(w, http.StatusOK, resp)
}
