package handlers

import (
	"net/http"

	domain "github.com/stitchfield/api/internal/domain"
	"github.com/stitchfield/api/internal/services"
)

// HealthHandlers answers liveness and readiness probes. Liveness never touches
// dependencies; readiness consults the system service when one is wired.
type HealthHandlers struct {
	system services.SystemService
}

// NewHealthHandlers constructs health handlers. A nil system service keeps
// /readyz permissive, which suits local development and router tests.
func NewHealthHandlers(system services.SystemService) *HealthHandlers {
	return &HealthHandlers{system: system}
}

type healthResponse struct {
	Status string `json:"status"`
}

type readinessCheck struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type readinessResponse struct {
	Status      string                    `json:"status"`
	Version     string                    `json:"version,omitempty"`
	CommitSHA   string                    `json:"commit_sha,omitempty"`
	Environment string                    `json:"environment,omitempty"`
	Uptime      string                    `json:"uptime,omitempty"`
	GeneratedAt string                    `json:"generated_at,omitempty"`
	Checks      map[string]readinessCheck `json:"checks,omitempty"`
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, healthResponse{Status: domain.HealthStatusOK})
}

// Readyz reports whether dependencies are reachable enough to serve traffic.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.system == nil {
		writeJSONResponse(w, http.StatusOK, healthResponse{Status: domain.HealthStatusOK})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readinessResponse{
			Status: domain.HealthStatusError,
			Checks: map[string]readinessCheck{
				"system": {Status: domain.HealthStatusError, Error: err.Error()},
			},
		})
		return
	}

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, buildReadinessPayload(report))
}

func buildReadinessPayload(report domain.SystemHealthReport) readinessResponse {
	payload := readinessResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		GeneratedAt: formatTime(report.GeneratedAt),
	}
	if report.Uptime > 0 {
		payload.Uptime = report.Uptime.String()
	}
	if len(report.Checks) > 0 {
		payload.Checks = make(map[string]readinessCheck, len(report.Checks))
		for name, check := range report.Checks {
			entry := readinessCheck{
				Status: check.Status,
				Detail: check.Detail,
				Error:  check.Error,
			}
			if check.Latency > 0 {
				entry.Latency = check.Latency.String()
			}
			payload.Checks[name] = entry
		}
	}
	return payload
}
