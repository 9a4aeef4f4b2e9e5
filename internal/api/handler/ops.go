package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/tramline/tramline/internal/api/models"
	"github.com/tramline/tramline/internal/api/response"
	"github.com/tramline/tramline/internal/upstream"
	"github.com/tramline/tramline/internal/worker"
)

// JobReporter exposes the run statistics of a background job.
type JobReporter interface {
	Metrics() worker.JobStats
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string
	Engine    string
	Catalog   CatalogStats
	Cache     EdgeCache
	Registry  *upstream.Registry
	Jobs      map[string]JobReporter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready once the
// catalog is loaded and no upstream circuit is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	details := map[string]interface{}{}
	status := models.HealthStatusOK

	if h.cfg.Catalog != nil {
		stats := h.cfg.Catalog.Stats()
		details["catalog"] = stats.Loaded
		if !stats.Loaded {
			status = models.HealthStatusFail
		}
	}
	if h.cfg.Registry != nil {
		if open := h.cfg.Registry.Unavailable(); len(open) > 0 {
			details["openCircuits"] = open
			status = models.HealthStatusFail
		}
	}

	code := http.StatusOK
	if status != models.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, models.Health{
		Status:  status,
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// SystemStatus handles GET /v1/ops/status - upstream, subsystem and job status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.subsystems(),
		Upstreams:  h.upstreams(),
		Jobs:       h.jobs(),
	}

	for _, s := range status.Subsystems {
		status.Status = worst(status.Status, s.Status)
	}
	for _, p := range status.Upstreams {
		status.Status = worst(status.Status, p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) subsystems() []models.SubsystemStatus {
	var out []models.SubsystemStatus

	if h.cfg.Catalog != nil {
		stats := toCatalogStatus(h.cfg.Catalog.Stats())
		s := models.SubsystemStatus{Name: "stop-catalog", Status: models.HealthStatusOK}
		detail := stats.Source
		if !stats.Loaded {
			s.Status = models.HealthStatusFail
			detail += ": not loaded"
		}
		s.Detail = &detail
		out = append(out, s)
	}

	if h.cfg.Cache != nil {
		detail := h.cfg.Engine
		out = append(out, models.SubsystemStatus{Name: "graph", Status: models.HealthStatusOK, Detail: &detail})
	}

	return out
}

func (h *OpsHandler) upstreams() []models.UpstreamStatus {
	if h.cfg.Registry == nil {
		return []models.UpstreamStatus{}
	}

	all := h.cfg.Registry.All()
	out := make([]models.UpstreamStatus, 0, len(all))
	for _, ph := range all {
		ps := models.UpstreamStatus{
			Name:     ph.Name,
			Status:   upstreamStatus(ph),
			Circuit:  ph.State.String(),
			Requests: ph.Counts.Requests,
			Failures: ph.Counts.ConsecutiveFailures,
		}
		if ph.LastSuccessAt != nil {
			ps.LastSuccessAt = optionalTimestamp(*ph.LastSuccessAt)
		}
		if ph.LastFailureAt != nil {
			ps.LastFailureAt = optionalTimestamp(*ph.LastFailureAt)
		}
		if ph.LastError != "" {
			msg := ph.LastError
			ps.Message = &msg
		}
		out = append(out, ps)
	}
	return out
}

func (h *OpsHandler) jobs() []models.JobStatus {
	names := make([]string, 0, len(h.cfg.Jobs))
	for name := range h.cfg.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]models.JobStatus, 0, len(names))
	for _, name := range names {
		stats := h.cfg.Jobs[name].Metrics()
		out = append(out, models.JobStatus{
			Name:           name,
			Runs:           stats.Runs,
			Failures:       stats.Failures,
			LastRunAt:      optionalTimestamp(stats.LastRunAt),
			LastDurationMs: stats.LastDuration.Milliseconds(),
			LastOK:         stats.LastOK,
		})
	}
	return out
}

func upstreamStatus(ph upstream.Health) models.HealthStatus {
	switch {
	case ph.Open():
		return models.HealthStatusFail
	case ph.Probing():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}

// worst returns the more severe of two statuses.
func worst(a, b models.HealthStatus) models.HealthStatus {
	rank := map[models.HealthStatus]int{
		models.HealthStatusOK:       0,
		models.HealthStatusDegraded: 1,
		models.HealthStatusFail:     2,
	}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
