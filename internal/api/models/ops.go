package models

// Health is the body of the liveness and readiness probes.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the operator view of the catalog, the graph and the jobs.
type SystemStatus struct {
	Status     HealthStatus      `json:"status"`
	Time       Timestamp         `json:"time"`
	Subsystems []SubsystemStatus `json:"subsystems"`
	Upstreams  []UpstreamStatus  `json:"upstreams"`
	Jobs       []JobStatus       `json:"jobs"`
}

// SubsystemStatus is the state of the stop catalog or the graph engine.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// UpstreamStatus is the circuit breaker view of the graph database or feed host.
type UpstreamStatus struct {
	Name          string       `json:"name"`
	Status        HealthStatus `json:"status"`
	Circuit       string       `json:"circuit"`
	Requests      uint32       `json:"requests"`
	Failures      uint32       `json:"consecutiveFailures"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// JobStatus summarizes the runs of a background job.
type JobStatus struct {
	Name           string     `json:"name"`
	Runs           int64      `json:"runs"`
	Failures       int64      `json:"failures"`
	LastRunAt      *Timestamp `json:"lastRunAt,omitempty"`
	LastDurationMs int64      `json:"lastDurationMs"`
	LastOK         bool       `json:"lastOk"`
}
