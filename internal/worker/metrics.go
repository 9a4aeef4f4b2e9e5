package worker

import (
	"sync"
	"time"
)

// JobMetrics tracks run statistics of a job.
type JobMetrics struct {
	mu sync.RWMutex

	runs          int64
	failures      int64
	lastRunAt     time.Time
	lastDuration  time.Duration
	totalDuration time.Duration
	lastOK        bool
}

// JobStats is a point in time copy of JobMetrics.
type JobStats struct {
	Runs          int64         `json:"runs"`
	Failures      int64         `json:"failures"`
	LastRunAt     time.Time     `json:"lastRunAt"`
	LastDuration  time.Duration `json:"lastDuration"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastOK        bool          `json:"lastOk"`
}

func (m *JobMetrics) record(d time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.runs++
	if !ok {
		m.failures++
	}
	m.lastRunAt = time.Now()
	m.lastDuration = d
	m.totalDuration += d
	m.lastOK = ok
}

// Stats returns a copy of the current metrics.
func (m *JobMetrics) Stats() JobStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return JobStats{
		Runs:          m.runs,
		Failures:      m.failures,
		LastRunAt:     m.lastRunAt,
		LastDuration:  m.lastDuration,
		TotalDuration: m.totalDuration,
		LastOK:        m.lastOK,
	}
}
