package metrics

import (
	"sync"
)

// Metrics tracks queue events observed by this process
type Metrics struct {
	mu sync.RWMutex

	enqueuedJobs  int64
	completedJobs int64
	retriedJobs   int64
	deadJobs      int64
	requeuedJobs  int64
	releasedJobs  int64
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementEnqueuedJobs increments the enqueued jobs counter
func (m *Metrics) IncrementEnqueuedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueuedJobs++
}

// IncrementCompletedJobs increments the completed jobs counter
func (m *Metrics) IncrementCompletedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedJobs++
}

// IncrementRetriedJobs increments the counter of failures scheduled for retry
func (m *Metrics) IncrementRetriedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retriedJobs++
}

// IncrementDeadJobs increments the counter of jobs moved to the DLQ
func (m *Metrics) IncrementDeadJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deadJobs++
}

// IncrementRequeuedJobs increments the counter of jobs retried from the DLQ
func (m *Metrics) IncrementRequeuedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeuedJobs++
}

// IncrementReleasedJobs increments the counter of claims given back unexecuted
func (m *Metrics) IncrementReleasedJobs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releasedJobs++
}

// GetSnapshot returns a snapshot of all metrics
func (m *Metrics) GetSnapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int64{
		"enqueued_jobs":  m.enqueuedJobs,
		"completed_jobs": m.completedJobs,
		"retried_jobs":   m.retriedJobs,
		"dead_jobs":      m.deadJobs,
		"requeued_jobs":  m.requeuedJobs,
		"released_jobs":  m.releasedJobs,
	}
}
