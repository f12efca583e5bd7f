package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and SLA sweeps.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	sweepCount    int64
	violationsSum int64
	escalations   int64
	notifications int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordSweep records the outcome of one violation detection pass.
func (m *Metrics) RecordSweep(violations, escalations int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount++
	m.violationsSum += int64(violations)
	m.escalations += int64(escalations)
}

// RecordNotification counts dispatched notification records.
func (m *Metrics) RecordNotification(n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications += int64(n)
}

// SweepStats returns cumulative sweep counters.
func (m *Metrics) SweepStats() (sweeps, violations, escalations int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepCount, m.violationsSum, m.escalations
}
