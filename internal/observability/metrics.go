package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for the ops API and background loops.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	timerCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		timerCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for ops API requests.
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

// RecordTimerFired increments the per-action counter of executed ticket timers.
func (m *Metrics) RecordTimerFired(action string, failed bool) {
	if m == nil {
		return
	}
	key := action
	if failed {
		key += "|failed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timerCount[key]++
}

// TimerFired returns the counter for a timer action.
func (m *Metrics) TimerFired(action string, failed bool) int64 {
	if m == nil {
		return 0
	}
	key := action
	if failed {
		key += "|failed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timerCount[key]
}
