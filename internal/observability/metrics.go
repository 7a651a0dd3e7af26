package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/spec-kit/student-service/internal/events"
)

// Metrics keeps in-memory request, error and auth event counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	totalDuration map[string]time.Duration
	authEvents    map[events.EventType]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		totalDuration: make(map[string]time.Duration),
		authEvents:    make(map[events.EventType]int64),
	}
}

// RecordRequest counts a finished request and its latency.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := requestKey(route, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.totalDuration[key] += duration
}

// RecordError counts a rendered error by its code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[errorKey(path, method, code)]++
}

// SubscribeAuthEvents counts every event published on dispatcher.
func (m *Metrics) SubscribeAuthEvents(dispatcher events.Dispatcher) {
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.authEvents[e.Type]++
		return nil
	})
}

// Requests returns the request count for route, method and status.
func (m *Metrics) Requests(route, method string, status int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requestCount[requestKey(route, method, status)]
}

// AverageLatency returns the mean latency for route, method and status.
func (m *Metrics) AverageLatency(route, method string, status int) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := requestKey(route, method, status)
	if m.requestCount[key] == 0 {
		return 0
	}
	return m.totalDuration[key] / time.Duration(m.requestCount[key])
}

// Errors returns the error count for path, method and error code.
func (m *Metrics) Errors(path, method, code string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errorCount[errorKey(path, method, code)]
}

// AuthEvents returns how many events of type t were published.
func (m *Metrics) AuthEvents(t events.EventType) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authEvents[t]
}

func requestKey(route, method string, status int) string {
	return route + "|" + method + "|" + strconv.Itoa(status)
}

func errorKey(path, method, code string) string {
	return path + "|" + method + "|" + code
}
