package observability

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// Lifecycle counter names.
const (
	CounterTicketsCreated      = "tickets_created"
	CounterTicketsAutoClosed   = "tickets_auto_closed"
	CounterTicketsNeedsReview  = "tickets_needs_review"
	CounterTicketsReviewed     = "tickets_reviewed"
	CounterTicketsReconciled   = "tickets_reconciled"
	CounterReconcileCycles     = "reconcile_cycles"
	CounterReconcileFailures   = "reconcile_failures"
	CounterReconcileSkipped    = "reconcile_skipped"
	CounterExtractionFallbacks = "extraction_fallbacks"
	CounterGateRejections      = "gate_rejections"
	CounterChatTurns           = "chat_turns"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu           sync.Mutex
	startedAt    time.Time
	requestCount map[string]int64
	errorCount   map[string]int64
	latencyTotal map[string]time.Duration
	counters     map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		startedAt:    time.Now(),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		latencyTotal: make(map[string]time.Duration),
		counters:     make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.latencyTotal[key] += duration
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

// Inc bumps a named lifecycle counter.
func (m *Metrics) Inc(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

// Count returns the current value of a lifecycle counter.
func (m *Metrics) Count(name string) int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// RequestStat is one request counter row.
type RequestStat struct {
	Path         string  `json:"path"`
	Method       string  `json:"method"`
	Status       string  `json:"status"`
	Count        int64   `json:"count"`
	AvgLatencyMS float64 `json:"avg_latency_ms,omitempty"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Requests      []RequestStat    `json:"requests"`
	Errors        []RequestStat    `json:"errors"`
	Lifecycle     map[string]int64 `json:"lifecycle"`
}

// Snapshot copies the counters for rendering.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{Lifecycle: map[string]int64{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		Requests:      make([]RequestStat, 0, len(m.requestCount)),
		Errors:        make([]RequestStat, 0, len(m.errorCount)),
		Lifecycle:     make(map[string]int64, len(m.counters)),
	}
	for key, count := range m.requestCount {
		stat := splitKey(key, count)
		if count > 0 {
			stat.AvgLatencyMS = float64(m.latencyTotal[key].Microseconds()) / 1000 / float64(count)
		}
		snap.Requests = append(snap.Requests, stat)
	}
	for key, count := range m.errorCount {
		snap.Errors = append(snap.Errors, splitKey(key, count))
	}
	for name, count := range m.counters {
		snap.Lifecycle[name] = count
	}
	sortStats(snap.Requests)
	sortStats(snap.Errors)
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}

func splitKey(key string, count int64) RequestStat {
	var parts [3]string
	idx := 0
	start := 0
	for i := 0; i < len(key) && idx < 2; i++ {
		if key[i] == '|' {
			parts[idx] = key[start:i]
			idx++
			start = i + 1
		}
	}
	parts[idx] = key[start:]
	return RequestStat{Path: parts[0], Method: parts[1], Status: parts[2], Count: count}
}

func sortStats(stats []RequestStat) {
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Path != stats[j].Path {
			return stats[i].Path < stats[j].Path
		}
		if stats[i].Method != stats[j].Method {
			return stats[i].Method < stats[j].Method
		}
		return stats[i].Status < stats[j].Status
	})
}
