package dispatcher

import (
	"sync"
	"time"

	"github.com/dshills/dispatchloop/internal/dispatcher/hook"
)

// PriorityMetrics are the counters kept for one priority.
type PriorityMetrics struct {
	Priority       Priority
	PostedCount    uint64
	CompletedCount uint64
	ErrorCount     uint64
	PanicCount     uint64
	AbortedCount   uint64
	TotalDuration  time.Duration
	MinDuration    time.Duration
	MaxDuration    time.Duration
}

func (pm *PriorityMetrics) empty() bool {
	return pm.PostedCount == 0 && pm.CompletedCount == 0 && pm.AbortedCount == 0
}

// AverageDuration is the mean callback run time.
func (pm *PriorityMetrics) AverageDuration() time.Duration {
	if pm.CompletedCount == 0 {
		return 0
	}
	return pm.TotalDuration / time.Duration(pm.CompletedCount)
}

// ErrorRate is the percentage of completed callbacks that failed.
func (pm *PriorityMetrics) ErrorRate() float64 {
	if pm.CompletedCount == 0 {
		return 0
	}
	return 100 * float64(pm.ErrorCount) / float64(pm.CompletedCount)
}

// Metrics is an operation hook counting posts, completions, failures and
// aborts per priority. A dispatcher built with Config.EnableMetrics owns
// one; see Dispatcher.Metrics.
type Metrics struct {
	mu       sync.Mutex
	levels   [PrioritySend + 1]PriorityMetrics
	inactive uint64
}

// NewMetrics returns zeroed metrics.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.Reset()
	return m
}

// Name identifies the metrics hook.
func (m *Metrics) Name() string { return "metrics" }

// Priority orders the metrics hook among a dispatcher's hooks.
func (m *Metrics) Priority() int { return hook.PriorityMetrics }

// OnOperation counts ev against its priority.
func (m *Metrics) OnOperation(ev hook.OperationEvent) {
	p := Priority(ev.Priority)
	if p.Validate() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	pm := &m.levels[p]
	switch ev.Kind {
	case hook.Posted:
		pm.PostedCount++
	case hook.Aborted:
		pm.AbortedCount++
	case hook.Completed:
		if pm.CompletedCount == 0 || ev.Duration < pm.MinDuration {
			pm.MinDuration = ev.Duration
		}
		pm.MaxDuration = max(pm.MaxDuration, ev.Duration)
		pm.CompletedCount++
		pm.TotalDuration += ev.Duration
		if ev.Err != nil {
			pm.ErrorCount++
		}
		if ev.Panicked {
			pm.PanicCount++
		}
	}
}

// OnInactive counts transitions to an idle queue.
func (m *Metrics) OnInactive() {
	m.mu.Lock()
	m.inactive++
	m.mu.Unlock()
}

// PriorityStats returns a copy of the counters for p, or nil when nothing
// has been seen at p.
func (m *Metrics) PriorityStats(p Priority) *PriorityMetrics {
	if p.Validate() != nil {
		return nil
	}
	m.mu.Lock()
	pm := m.levels[p]
	m.mu.Unlock()
	if pm.empty() {
		return nil
	}
	return &pm
}

// ByPriority returns copies of every non-empty priority's counters,
// highest priority first.
func (m *Metrics) ByPriority() []*PriorityMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*PriorityMetrics
	for p := PrioritySend; p >= PriorityInactive; p-- {
		if pm := m.levels[p]; !pm.empty() {
			out = append(out, &pm)
		}
	}
	return out
}

// Reset zeroes every counter.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.levels {
		m.levels[p] = PriorityMetrics{Priority: Priority(p)}
	}
	m.inactive = 0
}

// MetricsSnapshot totals the counters across priorities.
type MetricsSnapshot struct {
	TotalPosted     uint64
	TotalCompleted  uint64
	TotalErrors     uint64
	TotalPanics     uint64
	TotalAborted    uint64
	InactiveCount   uint64
	TotalDuration   time.Duration
	AverageDuration time.Duration
	Timestamp       time.Time
}

// Snapshot sums the per-priority counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{InactiveCount: m.inactive, Timestamp: time.Now()}
	for i := range m.levels {
		pm := &m.levels[i]
		s.TotalPosted += pm.PostedCount
		s.TotalCompleted += pm.CompletedCount
		s.TotalErrors += pm.ErrorCount
		s.TotalPanics += pm.PanicCount
		s.TotalAborted += pm.AbortedCount
		s.TotalDuration += pm.TotalDuration
	}
	if s.TotalCompleted > 0 {
		s.AverageDuration = s.TotalDuration / time.Duration(s.TotalCompleted)
	}
	return s
}
