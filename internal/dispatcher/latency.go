package dispatcher

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/dispatchloop/internal/dispatcher/hook"
)

// latencyBounds are the exclusive upper edges of the histogram buckets.
// The last bucket has no upper edge.
var latencyBounds = [...]time.Duration{
	10 * time.Microsecond,
	50 * time.Microsecond,
	100 * time.Microsecond,
	500 * time.Microsecond,
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
}

// LatencyTracker accumulates durations into totals and a fixed histogram.
type LatencyTracker struct {
	mu      sync.Mutex
	n       uint64
	lo, hi  time.Duration
	sum, sq float64 // nanoseconds
	counts  [len(latencyBounds) + 1]uint64
}

// NewLatencyTracker returns an empty tracker.
func NewLatencyTracker() *LatencyTracker { return &LatencyTracker{} }

// Record adds one sample. Negative durations count as zero.
func (lt *LatencyTracker) Record(d time.Duration) {
	d = max(d, 0)
	b := len(latencyBounds)
	for i, edge := range latencyBounds {
		if d < edge {
			b = i
			break
		}
	}
	ns := float64(d)

	lt.mu.Lock()
	defer lt.mu.Unlock()
	if lt.n == 0 || d < lt.lo {
		lt.lo = d
	}
	lt.hi = max(lt.hi, d)
	lt.n++
	lt.sum += ns
	lt.sq += ns * ns
	lt.counts[b]++
}

// LatencyStats summarizes a tracker. Percentiles are the upper edge of the
// bucket holding that rank, capped at MaxTime.
type LatencyStats struct {
	Count        uint64
	MinTime      time.Duration
	MaxTime      time.Duration
	AvgTime      time.Duration
	StdDev       time.Duration
	Percentile50 time.Duration
	Percentile95 time.Duration
	Percentile99 time.Duration
	Histogram    [len(latencyBounds) + 1]uint64
}

// Stats summarizes the samples recorded so far.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	s := LatencyStats{Count: lt.n, Histogram: lt.counts}
	if lt.n == 0 {
		return s
	}
	n := float64(lt.n)
	mean := lt.sum / n
	s.MinTime, s.MaxTime = lt.lo, lt.hi
	s.AvgTime = time.Duration(mean)
	if lt.n > 1 {
		// sample variance from the running sums
		if v := (lt.sq - n*mean*mean) / (n - 1); v > 0 {
			s.StdDev = time.Duration(math.Sqrt(v))
		}
	}
	s.Percentile50 = lt.percentile(50)
	s.Percentile95 = lt.percentile(95)
	s.Percentile99 = lt.percentile(99)
	return s
}

func (lt *LatencyTracker) percentile(p uint64) time.Duration {
	rank := max((p*lt.n+99)/100, 1)
	var seen uint64
	for i, c := range lt.counts {
		seen += c
		if seen < rank {
			continue
		}
		if i < len(latencyBounds) {
			return min(latencyBounds[i], lt.hi)
		}
		break
	}
	return lt.hi
}

// Reset discards every sample.
func (lt *LatencyTracker) Reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.n, lt.lo, lt.hi, lt.sum, lt.sq = 0, 0, 0, 0, 0
	lt.counts = [len(latencyBounds) + 1]uint64{}
}

// LatencyMonitor is an operation hook measuring, per priority, how long
// operations wait in the queue and how long their callbacks run.
type LatencyMonitor struct {
	on      atomic.Bool
	slow    time.Duration
	onSlow  func(hook.OperationEvent)
	now     func() time.Time
	mu      sync.Mutex
	posted  map[uuid.UUID]time.Time
	wait    [PrioritySend + 1]LatencyTracker
	running [PrioritySend + 1]LatencyTracker
}

// NewLatencyMonitor returns an enabled monitor. Callbacks running longer
// than slowThreshold are passed to onSlow; a zero threshold or nil onSlow
// turns that off.
func NewLatencyMonitor(slowThreshold time.Duration, onSlow func(ev hook.OperationEvent)) *LatencyMonitor {
	m := &LatencyMonitor{
		slow:   slowThreshold,
		onSlow: onSlow,
		now:    time.Now,
		posted: make(map[uuid.UUID]time.Time),
	}
	m.on.Store(true)
	return m
}

// Name identifies the monitor among a dispatcher's hooks.
func (m *LatencyMonitor) Name() string { return "latency" }

// Priority runs the monitor just after Metrics.
func (m *LatencyMonitor) Priority() int { return hook.PriorityMetrics - 1 }

// Enable turns recording on or off.
func (m *LatencyMonitor) Enable(enabled bool) { m.on.Store(enabled) }

// OnOperation records queue wait on Started and run time on Completed.
func (m *LatencyMonitor) OnOperation(ev hook.OperationEvent) {
	p := Priority(ev.Priority)
	if !m.on.Load() || p.Validate() != nil {
		return
	}

	switch ev.Kind {
	case hook.Posted:
		m.mu.Lock()
		m.posted[ev.ID] = m.now()
		m.mu.Unlock()
	case hook.Started:
		m.mu.Lock()
		at, ok := m.posted[ev.ID]
		delete(m.posted, ev.ID)
		m.mu.Unlock()
		if ok {
			m.wait[p].Record(m.now().Sub(at))
		}
	case hook.Completed:
		m.running[p].Record(ev.Duration)
		if m.onSlow != nil && m.slow > 0 && ev.Duration > m.slow {
			m.onSlow(ev)
		}
	case hook.Aborted:
		m.mu.Lock()
		delete(m.posted, ev.ID)
		m.mu.Unlock()
	}
}

// PriorityLatency is the monitor's view of one priority.
type PriorityLatency struct {
	Priority Priority
	Wait     LatencyStats
	Run      LatencyStats
}

// Report returns every priority with samples, highest first.
func (m *LatencyMonitor) Report() []PriorityLatency {
	var out []PriorityLatency
	for p := PrioritySend; p >= PriorityInactive; p-- {
		pl := PriorityLatency{Priority: p, Wait: m.wait[p].Stats(), Run: m.running[p].Stats()}
		if pl.Wait.Count > 0 || pl.Run.Count > 0 {
			out = append(out, pl)
		}
	}
	return out
}

// InFlight is the number of posted operations that have not started.
func (m *LatencyMonitor) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

// Reset discards every sample and forgets pending operations.
func (m *LatencyMonitor) Reset() {
	m.mu.Lock()
	clear(m.posted)
	m.mu.Unlock()
	for p := range m.wait {
		m.wait[p].Reset()
		m.running[p].Reset()
	}
}
