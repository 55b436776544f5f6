// Package stats maintains running ticket statistics.
package stats

import (
	"sync"
	"time"
)

// Snapshot is the persisted/reported form of the aggregate counters.
// Averages are serialized in milliseconds.
type Snapshot struct {
	Total           int     `json:"total"`
	Closed          int     `json:"closed"`
	Responded       int     `json:"responded"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	AvgCloseTime    float64 `json:"avgCloseTime"`
}

// Aggregator tracks ticket totals and incremental running means.
//
// avgResponseTime is divided by the count of closes that actually recorded
// a first response, not by the total close count. Dividing by all closes
// under-weights the mean whenever a ticket closes without any staff reply.
type Aggregator struct {
	mu              sync.Mutex
	total           int
	closed          int
	responded       int
	avgResponseTime time.Duration
	avgCloseTime    time.Duration
}

// New creates an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{}
}

// RecordOpen increments the lifetime ticket total and returns the ticket
// number assigned to the new ticket. Numbers are monotonic and never reused.
func (a *Aggregator) RecordOpen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total++
	return a.total
}

// RecordClose folds one closed ticket into the running means.
// firstResponse is nil when no staff reply was ever recorded.
func (a *Aggregator) RecordClose(duration time.Duration, firstResponse *time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed++
	a.avgCloseTime = incrementalMean(a.avgCloseTime, a.closed, duration)

	if firstResponse != nil {
		a.responded++
		a.avgResponseTime = incrementalMean(a.avgResponseTime, a.responded, *firstResponse)
	}
}

// incrementalMean folds sample into a running mean that now covers n values.
func incrementalMean(avg time.Duration, n int, sample time.Duration) time.Duration {
	return time.Duration((float64(avg)*float64(n-1) + float64(sample)) / float64(n))
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{
		Total:           a.total,
		Closed:          a.closed,
		Responded:       a.responded,
		AvgResponseTime: float64(a.avgResponseTime) / float64(time.Millisecond),
		AvgCloseTime:    float64(a.avgCloseTime) / float64(time.Millisecond),
	}
}

// Restore replaces the counters from a persisted snapshot.
func (a *Aggregator) Restore(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total = s.Total
	a.closed = s.Closed
	a.responded = s.Responded
	a.avgResponseTime = time.Duration(s.AvgResponseTime * float64(time.Millisecond))
	a.avgCloseTime = time.Duration(s.AvgCloseTime * float64(time.Millisecond))
}

// Total returns the lifetime ticket count.
func (a *Aggregator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// AvgResponseTime returns the running mean first-response time.
func (a *Aggregator) AvgResponseTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgResponseTime
}

// AvgCloseTime returns the running mean open-to-close duration.
func (a *Aggregator) AvgCloseTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.avgCloseTime
}
