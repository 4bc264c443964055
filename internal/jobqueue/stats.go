package jobqueue

import (
	"context"
	"time"
)

// outcome is one finished job in the rolling stats window.
type outcome struct {
	finishedAt time.Time
	lag        time.Duration
	status     Status
}

// HistoryEntry is one recent finished job in [Stats.History].
type HistoryEntry struct {
	FinishedAt time.Time `json:"finished_at"`
	ID         string    `json:"request_id"`
	Status     Status    `json:"status"`
	DurationMs int64     `json:"duration_ms"`
}

// Stats is an aggregate view of the queue over the rolling window.
type Stats struct {
	History []*HistoryEntry `json:"history"`

	// ProcessingRate is finished jobs per second over the window.
	ProcessingRate float64 `json:"processing_rate"`

	// QueueLagMs is the mean time jobs spent pending before a worker picked
	// them up, over the window.
	QueueLagMs int64 `json:"queue_lag_ms"`

	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// recordLocked adds a finished job to the window and the history.  q.mu must
// be held.
func (q *Queue) recordLocked(j *job, status Status, now time.Time) {
	var lag time.Duration
	var durMs int64
	if !j.startedAt.IsZero() {
		lag = j.startedAt.Sub(j.enqueuedAt)
		durMs = now.Sub(j.startedAt).Milliseconds()
	}

	q.window = append(q.window, &outcome{
		finishedAt: now,
		lag:        lag,
		status:     status,
	})

	q.history = append(q.history, &HistoryEntry{
		FinishedAt: now,
		ID:         j.j.ID,
		Status:     status,
		DurationMs: durMs,
	})
	if len(q.history) > maxHistory {
		q.history = q.history[len(q.history)-maxHistory:]
	}
}

// pruneLocked drops window entries older than the rolling window.  q.mu must
// be held.
func (q *Queue) pruneLocked(now time.Time) {
	cutoff := now.Add(-q.windowDur)

	i := 0
	for i < len(q.window) && q.window[i].finishedAt.Before(cutoff) {
		i++
	}

	q.window = q.window[i:]
}

// Stats returns the aggregate view of the queue over the rolling window.
func (q *Queue) Stats(_ context.Context) (st *Stats) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	q.pruneLocked(now)

	st = &Stats{
		History: make([]*HistoryEntry, len(q.history)),
	}
	copy(st.History, q.history)

	for _, j := range q.jobs {
		switch j.status {
		case StatusPending:
			st.Pending++
		case StatusRunning:
			st.Running++
		}
	}

	var lagSum time.Duration
	for _, o := range q.window {
		switch o.status {
		case StatusCompleted:
			st.Completed++
		case StatusFailed:
			st.Failed++
		case StatusCancelled:
			st.Cancelled++
		}

		lagSum += o.lag
	}

	if n := len(q.window); n > 0 {
		st.ProcessingRate = float64(n) / q.windowDur.Seconds()
		st.QueueLagMs = (lagSum / time.Duration(n)).Milliseconds()
	}

	return st
}
