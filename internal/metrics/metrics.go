// Package metrics provides lightweight, lock-free counters for
// tracking runtime statistics of a test session.
//
// All methods are safe for concurrent use (test groups are processed
// in parallel).  A nil *Collector is a valid no-op receiver, so
// callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime statistics for one test session.
// A nil Collector is safe to use — all methods become no-ops.
type Collector struct {
	vectorSets   atomic.Int64
	casesPassed  atomic.Int64
	casesFailed  atomic.Int64
	casesErrored atomic.Int64
	bytesUp      atomic.Int64
	bytesDown    atomic.Int64
	retries      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Vector-set and test-case counters ────────────────────────────────

// VectorSetDone records a fully processed vector set.
func (c *Collector) VectorSetDone() {
	if c == nil {
		return
	}
	c.vectorSets.Add(1)
}

// CasePassed records a test case whose handler produced a result.
func (c *Collector) CasePassed() {
	if c == nil {
		return
	}
	c.casesPassed.Add(1)
}

// CaseFailed records a test case the server judged incorrect.
func (c *Collector) CaseFailed() {
	if c == nil {
		return
	}
	c.casesFailed.Add(1)
}

// CaseErrored records a test case whose handler returned an error.
func (c *Collector) CaseErrored() {
	if c == nil {
		return
	}
	c.casesErrored.Add(1)
}

// VectorSets returns the number of vector sets processed.
func (c *Collector) VectorSets() int64 {
	if c == nil {
		return 0
	}
	return c.vectorSets.Load()
}

// Cases returns the passed/failed/errored test-case counts.
func (c *Collector) Cases() (passed, failed, errored int64) {
	if c == nil {
		return 0, 0, 0
	}
	return c.casesPassed.Load(), c.casesFailed.Load(), c.casesErrored.Load()
}

// ── Transport counters ───────────────────────────────────────────────

// BytesUploaded records n bytes sent to the server.
func (c *Collector) BytesUploaded(n int64) {
	if c == nil {
		return
	}
	c.bytesUp.Add(n)
}

// BytesDownloaded records n bytes received from the server.
func (c *Collector) BytesDownloaded(n int64) {
	if c == nil {
		return
	}
	c.bytesDown.Add(n)
}

// Retry records one transport retry.
func (c *Collector) Retry() {
	if c == nil {
		return
	}
	c.retries.Add(1)
}

// Retries returns the total number of transport retries.
func (c *Collector) Retries() int64 {
	if c == nil {
		return 0
	}
	return c.retries.Load()
}

// ── Error tracking ───────────────────────────────────────────────────

// RecordError stores the latest error message with a timestamp.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all session statistics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	VectorSets       int64  `json:"vector_sets"`
	CasesPassed      int64  `json:"cases_passed"`
	CasesFailed      int64  `json:"cases_failed"`
	CasesErrored     int64  `json:"cases_errored"`
	BytesUploaded    int64  `json:"bytes_uploaded"`
	BytesDownloaded  int64  `json:"bytes_downloaded"`
	Retries          int64  `json:"retries"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		VectorSets:      c.vectorSets.Load(),
		CasesPassed:     c.casesPassed.Load(),
		CasesFailed:     c.casesFailed.Load(),
		CasesErrored:    c.casesErrored.Load(),
		BytesUploaded:   c.bytesUp.Load(),
		BytesDownloaded: c.bytesDown.Load(),
		Retries:         c.retries.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
