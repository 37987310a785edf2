// Package outcome accumulates per-entity results of a reconciliation or
// replacement run for reporting.
package outcome

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the terminal state of one processed entity.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Actions recorded by the engines.
const (
	ActionCreated      = "created"
	ActionRenamed      = "renamed"
	ActionUnchanged    = "unchanged"
	ActionHostRestored = "host-restored"
	ActionReplaced     = "replaced"
	ActionSkipped      = "skipped"
	ActionMoved        = "moved-offline"
	ActionDeleted      = "deleted"
	ActionDrift        = "drift"
)

// Record is one immutable per-entity result.
type Record struct {
	ID        string    `json:"id"`
	EntityKey string    `json:"entity_key"`
	Action    string    `json:"action"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Time      time.Time `json:"time"`
}

// Summary is the aggregate result of a run.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Report collects records as a run progresses. Records are append-only;
// a record is never mutated after it is added.
type Report struct {
	mu      sync.Mutex
	records []Record
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{}
}

// Add appends one record and returns it.
func (r *Report) Add(entityKey, action string, status Status, detail string) Record {
	rec := Record{
		ID:        ulid.Make().String(),
		EntityKey: entityKey,
		Action:    action,
		Status:    status,
		Detail:    detail,
		Time:      time.Now(),
	}

	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	return rec
}

// Success appends a success record.
func (r *Report) Success(entityKey, action, detail string) Record {
	return r.Add(entityKey, action, StatusSuccess, detail)
}

// Failure appends a failure record.
func (r *Report) Failure(entityKey, action, detail string) Record {
	return r.Add(entityKey, action, StatusFailure, detail)
}

// Records returns a copy of all recorded entries in append order.
func (r *Report) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Summary folds the recorded entries into aggregate counts.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Summary
	for _, rec := range r.records {
		switch rec.Status {
		case StatusFailure:
			s.Failed++
		default:
			s.Succeeded++
		}
	}
	return s
}
