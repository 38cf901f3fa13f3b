// ABOUTME: In-memory table of participant clock offsets
// ABOUTME: Every read and write goes through one mutex so snapshots are never torn
package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrEvicted is returned when a session reports after the coordinator dropped it
var ErrEvicted = errors.New("participant evicted")

// Sink delivers a payload to one participant. Owned by the session, referenced here.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Record is one participant's latest sample
type Record struct {
	ID         string
	LastOffset time.Duration // coordinator clock at receipt - participant's reported clock
	LastSeen   time.Time
	Sink       Sink
}

// Entry is an immutable copy of a record taken for one synchronization cycle
type Entry struct {
	ID     string
	Offset time.Duration
	Sink   Sink
}

// Registry maps participant id to its record
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record

	// Sinks dropped after a failed send. Their session may still deliver one
	// last report before it notices the closed connection; it must not
	// resurrect the record.
	evicted map[Sink]struct{}
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		evicted: make(map[Sink]struct{}),
	}
}

// Upsert stores the newest offset for id, creating the record on the first report.
// It reports whether a record was created.
func (r *Registry) Upsert(id string, sink Sink, offset time.Duration, seen time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.evicted[sink]; gone {
		return false, ErrEvicted
	}

	rec, ok := r.records[id]
	if ok && rec.Sink == sink {
		rec.LastOffset = offset
		rec.LastSeen = seen
		return false, nil
	}

	// New id, or an id reused by a new connection after the old one ended
	r.records[id] = &Record{
		ID:         id,
		LastOffset: offset,
		LastSeen:   seen,
		Sink:       sink,
	}
	return true, nil
}

// Evict removes id after a failed broadcast send and blocks later reports
// from the same sink. It reports whether a record was removed. A sink whose
// record is already gone has released, so it is not marked.
func (r *Registry) Evict(id string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.deleteLocked(id, sink) {
		return false
	}
	r.evicted[sink] = struct{}{}
	return true
}

// Release removes id when its session terminates. It is the session's last
// call into the registry and reports whether a record was removed.
func (r *Registry) Release(id string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.evicted, sink)
	return r.deleteLocked(id, sink)
}

func (r *Registry) deleteLocked(id string, sink Sink) bool {
	rec, ok := r.records[id]
	if !ok || rec.Sink != sink {
		return false
	}
	delete(r.records, id)
	return true
}

// Snapshot copies every id and offset under one critical section
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]Entry, 0, len(r.records))
	for _, rec := range r.records {
		entries = append(entries, Entry{
			ID:     rec.ID,
			Offset: rec.LastOffset,
			Sink:   rec.Sink,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries
}

// Records returns copies of all records, sorted by id
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// Len returns the number of participants with a record
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
