package core

import (
	"sync"

	"github.com/google/uuid"
)

// Queue holds the client-facing entries for one batch. Every mutation
// replaces the whole slice under the lock, so a snapshot handed to a reader
// is never mutated after the fact and readers never observe a half-updated
// entry.
type Queue struct {
	mu        sync.RWMutex
	entries   []FileWithStatus
	listeners []chan []FileWithStatus
	closed    bool
}

// NewQueue builds the initial queue for a set of files. Each entry gets a
// fresh local id and correlation id and starts in the pending state.
func NewQueue(files []QueuedFile) *Queue {
	entries := make([]FileWithStatus, len(files))
	for i, f := range files {
		entries[i] = FileWithStatus{
			LocalID:       uuid.New().String(),
			FileName:      f.Name,
			SizeBytes:     f.Size(),
			UIStatus:      UIPending,
			CorrelationID: uuid.New().String(),
		}
	}
	return &Queue{entries: entries}
}

// Snapshot returns a copy of the current entries.
func (q *Queue) Snapshot() []FileWithStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]FileWithStatus, len(q.entries))
	copy(out, q.entries)
	return out
}

// Subscribe registers a listener channel that receives a snapshot after
// every mutation. The current snapshot is delivered immediately so the
// subscriber does not need a separate initial read. Channels are closed by
// Close.
func (q *Queue) Subscribe() <-chan []FileWithStatus {
	ch := make(chan []FileWithStatus, 16)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		close(ch)
		return ch
	}
	q.listeners = append(q.listeners, ch)

	snapshot := make([]FileWithStatus, len(q.entries))
	copy(snapshot, q.entries)
	ch <- snapshot
	return ch
}

// Update applies mutate to the entry with the given local id and notifies
// listeners with the new snapshot. Unknown local ids are ignored; the entry
// may already have been dropped by a re-queue.
func (q *Queue) Update(localID string, mutate func(*FileWithStatus)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	next := make([]FileWithStatus, len(q.entries))
	copy(next, q.entries)
	found := false
	for i := range next {
		if next[i].LocalID == localID {
			mutate(&next[i])
			found = true
			break
		}
	}
	if !found {
		return
	}
	q.entries = next

	for _, ch := range q.listeners {
		snapshot := make([]FileWithStatus, len(next))
		copy(snapshot, next)
		select {
		case ch <- snapshot:
		default:
			// Slow listener: drop this snapshot, a later one supersedes it.
		}
	}
}

// Close marks the queue finished and closes all listener channels. Safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, ch := range q.listeners {
		close(ch)
	}
	q.listeners = nil
}
