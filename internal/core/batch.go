package core

import (
	"context"
	"sync"
)

// BatchCoordinator runs one batch of queued files. Upload phases are
// strictly sequential: file k+1's upload is never issued until file k's
// upload phase has resolved (success or failure). Once a file's record
// exists, its processing phase runs in its own goroutine, so a batch has at
// most one upload in flight but any number of concurrent subscriptions.
type BatchCoordinator struct {
	id     string
	orch   *Orchestrator
	owner  Ownership
	files  []QueuedFile
	queue  *Queue
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	unsubscribes []func()
	closed       bool
	wg           sync.WaitGroup
}

// NewBatchCoordinator builds a coordinator and its queue. Run must be called
// to start processing.
func NewBatchCoordinator(id string, orch *Orchestrator, owner Ownership, files []QueuedFile) *BatchCoordinator {
	return &BatchCoordinator{
		id:    id,
		orch:  orch,
		owner: owner,
		files: files,
		queue: NewQueue(files),
		done:  make(chan struct{}),
	}
}

// ID returns the batch id.
func (b *BatchCoordinator) ID() string { return b.id }

// Queue returns the batch's queue container.
func (b *BatchCoordinator) Queue() *Queue { return b.queue }

// Done is closed when every file in the batch has finished, failed, or been
// torn down.
func (b *BatchCoordinator) Done() <-chan struct{} { return b.done }

// Run processes the batch to completion. It blocks until every processing
// goroutine has returned, so callers normally run it in a goroutine of its
// own. Calling Close unblocks it.
func (b *BatchCoordinator) Run(ctx context.Context) {
	// Close cancels procCtx only. Uploads run on the parent context, so
	// teardown stops new upload phases from starting but a transfer already
	// in flight finishes and gets its record.
	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		close(b.done)
		return
	}
	b.cancel = cancel
	b.mu.Unlock()

	entries := b.queue.Snapshot()
	for i, file := range b.files {
		if procCtx.Err() != nil {
			break
		}
		entry := entries[i]
		importID, err := b.orch.UploadPhase(ctx, b.queue, b.owner, file, entry.LocalID, entry.CorrelationID)
		if err != nil {
			// Entry is terminal; the rest of the batch still proceeds.
			continue
		}
		b.wg.Add(1)
		go func(localID, importID, correlationID string) {
			defer b.wg.Done()
			b.orch.ProcessingPhase(procCtx, b.queue, b.owner, localID, importID, correlationID, b.trackUnsubscribe)
		}(entry.LocalID, importID, entry.CorrelationID)
	}

	b.wg.Wait()
	b.queue.Close()
	close(b.done)
}

// trackUnsubscribe records a subscription's unsubscribe function for
// teardown. If Close already ran, the subscription is closed on the spot
// instead of leaking.
func (b *BatchCoordinator) trackUnsubscribe(unsubscribe func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		unsubscribe()
		return
	}
	b.unsubscribes = append(b.unsubscribes, unsubscribe)
	b.mu.Unlock()
}

// Close tears the batch down: every open subscription is unsubscribed and
// the processing goroutines are cancelled, so no further status updates are
// acted upon. In-flight uploads and already-triggered server-side jobs are
// not cancelled; their records keep progressing without a watcher. Close is
// idempotent and tolerates racing with per-import terminal teardown, since
// unsubscribe functions are themselves safe to call repeatedly.
func (b *BatchCoordinator) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	cancel := b.cancel
	unsubs := b.unsubscribes
	b.unsubscribes = nil
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}
