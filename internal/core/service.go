package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBatchNotFound is returned when a batch id is unknown or its retention
// window has passed.
var ErrBatchNotFound = errors.New("batch not found")

// ErrEmptyBatch is returned when a batch is started with no files.
var ErrEmptyBatch = errors.New("batch contains no files")

// DefaultBatchRetention is how long a finished batch stays queryable before
// the service forgets it.
const DefaultBatchRetention = 10 * time.Minute

// Service owns the active batches. Each StartBatch call spawns one
// BatchCoordinator that runs detached from the request context, because
// imports must finish server-side even when no client is watching. Finished
// batches linger for a retention window so late snapshot requests still
// resolve, then a timer removes them.
type Service struct {
	orch      *Orchestrator
	retention time.Duration
	log       *slog.Logger

	mu      sync.RWMutex
	batches map[string]*BatchCoordinator
}

// NewService builds a batch service. retention <= 0 selects
// DefaultBatchRetention; log may be nil.
func NewService(orch *Orchestrator, retention time.Duration, log *slog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultBatchRetention
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		orch:      orch,
		retention: retention,
		log:       log,
		batches:   make(map[string]*BatchCoordinator),
	}
}

// StartBatch registers a new batch and begins processing it in the
// background. It returns the batch id and the initial queue snapshot
// immediately; progress is observed through QueueSnapshot or SubscribeQueue.
func (s *Service) StartBatch(owner Ownership, files []QueuedFile) (string, []FileWithStatus, error) {
	if len(files) == 0 {
		return "", nil, ErrEmptyBatch
	}

	batchID := uuid.New().String()
	batch := NewBatchCoordinator(batchID, s.orch, owner, files)

	s.mu.Lock()
	s.batches[batchID] = batch
	s.mu.Unlock()

	s.log.Info("batch started",
		"batch_id", batchID,
		"account_id", owner.AccountID,
		"files", len(files),
	)

	go func() {
		// Detached from the originating request on purpose: closing the
		// browser must not abort imports already in flight.
		batch.Run(context.Background())
		s.scheduleCleanup(batchID)
	}()

	return batchID, batch.Queue().Snapshot(), nil
}

// QueueSnapshot returns the current queue state of a batch.
func (s *Service) QueueSnapshot(batchID string) ([]FileWithStatus, error) {
	batch, err := s.get(batchID)
	if err != nil {
		return nil, err
	}
	return batch.Queue().Snapshot(), nil
}

// SubscribeQueue returns a channel of queue snapshots for a batch. The
// channel closes when the batch finishes or is torn down.
func (s *Service) SubscribeQueue(batchID string) (<-chan []FileWithStatus, error) {
	batch, err := s.get(batchID)
	if err != nil {
		return nil, err
	}
	return batch.Queue().Subscribe(), nil
}

// CloseBatch tears a batch down (the client went away). The batch stays
// queryable until its retention timer fires.
func (s *Service) CloseBatch(batchID string) error {
	batch, err := s.get(batchID)
	if err != nil {
		return err
	}
	batch.Close()
	s.log.Info("batch closed", "batch_id", batchID)
	return nil
}

// CloseAll tears down every active batch. Used on shutdown.
func (s *Service) CloseAll() {
	s.mu.RLock()
	batches := make([]*BatchCoordinator, 0, len(s.batches))
	for _, b := range s.batches {
		batches = append(batches, b)
	}
	s.mu.RUnlock()

	for _, b := range batches {
		b.Close()
	}
}

func (s *Service) get(batchID string) (*BatchCoordinator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[batchID]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return batch, nil
}

func (s *Service) scheduleCleanup(batchID string) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.batches, batchID)
		s.mu.Unlock()
		s.log.Debug("batch forgotten", "batch_id", batchID)
	})
}
