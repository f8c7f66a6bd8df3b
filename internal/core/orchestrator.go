package core

import (
	"context"
	"errors"
	"log/slog"

	"github.com/kieranpgray/coinbag-sub006/internal/checksum"
)

// Orchestrator drives a single statement file through the import pipeline:
// validate, hash, upload, create the record, fire the parsing job, then
// follow the status subscription to a terminal state. It owns no goroutines
// itself; the BatchCoordinator decides what runs where.
type Orchestrator struct {
	validator *FileValidator
	store     RecordStore
	uploader  Uploader
	trigger   Trigger
	status    StatusSource
	cache     CacheInvalidator
	log       *slog.Logger
}

// NewOrchestrator wires the pipeline collaborators. cache may be nil when no
// view cache is attached; log may be nil to use the default logger.
func NewOrchestrator(validator *FileValidator, store RecordStore, uploader Uploader, trigger Trigger, status StatusSource, cache CacheInvalidator, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		validator: validator,
		store:     store,
		uploader:  uploader,
		trigger:   trigger,
		status:    status,
		cache:     cache,
		log:       log,
	}
}

// UploadPhase runs the sequential part of one file's pipeline: validation,
// hashing, upload, and record creation. On success it returns the new import
// id; on failure the queue entry has already been marked terminal and the
// returned error carries the classification.
//
// Validation failure is decided before any network call. A duplicate content
// hash is surfaced by the store as ErrDuplicateHash and becomes its own
// class, not a generic upload failure. Neither failure is retried here;
// retry is a user-initiated re-queue.
func (o *Orchestrator) UploadPhase(ctx context.Context, q *Queue, owner Ownership, file QueuedFile, localID, correlationID string) (string, error) {
	log := o.log.With("file", file.Name, "correlation_id", correlationID)

	if err := o.validator.Validate(file); err != nil {
		o.failEntry(q, localID, err)
		log.Info("statement rejected by validation", "error", err)
		return "", err
	}

	hash := checksum.SumBytes(file.Data)

	q.Update(localID, func(e *FileWithStatus) {
		e.UIStatus = UIUploading
	})

	path, err := o.uploader.Upload(ctx, UploadRequest{
		OwnerID:   owner.OwnerID,
		AccountID: owner.AccountID,
		FileName:  file.Name,
		MimeType:  file.MimeType,
		FileHash:  hash,
		Data:      file.Data,
	})
	if err != nil {
		ierr := NewImportError(ClassUpload, "The file could not be uploaded.", err)
		o.failEntry(q, localID, ierr)
		log.Error("statement upload failed", "error", err)
		return "", ierr
	}

	rec, err := o.store.Create(ctx, CreateParams{
		OwnerID:       owner.OwnerID,
		AccountID:     owner.AccountID,
		FileName:      file.Name,
		FilePath:      path,
		MimeType:      file.MimeType,
		FileSizeBytes: file.Size(),
		FileHash:      hash,
		CorrelationID: correlationID,
	})
	if err != nil {
		var ierr *ImportError
		if errors.Is(err, ErrDuplicateHash) {
			ierr = NewImportError(ClassDuplicateFile,
				"This statement was already imported for this account.", err)
			log.Info("duplicate statement content", "file_hash", hash)
		} else {
			ierr = NewImportError(ClassUpload, "The import could not be recorded.", err)
			log.Error("import record creation failed", "error", err)
		}
		o.failEntry(q, localID, ierr)
		return "", ierr
	}

	q.Update(localID, func(e *FileWithStatus) {
		e.UIStatus = UIProcessing
		e.Progress = 10
		e.LinkedImportID = rec.ID
	})
	log.Info("statement recorded", "import_id", rec.ID, "file_hash", hash)
	return rec.ID, nil
}

// ProcessingPhase fires the parsing job and consumes status pushes until the
// record reaches a terminal state or ctx is cancelled. onSubscribed hands
// the idempotent unsubscribe function to the caller so batch teardown can
// close the subscription even while this goroutine is blocked.
//
// The trigger is fire-and-forget: a soft failure is logged and the
// subscription remains the source of truth, because the job may run anyway.
// Only a hard rejection ends the pipeline here.
func (o *Orchestrator) ProcessingPhase(ctx context.Context, q *Queue, owner Ownership, localID, importID, correlationID string, onSubscribed func(func())) {
	log := o.log.With("import_id", importID, "correlation_id", correlationID)

	// The trigger runs detached from ctx: once the record exists the job
	// must be started even if the batch is being torn down at that moment.
	// Only watching the job is cancellable.
	res := o.trigger.Trigger(context.WithoutCancel(ctx), importID, correlationID)
	switch res.Outcome {
	case TriggerHardFailure:
		ierr := NewImportError(ClassTrigger, "The import could not be started.", nil)
		o.failEntry(q, localID, ierr)
		log.Error("processing trigger rejected", "reason", res.Reason)
		return
	case TriggerSoftFailure:
		log.Warn("processing trigger soft failure, relying on status updates", "reason", res.Reason)
	}

	updates := make(chan StatementImport, 16)
	unsubscribe, err := o.status.Subscribe(importID, func(rec StatementImport) {
		select {
		case updates <- rec:
		case <-ctx.Done():
		}
	})
	if err != nil {
		// Degraded, not terminal: the job is running server-side, the client
		// just cannot watch it live.
		q.Update(localID, func(e *FileWithStatus) {
			e.Classification = ClassSubscription
			e.Message = "Live updates are unavailable. Refresh to see the outcome."
		})
		log.Error("status subscription failed", "error", err)
		return
	}
	if onSubscribed != nil {
		onSubscribed(unsubscribe)
	}
	defer unsubscribe()

	lastRank := 0
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-updates:
			if !rec.Status.Valid() || rec.Status.rank() < lastRank {
				// Unknown or stale push, never regress the entry.
				continue
			}
			lastRank = rec.Status.rank()

			proj := ProjectStatus(rec)
			q.Update(localID, func(e *FileWithStatus) {
				e.UIStatus = proj.UIStatus
				e.Progress = proj.Progress
				e.Message = proj.Message
				e.Classification = proj.Classification
			})

			if rec.Status.IsTerminal() {
				if rec.Status == StatusCompleted && o.cache != nil {
					o.cache.InvalidateViews(owner.AccountID, "transactions", "dashboard")
				}
				log.Info("import reached terminal status", "status", rec.Status)
				return
			}
		}
	}
}

// failEntry marks a queue entry terminally failed with the error's class and
// user-facing message.
func (o *Orchestrator) failEntry(q *Queue, localID string, ierr error) {
	var ie *ImportError
	class := Classify(ierr)
	message := DescribeClass(class).Message
	if errors.As(ierr, &ie) && ie.Message != "" {
		message = ie.Message
	}
	q.Update(localID, func(e *FileWithStatus) {
		e.UIStatus = UIError
		e.Classification = class
		e.Message = message
	})
}
