package core

import (
	"context"
	"time"
)

// StatementImport is the central entity of the pipeline. The orchestrator
// creates it immediately after a successful upload; from that point on it is
// mutated exclusively by the external parser through store updates, and the
// client side only reads it back through the status subscription.
type StatementImport struct {
	ID                   string
	OwnerID              string
	AccountID            string
	FileName             string
	FilePath             string
	MimeType             string
	FileSizeBytes        int64
	FileHash             string // 64-char lowercase hex SHA-256, unique per (owner, account)
	Status               Status
	ParsingMethod        ParsingMethod
	TotalTransactions    int
	ImportedTransactions int
	FailedTransactions   int
	ConfidenceScore      *float64 // 0-100, set only for non-deterministic parsing
	ErrorMessage         *string  // present only when Status is failed
	Metadata             map[string]any
	CorrelationID        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time // set exactly once, on the first terminal transition
}

// CreateParams are the fields the orchestrator supplies when recording a
// freshly uploaded statement. The store assigns the id and timestamps and
// sets the initial status to pending.
type CreateParams struct {
	OwnerID       string
	AccountID     string
	FileName      string
	FilePath      string
	MimeType      string
	FileSizeBytes int64
	FileHash      string
	CorrelationID string
}

// UpdateParams is the patch shape the external parser uses to advance an
// import record. Nil fields are left untouched.
type UpdateParams struct {
	Status               *Status
	ParsingMethod        *ParsingMethod
	TotalTransactions    *int
	ImportedTransactions *int
	FailedTransactions   *int
	ConfidenceScore      *float64
	ErrorMessage         *string
	Metadata             map[string]any
}

// QueuedFile is one user-selected file awaiting import.
type QueuedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

// Size returns the file size in bytes.
func (f QueuedFile) Size() int64 {
	return int64(len(f.Data))
}

// FileWithStatus is the ephemeral, client-facing queue entry for one upload.
// LocalID is stable for the lifetime of the queue entry; LinkedImportID is
// set only once the record store has assigned an import id.
type FileWithStatus struct {
	LocalID        string         `json:"localId"`
	FileName       string         `json:"fileName"`
	SizeBytes      int64          `json:"sizeBytes"`
	UIStatus       UIStatus       `json:"uiStatus"`
	Progress       int            `json:"progress"`
	Message        string         `json:"message,omitempty"`
	Classification Classification `json:"classification,omitempty"`
	LinkedImportID string         `json:"linkedImportId,omitempty"`
	CorrelationID  string         `json:"correlationId"`
}

// Ownership identifies who a batch of imports belongs to.
type Ownership struct {
	OwnerID   string
	AccountID string
}

// RecordStore is the import record store contract. Create must surface a
// duplicate content hash as an error wrapping ErrDuplicateHash, distinct
// from any other failure mode.
type RecordStore interface {
	Create(ctx context.Context, params CreateParams) (*StatementImport, error)
	Get(ctx context.Context, id string) (*StatementImport, error)
	Update(ctx context.Context, id string, patch UpdateParams) (*StatementImport, error)
	ListByAccount(ctx context.Context, accountID string) ([]StatementImport, error)
	ListByStatus(ctx context.Context, status Status) ([]StatementImport, error)
}

// UploadRequest carries one file to object storage.
type UploadRequest struct {
	OwnerID   string
	AccountID string
	FileName  string
	MimeType  string
	FileHash  string
	Data      []byte
}

// Uploader persists raw statement bytes to object storage and returns the
// storage path.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (string, error)
}

// TriggerOutcome classifies the result of firing the processing job.
type TriggerOutcome int

const (
	// TriggerOK means the job request was accepted.
	TriggerOK TriggerOutcome = iota

	// TriggerSoftFailure means the request failed in a way that does not
	// imply the job will never run (timeout, connection refused, gateway
	// errors, endpoint not yet routable). The status subscription remains
	// the source of truth for the job outcome.
	TriggerSoftFailure

	// TriggerHardFailure means the request was rejected outright (malformed,
	// unauthorized) and the job will not run.
	TriggerHardFailure
)

// TriggerResult is the three-valued outcome of a trigger call, so callers
// branch explicitly instead of catching and discarding errors.
type TriggerResult struct {
	Outcome TriggerOutcome
	Reason  string
}

// Trigger fires the asynchronous parsing job for an import. Implementations
// never block on job completion.
type Trigger interface {
	Trigger(ctx context.Context, importID, correlationID string) TriggerResult
}

// StatusSource delivers StatementImport snapshots for an import id until
// unsubscribed. The returned unsubscribe function must be safe to call more
// than once: a terminal transition and a batch teardown may race to close
// the same subscription.
type StatusSource interface {
	Subscribe(importID string, onUpdate func(StatementImport)) (func(), error)
}

// CacheInvalidator is signalled when an import completes so dependent views
// (transactions, dashboard) refresh. The core does not implement the cache.
type CacheInvalidator interface {
	InvalidateViews(accountID string, views ...string)
}
